package main

import "fabula/cmd"

func main() {
	cmd.Execute()
}
