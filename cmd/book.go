package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var bookCmd = &cobra.Command{
	Use:   "book",
	Short: "Manage books in the store",
}

var bookCreateCmd = &cobra.Command{
	Use:   "create [title]",
	Short: "Register a new book without starting a run",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig()
		if err != nil {
			return err
		}
		s, err := OpenStore(cfg, true)
		if err != nil {
			return err
		}
		defer s.Close()

		title := "untitled"
		if len(args) == 1 {
			title = args[0]
		}
		book, err := s.CreateBook(title)
		if err != nil {
			return err
		}
		fmt.Printf("Created book %d: %s\n", book.ID, book.Title)
		return nil
	},
}

var bookListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all books",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig()
		if err != nil {
			return err
		}
		s, err := OpenStore(cfg, false)
		if err != nil {
			return err
		}
		defer s.Close()

		books, err := s.ListBooks()
		if err != nil {
			return err
		}
		if len(books) == 0 {
			fmt.Println("No books.")
			return nil
		}
		fmt.Printf("%-5s %-12s %-6s %-20s %s\n", "ID", "STATUS", "STAGE", "UPDATED", "TITLE")
		for _, b := range books {
			updated := time.UnixMilli(b.UpdatedAt).Format("2006-01-02 15:04")
			fmt.Printf("%-5d %-12s %-6d %-20s %s\n", b.ID, b.Status, b.Stage, updated, b.Title)
		}
		return nil
	},
}

var bookShowCmd = &cobra.Command{
	Use:   "show <book>",
	Short: "Show one book's status and its stored artifacts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig()
		if err != nil {
			return err
		}
		s, err := OpenStore(cfg, false)
		if err != nil {
			return err
		}
		defer s.Close()

		book, err := ResolveBook(s, args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Book %d: %s\n", book.ID, book.Title)
		fmt.Printf("Status: %s (stage %d)\n", book.Status, book.Stage)
		if len(book.Metadata) > 0 {
			pairs := make([]string, 0, len(book.Metadata))
			for k, v := range book.Metadata {
				pairs = append(pairs, k+"="+v)
			}
			fmt.Printf("Metadata: %s\n", strings.Join(pairs, " "))
		}

		infos, err := s.SearchPrefix(book.Key())
		if err != nil {
			return err
		}
		if len(infos) == 0 {
			fmt.Println("No artifacts yet.")
			return nil
		}
		fmt.Printf("\n%-40s %s\n", "KEY", "VERSIONS")
		for _, info := range infos {
			fmt.Printf("%-40s %d\n", info.Key, info.LatestVersion)
		}
		return nil
	},
}

var bookRenameCmd = &cobra.Command{
	Use:   "rename <book> <title>",
	Short: "Rename a book",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig()
		if err != nil {
			return err
		}
		s, err := OpenStore(cfg, false)
		if err != nil {
			return err
		}
		defer s.Close()

		book, err := ResolveBook(s, args[0])
		if err != nil {
			return err
		}
		if err := s.RenameBook(book.ID, args[1]); err != nil {
			return err
		}
		fmt.Printf("Renamed book %d to %s\n", book.ID, args[1])
		return nil
	},
}

var bookDeleteCmd = &cobra.Command{
	Use:   "delete <book>",
	Short: "Delete a book and every artifact under it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig()
		if err != nil {
			return err
		}
		s, err := OpenStore(cfg, false)
		if err != nil {
			return err
		}
		defer s.Close()

		book, err := ResolveBook(s, args[0])
		if err != nil {
			return err
		}
		if err := s.DeleteBook(book.ID); err != nil {
			return err
		}
		fmt.Printf("Deleted book %d: %s\n", book.ID, book.Title)
		return nil
	},
}

func init() {
	bookCmd.AddCommand(bookCreateCmd)
	bookCmd.AddCommand(bookListCmd)
	bookCmd.AddCommand(bookShowCmd)
	bookCmd.AddCommand(bookRenameCmd)
	bookCmd.AddCommand(bookDeleteCmd)
	rootCmd.AddCommand(bookCmd)
}
