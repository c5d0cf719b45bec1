package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"fabula/internal/store"
)

var artifactVersion int

var artifactCmd = &cobra.Command{
	Use:   "artifact",
	Short: "Inspect stored artifacts",
}

var artifactShowCmd = &cobra.Command{
	Use:   "show <key>",
	Short: "Print an artifact's content (latest version by default)",
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

		key, err := store.ParseKey(args[0])
		if err != nil {
			return err
		}

		var a *store.Artifact
		if artifactVersion > 0 {
			a, err = s.AtVersion(key, artifactVersion)
		} else {
			a, err = s.Latest(key)
		}
		if err != nil {
			return err
		}
		if a == nil {
			return fmt.Errorf("no artifact at %s", args[0])
		}
		fmt.Println(a.Value.Raw())
		return nil
	},
}

var artifactHistoryCmd = &cobra.Command{
	Use:   "history <key>",
	Short: "List every version of an artifact and its edit diffs",
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

		key, err := store.ParseKey(args[0])
		if err != nil {
			return err
		}

		versions, err := s.Versions(key)
		if err != nil {
			return err
		}
		if len(versions) == 0 {
			return fmt.Errorf("no artifact at %s", args[0])
		}

		fmt.Printf("%-8s %-6s %-20s %-16s %s\n", "VERSION", "KIND", "CREATED", "STAGE", "SIZE")
		for _, a := range versions {
			created := time.UnixMilli(a.CreatedAt).Format("2006-01-02 15:04")
			fmt.Printf("%-8d %-6s %-20s %-16s %d\n",
				a.Version, a.Value.Kind, created, a.Meta.Stage, len(a.Value.Raw()))
		}

		diffs, err := s.Diffs(key)
		if err != nil {
			return err
		}
		if len(diffs) > 0 {
			fmt.Printf("\n%d edit diff(s) recorded.\n", len(diffs))
		}
		return nil
	},
}

func init() {
	artifactShowCmd.Flags().IntVar(&artifactVersion, "version", 0, "Version to show (0 = latest)")
	artifactCmd.AddCommand(artifactShowCmd)
	artifactCmd.AddCommand(artifactHistoryCmd)
	rootCmd.AddCommand(artifactCmd)
}
