package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"fabula/internal/export"
	"fabula/internal/pipeline"
	"fabula/internal/workflow"
)

var exportOutputDir string

var exportCmd = &cobra.Command{
	Use:   "export <book>",
	Short: "Regenerate export files from the stored scenes",
	Long: "Rebuilds the markdown, HTML and FB2 files for a finished (or partially " +
		"finished) book from the latest stored scene versions.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig()
		if err != nil {
			return err
		}
		if exportOutputDir != "" {
			cfg.OutputDir = exportOutputDir
		}
		s, err := OpenStore(cfg, false)
		if err != nil {
			return err
		}
		defer s.Close()

		bookRow, err := ResolveBook(s, args[0])
		if err != nil {
			return err
		}

		rc := &pipeline.Context{Store: s, Book: bookRow}
		book, err := workflow.AssembleBook(rc)
		if err != nil {
			return err
		}

		if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
			return err
		}
		base := filepath.Join(cfg.OutputDir, fmt.Sprintf("book_%d", bookRow.ID))
		markdown := export.Markdown(*book)

		if err := os.WriteFile(base+".md", []byte(markdown), 0644); err != nil {
			return err
		}
		if err := export.WriteHTML(markdown, book.Title, base+".html"); err != nil {
			return err
		}
		if err := export.WriteFB2(*book, base+".fb2"); err != nil {
			return err
		}

		fmt.Printf("Exported %s.md, %s.html, %s.fb2\n", base, base, base)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOutputDir, "output-dir", "", "Export directory (overrides config)")
	rootCmd.AddCommand(exportCmd)
}
