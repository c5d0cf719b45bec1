package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"fabula/internal/llm"
	"fabula/internal/pipeline"
	"fabula/internal/store"
	"fabula/internal/workflow"
)

var (
	runPreferences string
	runTitle       string
	runEditIters   int
	runOutputDir   string
	runJSON        bool
)

var runCmd = &cobra.Command{
	Use:   "run [book]",
	Short: "Generate a book, resuming a previous run when one exists",
	Long: "Runs the full generation pipeline. Without a book argument a new book is created; " +
		"with one, the run resumes at the first stage whose output is missing.",
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig()
		if err != nil {
			return err
		}
		if runEditIters > 0 {
			cfg.EditIterations = runEditIters
		}
		if runOutputDir != "" {
			cfg.OutputDir = runOutputDir
		}

		s, err := OpenStore(cfg, true)
		if err != nil {
			return err
		}
		defer s.Close()

		book, err := resolveOrCreateBook(s, args)
		if err != nil {
			return err
		}

		log, err := llm.OpenSessionLog(cfg.SessionDir)
		if err != nil {
			return err
		}
		defer log.Close()

		backend, err := llm.NewOpenAIClient(llm.OpenAIConfig{
			APIKey:  cfg.Backend.APIKey,
			Model:   cfg.Backend.Model,
			BaseURL: cfg.Backend.BaseURL,
		}, log)
		if err != nil {
			return err
		}

		chain, err := workflow.NewBookChain(workflow.Options{
			PreferencesPath: runPreferences,
			EditIterations:  cfg.EditIterations,
			OutputDir:       cfg.OutputDir,
		})
		if err != nil {
			return err
		}

		rc := &pipeline.Context{Store: s, Backend: backend, Book: book}
		fmt.Fprintf(os.Stderr, "[run] Book %d: %s (session %s)\n", book.ID, book.Title, log.SessionID)

		result, err := chain.Run(cmd.Context(), rc)
		if err != nil {
			return err
		}

		if runJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(result); err != nil {
				return err
			}
		} else {
			printRunSummary(result, log)
		}

		if !result.OK {
			return fmt.Errorf("run failed at stage %s; rerun 'fabula run %d' to resume", result.FailedStage, book.ID)
		}
		return nil
	},
}

func resolveOrCreateBook(s *store.Store, args []string) (*store.Book, error) {
	if len(args) == 1 {
		return ResolveBook(s, args[0])
	}
	book, err := s.CreateBook(runTitle)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(os.Stderr, "[run] Created book %d\n", book.ID)
	return book, nil
}

func printRunSummary(result *pipeline.Result, log *llm.SessionLog) {
	for _, st := range result.Stages {
		marker := "done"
		switch {
		case st.Skipped:
			marker = "skipped"
		case st.Status == pipeline.StatusFailed:
			marker = "FAILED: " + st.Error
		}
		fmt.Printf("  %-18s %s\n", st.Name, marker)
	}
	fmt.Printf("Backend calls: %d (log: %s)\n", log.Len(), log.Path())
}

func init() {
	runCmd.Flags().StringVar(&runPreferences, "preferences", "", "JSON preferences file for a new book")
	runCmd.Flags().StringVar(&runTitle, "title", "untitled", "Working title for a new book")
	runCmd.Flags().IntVar(&runEditIters, "edit-iterations", 0, "Editing passes per scene (overrides config)")
	runCmd.Flags().StringVar(&runOutputDir, "output-dir", "", "Export directory (overrides config)")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "Print the run result as JSON")
	rootCmd.AddCommand(runCmd)
}
