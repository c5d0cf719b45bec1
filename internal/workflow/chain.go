package workflow

import "fabula/internal/pipeline"

// Options tunes a book-generation chain.
type Options struct {
	PreferencesPath string // JSON file; may be empty when resuming
	EditIterations  int    // editing passes per scene
	OutputDir       string // where export files land
}

// NewBookChain wires the full stage roster in dependency order. The
// ordering is validated by the chain constructor, so a misplaced stage
// fails here rather than mid-run.
func NewBookChain(opts Options) (*pipeline.Chain, error) {
	if opts.EditIterations <= 0 {
		opts.EditIterations = 2
	}
	return pipeline.NewChain(
		&PreferencesStage{Path: opts.PreferencesPath},
		NewBriefStage(),
		NewTitleStage(),
		&UpdateTitleStage{},
		NewOutlineStage(),
		NewStructureStage(),
		NewCharactersStage(),
		&SceneStage{EditIterations: opts.EditIterations},
		&AssemblyStage{OutputDir: opts.OutputDir},
	)
}
