// Package pipeline runs an ordered, fail-fast chain of idempotent
// stages against one book. There is no separate checkpoint file: the
// artifact store is the checkpoint, and re-running a chain skips every
// stage whose output artifact already exists.
package pipeline

import (
	"context"
	"fmt"
	"os"

	"fabula/internal/llm"
	"fabula/internal/store"
)

// Context carries the shared collaborators for one run. The backend
// does its own session logging; stages never log interactions directly.
type Context struct {
	Store   *store.Store
	Backend llm.Client
	Book    *store.Book
}

// ArtifactKey resolves a book-relative artifact name to its full key.
func (c *Context) ArtifactKey(name string) store.Key {
	return c.Book.Key().Named(name)
}

// HasArtifact reports whether the named book-level artifact exists.
// This is the idempotency probe shared by most stages.
func (c *Context) HasArtifact(ctx context.Context, name string) (bool, error) {
	a, err := c.Store.Latest(c.ArtifactKey(name))
	if err != nil {
		return false, err
	}
	return a != nil, nil
}

// Status of one stage within a run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Stage is one idempotent pipeline step. Execute must either produce
// the complete target artifact or leave the store unchanged; errors
// never cross the stage boundary as panics or raw propagation.
type Stage interface {
	Name() string
	// Requires lists book-relative artifact names the stage reads.
	Requires() []string
	// Produces is the book-relative artifact name the stage writes,
	// or "" for terminal stages whose output lives outside the store.
	Produces() string
	// Complete reports whether the stage's output already exists.
	Complete(ctx context.Context, rc *Context) (bool, error)
	// Execute runs the stage's logic once.
	Execute(ctx context.Context, rc *Context) error
}

// StageResult is the recorded outcome of one stage in a run.
type StageResult struct {
	Name    string `json:"name"`
	Status  Status `json:"status"`
	Skipped bool   `json:"skipped,omitempty"` // already complete, no work done
	Error   string `json:"error,omitempty"`
}

// Result summarizes a full pipeline run.
type Result struct {
	OK          bool          `json:"ok"`
	FailedStage string        `json:"failed_stage,omitempty"`
	Stages      []StageResult `json:"stages"`
}

// Chain is an ordered stage sequence validated at construction time.
type Chain struct {
	stages []Stage
}

// NewChain validates that every stage's required artifacts are produced
// by a strictly earlier stage, turning a bad manual ordering into a
// construction-time error instead of a silent runtime bug.
func NewChain(stages ...Stage) (*Chain, error) {
	produced := map[string]bool{}
	for i, st := range stages {
		for _, req := range st.Requires() {
			if !produced[req] {
				return nil, fmt.Errorf("stage %d (%s) requires %q, which no earlier stage produces",
					i+1, st.Name(), req)
			}
		}
		if out := st.Produces(); out != "" {
			produced[out] = true
		}
	}
	return &Chain{stages: stages}, nil
}

// Len returns the number of stages.
func (c *Chain) Len() int { return len(c.stages) }

// Run executes the chain in order, fail-fast. Stage failures are
// reported in the Result; the returned error is reserved for storage
// failures during the idempotency probes or progress bookkeeping,
// which are fatal to the whole run.
func (c *Chain) Run(ctx context.Context, rc *Context) (*Result, error) {
	result := &Result{OK: true}

	for i, st := range c.stages {
		done, err := st.Complete(ctx, rc)
		if err != nil {
			return nil, fmt.Errorf("checking stage %s: %w", st.Name(), err)
		}
		if done {
			fmt.Fprintf(os.Stderr, "[run] Stage %d/%d %s: already complete, skipping\n",
				i+1, len(c.stages), st.Name())
			result.Stages = append(result.Stages, StageResult{
				Name: st.Name(), Status: StatusSucceeded, Skipped: true,
			})
			if err := c.recordProgress(rc, i+1, i+1 == len(c.stages)); err != nil {
				return nil, err
			}
			continue
		}

		fmt.Fprintf(os.Stderr, "[run] Stage %d/%d %s\n", i+1, len(c.stages), st.Name())
		execErr := runStage(ctx, st, rc)
		if execErr != nil {
			fmt.Fprintf(os.Stderr, "[run] FAILED %s (book %d): %v\n", st.Name(), rc.Book.ID, execErr)
			result.OK = false
			result.FailedStage = st.Name()
			result.Stages = append(result.Stages, StageResult{
				Name: st.Name(), Status: StatusFailed, Error: execErr.Error(),
			})
			return result, nil
		}

		fmt.Fprintf(os.Stderr, "[run] Stage %s done\n", st.Name())
		result.Stages = append(result.Stages, StageResult{Name: st.Name(), Status: StatusSucceeded})
		if err := c.recordProgress(rc, i+1, i+1 == len(c.stages)); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// runStage confines panics and errors to the stage boundary.
func runStage(ctx context.Context, st Stage, rc *Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("stage %s panicked: %v", st.Name(), r)
		}
	}()
	return st.Execute(ctx, rc)
}

// recordProgress mirrors per-stage completion onto the book registry
// for coarse, human-facing status display.
func (c *Chain) recordProgress(rc *Context, completed int, final bool) error {
	if rc.Book == nil {
		return nil
	}
	status := store.StatusInProgress
	if final {
		status = store.StatusDone
	}
	if err := rc.Store.SetBookProgress(rc.Book.ID, completed, status); err != nil {
		return fmt.Errorf("recording progress: %w", err)
	}
	rc.Book.Stage = completed
	rc.Book.Status = status
	return nil
}
