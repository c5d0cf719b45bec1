// Package refine implements the bounded iterative-improvement loop on
// top of the artifact store. Every accepted pass persists one diff and
// one new artifact version immediately, so a restarted loop resumes
// from the stored version count instead of iteration 1.
package refine

import (
	"context"
	"fmt"
	"os"

	"fabula/internal/store"
)

// Rewriter performs one improvement pass over text. Returning the
// input unchanged, or an empty string, signals that no further
// improvement is available.
type Rewriter func(ctx context.Context, text string, iteration int) (string, error)

// Seeder produces the initial content when the lineage is empty.
type Seeder func(ctx context.Context) (string, error)

// Loop refines one artifact lineage.
type Loop struct {
	Store         *store.Store
	Seed          Seeder
	Rewrite       Rewriter
	MaxIterations int
	Meta          store.Metadata
}

// Outcome reports what one Run did.
type Outcome struct {
	Text         string // current content after the loop
	RewriteCalls int    // rewrite passes attempted
	NewVersions  int    // versions persisted by this run (incl. the seed)
	Converged    bool   // stopped because a pass returned identical or empty output
	Err          error  // non-nil when a pass failed; last persisted version stands
}

// Run executes the loop for key. The stop conditions — identical
// output, empty output, or the iteration budget — are all normal
// terminations. A failed rewrite pass is recorded on the Outcome and
// halts the loop without invalidating already-persisted versions; only
// storage and seeding failures surface as errors.
func (l *Loop) Run(ctx context.Context, key store.Key) (*Outcome, error) {
	version, err := l.Store.VersionCount(key)
	if err != nil {
		return nil, err
	}

	out := &Outcome{}
	var current string

	if version == 0 {
		if l.Seed == nil {
			return nil, fmt.Errorf("refining %s: lineage is empty and no seeder was given", key)
		}
		current, err = l.Seed(ctx)
		if err != nil {
			return nil, fmt.Errorf("seeding %s: %w", key, err)
		}
		if _, err := l.Store.WriteArtifact(key, store.TextValue(current), l.Meta); err != nil {
			return nil, err
		}
		out.NewVersions++
	} else {
		latest, err := l.Store.Latest(key)
		if err != nil {
			return nil, err
		}
		current = latest.Value.Raw()
		if version > 1 {
			fmt.Fprintf(os.Stderr, "[refine] Resuming %s at pass %d/%d\n", key, version, l.MaxIterations)
		}
	}

	// Passes 1..version-1 already ran in a previous process; versions
	// 2..version are their persisted results.
	for i := version + 1; i <= l.MaxIterations; i++ {
		candidate, err := l.Rewrite(ctx, current, i)
		out.RewriteCalls++
		if err != nil {
			fmt.Fprintf(os.Stderr, "[refine] Pass %d on %s failed, keeping v%d: %v\n",
				i, key, version+out.NewVersions, err)
			out.Err = err
			break
		}

		if candidate == "" || candidate == current {
			out.Converged = true
			break
		}

		if _, err := l.Store.AppendDiff(key, store.DiffPayload{Original: current, Edited: candidate}); err != nil {
			return nil, err
		}
		if _, err := l.Store.WriteArtifact(key, store.TextValue(candidate), l.Meta); err != nil {
			return nil, err
		}
		out.NewVersions++
		current = candidate
	}

	out.Text = current
	return out, nil
}
