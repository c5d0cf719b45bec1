package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"fabula/internal/pipeline"
	"fabula/internal/store"
)

// Preferences are the reader's requirements collected before any
// generation happens. They seed the creative brief and size the
// story structure.
type Preferences struct {
	Genre    string `json:"genre"`
	Style    string `json:"style"`
	Themes   string `json:"themes"`
	Audience string `json:"audience"`
	BookSize string `json:"book_size"` // very_short, short, medium, long
}

func (p *Preferences) validate() error {
	if p.Genre == "" {
		return fmt.Errorf("preferences: genre is required")
	}
	if p.BookSize == "" {
		p.BookSize = "short"
	}
	return nil
}

// PreferencesStage persists the preferences file as the pipeline's
// first artifact. On resume the stored artifact wins and no file is
// needed.
type PreferencesStage struct {
	Path string // JSON preferences file; may be empty on resumed runs
}

func (s *PreferencesStage) Name() string       { return "preferences" }
func (s *PreferencesStage) Requires() []string { return nil }
func (s *PreferencesStage) Produces() string   { return ArtifactPreferences }

func (s *PreferencesStage) Complete(ctx context.Context, rc *pipeline.Context) (bool, error) {
	return rc.HasArtifact(ctx, ArtifactPreferences)
}

func (s *PreferencesStage) Execute(ctx context.Context, rc *pipeline.Context) error {
	if s.Path == "" {
		return fmt.Errorf("no stored preferences and no preferences file given (use --preferences)")
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return fmt.Errorf("reading preferences file: %w", err)
	}

	var prefs Preferences
	if err := json.Unmarshal(data, &prefs); err != nil {
		return fmt.Errorf("decoding preferences file: %w", err)
	}
	if err := prefs.validate(); err != nil {
		return err
	}

	normalized, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("encoding preferences: %w", err)
	}
	value, err := store.StructuredValue(normalized)
	if err != nil {
		return err
	}
	meta := store.Metadata{Stage: s.Name(), BookID: rc.Book.ID}
	_, err = rc.Store.WriteArtifact(rc.ArtifactKey(ArtifactPreferences), value, meta)
	return err
}

// loadPreferences reads the stored preferences document.
func loadPreferences(rc *pipeline.Context) (*Preferences, error) {
	val, err := requireArtifact(rc, ArtifactPreferences)
	if err != nil {
		return nil, err
	}
	var prefs Preferences
	if err := json.Unmarshal([]byte(val.Raw()), &prefs); err != nil {
		return nil, fmt.Errorf("decoding stored preferences: %w", err)
	}
	return &prefs, nil
}
