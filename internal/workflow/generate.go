// Package workflow defines the concrete book-generation stages wired
// into the pipeline: preferences → creative brief → title → outline →
// structure → characters → scenes → assembly.
package workflow

import (
	"context"
	"encoding/json"
	"fmt"

	"fabula/internal/llm"
	"fabula/internal/pipeline"
	"fabula/internal/prompt"
	"fabula/internal/store"
)

// Book-relative artifact names. Stages reference these both as targets
// and as prerequisites, and the chain validator checks the wiring.
const (
	ArtifactPreferences = "preferences"
	ArtifactBrief       = "creative_brief"
	ArtifactTitle       = "title"
	ArtifactOutline     = "story_outline"
	ArtifactStructure   = "story_structure"
	ArtifactCharacters  = "character_sheets"
	ArtifactScenes      = "scenes"
	ArtifactBook        = "book"
)

// Generation parameter presets. Prose wants heat, structure wants none.
var (
	proseParams      = llm.Params{Temperature: 1.5, MaxTokens: 8000}
	structuredParams = llm.Params{Temperature: 0.7, MaxTokens: 8000, JSONMode: true}
)

// requireArtifact loads a prerequisite artifact, failing structurally
// when it is absent.
func requireArtifact(rc *pipeline.Context, name string) (store.Value, error) {
	a, err := rc.Store.Latest(rc.ArtifactKey(name))
	if err != nil {
		return store.Value{}, err
	}
	if a == nil {
		return store.Value{}, fmt.Errorf("required artifact %q is missing", name)
	}
	return a.Value, nil
}

// PromptStage renders one template, sends it to the backend, and
// persists the response as its target artifact. It covers every
// single-shot generation step; stages with their own orchestration
// (scenes, assembly) implement pipeline.Stage directly.
type PromptStage struct {
	StageName string
	Template  string
	Artifact  string
	Req       []string
	GenParams llm.Params

	// BuildData assembles the template payload from prerequisites.
	BuildData func(rc *pipeline.Context) (any, error)
	// Validate optionally checks the generated content before persisting.
	Validate func(content string) error
}

func (s *PromptStage) Name() string       { return s.StageName }
func (s *PromptStage) Requires() []string { return s.Req }
func (s *PromptStage) Produces() string   { return s.Artifact }

func (s *PromptStage) Complete(ctx context.Context, rc *pipeline.Context) (bool, error) {
	return rc.HasArtifact(ctx, s.Artifact)
}

func (s *PromptStage) Execute(ctx context.Context, rc *pipeline.Context) error {
	if !prompt.Exists(s.Template) {
		return fmt.Errorf("prompt template %q not found", s.Template)
	}

	data, err := s.BuildData(rc)
	if err != nil {
		return err
	}
	rendered, err := prompt.Render(s.Template, data)
	if err != nil {
		return err
	}

	content, err := rc.Backend.Generate(ctx, rendered, s.GenParams)
	if err != nil {
		return fmt.Errorf("generating %s: %w", s.Artifact, err)
	}
	if content == "" {
		return fmt.Errorf("generating %s: %w: empty content", s.Artifact, llm.ErrMalformedResponse)
	}
	if s.Validate != nil {
		if err := s.Validate(content); err != nil {
			return fmt.Errorf("validating %s: %w", s.Artifact, err)
		}
	}

	value := store.TextValue(content)
	if s.GenParams.JSONMode {
		value, err = store.StructuredValue([]byte(content))
		if err != nil {
			return fmt.Errorf("%s: %w: %v", s.Artifact, llm.ErrMalformedResponse, err)
		}
	}

	meta := store.Metadata{Stage: s.StageName, Prompt: rendered, BookID: rc.Book.ID}
	if _, err := rc.Store.WriteArtifact(rc.ArtifactKey(s.Artifact), value, meta); err != nil {
		return err
	}
	return nil
}

// NewBriefStage generates the creative brief from the preferences.
func NewBriefStage() *PromptStage {
	return &PromptStage{
		StageName: "creative_brief",
		Template:  "creative_brief.tmpl",
		Artifact:  ArtifactBrief,
		Req:       []string{ArtifactPreferences},
		GenParams: llm.Params{Temperature: 0.9, MaxTokens: 4000},
		BuildData: func(rc *pipeline.Context) (any, error) {
			prefs, err := loadPreferences(rc)
			if err != nil {
				return nil, err
			}
			return prefs, nil
		},
	}
}

// NewTitleStage generates the book title as a small JSON document.
func NewTitleStage() *PromptStage {
	return &PromptStage{
		StageName: "title",
		Template:  "title.tmpl",
		Artifact:  ArtifactTitle,
		Req:       []string{ArtifactBrief},
		GenParams: structuredParams,
		BuildData: func(rc *pipeline.Context) (any, error) {
			brief, err := requireArtifact(rc, ArtifactBrief)
			if err != nil {
				return nil, err
			}
			return map[string]string{"CreativeBrief": brief.Raw()}, nil
		},
		Validate: func(content string) error {
			if _, err := parseTitle([]byte(content)); err != nil {
				return err
			}
			return nil
		},
	}
}

// NewOutlineStage generates the prose story outline.
func NewOutlineStage() *PromptStage {
	return &PromptStage{
		StageName: "story_outline",
		Template:  "story_outline.tmpl",
		Artifact:  ArtifactOutline,
		Req:       []string{ArtifactBrief, ArtifactTitle},
		GenParams: llm.Params{Temperature: 0.9, MaxTokens: 6000},
		BuildData: func(rc *pipeline.Context) (any, error) {
			brief, err := requireArtifact(rc, ArtifactBrief)
			if err != nil {
				return nil, err
			}
			titleVal, err := requireArtifact(rc, ArtifactTitle)
			if err != nil {
				return nil, err
			}
			title, err := parseTitle([]byte(titleVal.Raw()))
			if err != nil {
				return nil, err
			}
			return map[string]string{"CreativeBrief": brief.Raw(), "Title": title}, nil
		},
	}
}

// NewStructureStage generates the chapter/scene breakdown sized by the
// stored preferences, and rejects documents with loose numbering.
func NewStructureStage() *PromptStage {
	return &PromptStage{
		StageName: "story_structure",
		Template:  "story_structure.tmpl",
		Artifact:  ArtifactStructure,
		Req:       []string{ArtifactOutline, ArtifactPreferences},
		GenParams: structuredParams,
		BuildData: func(rc *pipeline.Context) (any, error) {
			outline, err := requireArtifact(rc, ArtifactOutline)
			if err != nil {
				return nil, err
			}
			prefs, err := loadPreferences(rc)
			if err != nil {
				return nil, err
			}
			size := SizeParamsFor(prefs.BookSize)
			return map[string]any{
				"StoryOutline":     outline.Raw(),
				"Chapters":         size.Chapters,
				"ScenesPerChapter": size.ScenesPerChapter,
				"WordsPerScene":    size.WordsPerScene,
			}, nil
		},
		Validate: func(content string) error {
			_, err := ParseStructure([]byte(content))
			return err
		},
	}
}

// NewCharactersStage generates the character sheets document.
func NewCharactersStage() *PromptStage {
	return &PromptStage{
		StageName: "character_sheets",
		Template:  "character_sheets.tmpl",
		Artifact:  ArtifactCharacters,
		Req:       []string{ArtifactOutline, ArtifactStructure},
		GenParams: structuredParams,
		BuildData: func(rc *pipeline.Context) (any, error) {
			outline, err := requireArtifact(rc, ArtifactOutline)
			if err != nil {
				return nil, err
			}
			structure, err := requireArtifact(rc, ArtifactStructure)
			if err != nil {
				return nil, err
			}
			return map[string]string{
				"StoryOutline":   outline.Raw(),
				"StoryStructure": structure.Raw(),
			}, nil
		},
	}
}

// parseTitle extracts the title string from a {"title": ...} document.
func parseTitle(doc []byte) (string, error) {
	var parsed struct {
		Title string `json:"title"`
	}
	if err := json.Unmarshal(doc, &parsed); err != nil {
		return "", fmt.Errorf("decoding title document: %w", err)
	}
	if parsed.Title == "" {
		return "", fmt.Errorf("title document has no title field")
	}
	return parsed.Title, nil
}
