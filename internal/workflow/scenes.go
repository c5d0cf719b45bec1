package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"fabula/internal/llm"
	"fabula/internal/pipeline"
	"fabula/internal/prompt"
	"fabula/internal/refine"
	"fabula/internal/store"
)

// SceneStage generates the text of every scene in the story structure
// and pushes each one through the iterative editing loop. Scene texts
// live under per-scene keys (bookN/chapterC/sceneS/text), so a crashed
// run resumes at the first unfinished scene, and a half-edited scene
// resumes mid-loop via the stored version count. The stage's own
// target artifact is a scene index written only after every scene is
// done.
type SceneStage struct {
	EditIterations int // editing passes per scene
	TargetWords    int // approximate words per scene when not sized by preferences
}

// sceneIndex is the stage's target artifact: the ordered list of scene
// keys assembly will read.
type sceneIndex struct {
	Keys []string `json:"keys"`
}

func (s *SceneStage) Name() string       { return "scenes" }
func (s *SceneStage) Requires() []string { return []string{ArtifactStructure, ArtifactCharacters} }
func (s *SceneStage) Produces() string   { return ArtifactScenes }

func (s *SceneStage) Complete(ctx context.Context, rc *pipeline.Context) (bool, error) {
	return rc.HasArtifact(ctx, ArtifactScenes)
}

func (s *SceneStage) Execute(ctx context.Context, rc *pipeline.Context) error {
	structVal, err := requireArtifact(rc, ArtifactStructure)
	if err != nil {
		return err
	}
	structure, err := ParseStructure([]byte(structVal.Raw()))
	if err != nil {
		return err
	}
	charsVal, err := requireArtifact(rc, ArtifactCharacters)
	if err != nil {
		return err
	}

	targetWords := s.TargetWords
	if prefs, err := loadPreferences(rc); err == nil {
		targetWords = SizeParamsFor(prefs.BookSize).WordsPerScene
	}
	if targetWords <= 0 {
		targetWords = 1500
	}

	index := sceneIndex{}
	total := structure.SceneCount()
	done := 0

	for _, ch := range structure.Chapters {
		for _, sc := range ch.Scenes {
			done++
			key := sceneKey(rc, ch.Number, sc.Number)
			fmt.Fprintf(os.Stderr, "[run] Scene %d/%d: %s\n", done, total, sc.Title)

			loop := &refine.Loop{
				Store:         rc.Store,
				Seed:          s.seeder(rc, structure, ch, sc, charsVal.Raw(), targetWords),
				Rewrite:       s.rewriter(rc, ch, sc),
				MaxIterations: s.EditIterations,
				Meta:          store.Metadata{Stage: s.Name(), BookID: rc.Book.ID},
			}
			out, err := loop.Run(ctx, key)
			if err != nil {
				return fmt.Errorf("scene %d.%d: %w", ch.Number, sc.Number, err)
			}
			if out.Err != nil {
				// The scene text that did get persisted stands; the
				// stage still fails so a later run finishes the edits.
				return fmt.Errorf("scene %d.%d editing: %w", ch.Number, sc.Number, out.Err)
			}
			index.Keys = append(index.Keys, key.String())
		}
	}

	doc, err := json.Marshal(index)
	if err != nil {
		return fmt.Errorf("encoding scene index: %w", err)
	}
	value, err := store.StructuredValue(doc)
	if err != nil {
		return err
	}
	meta := store.Metadata{Stage: s.Name(), BookID: rc.Book.ID}
	_, err = rc.Store.WriteArtifact(rc.ArtifactKey(ArtifactScenes), value, meta)
	return err
}

func sceneKey(rc *pipeline.Context, chapter, scene int) store.Key {
	return rc.Book.Key().Chapter(chapter).Scene(scene).Named("text")
}

// seeder builds the initial generation pass for one scene, feeding the
// previous scene's stored text in for continuity.
func (s *SceneStage) seeder(rc *pipeline.Context, structure *StoryStructure,
	ch ChapterInfo, sc SceneInfo, characterSheets string, targetWords int) refine.Seeder {

	return func(ctx context.Context) (string, error) {
		var prevText string
		if prevChapter, prev := structure.PrevScene(ch.Number, sc.Number); prev != nil {
			if a, err := rc.Store.Latest(sceneKey(rc, prevChapter, prev.Number)); err != nil {
				return "", err
			} else if a != nil {
				prevText = a.Value.Raw()
			}
		}

		rendered, err := prompt.Render("scene.tmpl", map[string]any{
			"ChapterTitle":    ch.Title,
			"SceneTitle":      sc.Title,
			"Description":     sc.Description,
			"Location":        sc.Location,
			"Time":            sc.Time,
			"Characters":      strings.Join(sc.Characters, ", "),
			"DramaticInfo":    sc.DramaticInfo,
			"CharacterSheets": characterSheets,
			"PrevSceneText":   prevText,
			"TargetWords":     targetWords,
		})
		if err != nil {
			return "", err
		}

		text, err := rc.Backend.Generate(ctx, rendered, proseParams)
		if err != nil {
			return "", err
		}
		if text == "" {
			return "", fmt.Errorf("%w: empty scene text", llm.ErrMalformedResponse)
		}
		return text, nil
	}
}

// rewriter builds one editing pass for the refinement loop.
func (s *SceneStage) rewriter(rc *pipeline.Context, ch ChapterInfo, sc SceneInfo) refine.Rewriter {
	return func(ctx context.Context, text string, iteration int) (string, error) {
		rendered, err := prompt.Render("editing.tmpl", map[string]any{
			"Iteration":    iteration,
			"ChapterTitle": ch.Title,
			"SceneTitle":   sc.Title,
			"Text":         text,
		})
		if err != nil {
			return "", err
		}
		return rc.Backend.Generate(ctx, rendered, llm.Params{Temperature: 1.1, MaxTokens: 8000})
	}
}
