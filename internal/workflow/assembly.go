package workflow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"fabula/internal/export"
	"fabula/internal/pipeline"
	"fabula/internal/store"
)

// AssemblyStage combines the latest version of every scene into the
// final book artifact and writes the export files. The markdown
// artifact in the store is the durable result; HTML/FB2 conversion
// failures are logged and reported but never fail the stage, and
// re-running overwrites the same output paths.
type AssemblyStage struct {
	OutputDir string
}

func (s *AssemblyStage) Name() string { return "assembly" }
func (s *AssemblyStage) Requires() []string {
	return []string{ArtifactTitle, ArtifactStructure, ArtifactScenes}
}
func (s *AssemblyStage) Produces() string { return ArtifactBook }

func (s *AssemblyStage) Complete(ctx context.Context, rc *pipeline.Context) (bool, error) {
	return rc.HasArtifact(ctx, ArtifactBook)
}

func (s *AssemblyStage) Execute(ctx context.Context, rc *pipeline.Context) error {
	book, err := AssembleBook(rc)
	if err != nil {
		return err
	}

	markdown := export.Markdown(*book)
	value := store.TextValue(markdown)
	meta := store.Metadata{Stage: s.Name(), BookID: rc.Book.ID}
	if _, err := rc.Store.WriteArtifact(rc.ArtifactKey(ArtifactBook), value, meta); err != nil {
		return err
	}

	// Everything below is best-effort: the book artifact is durable.
	s.writeFiles(rc, *book, markdown)
	return nil
}

// AssembleBook gathers the title, the story structure and the latest
// version of every scene into an export-ready book.
func AssembleBook(rc *pipeline.Context) (*export.Book, error) {
	title, err := storedTitle(rc)
	if err != nil {
		return nil, err
	}
	structVal, err := requireArtifact(rc, ArtifactStructure)
	if err != nil {
		return nil, err
	}
	structure, err := ParseStructure([]byte(structVal.Raw()))
	if err != nil {
		return nil, err
	}

	book := &export.Book{Title: title}
	for _, ch := range structure.Chapters {
		chapter := export.Chapter{Title: ch.Title}
		for _, sc := range ch.Scenes {
			a, err := rc.Store.Latest(sceneKey(rc, ch.Number, sc.Number))
			if err != nil {
				return nil, err
			}
			if a == nil {
				return nil, fmt.Errorf("scene %d.%d has no stored text", ch.Number, sc.Number)
			}
			chapter.Scenes = append(chapter.Scenes, a.Value.Raw())
		}
		book.Chapters = append(book.Chapters, chapter)
	}
	return book, nil
}

func (s *AssemblyStage) writeFiles(rc *pipeline.Context, book export.Book, markdown string) {
	dir := s.OutputDir
	if dir == "" {
		dir = "output"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "[run] Warning: creating output dir: %v\n", err)
		return
	}

	base := filepath.Join(dir, fmt.Sprintf("book_%d", rc.Book.ID))
	if err := os.WriteFile(base+".md", []byte(markdown), 0644); err != nil {
		fmt.Fprintf(os.Stderr, "[run] Warning: writing markdown file: %v\n", err)
		return
	}
	fmt.Fprintf(os.Stderr, "[run] Book written: %s.md\n", base)

	if err := export.WriteHTML(markdown, book.Title, base+".html"); err != nil {
		fmt.Fprintf(os.Stderr, "[run] Warning: HTML export failed: %v\n", err)
	}
	if err := export.WriteFB2(book, base+".fb2"); err != nil {
		fmt.Fprintf(os.Stderr, "[run] Warning: FB2 export failed: %v\n", err)
	}
}
