package workflow

import (
	"context"

	"fabula/internal/pipeline"
)

// UpdateTitleStage writes the generated title back onto the book
// registry row so listings show the real name instead of the
// placeholder the book was created with.
type UpdateTitleStage struct{}

func (s *UpdateTitleStage) Name() string       { return "update_title" }
func (s *UpdateTitleStage) Requires() []string { return []string{ArtifactTitle} }
func (s *UpdateTitleStage) Produces() string   { return "" }

func (s *UpdateTitleStage) Complete(ctx context.Context, rc *pipeline.Context) (bool, error) {
	a, err := rc.Store.Latest(rc.ArtifactKey(ArtifactTitle))
	if err != nil {
		return false, err
	}
	if a == nil {
		return false, nil
	}
	title, err := parseTitle([]byte(a.Value.Raw()))
	if err != nil {
		return false, nil // malformed title surfaces as a failure in Execute
	}
	return rc.Book.Title == title, nil
}

func (s *UpdateTitleStage) Execute(ctx context.Context, rc *pipeline.Context) error {
	title, err := storedTitle(rc)
	if err != nil {
		return err
	}
	if err := rc.Store.RenameBook(rc.Book.ID, title); err != nil {
		return err
	}
	rc.Book.Title = title
	return nil
}

func storedTitle(rc *pipeline.Context) (string, error) {
	val, err := requireArtifact(rc, ArtifactTitle)
	if err != nil {
		return "", err
	}
	return parseTitle([]byte(val.Raw()))
}
