package workflow

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"fabula/internal/llm"
	"fabula/internal/pipeline"
	"fabula/internal/store"
)

const mockStructure = `{
  "chapters": [
    {"number": 1, "title": "Arrival", "scenes": [
      {"number": 1, "title": "Dock", "description": "Ana lands", "characters": ["Ana"], "location": "harbor", "time": "dawn", "dramatic_info": "hook"},
      {"number": 2, "title": "House", "description": "Ana searches", "characters": ["Ana"], "location": "house", "time": "noon", "dramatic_info": "turn"}
    ]}
  ]
}`

// scriptedBackend answers each stage's prompt by its opening line. The
// editor returns the text unchanged, so every scene converges after one
// editing pass.
func scriptedBackend() *llm.Mock {
	return llm.NewMock(func(_ int, p string, _ llm.Params) (string, error) {
		switch {
		case strings.HasPrefix(p, "You are a professional fiction editor"):
			return "A spare coastal mystery about memory.", nil
		case strings.HasPrefix(p, "You are naming a book"):
			return `{"title": "The Silent Harbor"}`, nil
		case strings.HasPrefix(p, "You are a professional novelist"):
			return "Ana returns to the harbor town to settle her aunt's estate.", nil
		case strings.HasPrefix(p, "You are breaking a story outline"):
			return mockStructure, nil
		case strings.HasPrefix(p, "You are building character sheets"):
			return `{"characters": [{"name": "Ana", "role": "protagonist"}]}`, nil
		case strings.HasPrefix(p, "You are writing one scene"):
			return "The tide rolled in while Ana watched from the dock.", nil
		case strings.HasPrefix(p, "You are a line editor"):
			return currentText(p), nil
		}
		return "", nil
	})
}

// currentText pulls the scene text out of an editing prompt so the mock
// can hand it back unchanged.
func currentText(p string) string {
	const marker = "Current text:\n"
	i := strings.Index(p, marker)
	j := strings.Index(p, "\n\nTighten")
	if i < 0 || j < 0 {
		return ""
	}
	return p[i+len(marker) : j]
}

func writePreferences(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prefs.json")
	prefs := Preferences{Genre: "mystery", Style: "spare", Themes: "memory", Audience: "adults", BookSize: "very_short"}
	data, err := json.Marshal(prefs)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func testContext(t *testing.T, backend llm.Client) *pipeline.Context {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })

	book, err := s.CreateBook("untitled")
	if err != nil {
		t.Fatal(err)
	}
	return &pipeline.Context{Store: s, Backend: backend, Book: book}
}

func TestNewBookChainWiring(t *testing.T) {
	chain, err := NewBookChain(Options{PreferencesPath: "prefs.json"})
	if err != nil {
		t.Fatalf("NewBookChain: %v", err)
	}
	if chain.Len() != 9 {
		t.Errorf("chain length = %d, want 9", chain.Len())
	}
}

func TestFullRunProducesBook(t *testing.T) {
	mock := scriptedBackend()
	rc := testContext(t, mock)
	outDir := t.TempDir()

	chain, err := NewBookChain(Options{
		PreferencesPath: writePreferences(t),
		EditIterations:  2,
		OutputDir:       outDir,
	})
	if err != nil {
		t.Fatal(err)
	}

	result, err := chain.Run(context.Background(), rc)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.OK {
		t.Fatalf("run failed at %s: %+v", result.FailedStage, result.Stages)
	}

	// Two scenes: one generation plus one converging edit each,
	// plus the five single-shot stages.
	if got := mock.Calls(); got != 9 {
		t.Errorf("backend calls = %d, want 9", got)
	}

	book, err := rc.Store.GetBook(rc.Book.ID)
	if err != nil {
		t.Fatal(err)
	}
	if book.Title != "The Silent Harbor" {
		t.Errorf("book title = %q, want the generated one", book.Title)
	}
	if book.Status != store.StatusDone {
		t.Errorf("book status = %q, want %q", book.Status, store.StatusDone)
	}

	a, err := rc.Store.Latest(rc.ArtifactKey(ArtifactBook))
	if err != nil {
		t.Fatal(err)
	}
	if a == nil {
		t.Fatal("book artifact missing after a successful run")
	}
	md := a.Value.Raw()
	for _, want := range []string{"# The Silent Harbor", "## Chapter 1. Arrival", "The tide rolled in"} {
		if !strings.Contains(md, want) {
			t.Errorf("book artifact missing %q", want)
		}
	}

	for _, ext := range []string{".md", ".html", ".fb2"} {
		path := filepath.Join(outDir, "book_1"+ext)
		if _, err := os.Stat(path); err != nil {
			t.Errorf("export file %s: %v", path, err)
		}
	}
}

func TestSecondRunSkipsEverything(t *testing.T) {
	rc := testContext(t, scriptedBackend())
	opts := Options{PreferencesPath: writePreferences(t), OutputDir: t.TempDir()}

	chain, err := NewBookChain(opts)
	if err != nil {
		t.Fatal(err)
	}
	if result, err := chain.Run(context.Background(), rc); err != nil || !result.OK {
		t.Fatalf("first run: %v / %+v", err, result)
	}

	// A backend that always fails proves the rerun never calls it.
	failing := llm.NewMock(func(int, string, llm.Params) (string, error) {
		return "", llm.ErrConnection
	})
	rc.Backend = failing

	chain2, err := NewBookChain(opts)
	if err != nil {
		t.Fatal(err)
	}
	result, err := chain2.Run(context.Background(), rc)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !result.OK {
		t.Fatalf("second run failed at %s", result.FailedStage)
	}
	for _, st := range result.Stages {
		if !st.Skipped {
			t.Errorf("stage %s re-executed on a complete book", st.Name)
		}
	}
	if failing.Calls() != 0 {
		t.Errorf("backend called %d times on a complete book", failing.Calls())
	}

	// No duplicate versions either.
	versions, err := rc.Store.Versions(rc.ArtifactKey(ArtifactBrief))
	if err != nil {
		t.Fatal(err)
	}
	if len(versions) != 1 {
		t.Errorf("brief has %d versions after rerun, want 1", len(versions))
	}

	// The registry stays done; a no-op rerun must not regress it.
	book, err := rc.Store.GetBook(rc.Book.ID)
	if err != nil {
		t.Fatal(err)
	}
	if book.Status != store.StatusDone {
		t.Errorf("status after no-op rerun = %q, want %q", book.Status, store.StatusDone)
	}
}

func TestFailedRunResumesWhereItStopped(t *testing.T) {
	// Fail at the structure stage; everything before it must survive.
	failAtStructure := llm.NewMock(func(_ int, p string, params llm.Params) (string, error) {
		if strings.HasPrefix(p, "You are breaking a story outline") {
			return "", llm.ErrConnection
		}
		return scriptedBackend().Generate(context.Background(), p, params)
	})
	rc := testContext(t, failAtStructure)
	opts := Options{PreferencesPath: writePreferences(t), OutputDir: t.TempDir()}

	chain, err := NewBookChain(opts)
	if err != nil {
		t.Fatal(err)
	}
	result, err := chain.Run(context.Background(), rc)
	if err != nil {
		t.Fatal(err)
	}
	if result.OK || result.FailedStage != "story_structure" {
		t.Fatalf("expected story_structure failure, got %+v", result)
	}

	// The brief survived the failure.
	if ok, err := rc.HasArtifact(context.Background(), ArtifactBrief); err != nil || !ok {
		t.Fatalf("brief lost after failed run: ok=%v err=%v", ok, err)
	}

	// Retry with a healthy backend finishes without redoing early stages.
	healthy := scriptedBackend()
	rc.Backend = healthy
	chain2, err := NewBookChain(opts)
	if err != nil {
		t.Fatal(err)
	}
	result, err = chain2.Run(context.Background(), rc)
	if err != nil {
		t.Fatal(err)
	}
	if !result.OK {
		t.Fatalf("resumed run failed at %s", result.FailedStage)
	}
	// structure + characters + 2 scenes x (seed + edit) = 6 calls.
	if healthy.Calls() != 6 {
		t.Errorf("resumed run made %d backend calls, want 6", healthy.Calls())
	}
	if titleVersions, _ := rc.Store.Versions(rc.ArtifactKey(ArtifactTitle)); len(titleVersions) != 1 {
		t.Errorf("title regenerated on resume: %d versions", len(titleVersions))
	}
}

func TestPreferencesStageValidation(t *testing.T) {
	rc := testContext(t, llm.NewMock(nil))

	st := &PreferencesStage{Path: ""}
	if err := st.Execute(context.Background(), rc); err == nil {
		t.Error("missing preferences file accepted")
	}

	path := filepath.Join(t.TempDir(), "prefs.json")
	if err := os.WriteFile(path, []byte(`{"style": "spare"}`), 0644); err != nil {
		t.Fatal(err)
	}
	st = &PreferencesStage{Path: path}
	if err := st.Execute(context.Background(), rc); err == nil {
		t.Error("preferences without a genre accepted")
	}
}

func TestPreferencesDefaultBookSize(t *testing.T) {
	rc := testContext(t, llm.NewMock(nil))
	path := filepath.Join(t.TempDir(), "prefs.json")
	if err := os.WriteFile(path, []byte(`{"genre": "mystery"}`), 0644); err != nil {
		t.Fatal(err)
	}

	st := &PreferencesStage{Path: path}
	if err := st.Execute(context.Background(), rc); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	prefs, err := loadPreferences(rc)
	if err != nil {
		t.Fatal(err)
	}
	if prefs.BookSize != "short" {
		t.Errorf("book size = %q, want the short default", prefs.BookSize)
	}
}

func TestUpdateTitleStage(t *testing.T) {
	rc := testContext(t, llm.NewMock(nil))
	st := &UpdateTitleStage{}

	// No title artifact yet: not complete.
	done, err := st.Complete(context.Background(), rc)
	if err != nil || done {
		t.Fatalf("Complete before title = %v, %v", done, err)
	}

	value, err := store.StructuredValue([]byte(`{"title": "The Silent Harbor"}`))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := rc.Store.WriteArtifact(rc.ArtifactKey(ArtifactTitle), value, store.Metadata{}); err != nil {
		t.Fatal(err)
	}

	done, err = st.Complete(context.Background(), rc)
	if err != nil || done {
		t.Fatalf("Complete with stale registry title = %v, %v", done, err)
	}
	if err := st.Execute(context.Background(), rc); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	book, err := rc.Store.GetBook(rc.Book.ID)
	if err != nil {
		t.Fatal(err)
	}
	if book.Title != "The Silent Harbor" {
		t.Errorf("registry title = %q", book.Title)
	}
	if done, err := st.Complete(context.Background(), rc); err != nil || !done {
		t.Errorf("Complete after rename = %v, %v", done, err)
	}
}

func TestPromptStageRejectsEmptyContent(t *testing.T) {
	empty := llm.NewMock(func(int, string, llm.Params) (string, error) { return "", nil })
	rc := testContext(t, empty)

	st := &PreferencesStage{Path: writePreferences(t)}
	if err := st.Execute(context.Background(), rc); err != nil {
		t.Fatal(err)
	}

	err := NewBriefStage().Execute(context.Background(), rc)
	if err == nil {
		t.Fatal("empty backend content accepted")
	}
	if ok, _ := rc.HasArtifact(context.Background(), ArtifactBrief); ok {
		t.Error("artifact written despite empty content")
	}
}

func TestSceneStageResumesMidScene(t *testing.T) {
	rc := testContext(t, scriptedBackend())
	opts := Options{PreferencesPath: writePreferences(t), OutputDir: t.TempDir()}

	chain, err := NewBookChain(opts)
	if err != nil {
		t.Fatal(err)
	}
	if result, err := chain.Run(context.Background(), rc); err != nil || !result.OK {
		t.Fatalf("setup run: %v / %+v", err, result)
	}

	// Drop the scene index so the scene stage re-runs, and confirm it
	// does not regenerate scene texts that already converged.
	if err := rc.Store.DeleteKey(rc.ArtifactKey(ArtifactScenes)); err != nil {
		t.Fatal(err)
	}
	if err := rc.Store.DeleteKey(rc.ArtifactKey(ArtifactBook)); err != nil {
		t.Fatal(err)
	}

	healthy := scriptedBackend()
	rc.Backend = healthy
	chain2, err := NewBookChain(opts)
	if err != nil {
		t.Fatal(err)
	}
	result, err := chain2.Run(context.Background(), rc)
	if err != nil || !result.OK {
		t.Fatalf("rerun: %v / %+v", err, result)
	}

	// Each scene already holds its converged text, so each needs only
	// the remaining editing pass, not a fresh generation.
	if healthy.Calls() != 2 {
		t.Errorf("rerun made %d backend calls, want 2", healthy.Calls())
	}
	key := sceneKey(rc, 1, 1)
	versions, err := rc.Store.Versions(key)
	if err != nil {
		t.Fatal(err)
	}
	if len(versions) != 1 {
		t.Errorf("scene text has %d versions after rerun, want 1", len(versions))
	}
}
