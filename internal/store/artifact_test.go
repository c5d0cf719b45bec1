package store

import (
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "fabula.db"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestWriteArtifactVersionsAreGapFree(t *testing.T) {
	s := openTestStore(t)
	key := BookKey(1).Named("outline")

	for i := 1; i <= 5; i++ {
		v, err := s.WriteArtifact(key, TextValue("draft"), Metadata{Stage: "outline"})
		if err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
		if v != i {
			t.Fatalf("write %d allocated version %d", i, v)
		}
	}

	versions, err := s.Versions(key)
	if err != nil {
		t.Fatalf("Versions: %v", err)
	}
	if len(versions) != 5 {
		t.Fatalf("expected 5 versions, got %d", len(versions))
	}
	for i, a := range versions {
		if a.Version != i+1 {
			t.Errorf("versions[%d].Version = %d, want %d", i, a.Version, i+1)
		}
	}
}

func TestLatestReturnsMaxVersion(t *testing.T) {
	s := openTestStore(t)
	key := BookKey(1).Chapter(1).Scene(1).Named("text")

	if _, err := s.WriteArtifact(key, TextValue("first"), Metadata{}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.WriteArtifact(key, TextValue("second"), Metadata{}); err != nil {
		t.Fatal(err)
	}

	a, err := s.Latest(key)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if a == nil {
		t.Fatal("Latest returned nil for existing key")
	}
	if a.Version != 2 || a.Value.Text != "second" {
		t.Errorf("Latest = v%d %q, want v2 %q", a.Version, a.Value.Text, "second")
	}
}

func TestLatestMissingKeyIsNilNotError(t *testing.T) {
	s := openTestStore(t)
	a, err := s.Latest(BookKey(9).Named("never_written"))
	if err != nil {
		t.Fatalf("Latest on missing key must not error, got: %v", err)
	}
	if a != nil {
		t.Fatalf("Latest on missing key = %+v, want nil", a)
	}
}

func TestAtVersion(t *testing.T) {
	s := openTestStore(t)
	key := BookKey(1).Named("title")
	s.WriteArtifact(key, TextValue("one"), Metadata{})
	s.WriteArtifact(key, TextValue("two"), Metadata{})

	a, err := s.AtVersion(key, 1)
	if err != nil {
		t.Fatalf("AtVersion: %v", err)
	}
	if a == nil || a.Value.Text != "one" {
		t.Errorf("AtVersion(1) = %+v, want content %q", a, "one")
	}

	missing, err := s.AtVersion(key, 7)
	if err != nil {
		t.Fatalf("AtVersion(7): %v", err)
	}
	if missing != nil {
		t.Errorf("AtVersion(7) = %+v, want nil", missing)
	}
}

func TestStructuredValueRoundTrip(t *testing.T) {
	s := openTestStore(t)
	key := BookKey(1).Named("story_structure")

	v, err := StructuredValue([]byte(`{"chapters":[{"number":1}]}`))
	if err != nil {
		t.Fatalf("StructuredValue: %v", err)
	}
	if _, err := s.WriteArtifact(key, v, Metadata{Stage: "structure"}); err != nil {
		t.Fatal(err)
	}

	a, err := s.Latest(key)
	if err != nil {
		t.Fatal(err)
	}
	if a.Value.Kind != KindStructured {
		t.Errorf("kind = %q, want %q", a.Value.Kind, KindStructured)
	}
	if string(a.Value.Doc) != `{"chapters":[{"number":1}]}` {
		t.Errorf("doc = %s", a.Value.Doc)
	}
	if a.Meta.Stage != "structure" {
		t.Errorf("meta.Stage = %q", a.Meta.Stage)
	}
}

func TestStructuredValueRejectsInvalidJSON(t *testing.T) {
	if _, err := StructuredValue([]byte(`{"chapters":`)); err == nil {
		t.Fatal("expected error for truncated JSON")
	}
}

func TestSearchPrefixScope(t *testing.T) {
	s := openTestStore(t)
	s.WriteArtifact(BookKey(7).Named("outline"), TextValue("a"), Metadata{})
	s.WriteArtifact(BookKey(7).Chapter(1).Scene(1).Named("text"), TextValue("b"), Metadata{})
	s.WriteArtifact(BookKey(72).Named("outline"), TextValue("c"), Metadata{})

	infos, err := s.SearchPrefix(BookKey(7))
	if err != nil {
		t.Fatalf("SearchPrefix: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("expected 2 lineages under book7, got %d: %+v", len(infos), infos)
	}
	for _, info := range infos {
		if info.Key == "book72/outline" {
			t.Errorf("book72 leaked into book7's prefix search")
		}
	}
}

func TestDeletePrefixCascades(t *testing.T) {
	s := openTestStore(t)

	// 5 artifacts under book7, 3 under book8
	book7 := []Key{
		BookKey(7).Named("preferences"),
		BookKey(7).Named("outline"),
		BookKey(7).Chapter(1).Scene(1).Named("text"),
		BookKey(7).Chapter(1).Scene(2).Named("text"),
		BookKey(7).Chapter(2).Scene(1).Named("text"),
	}
	book8 := []Key{
		BookKey(8).Named("preferences"),
		BookKey(8).Named("outline"),
		BookKey(8).Chapter(1).Scene(1).Named("text"),
	}
	for _, k := range book7 {
		if _, err := s.WriteArtifact(k, TextValue("x"), Metadata{}); err != nil {
			t.Fatal(err)
		}
	}
	for _, k := range book8 {
		if _, err := s.WriteArtifact(k, TextValue("y"), Metadata{}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := s.AppendDiff(book7[2], DiffPayload{Original: "x", Edited: "x2"}); err != nil {
		t.Fatal(err)
	}

	if err := s.DeletePrefix(BookKey(7)); err != nil {
		t.Fatalf("DeletePrefix: %v", err)
	}

	for _, k := range book7 {
		a, err := s.Latest(k)
		if err != nil {
			t.Fatal(err)
		}
		if a != nil {
			t.Errorf("artifact %s survived prefix delete", k)
		}
	}
	diffs, err := s.Diffs(book7[2])
	if err != nil {
		t.Fatal(err)
	}
	if len(diffs) != 0 {
		t.Errorf("diff trail survived prefix delete")
	}
	for _, k := range book8 {
		a, err := s.Latest(k)
		if err != nil {
			t.Fatal(err)
		}
		if a == nil {
			t.Errorf("artifact %s of the other book was deleted", k)
		}
	}
}
