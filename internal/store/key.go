package store

import (
	"fmt"
	"strings"
)

// Segment is one level of a hierarchical artifact key. Kinded segments
// render as kind+id ("book42", "chapter3"); plain names render as-is.
type Segment struct {
	Kind string
	ID   string
}

// Key addresses an artifact lineage. Segments are ordered
// book -> chapter -> scene -> artifact name, and consumers rebuild keys
// independently from chapter/scene numbers, so rendering must stay
// byte-identical for the same segments.
type Key []Segment

// BookKey returns the root key for a book.
func BookKey(bookID int64) Key {
	return Key{{Kind: "book", ID: fmt.Sprintf("%d", bookID)}}
}

// Chapter extends the key with a chapter segment.
func (k Key) Chapter(n int) Key {
	return k.child(Segment{Kind: "chapter", ID: fmt.Sprintf("%d", n)})
}

// Scene extends the key with a scene segment.
func (k Key) Scene(n int) Key {
	return k.child(Segment{Kind: "scene", ID: fmt.Sprintf("%d", n)})
}

// Named extends the key with a plain artifact-name segment.
func (k Key) Named(name string) Key {
	return k.child(Segment{ID: name})
}

func (k Key) child(s Segment) Key {
	out := make(Key, len(k), len(k)+1)
	copy(out, k)
	return append(out, s)
}

// String renders the key, e.g. "book42/chapter3/scene2/text".
func (k Key) String() string {
	parts := make([]string, len(k))
	for i, s := range k {
		parts[i] = s.Kind + s.ID
	}
	return strings.Join(parts, "/")
}

// prefixPattern returns the LIKE pattern matching strict descendants of k.
func (k Key) prefixPattern() string {
	return k.String() + "/%"
}

// ParseKey parses the rendered form back into segments, so CLI users
// can address lineages by the strings listings print.
func ParseKey(s string) (Key, error) {
	if s == "" {
		return nil, fmt.Errorf("empty key")
	}
	var k Key
	for _, part := range strings.Split(s, "/") {
		if part == "" {
			return nil, fmt.Errorf("key %q has an empty segment", s)
		}
		k = append(k, parseSegment(part))
	}
	return k, nil
}

func parseSegment(part string) Segment {
	for _, kind := range []string{"book", "chapter", "scene"} {
		if id, ok := strings.CutPrefix(part, kind); ok && id != "" && isDigits(id) {
			return Segment{Kind: kind, ID: id}
		}
	}
	return Segment{ID: part}
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
