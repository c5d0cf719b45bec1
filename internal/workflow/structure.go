package workflow

import (
	"encoding/json"
	"fmt"
)

// SceneInfo is one scene's descriptor inside the story structure.
type SceneInfo struct {
	Number       int      `json:"number"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Characters   []string `json:"characters"`
	Location     string   `json:"location"`
	Time         string   `json:"time"`
	DramaticInfo string   `json:"dramatic_info"`
}

// ChapterInfo is one chapter with its ordered scenes.
type ChapterInfo struct {
	Number int         `json:"number"`
	Title  string      `json:"title"`
	Scenes []SceneInfo `json:"scenes"`
}

// StoryStructure is the structured document driving scene generation
// and assembly. Chapter and scene numbers feed directly into artifact
// keys, so they must stay stable, 1-based and dense.
type StoryStructure struct {
	Chapters []ChapterInfo `json:"chapters"`
}

// ParseStructure decodes and validates a story-structure document.
// A malformed document is a data-integrity failure: the caller's stage
// must abort without writing output.
func ParseStructure(doc []byte) (*StoryStructure, error) {
	var st StoryStructure
	if err := json.Unmarshal(doc, &st); err != nil {
		return nil, fmt.Errorf("decoding story structure: %w", err)
	}
	if len(st.Chapters) == 0 {
		return nil, fmt.Errorf("story structure has no chapters")
	}
	for ci, ch := range st.Chapters {
		if ch.Number != ci+1 {
			return nil, fmt.Errorf("chapter %d is numbered %d: numbering must be dense and 1-based",
				ci+1, ch.Number)
		}
		if len(ch.Scenes) == 0 {
			return nil, fmt.Errorf("chapter %d has no scenes", ch.Number)
		}
		for si, sc := range ch.Scenes {
			if sc.Number != si+1 {
				return nil, fmt.Errorf("chapter %d scene %d is numbered %d: numbering must be dense and 1-based",
					ch.Number, si+1, sc.Number)
			}
		}
	}
	return &st, nil
}

// SceneCount returns the total number of scenes.
func (st *StoryStructure) SceneCount() int {
	n := 0
	for _, ch := range st.Chapters {
		n += len(ch.Scenes)
	}
	return n
}

// PrevScene returns the scene preceding (chapter, scene) in reading
// order — the last scene of the previous chapter when crossing a
// chapter boundary — or nil for the very first scene.
func (st *StoryStructure) PrevScene(chapter, scene int) (prevChapter int, prev *SceneInfo) {
	if chapter == 1 && scene == 1 {
		return 0, nil
	}
	if scene > 1 {
		ch := st.Chapters[chapter-1]
		return chapter, &ch.Scenes[scene-2]
	}
	ch := st.Chapters[chapter-2]
	return chapter - 1, &ch.Scenes[len(ch.Scenes)-1]
}

// SizeParams shapes the structure prompt for a requested book size.
type SizeParams struct {
	Chapters         int
	ScenesPerChapter int
	WordsPerScene    int
}

// SizeParamsFor maps a book-size label to structure parameters,
// falling back to "short" for unknown labels.
func SizeParamsFor(size string) SizeParams {
	switch size {
	case "very_short":
		return SizeParams{Chapters: 1, ScenesPerChapter: 3, WordsPerScene: 1200}
	case "medium":
		return SizeParams{Chapters: 8, ScenesPerChapter: 4, WordsPerScene: 2000}
	case "long":
		return SizeParams{Chapters: 12, ScenesPerChapter: 5, WordsPerScene: 2500}
	default: // "short"
		return SizeParams{Chapters: 4, ScenesPerChapter: 3, WordsPerScene: 1500}
	}
}
