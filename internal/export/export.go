// Package export converts an assembled book into its distribution
// formats. The markdown artifact in the store is the durable source;
// everything here can be regenerated from it.
package export

import (
	"encoding/xml"
	"fmt"
	"os"
	"strings"

	"github.com/yuin/goldmark"
)

// Chapter is one chapter's assembled content for export.
type Chapter struct {
	Title  string
	Scenes []string // scene texts in reading order
}

// Book is the export-ready view of an assembled book.
type Book struct {
	Title    string
	Chapters []Chapter
}

// Markdown renders the book as a single markdown document with a
// table of contents, the layout the store's book artifact uses.
func Markdown(b Book) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", b.Title)

	sb.WriteString("## Contents\n\n")
	for i, ch := range b.Chapters {
		fmt.Fprintf(&sb, "- Chapter %d. %s\n", i+1, ch.Title)
	}
	sb.WriteString("\n")

	for i, ch := range b.Chapters {
		fmt.Fprintf(&sb, "## Chapter %d. %s\n\n", i+1, ch.Title)
		for _, scene := range ch.Scenes {
			sb.WriteString(strings.TrimSpace(scene))
			sb.WriteString("\n\n")
		}
	}
	return sb.String()
}

// WriteHTML converts markdown to a standalone HTML file. Re-running
// overwrites the file rather than accumulating copies.
func WriteHTML(markdown, title, path string) error {
	var body strings.Builder
	if err := goldmark.Convert([]byte(markdown), &body); err != nil {
		return fmt.Errorf("converting markdown to HTML: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&sb, "<title>%s</title>\n</head>\n<body>\n", htmlEscape(title))
	sb.WriteString(body.String())
	sb.WriteString("</body>\n</html>\n")

	if err := os.WriteFile(path, []byte(sb.String()), 0644); err != nil {
		return fmt.Errorf("writing HTML file: %w", err)
	}
	return nil
}

func htmlEscape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}

// FB2 document skeleton, enough for e-reader ingestion.
type fb2Doc struct {
	XMLName xml.Name `xml:"FictionBook"`
	Xmlns   string   `xml:"xmlns,attr"`
	Desc    fb2Desc  `xml:"description"`
	Body    fb2Body  `xml:"body"`
}

type fb2Desc struct {
	TitleInfo fb2TitleInfo `xml:"title-info"`
}

type fb2TitleInfo struct {
	BookTitle string `xml:"book-title"`
}

type fb2Body struct {
	Sections []fb2Section `xml:"section"`
}

type fb2Section struct {
	Title fb2Title `xml:"title"`
	Paras []string `xml:"p"`
}

type fb2Title struct {
	Para string `xml:"p"`
}

// WriteFB2 renders the book as an FB2 (FictionBook) file, one section
// per chapter, one paragraph per text block.
func WriteFB2(b Book, path string) error {
	doc := fb2Doc{Xmlns: "http://www.gribuser.ru/xml/fictionbook/2.0"}
	doc.Desc.TitleInfo.BookTitle = b.Title

	for i, ch := range b.Chapters {
		section := fb2Section{
			Title: fb2Title{Para: fmt.Sprintf("Chapter %d. %s", i+1, ch.Title)},
		}
		for _, scene := range ch.Scenes {
			for _, para := range strings.Split(scene, "\n\n") {
				para = strings.TrimSpace(para)
				if para != "" {
					section.Paras = append(section.Paras, para)
				}
			}
		}
		doc.Body.Sections = append(doc.Body.Sections, section)
	}

	data, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding FB2: %w", err)
	}
	out := []byte(xml.Header + string(data) + "\n")
	if err := os.WriteFile(path, out, 0644); err != nil {
		return fmt.Errorf("writing FB2 file: %w", err)
	}
	return nil
}
