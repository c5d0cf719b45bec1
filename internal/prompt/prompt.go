// Package prompt renders the generation prompts from embedded
// templates. A missing template is an error — fatal to the stage that
// asked for it, never to the process.
package prompt

import (
	"embed"
	"fmt"
	"strings"
	"text/template"
)

//go:embed templates/*.tmpl
var templates embed.FS

var registry = template.Must(template.ParseFS(templates, "templates/*.tmpl"))

// Render fills the named template (e.g. "scene.tmpl") with data.
func Render(name string, data any) (string, error) {
	t := registry.Lookup(name)
	if t == nil {
		return "", fmt.Errorf("prompt template %q not found", name)
	}
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", fmt.Errorf("rendering prompt %q: %w", name, err)
	}
	return strings.TrimSpace(b.String()), nil
}

// Exists reports whether a template name is registered. Used by the
// pipeline's construction-time validation.
func Exists(name string) bool {
	return registry.Lookup(name) != nil
}
