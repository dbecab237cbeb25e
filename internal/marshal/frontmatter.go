package marshal

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const frontmatterDelimiter = "---"

type Document struct {
	Frontmatter map[string]any
	Body        string
}

// Parse splits a markdown document into frontmatter and body
func Parse(content []byte) (*Document, error) {
	str := string(content)

	// Check for frontmatter delimiter
	if !strings.HasPrefix(str, frontmatterDelimiter) {
		return &Document{
			Frontmatter: make(map[string]any),
			Body:        str,
		}, nil
	}

	// Find the closing delimiter
	rest := str[len(frontmatterDelimiter):]
	idx := strings.Index(rest, "\n"+frontmatterDelimiter)
	if idx == -1 {
		return nil, fmt.Errorf("unclosed frontmatter")
	}

	// Extract frontmatter YAML
	fmYAML := rest[:idx]
	body := strings.TrimPrefix(rest[idx+len("\n"+frontmatterDelimiter):], "\n")

	var frontmatter map[string]any
	if err := yaml.Unmarshal([]byte(fmYAML), &frontmatter); err != nil {
		return nil, fmt.Errorf("failed to parse frontmatter: %w", err)
	}

	if frontmatter == nil {
		frontmatter = make(map[string]any)
	}

	return &Document{
		Frontmatter: frontmatter,
		Body:        body,
	}, nil
}

// Typed decodes doc's frontmatter into a new T by round-tripping it back
// through YAML: Parse always produces the bare map[string]any the frontmatter
// delimiter format implies, so callers that want a concrete shape (message,
// profile, reservation records) call Typed to get there instead of indexing
// the map themselves.
func Typed[T any](doc *Document) (T, error) {
	var out T
	raw, err := yaml.Marshal(doc.Frontmatter)
	if err != nil {
		return out, fmt.Errorf("remarshal frontmatter: %w", err)
	}
	if err := yaml.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode frontmatter: %w", err)
	}
	return out, nil
}

// FromTyped builds a Document whose frontmatter is v's YAML-tagged fields,
// flattened into the map[string]any that Render expects. This is the write
// side of Typed: callers build a concrete struct and never touch the map.
func FromTyped(v any, body string) (*Document, error) {
	raw, err := yaml.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal typed frontmatter: %w", err)
	}
	var fm map[string]any
	if err := yaml.Unmarshal(raw, &fm); err != nil {
		return nil, fmt.Errorf("remarshal typed frontmatter: %w", err)
	}
	return &Document{Frontmatter: fm, Body: body}, nil
}

// Render combines frontmatter and body into a markdown document
func Render(doc *Document) ([]byte, error) {
	var buf bytes.Buffer

	if len(doc.Frontmatter) > 0 {
		buf.WriteString(frontmatterDelimiter)
		buf.WriteString("\n")

		fmBytes, err := yaml.Marshal(doc.Frontmatter)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal frontmatter: %w", err)
		}
		buf.Write(fmBytes)

		buf.WriteString(frontmatterDelimiter)
		buf.WriteString("\n")
	}

	buf.WriteString(doc.Body)

	return buf.Bytes(), nil
}
