// Package skills discovers and parses skill documents. A skill document
// is a markdown file with a YAML frontmatter preamble describing the
// capability (name, description, keywords, sticky) followed by free-form
// instructions.
package skills

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	meta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/parser"
)

// Document is a parsed skill file.
type Document struct {
	Name        string
	Description string
	Keywords    []string
	Sticky      bool

	// Frontmatter preserves every preamble key verbatim, including the
	// mandatory ones.
	Frontmatter map[string]interface{}

	// Body is the markdown content after the preamble.
	Body string
}

// ParseError describes a per-file parse failure. Parse errors are
// isolated: the offending file is skipped and any previously indexed row
// is left untouched.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parse extracts the preamble and body from skill file content.
func Parse(path string, content []byte) (*Document, error) {
	md := goldmark.New(goldmark.WithExtensions(meta.Meta))

	var buf bytes.Buffer
	pctx := parser.NewContext()
	if err := md.Convert(content, &buf, parser.WithContext(pctx)); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}

	metaData := meta.Get(pctx)
	if metaData == nil {
		return nil, &ParseError{Path: path, Err: fmt.Errorf("missing frontmatter preamble")}
	}

	name, _ := metaData["name"].(string)
	if name == "" {
		return nil, &ParseError{Path: path, Err: fmt.Errorf("frontmatter key %q is required", "name")}
	}
	description, _ := metaData["description"].(string)
	if description == "" {
		return nil, &ParseError{Path: path, Err: fmt.Errorf("frontmatter key %q is required", "description")}
	}

	doc := &Document{
		Name:        name,
		Description: description,
		Frontmatter: metaData,
		Body:        extractBody(string(content)),
	}

	if kws, ok := metaData["keywords"]; ok {
		doc.Keywords = toStringSlice(kws)
	}
	if sticky, ok := metaData["sticky"].(bool); ok {
		doc.Sticky = sticky
	}
	return doc, nil
}

// EmbeddingText assembles the text fed to the embedder for this skill:
// name, description, and a bounded prefix of the body.
func (d *Document) EmbeddingText(bodyLimit int) string {
	body := d.Body
	if bodyLimit > 0 && len(body) > bodyLimit {
		body = body[:bodyLimit]
	}
	return d.Name + "\n" + d.Description + "\n" + body
}

// extractBody removes the YAML frontmatter block and returns the rest.
func extractBody(content string) string {
	if !strings.HasPrefix(content, "---") {
		return content
	}
	lines := strings.Split(content, "\n")
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			return strings.TrimLeft(strings.Join(lines[i+1:], "\n"), "\n")
		}
	}
	return content
}

func toStringSlice(v interface{}) []string {
	switch vals := v.(type) {
	case []string:
		return vals
	case []interface{}:
		out := make([]string, 0, len(vals))
		for _, item := range vals {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return []string{vals}
	default:
		return nil
	}
}
