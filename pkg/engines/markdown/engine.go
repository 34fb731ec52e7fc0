package markdown

import (
	"bytes"
	"fmt"
	"os"

	"github.com/yuin/goldmark"

	"github.com/CTAG07/stagehand/pkg/tpl"
)

// Engine creates goldmark-backed renderers. Options are forwarded to
// goldmark.New, so extensions like tables or strikethrough can be enabled
// by the caller.
type Engine struct {
	options []goldmark.Option
}

// New returns a Markdown engine with the given goldmark options.
func New(options ...goldmark.Option) *Engine {
	return &Engine{options: options}
}

// Create implements tpl.Engine.
func (e *Engine) Create(_ *tpl.Manager, _ *tpl.FileType) (tpl.Renderer, error) {
	return &renderer{md: goldmark.New(e.options...)}, nil
}

type renderer struct {
	md goldmark.Markdown
}

func (r *renderer) AddGlobal(string, any, bool) {}

func (r *renderer) AddFunction(string, any, bool) {}

func (r *renderer) RenderFile(location string, vars map[string]any, path string) (string, error) {
	raw, err := os.ReadFile(location)
	if err != nil {
		return "", fmt.Errorf("%w: %q", tpl.ErrNotFound, path)
	}
	return r.RenderString(string(raw), vars, path)
}

func (r *renderer) RenderString(content string, _ map[string]any, path string) (string, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(content), &buf); err != nil {
		return "", fmt.Errorf("%w: converting %q: %s", tpl.ErrEngine, path, err)
	}
	return buf.String(), nil
}
