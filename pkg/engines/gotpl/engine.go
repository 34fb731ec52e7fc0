package gotpl

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"os"
	"sync"
	texttemplate "text/template"

	"github.com/CTAG07/stagehand/pkg/tpl"
)

// Engine creates renderers backed by Go's template packages.
type Engine struct {
	html bool
}

// New returns an engine rendering with text/template. The escape flags of
// globals and functions are irrelevant in text mode and ignored.
func New() *Engine {
	return &Engine{}
}

// NewHTML returns an engine rendering with html/template and its
// contextual auto-escaping.
func NewHTML() *Engine {
	return &Engine{html: true}
}

// Create implements tpl.Engine.
func (e *Engine) Create(_ *tpl.Manager, _ *tpl.FileType) (tpl.Renderer, error) {
	return &renderer{
		html:    e.html,
		funcs:   baseFuncs(),
		globals: make(map[string]any),
	}, nil
}

// renderer holds the accumulated globals and functions for one
// engine/filetype pair. Templates are parsed per render so that changed
// file content is always picked up.
type renderer struct {
	mu      sync.Mutex
	html    bool
	funcs   map[string]any
	globals map[string]any
}

func (r *renderer) AddGlobal(name string, value any, escape bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.html && !escape {
		if s, ok := value.(string); ok {
			value = htmltemplate.HTML(s)
		}
	}
	r.globals[name] = value
}

func (r *renderer) AddFunction(name string, fn any, _ bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
}

func (r *renderer) RenderFile(location string, vars map[string]any, path string) (string, error) {
	raw, err := os.ReadFile(location)
	if err != nil {
		return "", fmt.Errorf("%w: %q", tpl.ErrNotFound, path)
	}
	return r.RenderString(string(raw), vars, path)
}

func (r *renderer) RenderString(content string, vars map[string]any, path string) (string, error) {
	r.mu.Lock()
	data := make(map[string]any, len(r.globals)+len(vars))
	for name, value := range r.globals {
		data[name] = value
	}
	funcs := make(map[string]any, len(r.funcs))
	for name, fn := range r.funcs {
		funcs[name] = fn
	}
	r.mu.Unlock()
	for name, value := range vars {
		data[name] = value
	}

	var buf bytes.Buffer
	if r.html {
		t, err := htmltemplate.New(path).Funcs(funcs).Parse(content)
		if err != nil {
			return "", fmt.Errorf("%w: parsing %q: %s", tpl.ErrEngine, path, err)
		}
		if err = t.Execute(&buf, data); err != nil {
			return "", fmt.Errorf("%w: executing %q: %s", tpl.ErrEngine, path, err)
		}
	} else {
		t, err := texttemplate.New(path).Funcs(funcs).Parse(content)
		if err != nil {
			return "", fmt.Errorf("%w: parsing %q: %s", tpl.ErrEngine, path, err)
		}
		if err = t.Execute(&buf, data); err != nil {
			return "", fmt.Errorf("%w: executing %q: %s", tpl.ErrEngine, path, err)
		}
	}
	return buf.String(), nil
}
