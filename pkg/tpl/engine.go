package tpl

// Engine produces renderer instances for one extension. The Manager calls
// Create at most once per FileType; the resulting Renderer is cached and
// reused for the process lifetime.
type Engine interface {
	Create(m *Manager, ft *FileType) (Renderer, error)
}

// EngineFunc adapts a plain factory function to the Engine interface.
type EngineFunc func(m *Manager, ft *FileType) (Renderer, error)

func (f EngineFunc) Create(m *Manager, ft *FileType) (Renderer, error) {
	return f(m, ft)
}

// Renderer turns template content into output. Implementations may assume
// that every AddGlobal and AddFunction name is registered exactly once and
// that there is only one instance per engine/filetype combination.
//
// AddGlobal and AddFunction may be called both before and after the first
// render and must take effect for all subsequent renders.
type Renderer interface {
	AddGlobal(name string, value any, escape bool)
	AddFunction(name string, fn any, escape bool)

	// RenderFile renders the template stored at location. path is the
	// logical template path the render was requested under.
	RenderFile(location string, vars map[string]any, path string) (string, error)

	// RenderString renders in-memory template content. path is the
	// logical template path the render was requested under.
	RenderString(content string, vars map[string]any, path string) (string, error)
}
