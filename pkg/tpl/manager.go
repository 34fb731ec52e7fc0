package tpl

import (
	"fmt"
	"iter"
	"log/slog"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
)

// rendererKey identifies one cached renderer instance.
type rendererKey struct {
	extension string
	mimetype  string
}

// Manager is the central hub of the package. It owns the FileType, loader
// and engine registries, validates and locks them with Finalize, and
// resolves every Load, Render and Hash request to a loader plus an ordered
// renderer chain.
//
// Structural registration (extensions, loader keys, engines,
// postprocessors) must happen from a single goroutine before Finalize.
// After Finalize, Load, Render, Hash and IterPaths are safe for concurrent
// use; globals and functions may still be added and are forwarded to live
// renderers.
type Manager struct {
	logger   *slog.Logger
	rootdirs []string

	filetypes map[string]*FileType
	engines   map[string]Engine

	lmu     sync.RWMutex
	loaders map[string][]Loader

	// engineExts is built at Finalize, sorted by descending length so a
	// compound suffix like "tar.gz" is attempted before "gz".
	engineExts []string
	finalized  bool

	rmu       sync.Mutex
	renderers map[rendererKey]Renderer
}

// NewManager creates a Manager searching the given root directories, in
// order. Later roots are shadowed by earlier ones. A nil logger disables
// logging.
func NewManager(logger *slog.Logger, rootdirs ...string) *Manager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Manager{
		logger:    logger,
		rootdirs:  rootdirs,
		filetypes: make(map[string]*FileType),
		engines:   make(map[string]Engine),
		loaders:   make(map[string][]Loader),
		renderers: make(map[rendererKey]Renderer),
	}
}

// FileType returns the FileType registered under mimetype, creating it on
// first access. After Finalize no new FileTypes can be created and unknown
// mimetypes return nil.
func (m *Manager) FileType(mimetype string) *FileType {
	if ft, ok := m.filetypes[mimetype]; ok {
		return ft
	}
	if m.finalized {
		return nil
	}
	ft := &FileType{m: m, mimetype: mimetype}
	m.filetypes[mimetype] = ft
	return ft
}

// Loaders returns the ordered loader list for ext, creating the entry on
// first access. A fresh entry starts with one filesystem loader over the
// Manager's root directories, or empty if no roots are configured. After
// Finalize the key set is fixed and unknown keys fail with ErrLocked.
func (m *Manager) Loaders(ext string) ([]Loader, error) {
	m.lmu.Lock()
	defer m.lmu.Unlock()
	loaders, err := m.loadersLocked(ext)
	if err != nil {
		return nil, err
	}
	out := make([]Loader, len(loaders))
	copy(out, loaders)
	return out, nil
}

// PrependLoader inserts l at the front of ext's loader list, so it is
// consulted before all existing loaders.
func (m *Manager) PrependLoader(ext string, l Loader) error {
	m.lmu.Lock()
	defer m.lmu.Unlock()
	loaders, err := m.loadersLocked(ext)
	if err != nil {
		return err
	}
	m.loaders[ext] = append([]Loader{l}, loaders...)
	return nil
}

// AppendLoader adds l at the end of ext's loader list, as the last
// fallback.
func (m *Manager) AppendLoader(ext string, l Loader) error {
	m.lmu.Lock()
	defer m.lmu.Unlock()
	loaders, err := m.loadersLocked(ext)
	if err != nil {
		return err
	}
	m.loaders[ext] = append(loaders, l)
	return nil
}

// SetLoaders replaces ext's loader list entirely. Unlike the other
// registries the loader lists stay replaceable after Finalize, so tests can
// override content sources; the set of keys is validated at Finalize and
// locked from then on.
func (m *Manager) SetLoaders(ext string, loaders ...Loader) error {
	if err := validExtension(ext); err != nil {
		return err
	}
	m.lmu.Lock()
	defer m.lmu.Unlock()
	if _, ok := m.loaders[ext]; !ok && m.finalized {
		return ErrLocked
	}
	m.loaders[ext] = append([]Loader(nil), loaders...)
	return nil
}

// loadersLocked is the get-or-create accessor behind the loader registry.
// Callers hold lmu. Creation is only possible before Finalize; afterwards
// the key set is fixed and only the declared lists remain mutable.
func (m *Manager) loadersLocked(ext string) ([]Loader, error) {
	if loaders, ok := m.loaders[ext]; ok {
		return loaders, nil
	}
	if m.finalized {
		return nil, ErrLocked
	}
	if err := validExtension(ext); err != nil {
		return nil, err
	}
	var loaders []Loader
	if len(m.rootdirs) > 0 {
		loaders = []Loader{NewFileSystemLoader(m.rootdirs, ext)}
	}
	m.loaders[ext] = loaders
	return loaders, nil
}

// RegisterEngine binds an engine factory to ext. Exactly one engine may own
// an extension; a second registration is a configuration error.
func (m *Manager) RegisterEngine(ext string, e Engine) error {
	if m.finalized {
		return ErrLocked
	}
	if err := validExtension(ext); err != nil {
		return err
	}
	if _, exists := m.engines[ext]; exists {
		return configErr("engine already registered for extension %q", ext)
	}
	m.engines[ext] = e
	return nil
}

// Finalize validates the registries and locks them. It checks that the
// extension sets of all FileTypes are pairwise disjoint and that every
// loader and engine key belongs to some FileType, materializes loader
// entries for every declared extension, and orders the engine extensions
// by descending length. The transition is one-way; there is no unlock.
func (m *Manager) Finalize() error {
	if m.finalized {
		return ErrLocked
	}
	owner := make(map[string]string)
	for _, mimetype := range sortedKeys(m.filetypes) {
		for _, ext := range m.filetypes[mimetype].extensions {
			if other, taken := owner[ext]; taken {
				return configErr("extension %q declared by both %q and %q",
					ext, other, mimetype)
			}
			owner[ext] = mimetype
		}
	}
	m.lmu.Lock()
	for _, ext := range sortedKeys(m.loaders) {
		if _, ok := owner[ext]; !ok {
			m.lmu.Unlock()
			return configErr("loaders registered for unknown extension %q", ext)
		}
	}
	for ext := range owner {
		if _, err := m.loadersLocked(ext); err != nil {
			m.lmu.Unlock()
			return err
		}
	}
	m.lmu.Unlock()
	for _, ext := range sortedKeys(m.engines) {
		if _, ok := owner[ext]; !ok {
			return configErr("engine registered for unknown extension %q", ext)
		}
	}
	exts := sortedKeys(m.engines)
	sort.SliceStable(exts, func(i, j int) bool {
		return len(exts[i]) > len(exts[j])
	})
	m.engineExts = exts
	m.finalized = true
	m.logger.Info("template registry finalized",
		"filetypes", len(m.filetypes),
		"extensions", len(owner),
		"engines", len(m.engines))
	return nil
}

func (m *Manager) isFinalized() bool {
	return m.finalized
}

// Load resolves path to a loader and returns its raw content without
// rendering anything.
func (m *Manager) Load(path string) (Source, error) {
	loader, err := m.loaderFor(path)
	if err != nil {
		return Source{}, err
	}
	return loader.Load(path)
}

// Hash returns the change-detection token of the loader serving path. It
// resolves only the loader, never the renderer chain, so it is cheap
// enough for cache validation.
func (m *Manager) Hash(path string) (string, error) {
	loader, err := m.loaderFor(path)
	if err != nil {
		return "", err
	}
	return loader.Hash(path)
}

// RenderOption adjusts a single Render call.
type RenderOption func(*renderOptions)

type renderOptions struct {
	postprocess bool
}

// WithoutPostprocessors skips the FileType's postprocessors after the
// renderer chain.
func WithoutPostprocessors() RenderOption {
	return func(o *renderOptions) {
		o.postprocess = false
	}
}

// Render resolves path to its FileType, loader and renderer chain, executes
// the chain and applies the FileType's postprocessors. vars may be nil.
// Rendering either fully succeeds or returns an error with no partial
// output.
func (m *Manager) Render(pth string, vars map[string]any, opts ...RenderOption) (string, error) {
	options := renderOptions{postprocess: true}
	for _, opt := range opts {
		opt(&options)
	}
	if vars == nil {
		vars = map[string]any{}
	}

	ft, err := m.filetypeFor(pth)
	if err != nil {
		return "", err
	}
	src, err := m.Load(pth)
	if err != nil {
		return "", err
	}

	for _, ext := range m.rendererChain(pth) {
		r, err := m.renderer(ext, ft)
		if err != nil {
			return "", err
		}
		var out string
		if src.IsRef {
			out, err = r.RenderFile(src.Location, vars, pth)
		} else {
			out, err = r.RenderString(src.Content, vars, pth)
		}
		if err != nil {
			return "", err
		}
		src = Source{Content: out}
	}

	// A reference that no renderer consumed is read directly as the final
	// fallback.
	result := src.Content
	if src.IsRef {
		raw, err := os.ReadFile(src.Location)
		if err != nil {
			if os.IsNotExist(err) {
				return "", notFound(pth)
			}
			return "", fmt.Errorf("reading %q: %w", pth, err)
		}
		result = string(raw)
	}

	if options.postprocess {
		for _, pp := range ft.postprocessors {
			result, err = pp(result)
			if err != nil {
				return "", err
			}
		}
	}
	return result, nil
}

// filetypeFor classifies path by walking the dot-separated components after
// the stem, preferring the longest component prefix that is a declared
// extension. "a.tar.gz" tries "tar.gz" before "tar"; the stem itself never
// matches.
func (m *Manager) filetypeFor(pth string) (*FileType, error) {
	parts := strings.Split(path.Base(pth), ".")
	for i := len(parts); i >= 2; i-- {
		ext := strings.Join(parts[1:i], ".")
		for _, mimetype := range sortedKeys(m.filetypes) {
			if m.filetypes[mimetype].hasExtension(ext) {
				return m.filetypes[mimetype], nil
			}
		}
	}
	return nil, notFound(pth)
}

// loaderFor resolves path to the first loader that can serve it. The
// filename is split on its first dot; if the remainder is not a loader key,
// components are folded back into the stem one at a time until a key
// matches. The first matching key decides: its loaders are probed in order
// and failure of all of them is final.
func (m *Manager) loaderFor(pth string) (Loader, error) {
	parts := strings.Split(path.Base(pth), ".")
	for i := 1; i < len(parts); i++ {
		key := strings.Join(parts[i:], ".")
		m.lmu.RLock()
		loaders, ok := m.loaders[key]
		m.lmu.RUnlock()
		if !ok {
			continue
		}
		for _, l := range loaders {
			if l.IsValid(pth) {
				return l, nil
			}
		}
		return nil, notFound(pth)
	}
	return nil, notFound(pth)
}

// rendererChain peels engine suffixes off the filename and returns their
// extensions in application order. Each round picks the occurrence of
// ".<ext>" at a component boundary whose end lies furthest right, breaking
// ties towards the longer extension, then truncates the filename to the
// part before the occurrence.
func (m *Manager) rendererChain(pth string) []string {
	parts := strings.Split(path.Base(pth), ".")
	var chain []string
	for len(parts) > 1 {
		bestIdx, bestEnd := -1, -1
		bestExt := ""
		for _, ext := range m.engineExts {
			eparts := strings.Split(ext, ".")
			for i := len(parts) - len(eparts); i >= 1; i-- {
				if !componentsEqual(parts[i:i+len(eparts)], eparts) {
					continue
				}
				if end := i + len(eparts); end > bestEnd {
					bestIdx, bestEnd, bestExt = i, end, ext
				}
				break
			}
		}
		if bestIdx < 0 {
			break
		}
		chain = append(chain, bestExt)
		parts = parts[:bestIdx]
	}
	return chain
}

// renderer returns the cached renderer for (ext, filetype), constructing it
// on first use. Construction happens under the cache lock so concurrent
// first access never builds the same instance twice.
func (m *Manager) renderer(ext string, ft *FileType) (Renderer, error) {
	key := rendererKey{extension: ext, mimetype: ft.mimetype}
	m.rmu.Lock()
	defer m.rmu.Unlock()
	if r, ok := m.renderers[key]; ok {
		return r, nil
	}
	engine, ok := m.engines[ext]
	if !ok {
		return nil, configErr("no engine registered for extension %q", ext)
	}
	r, err := engine.Create(m, ft)
	if err != nil {
		return nil, err
	}
	for _, g := range ft.globals {
		r.AddGlobal(g.Name, g.Value, g.Escape)
	}
	for _, f := range ft.functions {
		r.AddFunction(f.Name, f.Fn, f.Escape)
	}
	m.renderers[key] = r
	m.logger.Debug("renderer instantiated", "extension", ext, "mimetype", ft.mimetype)
	return r, nil
}

// addGlobal registers def on ft and forwards it to every live renderer of
// the FileType. It runs under the renderer-cache lock so registration,
// replay during construction and propagation never race.
func (m *Manager) addGlobal(ft *FileType, def VariableDefinition) error {
	m.rmu.Lock()
	defer m.rmu.Unlock()
	for _, have := range ft.globals {
		if have.Name == def.Name {
			return configErr("global %q already declared on %q", def.Name, ft.mimetype)
		}
	}
	ft.globals = append(ft.globals, def)
	for key, r := range m.renderers {
		if key.mimetype == ft.mimetype {
			r.AddGlobal(def.Name, def.Value, def.Escape)
		}
	}
	return nil
}

// addFunction registers def on ft and forwards it to every live renderer of
// the FileType, under the same lock discipline as addGlobal.
func (m *Manager) addFunction(ft *FileType, def FunctionDefinition) error {
	m.rmu.Lock()
	defer m.rmu.Unlock()
	for _, have := range ft.functions {
		if have.Name == def.Name {
			return configErr("function %q already declared on %q", def.Name, ft.mimetype)
		}
	}
	ft.functions = append(ft.functions, def)
	for key, r := range m.renderers {
		if key.mimetype == ft.mimetype {
			r.AddFunction(def.Name, def.Fn, def.Escape)
		}
	}
	return nil
}

// IterPaths lazily yields every discoverable template path. With an empty
// mimetype it enumerates all loaders and keeps the paths the Manager can
// classify into a FileType, silently skipping the rest. With a mimetype it
// yields only paths whose extension component directly after the stem is
// declared on that FileType. The sequence is restartable.
func (m *Manager) IterPaths(mimetype string) iter.Seq[string] {
	if mimetype != "" {
		return m.filetypePaths(mimetype)
	}
	return func(yield func(string) bool) {
		seen := make(map[string]struct{})
		for _, key := range m.loaderKeys() {
			m.lmu.RLock()
			loaders := m.loaders[key]
			m.lmu.RUnlock()
			for _, l := range loaders {
				for p := range l.IterPaths() {
					if _, dup := seen[p]; dup {
						continue
					}
					seen[p] = struct{}{}
					if _, err := m.filetypeFor(p); err != nil {
						continue
					}
					if !yield(p) {
						return
					}
				}
			}
		}
	}
}

func (m *Manager) filetypePaths(mimetype string) iter.Seq[string] {
	return func(yield func(string) bool) {
		ft, ok := m.filetypes[mimetype]
		if !ok {
			return
		}
		seen := make(map[string]struct{})
		for _, key := range m.loaderKeys() {
			m.lmu.RLock()
			loaders := m.loaders[key]
			m.lmu.RUnlock()
			for _, l := range loaders {
				for p := range l.IterPaths() {
					if _, dup := seen[p]; dup {
						continue
					}
					seen[p] = struct{}{}
					if !matchesFileType(p, ft) {
						continue
					}
					if !yield(p) {
						return
					}
				}
			}
		}
	}
}

// matchesFileType is the cheap classification used by mimetype-filtered
// enumeration: one of ft's extensions must sit directly after the stem,
// either filling the rest of the filename or followed by another dot.
func matchesFileType(p string, ft *FileType) bool {
	base := path.Base(p)
	dot := strings.Index(base, ".")
	if dot < 0 {
		return false
	}
	rest := base[dot+1:]
	for _, ext := range ft.extensions {
		if rest == ext || strings.HasPrefix(rest, ext+".") {
			return true
		}
	}
	return false
}

func (m *Manager) loaderKeys() []string {
	m.lmu.RLock()
	defer m.lmu.RUnlock()
	return sortedKeys(m.loaders)
}

func componentsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
