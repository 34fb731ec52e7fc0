package tpl

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Source is the result of a Loader.Load call. It either references a file
// on disk (IsRef true, Location holds the absolute path) or carries the
// template content inline (IsRef false, Content holds the text).
type Source struct {
	IsRef    bool
	Location string
	Content  string
}

// Loader locates raw template content for logical paths under one
// extension family.
type Loader interface {
	// IterPaths returns a lazy, restartable sequence of every relative
	// path this loader can currently serve.
	IterPaths() iter.Seq[string]

	// Load resolves path to a Source. The error matches ErrNotFound if
	// the loader cannot serve the path.
	Load(path string) (Source, error)

	// IsValid reports whether a Load call for path would succeed. It must
	// be cheap; filesystem loaders probe for existence directly instead
	// of enumerating.
	IsValid(path string) bool

	// Hash returns an opaque change-detection token for path. Two calls
	// with unchanged underlying content return the same token; any byte
	// change produces a different one. The error matches ErrNotFound if
	// the resource disappeared.
	Hash(path string) (string, error)
}

// HashSource computes the change token for a loaded Source using xxHash.
// It is the Hash implementation shared by the concrete loaders in this
// package and is exported for custom Loader implementations.
func HashSource(src Source) (string, error) {
	if !src.IsRef {
		return fmt.Sprintf("%016x", xxhash.Sum64String(src.Content)), nil
	}
	f, err := os.Open(src.Location)
	if err != nil {
		return "", notFound(src.Location)
	}
	defer func() {
		_ = f.Close()
	}()
	h := xxhash.New()
	if _, err = io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing %q: %w", src.Location, err)
	}
	return fmt.Sprintf("%016x", h.Sum64()), nil
}

// FileSystemLoader serves files carrying one extension from an ordered
// list of root directories. Earlier roots shadow later ones when the same
// relative path exists in both.
type FileSystemLoader struct {
	rootdirs  []string
	extension string
}

// NewFileSystemLoader creates a FileSystemLoader over the given roots.
// The extension is given without a leading dot.
func NewFileSystemLoader(rootdirs []string, extension string) *FileSystemLoader {
	return &FileSystemLoader{rootdirs: rootdirs, extension: extension}
}

func (l *FileSystemLoader) IterPaths() iter.Seq[string] {
	return func(yield func(string) bool) {
		suffix := "." + l.extension
		seen := make(map[string]struct{})
		for _, root := range l.rootdirs {
			stopped := false
			_ = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
				if err != nil || d.IsDir() {
					return nil
				}
				if !strings.HasSuffix(d.Name(), suffix) {
					return nil
				}
				rel, err := filepath.Rel(root, p)
				if err != nil {
					return nil
				}
				rel = filepath.ToSlash(rel)
				if _, dup := seen[rel]; dup {
					return nil
				}
				seen[rel] = struct{}{}
				if !yield(rel) {
					stopped = true
					return fs.SkipAll
				}
				return nil
			})
			if stopped {
				return
			}
		}
	}
}

func (l *FileSystemLoader) Load(path string) (Source, error) {
	if full, ok := l.locate(path); ok {
		return Source{IsRef: true, Location: full}, nil
	}
	return Source{}, notFound(path)
}

func (l *FileSystemLoader) IsValid(path string) bool {
	_, ok := l.locate(path)
	return ok
}

func (l *FileSystemLoader) Hash(path string) (string, error) {
	src, err := l.Load(path)
	if err != nil {
		return "", err
	}
	return HashSource(src)
}

// locate finds the first root containing path. Paths escaping a root via
// ".." segments are treated as absent, never served.
func (l *FileSystemLoader) locate(path string) (string, bool) {
	cleaned := filepath.FromSlash(strings.TrimPrefix(path, "/"))
	for _, root := range l.rootdirs {
		full := filepath.Join(root, cleaned)
		rel, err := filepath.Rel(root, full)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
			continue
		}
		if info, err := os.Stat(full); err == nil && !info.IsDir() {
			return full, true
		}
	}
	return "", false
}

// ChainLoader combines several loaders into one that serves the union of
// their paths. Loads try the children in registration order and return the
// first success.
type ChainLoader struct {
	loaders []Loader
}

// NewChainLoader creates a ChainLoader over the given children.
func NewChainLoader(loaders ...Loader) *ChainLoader {
	return &ChainLoader{loaders: loaders}
}

func (l *ChainLoader) IterPaths() iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, child := range l.loaders {
			for p := range child.IterPaths() {
				if !yield(p) {
					return
				}
			}
		}
	}
}

func (l *ChainLoader) Load(path string) (Source, error) {
	for _, child := range l.loaders {
		src, err := child.Load(path)
		if err == nil {
			return src, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return Source{}, err
		}
	}
	return Source{}, notFound(path)
}

func (l *ChainLoader) IsValid(path string) bool {
	for _, child := range l.loaders {
		if child.IsValid(path) {
			return true
		}
	}
	return false
}

func (l *ChainLoader) Hash(path string) (string, error) {
	for _, child := range l.loaders {
		token, err := child.Hash(path)
		if err == nil {
			return token, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return "", err
		}
	}
	return "", notFound(path)
}

// PrefixLoader restricts a wrapped loader to paths under a literal prefix.
// The prefix is stripped before delegating and re-added when enumerating.
type PrefixLoader struct {
	prefix string
	inner  Loader
}

// NewPrefixLoader wraps inner so that all of its paths appear under prefix.
func NewPrefixLoader(prefix string, inner Loader) *PrefixLoader {
	return &PrefixLoader{prefix: prefix, inner: inner}
}

func (l *PrefixLoader) IterPaths() iter.Seq[string] {
	return func(yield func(string) bool) {
		for p := range l.inner.IterPaths() {
			if !yield(l.prefix + p) {
				return
			}
		}
	}
}

func (l *PrefixLoader) Load(path string) (Source, error) {
	rest, ok := strings.CutPrefix(path, l.prefix)
	if !ok {
		return Source{}, notFound(path)
	}
	return l.inner.Load(rest)
}

func (l *PrefixLoader) IsValid(path string) bool {
	rest, ok := strings.CutPrefix(path, l.prefix)
	if !ok {
		return false
	}
	return l.inner.IsValid(rest)
}

func (l *PrefixLoader) Hash(path string) (string, error) {
	rest, ok := strings.CutPrefix(path, l.prefix)
	if !ok {
		return "", notFound(path)
	}
	return l.inner.Hash(rest)
}
