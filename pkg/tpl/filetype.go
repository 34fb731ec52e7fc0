package tpl

import (
	"strings"
)

// VariableDefinition is a named value injected into every render of its
// owning FileType. Escape reports whether the value still needs escaping
// by the engine.
type VariableDefinition struct {
	Name   string
	Value  any
	Escape bool
}

// FunctionDefinition is a named callback exposed to every render of its
// owning FileType. Escape reports whether the callback's output still
// needs escaping by the engine.
type FunctionDefinition struct {
	Name   string
	Fn     any
	Escape bool
}

// Postprocessor transforms fully rendered content. A FileType's
// postprocessors run in registration order after the whole renderer chain.
type Postprocessor func(content string) (string, error)

// FileType describes a semantic content category, identified by mimetype.
// It owns the file-name extensions that classify paths into the category,
// the postprocessors applied after rendering, and the globals and functions
// made available to renderers of the category.
//
// FileTypes are created through Manager.FileType. Extensions and
// postprocessors are mutable only until the Manager is finalized; globals
// and functions can be added at any time and reach live renderers
// immediately.
type FileType struct {
	m              *Manager
	mimetype       string
	extensions     []string
	postprocessors []Postprocessor
	globals        []VariableDefinition
	functions      []FunctionDefinition
}

// Mimetype returns the identity of this FileType.
func (ft *FileType) Mimetype() string {
	return ft.mimetype
}

// Extensions returns a copy of the extensions declared on this FileType,
// in registration order.
func (ft *FileType) Extensions() []string {
	out := make([]string, len(ft.extensions))
	copy(out, ft.extensions)
	return out
}

// AddExtension declares that paths carrying ext belong to this FileType.
// The extension is given without a leading dot and must not contain a path
// separator. Cross-FileType uniqueness is checked at Finalize.
func (ft *FileType) AddExtension(ext string) error {
	if ft.m.isFinalized() {
		return ErrLocked
	}
	if err := validExtension(ext); err != nil {
		return err
	}
	for _, have := range ft.extensions {
		if have == ext {
			return configErr("extension %q already declared on %q", ext, ft.mimetype)
		}
	}
	ft.extensions = append(ft.extensions, ext)
	return nil
}

// AddPostprocessor appends fn to this FileType's postprocessor list.
func (ft *FileType) AddPostprocessor(fn Postprocessor) error {
	if ft.m.isFinalized() {
		return ErrLocked
	}
	ft.postprocessors = append(ft.postprocessors, fn)
	return nil
}

// SetPostprocessors replaces the postprocessor list. Passing nothing
// removes all previously appended postprocessors.
func (ft *FileType) SetPostprocessors(fns ...Postprocessor) error {
	if ft.m.isFinalized() {
		return ErrLocked
	}
	ft.postprocessors = append([]Postprocessor(nil), fns...)
	return nil
}

// AddGlobal declares a variable available in every template of this
// FileType. Names are unique per FileType. Globals are value injections,
// not structural configuration, so they stay addable after Finalize: the
// definition is stored for future renderer instances and forwarded to
// already-instantiated ones immediately.
func (ft *FileType) AddGlobal(name string, value any, escape bool) error {
	return ft.m.addGlobal(ft, VariableDefinition{Name: name, Value: value, Escape: escape})
}

// AddFunction declares a callback available in every template of this
// FileType. Names are unique per FileType. Like globals, functions stay
// addable after Finalize and reach already-instantiated renderers
// immediately.
func (ft *FileType) AddFunction(name string, fn any, escape bool) error {
	return ft.m.addFunction(ft, FunctionDefinition{Name: name, Fn: fn, Escape: escape})
}

// hasExtension reports whether ext is declared on this FileType.
func (ft *FileType) hasExtension(ext string) bool {
	for _, have := range ft.extensions {
		if have == ext {
			return true
		}
	}
	return false
}

func validExtension(ext string) error {
	if ext == "" {
		return configErr("empty extension")
	}
	if strings.ContainsAny(ext, "/\\") {
		return configErr("extension %q contains a path separator", ext)
	}
	return nil
}
