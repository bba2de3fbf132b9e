package parser

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Registry maps backend names to loaders.
type Registry struct {
	loaders map[string]Loader
}

// RegistryOption configures the built-in loaders of NewRegistry.
type RegistryOption func(*registryOptions)

type registryOptions struct {
	split SplitFunc
}

// WithSplitBefore makes the PDF loaders start a new block at every line
// split accepts.
func WithSplitBefore(split SplitFunc) RegistryOption {
	return func(o *registryOptions) { o.split = split }
}

// NewRegistry returns a registry with the built-in loaders: "fitz" (MuPDF,
// positioned text and images), "native" (pure Go, no image positions) and
// "text" (plain text, one form feed per page).
func NewRegistry(opts ...RegistryOption) *Registry {
	var o registryOptions
	for _, fn := range opts {
		fn(&o)
	}
	r := &Registry{loaders: make(map[string]Loader)}
	builtin := []Loader{
		&FitzLoader{SplitBefore: o.split},
		&NativeLoader{SplitBefore: o.split},
		&TextLoader{},
	}
	for _, l := range builtin {
		r.loaders[l.Name()] = l
	}
	return r
}

// Get returns the loader registered under name.
func (r *Registry) Get(name string) (Loader, error) {
	l, ok := r.loaders[name]
	if !ok {
		return nil, fmt.Errorf("no loader for backend: %s", name)
	}
	return l, nil
}

// Register adds or replaces a loader.
func (r *Registry) Register(name string, l Loader) {
	r.loaders[name] = l
}

// ForPath picks the loader for a file: plain text files always use the text
// loader, everything else uses the preferred backend.
func (r *Registry) ForPath(path, preferred string) (Loader, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if ext == "txt" {
		return r.Get("text")
	}
	if ext != "pdf" {
		return nil, fmt.Errorf("unsupported file type: %q", ext)
	}
	return r.Get(preferred)
}
