// Package nativeloader implements the default native library loader: the
// concrete implementation of the native OS loader is deliberately kept
// out of the core and lives instead as a plugin behind library.LoaderVTable.
//
// This implementation backs that vtable with Go's plugin package for the
// actual load/unload/symbol-lookup, and github.com/spf13/afero for the
// path-existence check that precedes it -- giving PathNotFound a fakeable
// filesystem seam in tests instead of hard-depending on the OS filesystem,
// the way handler tests fake domain.IOServiceIface rather than touching
// /proc directly.
package nativeloader

import (
	"fmt"
	"plugin"
	"sync"

	"github.com/spf13/afero"

	"github.com/fimoengine/emf-core-base-go/library"
)

// Loader is the default native library loader: it resolves a path through
// an afero.Fs, then hands it to plugin.Open.
type Loader struct {
	fs afero.Fs

	mu      sync.Mutex
	next    library.InternalHandle
	plugins map[library.InternalHandle]*plugin.Plugin
}

// New constructs a Loader rooted at fs. A nil fs defaults to the real OS
// filesystem.
func New(fs afero.Fs) *Loader {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Loader{fs: fs, plugins: map[library.InternalHandle]*plugin.Plugin{}}
}

// VTable adapts the Loader to library.LoaderVTable.
func (l *Loader) VTable() library.LoaderVTable {
	return library.LoaderVTable{
		Load:              l.load,
		Unload:            l.unload,
		GetDataSymbol:     l.getSymbol,
		GetFunctionSymbol: l.getSymbol,
		LoadExt:           l.loadExt,
	}
}

func (l *Loader) load(path string) (library.InternalHandle, error) {
	return l.loadExt(path, 0)
}

// loadExt is the native-library load extension. flags is accepted for ABI
// parity but Go's plugin package has no equivalent of dlopen(3) flags, so
// it is currently unused.
func (l *Loader) loadExt(path string, flags uint32) (library.InternalHandle, error) {
	exists, err := afero.Exists(l.fs, path)
	if err != nil || !exists {
		return 0, fmt.Errorf("path %q does not exist", path)
	}

	p, err := plugin.Open(path)
	if err != nil {
		return 0, fmt.Errorf("plugin.Open(%q): %w", path, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.next++
	l.plugins[l.next] = p
	return l.next, nil
}

func (l *Loader) unload(internal library.InternalHandle) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.plugins[internal]; !ok {
		return fmt.Errorf("internal handle %d is not loaded", internal)
	}
	// plugin.Plugin has no Close: the Go runtime never unmaps loaded
	// plugins. We drop our own reference so it can no longer be resolved
	// through this loader, matching the "unload" contract at the core
	// level even though the OS-level mapping persists for the process
	// lifetime -- a known Go plugin limitation, not a bug here.
	delete(l.plugins, internal)
	return nil
}

func (l *Loader) getSymbol(internal library.InternalHandle, name string) (interface{}, error) {
	l.mu.Lock()
	p, ok := l.plugins[internal]
	l.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("internal handle %d is not loaded", internal)
	}
	return p.Lookup(name)
}
