// Package library implements the library subsystem: a loader-type
// registry, per-loader dispatch through a vtable, and library
// load/unload/symbol-lookup bookkeeping.
//
// Grounded on handler/handlerDB.go's handlerService (register/unregister/
// lookup over a guarded table) generalized from a path-keyed radix tree of
// FUSE node handlers to a handle-keyed table of loader and library records,
// via internal/handleset. The loader-type -> LoaderHandle lookup mirrors the
// teacher's path-lookup but is memoized with github.com/hashicorp/golang-lru
// on top of the authoritative handleset scan, since loader registration is
// rare and lookups are comparatively frequent.
package library

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru"

	"github.com/fimoengine/emf-core-base-go/internal/handleset"
	"github.com/fimoengine/emf-core-base-go/rterror"
)

// NativeLibraryType is the reserved type string of the default native
// library loader.
const NativeLibraryType = "emf::core_base::native"

const maxTypeStringLen = 64

// LibraryHandle, LoaderHandle, and InternalHandle are distinct handle
// kinds; despite a shared underlying representation they are never
// interchangeable.
type (
	LibraryHandle  handleset.Handle
	LoaderHandle   handleset.Handle
	InternalHandle handleset.Handle
)

// DefaultNativeLoaderHandle is the reserved id of the pre-installed native
// library loader.
const DefaultNativeLoaderHandle LoaderHandle = 0

// LoaderVTable is the per-loader dispatch surface. LoadExt is the
// native-library extension and may be left nil for loaders that don't
// support flag-qualified loads.
type LoaderVTable struct {
	Load              func(path string) (InternalHandle, error)
	Unload            func(internal InternalHandle) error
	GetDataSymbol     func(internal InternalHandle, name string) (interface{}, error)
	GetFunctionSymbol func(internal InternalHandle, name string) (interface{}, error)
	LoadExt           func(path string, flags uint32) (InternalHandle, error)
}

type loaderRecord struct {
	handle LoaderHandle
	typ    string
	vtable LoaderVTable
}

type libraryRecord struct {
	handle       LibraryHandle
	linked       bool
	loaderHandle LoaderHandle
	internal     InternalHandle
}

// Registry is the library subsystem's state: the loader table and the
// library table. Every method assumes the caller already holds the
// runtime's global lock -- the Registry performs no locking of its own
// beyond what handleset.Set provides for internal consistency.
type Registry struct {
	loaders   *handleset.Set[*loaderRecord]
	libraries *handleset.Set[*libraryRecord]
	typeCache *lru.Cache
}

// NewRegistry constructs a Registry with the native library loader
// pre-installed at DefaultNativeLoaderHandle.
func NewRegistry(nativeLoader LoaderVTable) *Registry {
	typeCache, _ := lru.New(256)
	r := &Registry{
		loaders:   handleset.New[*loaderRecord](1),
		libraries: handleset.New[*libraryRecord](1),
		typeCache: typeCache,
	}
	r.loaders.Insert(handleset.Handle(DefaultNativeLoaderHandle), &loaderRecord{
		handle: DefaultNativeLoaderHandle,
		typ:    NativeLibraryType,
		vtable: nativeLoader,
	})
	return r
}

// RegisterLoader installs a new loader under the given type string.
func (r *Registry) RegisterLoader(vtable LoaderVTable, typ string) (LoaderHandle, error) {
	if len(typ) > maxTypeStringLen {
		return 0, rterror.Newf(KindLibraryTypeInvalid, "library type %q exceeds %d bytes", typ, maxTypeStringLen)
	}
	if _, err := r.GetLoaderFromType(typ); err == nil {
		return 0, rterror.Newf(KindDuplicatedLibraryType, "library type %q already registered", typ)
	}

	h := LoaderHandle(r.loaders.Allocate())
	r.loaders.Insert(handleset.Handle(h), &loaderRecord{handle: h, typ: typ, vtable: vtable})
	r.typeCache.Add(typ, h)
	return h, nil
}

// UnregisterLoader removes a loader and invalidates every library linked
// to it.
func (r *Registry) UnregisterLoader(h LoaderHandle) error {
	rec, ok := r.loaders.Lookup(handleset.Handle(h))
	if !ok {
		return rterror.Newf(KindLoaderHandleInvalid, "loader handle %d is invalid", h)
	}

	r.libraries.Each(func(id handleset.Handle, lib *libraryRecord) bool {
		if lib.linked && lib.loaderHandle == h {
			r.libraries.Remove(id)
		}
		return true
	})

	r.loaders.Remove(handleset.Handle(h))
	r.typeCache.Remove(rec.typ)
	return nil
}

// GetLoaderInterface returns the vtable installed for h.
func (r *Registry) GetLoaderInterface(h LoaderHandle) (LoaderVTable, error) {
	rec, ok := r.loaders.Lookup(handleset.Handle(h))
	if !ok {
		return LoaderVTable{}, rterror.Newf(KindLoaderHandleInvalid, "loader handle %d is invalid", h)
	}
	return rec.vtable, nil
}

// GetLoaderFromType resolves a registered type string to its LoaderHandle,
// consulting the LRU cache before falling back to a full scan of the
// authoritative handle table.
func (r *Registry) GetLoaderFromType(typ string) (LoaderHandle, error) {
	if cached, ok := r.typeCache.Get(typ); ok {
		h := cached.(LoaderHandle)
		if rec, ok := r.loaders.Lookup(handleset.Handle(h)); ok && rec.typ == typ {
			return h, nil
		}
		r.typeCache.Remove(typ)
	}

	var found LoaderHandle
	var ok bool
	r.loaders.Each(func(id handleset.Handle, rec *loaderRecord) bool {
		if rec.typ == typ {
			found, ok = rec.handle, true
			return false
		}
		return true
	})
	if !ok {
		return 0, rterror.Newf(KindLibraryTypeNotFound, "no loader registered for type %q", typ)
	}
	r.typeCache.Add(typ, found)
	return found, nil
}

// GetLoaderFromLibrary returns the loader a library is currently linked to.
// An unlinked (but existing) library handle -- as returned by
// CreateLibraryHandle before LinkLibrary -- has no associated loader and
// yields LoaderHandleInvalid, since there genuinely is none yet.
func (r *Registry) GetLoaderFromLibrary(h LibraryHandle) (LoaderHandle, error) {
	rec, ok := r.libraries.Lookup(handleset.Handle(h))
	if !ok {
		return 0, rterror.Newf(KindLibraryHandleInvalid, "library handle %d is invalid", h)
	}
	if !rec.linked {
		return 0, rterror.Newf(KindLoaderHandleInvalid, "library handle %d is not linked to a loader", h)
	}
	return rec.loaderHandle, nil
}

// GetNumLoaders returns the number of registered loaders.
func (r *Registry) GetNumLoaders() int { return r.loaders.Len() }

// LibraryExists reports whether h currently names a live library record.
func (r *Registry) LibraryExists(h LibraryHandle) bool {
	return r.libraries.Exists(handleset.Handle(h))
}

// TypeExists reports whether a loader is registered for typ.
func (r *Registry) TypeExists(typ string) bool {
	_, err := r.GetLoaderFromType(typ)
	return err == nil
}

// GetLibraryTypes writes the registered type strings into buf, returning
// the count written, or BufferOverflow if buf is too small.
func (r *Registry) GetLibraryTypes(buf []string) (int, error) {
	n := r.loaders.Len()
	if len(buf) < n {
		return 0, rterror.Newf(KindBufferOverflow, "buffer holds %d entries, need %d", len(buf), n)
	}
	i := 0
	r.loaders.Each(func(id handleset.Handle, rec *loaderRecord) bool {
		buf[i] = rec.typ
		i++
		return true
	})
	return i, nil
}

// CreateLibraryHandle allocates a fresh, unlinked LibraryHandle.
func (r *Registry) CreateLibraryHandle() LibraryHandle {
	h := LibraryHandle(r.libraries.Allocate())
	r.libraries.Insert(handleset.Handle(h), &libraryRecord{handle: h})
	return h
}

// RemoveLibraryHandle removes h's record without invoking any loader.
func (r *Registry) RemoveLibraryHandle(h LibraryHandle) error {
	if !r.libraries.Exists(handleset.Handle(h)) {
		return rterror.Newf(KindLibraryHandleInvalid, "library handle %d is invalid", h)
	}
	r.libraries.Remove(handleset.Handle(h))
	return nil
}

// LinkLibrary sets (or replaces) the loader/internal-handle pair a library
// handle resolves to. The library and loader handles are validated on
// entry; the internal handle is opaque loader-private state the core has
// no way to validate and is taken on trust.
func (r *Registry) LinkLibrary(h LibraryHandle, loader LoaderHandle, internal InternalHandle) error {
	rec, ok := r.libraries.Lookup(handleset.Handle(h))
	if !ok {
		return rterror.Newf(KindLibraryHandleInvalid, "library handle %d is invalid", h)
	}
	if !r.loaders.Exists(handleset.Handle(loader)) {
		return rterror.Newf(KindLoaderHandleInvalid, "loader handle %d is invalid", loader)
	}
	rec.linked = true
	rec.loaderHandle = loader
	rec.internal = internal
	return nil
}

// GetInternalLibraryHandle returns the loader-private handle backing h.
func (r *Registry) GetInternalLibraryHandle(h LibraryHandle) (InternalHandle, error) {
	rec, ok := r.libraries.Lookup(handleset.Handle(h))
	if !ok {
		return 0, rterror.Newf(KindLibraryHandleInvalid, "library handle %d is invalid", h)
	}
	if !rec.linked {
		return 0, rterror.Newf(KindInternalHandleInvalid, "library handle %d is not linked", h)
	}
	return rec.internal, nil
}

// Load asks loader to load path, registering the result as a new
// LibraryHandle.
func (r *Registry) Load(loader LoaderHandle, path string) (LibraryHandle, error) {
	rec, ok := r.loaders.Lookup(handleset.Handle(loader))
	if !ok {
		return 0, rterror.Newf(KindLoaderHandleInvalid, "loader handle %d is invalid", loader)
	}

	internal, err := rec.vtable.Load(path)
	if err != nil {
		return 0, rterror.Wrap(KindPathNotFound, fmt.Sprintf("failed to load %q", path), err)
	}

	h := LibraryHandle(r.libraries.Allocate())
	r.libraries.Insert(handleset.Handle(h), &libraryRecord{
		handle:       h,
		linked:       true,
		loaderHandle: loader,
		internal:     internal,
	})
	return h, nil
}

// Unload invokes the owning loader's Unload and removes h's record. The
// record is kept if the loader reports failure, so the caller may retry.
func (r *Registry) Unload(h LibraryHandle) error {
	lib, ok := r.libraries.Lookup(handleset.Handle(h))
	if !ok {
		return rterror.Newf(KindLibraryHandleInvalid, "library handle %d is invalid", h)
	}
	if !lib.linked {
		return rterror.Newf(KindInternalHandleInvalid, "library handle %d is not linked", h)
	}
	loader, ok := r.loaders.Lookup(handleset.Handle(lib.loaderHandle))
	if !ok {
		return rterror.Newf(KindLoaderHandleInvalid, "loader handle %d is invalid", lib.loaderHandle)
	}

	if err := loader.vtable.Unload(lib.internal); err != nil {
		return rterror.Wrap(KindLibraryHandleInvalid, fmt.Sprintf("loader failed to unload library %d", h), err)
	}
	r.libraries.Remove(handleset.Handle(h))
	return nil
}

// GetDataSymbol resolves a data symbol by name within h's library.
func (r *Registry) GetDataSymbol(h LibraryHandle, name string) (interface{}, error) {
	return r.getSymbol(h, name, func(v LoaderVTable) func(InternalHandle, string) (interface{}, error) {
		return v.GetDataSymbol
	})
}

// GetFunctionSymbol resolves a function symbol by name within h's library.
// Data and function symbols are looked up through distinct loader calls
// because some platforms place them in different address spaces; what a
// loader does when the two coincide is whatever the loader says.
func (r *Registry) GetFunctionSymbol(h LibraryHandle, name string) (interface{}, error) {
	return r.getSymbol(h, name, func(v LoaderVTable) func(InternalHandle, string) (interface{}, error) {
		return v.GetFunctionSymbol
	})
}

func (r *Registry) getSymbol(h LibraryHandle, name string, pick func(LoaderVTable) func(InternalHandle, string) (interface{}, error)) (interface{}, error) {
	lib, ok := r.libraries.Lookup(handleset.Handle(h))
	if !ok {
		return nil, rterror.Newf(KindLibraryHandleInvalid, "library handle %d is invalid", h)
	}
	if !lib.linked {
		return nil, rterror.Newf(KindInternalHandleInvalid, "library handle %d is not linked", h)
	}
	loader, ok := r.loaders.Lookup(handleset.Handle(lib.loaderHandle))
	if !ok {
		return nil, rterror.Newf(KindLoaderHandleInvalid, "loader handle %d is invalid", lib.loaderHandle)
	}

	sym, err := pick(loader.vtable)(lib.internal, name)
	if err != nil {
		return nil, rterror.Wrap(KindSymbolNotFound, fmt.Sprintf("symbol %q not found", name), err)
	}
	return sym, nil
}
