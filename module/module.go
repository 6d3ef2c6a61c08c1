// Package module implements the module subsystem: the module-loader
// registry, the Unloaded/Terminated/Ready lifecycle state machine, the
// interface-export table, and load-/runtime-dependency checking.
//
// Grounded on state/containerDB.go (a registry of stateful, ID-keyed
// records behind a guarded map) crossed with domain/container.go's
// creation/start/stop state-transition discipline -- the closest teacher
// analogue to this subsystem's Unloaded -> Terminated -> Ready machine --
// and on handler/handlerDB.go's register/unregister/lookup shape for the
// module-loader registry itself, exactly as library.Registry reuses it.
package module

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru"

	"github.com/fimoengine/emf-core-base-go/coreiface"
	"github.com/fimoengine/emf-core-base-go/internal/handleset"
	"github.com/fimoengine/emf-core-base-go/rterror"
)

const maxTypeStringLen = 64

type loaderRecord struct {
	handle ModuleLoaderHandle
	typ    string
	vtable LoaderVTable
}

type moduleRecord struct {
	handle       ModuleHandle
	loaderHandle ModuleLoaderHandle
	internal     InternalHandle
	path         string
	status       Status
	runtimeDeps  []InterfaceDescriptor
}

// Registry is the module subsystem's state. Every method assumes the
// caller already holds the runtime's global lock.
type Registry struct {
	loaders   *handleset.Set[*loaderRecord]
	modules   *handleset.Set[*moduleRecord]
	exports   *exportTable
	typeCache *lru.Cache

	hasFunction coreiface.HasFunctionFn
	getFunction coreiface.GetFunctionFn
}

// NewRegistry constructs a Registry with the native module loader
// pre-installed at DefaultNativeModuleLoaderHandle. The core's
// has_function/get_function accessors default to reporting everything
// absent until SetCoreAccessors wires in the real ones, since the full
// function table isn't assembled until the runtime that owns this
// Registry finishes its own construction.
func NewRegistry(nativeLoader LoaderVTable) *Registry {
	typeCache, _ := lru.New(256)
	r := &Registry{
		loaders:     handleset.New[*loaderRecord](1),
		modules:     handleset.New[*moduleRecord](1),
		exports:     newExportTable(),
		typeCache:   typeCache,
		hasFunction: func(coreiface.FnId) bool { return false },
		getFunction: func(coreiface.FnId) (interface{}, bool) { return nil, false },
	}
	r.loaders.Insert(handleset.Handle(DefaultNativeModuleLoaderHandle), &loaderRecord{
		handle: DefaultNativeModuleLoaderHandle,
		typ:    NativeModuleType,
		vtable: nativeLoader,
	})
	return r
}

// SetCoreAccessors installs the core's has_function/get_function
// accessors that a native module's load callback receives, so it can
// bootstrap its own view of the interface without taking the lock its
// caller already holds. Called once by the owning runtime right after it
// assembles its full function table, mirroring a construct-then-wire
// sequence where one service's dependency is installed just after both
// sides exist.
func (r *Registry) SetCoreAccessors(hasFunction coreiface.HasFunctionFn, getFunction coreiface.GetFunctionFn) {
	r.hasFunction = hasFunction
	r.getFunction = getFunction
}

// ---- module-loader registry (mirrors library.Registry's loader half) ----

func (r *Registry) RegisterLoader(vtable LoaderVTable, typ string) (ModuleLoaderHandle, error) {
	if len(typ) > maxTypeStringLen {
		return 0, rterror.Newf(KindModuleTypeInvalid, "module type %q exceeds %d bytes", typ, maxTypeStringLen)
	}
	if _, err := r.GetLoaderFromType(typ); err == nil {
		return 0, rterror.Newf(KindDuplicateModuleType, "module type %q already registered", typ)
	}
	h := ModuleLoaderHandle(r.loaders.Allocate())
	r.loaders.Insert(handleset.Handle(h), &loaderRecord{handle: h, typ: typ, vtable: vtable})
	r.typeCache.Add(typ, h)
	return h, nil
}

func (r *Registry) UnregisterLoader(h ModuleLoaderHandle) error {
	rec, ok := r.loaders.Lookup(handleset.Handle(h))
	if !ok {
		return rterror.Newf(KindLoaderHandleInvalid, "module loader handle %d is invalid", h)
	}
	r.modules.Each(func(id handleset.Handle, m *moduleRecord) bool {
		if m.loaderHandle == h {
			r.modules.Remove(id)
		}
		return true
	})
	r.loaders.Remove(handleset.Handle(h))
	r.typeCache.Remove(rec.typ)
	return nil
}

func (r *Registry) GetLoaderInterface(h ModuleLoaderHandle) (LoaderVTable, error) {
	rec, ok := r.loaders.Lookup(handleset.Handle(h))
	if !ok {
		return LoaderVTable{}, rterror.Newf(KindLoaderHandleInvalid, "module loader handle %d is invalid", h)
	}
	return rec.vtable, nil
}

func (r *Registry) GetLoaderFromType(typ string) (ModuleLoaderHandle, error) {
	if cached, ok := r.typeCache.Get(typ); ok {
		h := cached.(ModuleLoaderHandle)
		if rec, ok := r.loaders.Lookup(handleset.Handle(h)); ok && rec.typ == typ {
			return h, nil
		}
		r.typeCache.Remove(typ)
	}
	var found ModuleLoaderHandle
	var ok bool
	r.loaders.Each(func(id handleset.Handle, rec *loaderRecord) bool {
		if rec.typ == typ {
			found, ok = rec.handle, true
			return false
		}
		return true
	})
	if !ok {
		return 0, rterror.Newf(KindModuleTypeNotFound, "no loader registered for module type %q", typ)
	}
	r.typeCache.Add(typ, found)
	return found, nil
}

func (r *Registry) GetNumLoaders() int { return r.loaders.Len() }

func (r *Registry) loaderVTable(h ModuleLoaderHandle) (LoaderVTable, error) {
	rec, ok := r.loaders.Lookup(handleset.Handle(h))
	if !ok {
		return LoaderVTable{}, rterror.Newf(KindLoaderHandleInvalid, "module loader handle %d is invalid", h)
	}
	return rec.vtable, nil
}

// ---- module lifecycle ----

// AddModule registers a new module in the Unloaded state against the
// given loader and path, without invoking the loader yet.
func (r *Registry) AddModule(loaderHandle ModuleLoaderHandle, path string) (ModuleHandle, error) {
	if _, err := r.loaderVTable(loaderHandle); err != nil {
		return 0, err
	}
	h := ModuleHandle(r.modules.Allocate())
	r.modules.Insert(handleset.Handle(h), &moduleRecord{
		handle:       h,
		loaderHandle: loaderHandle,
		path:         path,
		status:       Unloaded,
	})
	return h, nil
}

// RemoveModule deletes a module's record. It must be Unloaded.
func (r *Registry) RemoveModule(h ModuleHandle) error {
	rec, ok := r.modules.Lookup(handleset.Handle(h))
	if !ok {
		return rterror.Newf(KindModuleHandleInvalid, "module handle %d is invalid", h)
	}
	if rec.status != Unloaded {
		return rterror.Newf(KindModuleStateInvalid, "module %d must be Unloaded to remove, is %s", h, rec.status)
	}
	r.modules.Remove(handleset.Handle(h))
	return nil
}

// Load transitions a module Unloaded -> Terminated, after checking that
// every load dependency is already exported by some Ready module.
func (r *Registry) Load(h ModuleHandle) error {
	rec, ok := r.modules.Lookup(handleset.Handle(h))
	if !ok {
		return rterror.Newf(KindModuleHandleInvalid, "module handle %d is invalid", h)
	}
	if rec.status != Unloaded {
		return rterror.Newf(KindModuleStateInvalid, "module %d must be Unloaded to load, is %s", h, rec.status)
	}
	loader, err := r.loaderVTable(rec.loaderHandle)
	if err != nil {
		return err
	}

	deps, err := loader.GetLoadDependencies(rec.path) // static, keyed by path, no instance required
	if err != nil {
		return rterror.Wrap(KindPathInvalid, fmt.Sprintf("could not determine load dependencies for %q", rec.path), err)
	}
	for _, dep := range deps {
		if _, ok := r.exports.findCompatible(dep); !ok {
			return rterror.Newf(KindInterfaceNotFound, "load dependency %q not exported", dep.Name)
		}
	}

	internal, err := loader.Load(h, rec.path, r.hasFunction, r.getFunction)
	if err != nil {
		return rterror.Wrap(KindPathInvalid, fmt.Sprintf("loader failed to load %q", rec.path), err)
	}
	rec.internal = internal
	rec.status = Terminated
	return nil
}

// Unload transitions a module Terminated -> Unloaded.
func (r *Registry) Unload(h ModuleHandle) error {
	rec, ok := r.modules.Lookup(handleset.Handle(h))
	if !ok {
		return rterror.Newf(KindModuleHandleInvalid, "module handle %d is invalid", h)
	}
	if rec.status != Terminated {
		return rterror.Newf(KindModuleStateInvalid, "module %d must be Terminated to unload, is %s", h, rec.status)
	}
	loader, err := r.loaderVTable(rec.loaderHandle)
	if err != nil {
		return err
	}
	if err := loader.Unload(rec.internal); err != nil {
		return rterror.Wrap(KindModuleStateInvalid, fmt.Sprintf("loader failed to unload module %d", h), err)
	}
	rec.internal = 0
	rec.status = Unloaded
	return nil
}

// Initialize transitions a module Terminated -> Ready, after checking that
// every runtime dependency -- annotated through AddRuntimeDependency or
// self-reported by the native instance through GetRuntimeDependencies --
// is already exported.
func (r *Registry) Initialize(h ModuleHandle) error {
	rec, ok := r.modules.Lookup(handleset.Handle(h))
	if !ok {
		return rterror.Newf(KindModuleHandleInvalid, "module handle %d is invalid", h)
	}
	if rec.status != Terminated {
		return rterror.Newf(KindModuleStateInvalid, "module %d must be Terminated to initialize, is %s", h, rec.status)
	}
	loader, err := r.loaderVTable(rec.loaderHandle)
	if err != nil {
		return err
	}

	for _, dep := range r.runtimeDependenciesOf(rec) {
		if _, ok := r.exports.findCompatible(dep); !ok {
			return rterror.Newf(KindInterfaceNotFound, "runtime dependency %q not exported", dep.Name)
		}
	}

	if err := loader.Initialize(rec.internal); err != nil {
		return rterror.Wrap(KindModuleStateInvalid, fmt.Sprintf("loader failed to initialize module %d", h), err)
	}
	rec.status = Ready
	return nil
}

// Terminate transitions a module Ready -> Terminated. Every dependent of
// every interface this module exports is terminated first (cascading
// Ready -> Terminated); a dependent that listed the interface as a load
// dependency is then also unloaded (Terminated -> Unloaded).
func (r *Registry) Terminate(h ModuleHandle) error {
	rec, ok := r.modules.Lookup(handleset.Handle(h))
	if !ok {
		return rterror.Newf(KindModuleHandleInvalid, "module handle %d is invalid", h)
	}
	if rec.status != Ready {
		return rterror.Newf(KindModuleStateInvalid, "module %d must be Ready to terminate, is %s", h, rec.status)
	}

	exported := r.exportedDescriptorsOf(h)
	if err := r.cascadeTerminate(h, exported); err != nil {
		return err
	}

	loader, err := r.loaderVTable(rec.loaderHandle)
	if err != nil {
		return err
	}
	if err := loader.Terminate(rec.internal); err != nil {
		return rterror.Wrap(KindModuleStateInvalid, fmt.Sprintf("loader failed to terminate module %d", h), err)
	}

	r.exports.removeAllFrom(h)
	rec.status = Terminated
	return nil
}

func (r *Registry) exportedDescriptorsOf(h ModuleHandle) []InterfaceDescriptor {
	var out []InterfaceDescriptor
	r.exports.each(func(e exportedEntry) bool {
		if e.module == h {
			out = append(out, e.desc)
		}
		return true
	})
	return out
}

// cascadeTerminate terminates every Ready module that depends on any
// descriptor in exported, before the exporting module itself is torn
// down. A dependent is found through either dependency kind: a matching
// runtime dependency (annotated or natively self-reported), or a matching
// load dependency -- a module can reach Ready having listed the interface
// only as a load dependency, with no runtime dependency entry at all, so
// scanning runtime dependencies alone misses it. A dependent found
// through a load dependency is also unloaded (Terminated -> Unloaded)
// after being terminated, since its load-time precondition no longer
// holds either.
func (r *Registry) cascadeTerminate(exporter ModuleHandle, exported []InterfaceDescriptor) error {
	type dependent struct {
		handle    ModuleHandle
		unloadToo bool
	}
	var dependents []dependent

	r.modules.Each(func(id handleset.Handle, m *moduleRecord) bool {
		if m.handle == exporter || m.status != Ready {
			return true
		}

		runtimeDeps := r.runtimeDependenciesOf(m)
		loadDeps := r.loadDependenciesOf(m)

		matched, unloadToo := false, false
		for _, ex := range exported {
			runtimeMatch, loadMatch := false, false
			for _, dep := range runtimeDeps {
				if ex.CompatibleWith(dep) {
					runtimeMatch = true
					break
				}
			}
			for _, dep := range loadDeps {
				if ex.CompatibleWith(dep) {
					loadMatch = true
					break
				}
			}
			if runtimeMatch || loadMatch {
				matched = true
			}
			if loadMatch {
				unloadToo = true
			}
		}
		if matched {
			dependents = append(dependents, dependent{handle: m.handle, unloadToo: unloadToo})
		}
		return true
	})

	for _, dep := range dependents {
		if err := r.Terminate(dep.handle); err != nil {
			return err
		}
		if dep.unloadToo {
			if err := r.Unload(dep.handle); err != nil {
				return err
			}
		}
	}
	return nil
}

// loadDependenciesOf reads m's static load dependencies through its
// loader, returning nil if they cannot be determined.
func (r *Registry) loadDependenciesOf(m *moduleRecord) []InterfaceDescriptor {
	loader, err := r.loaderVTable(m.loaderHandle)
	if err != nil {
		return nil
	}
	deps, err := loader.GetLoadDependencies(m.path)
	if err != nil {
		return nil
	}
	return deps
}

// runtimeDependenciesOf returns the union of m's explicitly annotated
// runtime dependencies and whatever its native instance self-reports
// through GetRuntimeDependencies. The latter is skipped wherever the
// loader doesn't implement it or m has no loaded instance yet, matching
// GetRuntimeDependenciesFn's instance-keyed signature in the original
// source -- it can only report on an instance that already exists.
func (r *Registry) runtimeDependenciesOf(m *moduleRecord) []InterfaceDescriptor {
	deps := append([]InterfaceDescriptor(nil), m.runtimeDeps...)
	if m.internal == 0 {
		return deps
	}
	loader, err := r.loaderVTable(m.loaderHandle)
	if err != nil || loader.GetRuntimeDependencies == nil {
		return deps
	}
	native, err := loader.GetRuntimeDependencies(m.internal)
	if err != nil {
		return deps
	}
	return append(deps, native...)
}

// ExportInterface exports desc on behalf of a Ready module, failing with
// DuplicateInterface if an equal descriptor is already exported.
func (r *Registry) ExportInterface(h ModuleHandle, desc InterfaceDescriptor) error {
	rec, ok := r.modules.Lookup(handleset.Handle(h))
	if !ok {
		return rterror.Newf(KindModuleHandleInvalid, "module handle %d is invalid", h)
	}
	if rec.status != Ready {
		return rterror.Newf(KindModuleStateInvalid, "module %d must be Ready to export an interface, is %s", h, rec.status)
	}
	loader, err := r.loaderVTable(rec.loaderHandle)
	if err != nil {
		return err
	}
	exportable, err := loader.GetExportableInterfaces(rec.internal)
	if err != nil {
		return rterror.Wrap(KindModuleStateInvalid, "could not read exportable interfaces", err)
	}
	found := false
	for _, e := range exportable {
		if e.Equal(desc) {
			found = true
			break
		}
	}
	if !found {
		return rterror.Newf(KindInterfaceNotFound, "interface %q is not in module %d's exportable set", desc.Name, h)
	}

	return r.exports.export(desc, h)
}

// AddRuntimeDependency annotates h with a runtime dependency on desc. It
// only annotates; the dependency is checked at Initialize.
func (r *Registry) AddRuntimeDependency(h ModuleHandle, desc InterfaceDescriptor) error {
	rec, ok := r.modules.Lookup(handleset.Handle(h))
	if !ok {
		return rterror.Newf(KindModuleHandleInvalid, "module handle %d is invalid", h)
	}
	rec.runtimeDeps = append(rec.runtimeDeps, desc)
	return nil
}

// RemoveRuntimeDependency removes a previously annotated runtime
// dependency from h.
func (r *Registry) RemoveRuntimeDependency(h ModuleHandle, desc InterfaceDescriptor) error {
	rec, ok := r.modules.Lookup(handleset.Handle(h))
	if !ok {
		return rterror.Newf(KindModuleHandleInvalid, "module handle %d is invalid", h)
	}
	kept := rec.runtimeDeps[:0]
	for _, d := range rec.runtimeDeps {
		if !d.Equal(desc) {
			kept = append(kept, d)
		}
	}
	rec.runtimeDeps = kept
	return nil
}
