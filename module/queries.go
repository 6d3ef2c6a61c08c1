package module

import (
	"github.com/fimoengine/emf-core-base-go/internal/handleset"
	"github.com/fimoengine/emf-core-base-go/rterror"
)

// GetNumModules returns the number of module records currently tracked,
// irrespective of lifecycle state.
func (r *Registry) GetNumModules() int { return r.modules.Len() }

// GetModuleTypes writes the registered loader type strings into buf,
// returning the count written, or BufferOverflow if buf is too small.
func (r *Registry) GetModuleTypes(buf []string) (int, error) {
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

// GetModules writes every live ModuleHandle into buf, returning the count
// written, or BufferOverflow if buf is too small.
func (r *Registry) GetModules(buf []ModuleHandle) (int, error) {
	n := r.modules.Len()
	if len(buf) < n {
		return 0, rterror.Newf(KindBufferOverflow, "buffer holds %d entries, need %d", len(buf), n)
	}
	i := 0
	r.modules.Each(func(id handleset.Handle, m *moduleRecord) bool {
		buf[i] = m.handle
		i++
		return true
	})
	return i, nil
}

// GetNumExportedInterfaces returns the number of interfaces currently
// exported across all modules.
func (r *Registry) GetNumExportedInterfaces() int { return r.exports.count() }

// GetExportedInterfaces writes every currently exported descriptor into
// buf, returning the count written, or BufferOverflow if buf is too small.
func (r *Registry) GetExportedInterfaces(buf []InterfaceDescriptor) (int, error) {
	n := r.exports.count()
	if len(buf) < n {
		return 0, rterror.Newf(KindBufferOverflow, "buffer holds %d entries, need %d", len(buf), n)
	}
	i := 0
	r.exports.each(func(e exportedEntry) bool {
		buf[i] = e.desc
		i++
		return true
	})
	return i, nil
}

// GetExportedInterfaceHandle returns the module that exports an exact
// match for desc.
func (r *Registry) GetExportedInterfaceHandle(desc InterfaceDescriptor) (ModuleHandle, error) {
	h, ok := r.exports.handleFor(desc)
	if !ok {
		return 0, rterror.Newf(KindInterfaceNotFound, "interface %q is not exported", desc.Name)
	}
	return h, nil
}

// ExportedInterfaceExists reports whether an exact match for desc is
// currently exported by any module.
func (r *Registry) ExportedInterfaceExists(desc InterfaceDescriptor) bool {
	return r.exports.existsExact(desc)
}

func (r *Registry) lookupModule(h ModuleHandle) (*moduleRecord, error) {
	rec, ok := r.modules.Lookup(handleset.Handle(h))
	if !ok {
		return nil, rterror.Newf(KindModuleHandleInvalid, "module handle %d is invalid", h)
	}
	return rec, nil
}

func (r *Registry) requireAtLeastTerminated(rec *moduleRecord) error {
	if rec.status == Unloaded {
		return rterror.Newf(KindModuleStateInvalid, "module %d must be loaded (Terminated or Ready), is %s", rec.handle, rec.status)
	}
	return nil
}

// GetModuleInfo returns the descriptive record a loaded (Terminated or
// Ready) module reports about itself.
func (r *Registry) GetModuleInfo(h ModuleHandle) (ModuleInfo, error) {
	rec, err := r.lookupModule(h)
	if err != nil {
		return ModuleInfo{}, err
	}
	if err := r.requireAtLeastTerminated(rec); err != nil {
		return ModuleInfo{}, err
	}
	loader, err := r.loaderVTable(rec.loaderHandle)
	if err != nil {
		return ModuleInfo{}, err
	}
	return loader.GetModuleInfo(rec.internal)
}

// GetModulePath returns the path a loaded module was loaded from. This is
// core-tracked bookkeeping (the path given to AddModule), not a loader
// call -- the native ABI has no get_module_path entry point.
func (r *Registry) GetModulePath(h ModuleHandle) (string, error) {
	rec, err := r.lookupModule(h)
	if err != nil {
		return "", err
	}
	if err := r.requireAtLeastTerminated(rec); err != nil {
		return "", err
	}
	return rec.path, nil
}

// GetLoadDependencies returns a module's static load dependencies. Unlike
// the other per-module queries this never gates on state: load
// dependencies are a constant of the module, knowable before it is ever
// loaded, and the registry itself relies on this during Load.
func (r *Registry) GetLoadDependencies(h ModuleHandle) ([]InterfaceDescriptor, error) {
	rec, err := r.lookupModule(h)
	if err != nil {
		return nil, err
	}
	loader, err := r.loaderVTable(rec.loaderHandle)
	if err != nil {
		return nil, err
	}
	return loader.GetLoadDependencies(rec.path)
}

// GetRuntimeDependencies returns a loaded module's effective runtime
// dependencies: its annotated ones plus whatever its native instance
// self-reports.
func (r *Registry) GetRuntimeDependencies(h ModuleHandle) ([]InterfaceDescriptor, error) {
	rec, err := r.lookupModule(h)
	if err != nil {
		return nil, err
	}
	if err := r.requireAtLeastTerminated(rec); err != nil {
		return nil, err
	}
	return r.runtimeDependenciesOf(rec), nil
}

// GetExportableInterfaces returns the set of interfaces a loaded module is
// capable of exporting, whether or not it has exported them yet.
func (r *Registry) GetExportableInterfaces(h ModuleHandle) ([]InterfaceDescriptor, error) {
	rec, err := r.lookupModule(h)
	if err != nil {
		return nil, err
	}
	if err := r.requireAtLeastTerminated(rec); err != nil {
		return nil, err
	}
	loader, err := r.loaderVTable(rec.loaderHandle)
	if err != nil {
		return nil, err
	}
	return loader.GetExportableInterfaces(rec.internal)
}

// FetchStatus returns a module's current lifecycle state. An invalid
// handle is rejected rather than reported as any particular Status (see
// DESIGN.md's open-question resolutions).
func (r *Registry) FetchStatus(h ModuleHandle) (Status, error) {
	rec, err := r.lookupModule(h)
	if err != nil {
		return 0, err
	}
	return rec.status, nil
}

// GetInterface resolves a live interface implementation from a Ready
// module.
func (r *Registry) GetInterface(h ModuleHandle, desc InterfaceDescriptor) (interface{}, error) {
	rec, err := r.lookupModule(h)
	if err != nil {
		return nil, err
	}
	if rec.status != Ready {
		return nil, rterror.Newf(KindModuleStateInvalid, "module %d must be Ready to fetch an interface, is %s", h, rec.status)
	}
	loader, err := r.loaderVTable(rec.loaderHandle)
	if err != nil {
		return nil, err
	}
	return loader.GetInterface(rec.internal, desc)
}
