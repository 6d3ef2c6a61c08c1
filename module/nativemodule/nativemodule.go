// Package nativemodule implements the default native module loader: the
// module-subsystem counterpart of library/nativeloader, backing
// module.LoaderVTable with Go's plugin package instead of leaving it
// unimplemented.
//
// Grounded on original_source/emf-core-base-rs-bare/src/module/
// native_module.rs's NativeModuleWrapper, which locates a single
// well-known exported interface value inside a dlopen'd shared object and
// dispatches every module operation through its nine function pointers;
// here that value is a Go plugin symbol of type *Interface, looked up anew
// on every load and get_load_dependencies call via github.com/spf13/afero +
// Go's plugin package exactly as library/nativeloader does for plain
// libraries.
package nativemodule

import (
	"fmt"
	"plugin"
	"sync"

	"github.com/spf13/afero"

	"github.com/fimoengine/emf-core-base-go/coreiface"
	"github.com/fimoengine/emf-core-base-go/module"
)

// InterfaceSymbol is the reserved symbol name every native module's
// shared object must export a *Interface value under.
const InterfaceSymbol = "emf_cbase_native_module_interface"

// Interface is the nine-function native module ABI surface a plugin
// exports (see module/vtable.go for why path/status/export bookkeeping
// and runtime-dependency annotation stay core-side instead of appearing
// here).
//
// Load receives the ModuleHandle the registry allocated plus the core's
// has_function/get_function accessors, exactly as native_module.rs's
// LoadFn passes handle, base_module, has_function_fn, and get_function_fn
// through: a native module uses these to look up other core functions
// directly, without going through the registry and without taking the
// lock its caller already holds.
type Interface struct {
	Load                    func(handle module.ModuleHandle, hasFunction coreiface.HasFunctionFn, getFunction coreiface.GetFunctionFn) (interface{}, error)
	Unload                  func(instance interface{}) error
	Initialize              func(instance interface{}) error
	Terminate               func(instance interface{}) error
	GetInterface            func(instance interface{}, desc module.InterfaceDescriptor) (interface{}, error)
	GetModuleInfo           func(instance interface{}) (module.ModuleInfo, error)
	GetLoadDependencies     func() ([]module.InterfaceDescriptor, error)
	GetRuntimeDependencies  func(instance interface{}) ([]module.InterfaceDescriptor, error)
	GetExportableInterfaces func(instance interface{}) ([]module.InterfaceDescriptor, error)
}

// Loader is the default native module loader.
type Loader struct {
	fs afero.Fs

	mu        sync.Mutex
	next      module.InternalHandle
	instances map[module.InternalHandle]instanceEntry
}

type instanceEntry struct {
	iface    *Interface
	instance interface{}
}

// New constructs a Loader rooted at fs. A nil fs defaults to the real OS
// filesystem.
func New(fs afero.Fs) *Loader {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Loader{fs: fs, instances: map[module.InternalHandle]instanceEntry{}}
}

// VTable adapts the Loader to module.LoaderVTable.
func (l *Loader) VTable() module.LoaderVTable {
	return module.LoaderVTable{
		Load:                    l.load,
		Unload:                  l.unload,
		Initialize:              l.initialize,
		Terminate:               l.terminate,
		GetInterface:            l.getInterface,
		GetModuleInfo:           l.getModuleInfo,
		GetLoadDependencies:     l.getLoadDependencies,
		GetRuntimeDependencies:  l.getRuntimeDependencies,
		GetExportableInterfaces: l.getExportableInterfaces,
	}
}

// openInterface resolves path to its exported *Interface value, without
// creating any instance yet.
func (l *Loader) openInterface(path string) (*Interface, error) {
	exists, err := afero.Exists(l.fs, path)
	if err != nil || !exists {
		return nil, fmt.Errorf("path %q does not exist", path)
	}

	p, err := plugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("plugin.Open(%q): %w", path, err)
	}
	sym, err := p.Lookup(InterfaceSymbol)
	if err != nil {
		return nil, fmt.Errorf("%q does not export %s: %w", path, InterfaceSymbol, err)
	}
	iface, ok := sym.(*Interface)
	if !ok {
		return nil, fmt.Errorf("%q's %s symbol is not a *nativemodule.Interface", path, InterfaceSymbol)
	}
	return iface, nil
}

func (l *Loader) getLoadDependencies(path string) ([]module.InterfaceDescriptor, error) {
	iface, err := l.openInterface(path)
	if err != nil {
		return nil, err
	}
	return iface.GetLoadDependencies()
}

func (l *Loader) load(h module.ModuleHandle, path string, hasFunction coreiface.HasFunctionFn, getFunction coreiface.GetFunctionFn) (module.InternalHandle, error) {
	iface, err := l.openInterface(path)
	if err != nil {
		return 0, err
	}
	instance, err := iface.Load(h, hasFunction, getFunction)
	if err != nil {
		return 0, fmt.Errorf("module at %q failed to load: %w", path, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.next++
	l.instances[l.next] = instanceEntry{iface: iface, instance: instance}
	return l.next, nil
}

func (l *Loader) lookup(internal module.InternalHandle) (instanceEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.instances[internal]
	if !ok {
		return instanceEntry{}, fmt.Errorf("internal handle %d is not loaded", internal)
	}
	return e, nil
}

func (l *Loader) unload(internal module.InternalHandle) error {
	e, err := l.lookup(internal)
	if err != nil {
		return err
	}
	if err := e.iface.Unload(e.instance); err != nil {
		return err
	}
	l.mu.Lock()
	delete(l.instances, internal)
	l.mu.Unlock()
	return nil
}

func (l *Loader) initialize(internal module.InternalHandle) error {
	e, err := l.lookup(internal)
	if err != nil {
		return err
	}
	return e.iface.Initialize(e.instance)
}

func (l *Loader) terminate(internal module.InternalHandle) error {
	e, err := l.lookup(internal)
	if err != nil {
		return err
	}
	return e.iface.Terminate(e.instance)
}

func (l *Loader) getInterface(internal module.InternalHandle, desc module.InterfaceDescriptor) (interface{}, error) {
	e, err := l.lookup(internal)
	if err != nil {
		return nil, err
	}
	return e.iface.GetInterface(e.instance, desc)
}

func (l *Loader) getModuleInfo(internal module.InternalHandle) (module.ModuleInfo, error) {
	e, err := l.lookup(internal)
	if err != nil {
		return module.ModuleInfo{}, err
	}
	return e.iface.GetModuleInfo(e.instance)
}

func (l *Loader) getRuntimeDependencies(internal module.InternalHandle) ([]module.InterfaceDescriptor, error) {
	e, err := l.lookup(internal)
	if err != nil {
		return nil, err
	}
	if e.iface.GetRuntimeDependencies == nil {
		return nil, nil
	}
	return e.iface.GetRuntimeDependencies(e.instance)
}

func (l *Loader) getExportableInterfaces(internal module.InternalHandle) ([]module.InterfaceDescriptor, error) {
	e, err := l.lookup(internal)
	if err != nil {
		return nil, err
	}
	return e.iface.GetExportableInterfaces(e.instance)
}
