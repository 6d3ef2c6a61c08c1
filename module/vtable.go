package module

import (
	"github.com/fimoengine/emf-core-base-go/coreiface"
	"github.com/fimoengine/emf-core-base-go/internal/handleset"
)

// ModuleHandle, ModuleLoaderHandle, and InternalHandle are distinct handle
// kinds: a module-loader's internal handle is opaque to the core and
// never interchangeable with a library's internal handle, despite sharing
// a representation.
type (
	ModuleHandle       handleset.Handle
	ModuleLoaderHandle handleset.Handle
	InternalHandle     handleset.Handle
)

// DefaultNativeModuleLoaderHandle is the reserved id of the pre-installed
// native module loader, in its own handle namespace distinct from the
// library loader namespace.
const DefaultNativeModuleLoaderHandle ModuleLoaderHandle = 0

// NativeModuleType is the reserved type string of the default native
// module loader.
const NativeModuleType = "emf::core_base::native"

// ModuleInfo is the descriptive record a loaded module reports about
// itself.
type ModuleInfo struct {
	Name        string
	Version     string
	Author      string
	Description string
}

// LoaderVTable is the per-loader dispatch surface: the nine-function
// native module ABI of original_source's native_module.rs
// (NativeModuleInterface: load/unload/initialize/terminate/get_interface/
// get_module_info/get_load_dependencies/get_runtime_dependencies/
// get_exportable_interfaces). Per module_token.rs, path tracking, interface
// export bookkeeping, and status stay core-level concerns the registry
// owns itself (moduleRecord.path/status and the exportTable) rather than
// delegating to the loader -- there is no export_interface_fn,
// fetch_status_fn, or get_module_path_fn in the native ABI to delegate
// to. Runtime-dependency annotation is core-level too (AddRuntimeDependency/
// RemoveRuntimeDependency), but GetRuntimeDependencies still gives a
// native module a way to self-report dependencies the registry merges in
// at Initialize, matching native_module.rs's get_runtime_dependencies
// pointer.
//
// GetLoadDependencies is keyed by path rather than InternalHandle: it
// binds to the dlopen'd library itself, not to a created instance, so the
// registry can read it before Load ever creates one. GetRuntimeDependencies
// is keyed by InternalHandle instead, matching
// GetRuntimeDependenciesFn's Option<NonNull<NativeModule>> parameter in
// the original source -- it reports on an already-created instance.
//
// Load additionally receives the ModuleHandle the registry allocated and
// the core's own has_function/get_function accessors. A native module's
// load callback uses these to look up other core functions directly --
// without going through the registry and without taking the lock the
// registry's caller already holds -- exactly as native_module.rs's LoadFn
// passes handle, base_module, has_function_fn, and get_function_fn
// through to the same callback.
type LoaderVTable struct {
	Load                    func(h ModuleHandle, path string, hasFunction coreiface.HasFunctionFn, getFunction coreiface.GetFunctionFn) (InternalHandle, error)
	Unload                  func(internal InternalHandle) error
	Initialize              func(internal InternalHandle) error
	Terminate               func(internal InternalHandle) error
	GetInterface            func(internal InternalHandle, desc InterfaceDescriptor) (interface{}, error)
	GetModuleInfo           func(internal InternalHandle) (ModuleInfo, error)
	GetLoadDependencies     func(path string) ([]InterfaceDescriptor, error)
	GetRuntimeDependencies  func(internal InternalHandle) ([]InterfaceDescriptor, error)
	GetExportableInterfaces func(internal InternalHandle) ([]InterfaceDescriptor, error)
}
