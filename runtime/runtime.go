// Package runtime wires the version, rterror, sync2, library, module, and
// coreiface packages into the single bootstrap surface a host process
// resolves: the CBaseInterface returned by Runtime.Interface (see its doc
// for how it relates to coreiface.FetchInterface).
//
// Grounded on fs.go/cmd/sysbox-fs/main.go's service-construction sequence
// (ioService, processService, handlerService, fuseServerService,
// containerStateService, ... each built then wired into the next via
// Setup calls) generalized from a FUSE daemon's fixed service graph to
// this runtime's fixed subsystem graph (sync handler, library registry,
// module registry, function table), built once at New and never
// reconfigured afterward except through the sync handler swap itself.
package runtime

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/fimoengine/emf-core-base-go/coreiface"
	"github.com/fimoengine/emf-core-base-go/library"
	"github.com/fimoengine/emf-core-base-go/module"
	"github.com/fimoengine/emf-core-base-go/sync2"
	"github.com/fimoengine/emf-core-base-go/version"
)

// CoreVersion is the version this runtime build implements and reports
// through FetchVersion.
var CoreVersion = version.NewShort(0, 1, 0)

// Runtime is the concrete implementation behind the function table: it
// owns the sync handler, the library and module registries, and the
// runtime's own log sink (the library and module registries do not log).
type Runtime struct {
	sync *sync2.Manager

	libraries *library.Registry
	modules   *module.Registry

	log    *logrus.Entry
	vtable *coreiface.VTable
}

// Config supplies the pluggable native loaders a Runtime installs at
// construction, and an optional logrus.Logger (defaulting to
// logrus.StandardLogger() when nil) the way a daemon's services all
// report through one package-level logrus instance.
type Config struct {
	NativeLibraryLoader library.LoaderVTable
	NativeModuleLoader  module.LoaderVTable
	Logger              *logrus.Logger
}

// New constructs a Runtime with the native library and module loaders
// pre-installed, a default mutex-backed sync handler active, and its own
// logging sub-entry tagged "emf-core-base". The function table is
// assembled once here and handed to the module registry as its
// has_function/get_function accessors, so a native module's load
// callback can bootstrap its own view of the interface.
func New(cfg Config) *Runtime {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	rt := &Runtime{
		sync:      sync2.NewManager(sync2.NewMutexHandler()),
		libraries: library.NewRegistry(cfg.NativeLibraryLoader),
		modules:   module.NewRegistry(cfg.NativeModuleLoader),
		log:       logger.WithField("component", "emf-core-base"),
	}
	rt.vtable = rt.buildVTable()
	rt.modules.SetCoreAccessors(rt.vtable.HasFunction, rt.vtable.GetFunction)
	return rt
}

// Lock acquires the runtime's global lock, per the single-writer
// discipline every registry method assumes its caller already holds.
func (rt *Runtime) Lock() { rt.sync.Get().Lock() }

// Unlock releases the runtime's global lock.
func (rt *Runtime) Unlock() { rt.sync.Get().Unlock() }

// TryLock attempts to acquire the runtime's global lock without blocking.
func (rt *Runtime) TryLock() bool { return rt.sync.Get().TryLock() }

// SetSyncHandler swaps in a new lock/sync handler via the three-step
// handoff protocol. The caller must already hold the currently-active
// handler's lock.
func (rt *Runtime) SetSyncHandler(h *sync2.Handler) { rt.sync.Set(h) }

// GetSyncHandler returns the currently active lock/sync handler.
func (rt *Runtime) GetSyncHandler() *sync2.Handler { return rt.sync.Get() }

// Libraries exposes the library subsystem registry.
func (rt *Runtime) Libraries() *library.Registry { return rt.libraries }

// Modules exposes the module subsystem registry.
func (rt *Runtime) Modules() *module.Registry { return rt.modules }

// Shutdown logs and terminates the process, matching coreiface.Shutdown's
// divergence contract.
func (rt *Runtime) Shutdown() {
	rt.log.Info("shutdown requested")
	coreiface.Shutdown()
}

// Panic logs cause and terminates the process, matching coreiface.Panic's
// divergence contract.
func (rt *Runtime) Panic(cause error) {
	rt.log.WithError(cause).Error("fatal error")
	coreiface.Panic(cause)
}

// VTable returns the function table assembled at construction time and
// bound to this Runtime's methods.
func (rt *Runtime) VTable() *coreiface.VTable {
	return rt.vtable
}

// buildVTable assembles the full function table bound to this Runtime's
// methods. The version constructors, string-length and as-string writers,
// StringIsValid, and the extension-group slot are left unset, so
// HasFunction reports them absent; every other slot is populated.
func (rt *Runtime) buildVTable() *coreiface.VTable {
	vt := coreiface.NewVTable()

	vt.Set(coreiface.FnVersionFromString, version.FromString)
	vt.Set(coreiface.FnVersionCompare, version.Compare)
	vt.Set(coreiface.FnVersionCompareWeak, version.CompareWeak)
	vt.Set(coreiface.FnVersionCompareStrong, version.CompareStrong)
	vt.Set(coreiface.FnVersionIsCompatible, version.Compatible)

	vt.Set(coreiface.FnSysShutdown, rt.Shutdown)
	vt.Set(coreiface.FnSysPanic, rt.Panic)
	vt.Set(coreiface.FnSysLock, rt.Lock)
	vt.Set(coreiface.FnSysTryLock, rt.TryLock)
	vt.Set(coreiface.FnSysUnlock, rt.Unlock)
	vt.Set(coreiface.FnSysGetSyncHandler, rt.GetSyncHandler)
	vt.Set(coreiface.FnSysSetSyncHandler, rt.SetSyncHandler)
	vt.Set(coreiface.FnSysHasFunction, func(id coreiface.FnId) bool { return vt.HasFunction(id) })
	vt.Set(coreiface.FnSysGetFunction, func(id coreiface.FnId) (interface{}, bool) { return vt.GetFunction(id) })

	vt.Set(coreiface.FnLibraryRegisterLoader, rt.libraries.RegisterLoader)
	vt.Set(coreiface.FnLibraryUnregisterLoader, rt.libraries.UnregisterLoader)
	vt.Set(coreiface.FnLibraryGetLoaderInterface, rt.libraries.GetLoaderInterface)
	vt.Set(coreiface.FnLibraryGetLoaderHandleFromType, rt.libraries.GetLoaderFromType)
	vt.Set(coreiface.FnLibraryGetLoaderHandleFromLibrary, rt.libraries.GetLoaderFromLibrary)
	vt.Set(coreiface.FnLibraryGetNumLoaders, rt.libraries.GetNumLoaders)
	vt.Set(coreiface.FnLibraryLibraryExists, rt.libraries.LibraryExists)
	vt.Set(coreiface.FnLibraryTypeExists, rt.libraries.TypeExists)
	vt.Set(coreiface.FnLibraryGetLibraryTypes, rt.libraries.GetLibraryTypes)
	vt.Set(coreiface.FnLibraryCreateLibraryHandle, rt.libraries.CreateLibraryHandle)
	vt.Set(coreiface.FnLibraryRemoveLibraryHandle, rt.libraries.RemoveLibraryHandle)
	vt.Set(coreiface.FnLibraryLinkLibrary, rt.libraries.LinkLibrary)
	vt.Set(coreiface.FnLibraryGetInternalLibraryHandle, rt.libraries.GetInternalLibraryHandle)
	vt.Set(coreiface.FnLibraryLoad, rt.libraries.Load)
	vt.Set(coreiface.FnLibraryUnload, rt.libraries.Unload)
	vt.Set(coreiface.FnLibraryGetDataSymbol, rt.libraries.GetDataSymbol)
	vt.Set(coreiface.FnLibraryGetFunctionSymbol, rt.libraries.GetFunctionSymbol)

	vt.Set(coreiface.FnModuleRegisterLoader, rt.modules.RegisterLoader)
	vt.Set(coreiface.FnModuleUnregisterLoader, rt.modules.UnregisterLoader)
	vt.Set(coreiface.FnModuleGetLoaderInterface, rt.modules.GetLoaderInterface)
	vt.Set(coreiface.FnModuleGetLoaderHandleFromType, rt.modules.GetLoaderFromType)
	vt.Set(coreiface.FnModuleGetNumLoaders, rt.modules.GetNumLoaders)
	vt.Set(coreiface.FnModuleGetModuleTypes, rt.modules.GetModuleTypes)
	vt.Set(coreiface.FnModuleGetNumModules, rt.modules.GetNumModules)
	vt.Set(coreiface.FnModuleGetModules, rt.modules.GetModules)
	vt.Set(coreiface.FnModuleGetNumExportedInterfaces, rt.modules.GetNumExportedInterfaces)
	vt.Set(coreiface.FnModuleGetExportedInterfaces, rt.modules.GetExportedInterfaces)
	vt.Set(coreiface.FnModuleGetExportedInterfaceHandle, rt.modules.GetExportedInterfaceHandle)
	vt.Set(coreiface.FnModuleExportedInterfaceExists, rt.modules.ExportedInterfaceExists)
	vt.Set(coreiface.FnModuleAddModule, rt.modules.AddModule)
	vt.Set(coreiface.FnModuleRemoveModule, rt.modules.RemoveModule)
	vt.Set(coreiface.FnModuleLoad, rt.modules.Load)
	vt.Set(coreiface.FnModuleUnload, rt.modules.Unload)
	vt.Set(coreiface.FnModuleInitialize, rt.modules.Initialize)
	vt.Set(coreiface.FnModuleTerminate, rt.modules.Terminate)
	vt.Set(coreiface.FnModuleAddRuntimeDependency, rt.modules.AddRuntimeDependency)
	vt.Set(coreiface.FnModuleRemoveRuntimeDependency, rt.modules.RemoveRuntimeDependency)
	vt.Set(coreiface.FnModuleExportInterface, rt.modules.ExportInterface)
	vt.Set(coreiface.FnModuleFetchStatus, rt.modules.FetchStatus)
	vt.Set(coreiface.FnModuleGetModuleInfo, rt.modules.GetModuleInfo)
	vt.Set(coreiface.FnModuleGetModulePath, rt.modules.GetModulePath)
	vt.Set(coreiface.FnModuleGetLoadDependencies, rt.modules.GetLoadDependencies)
	vt.Set(coreiface.FnModuleGetRuntimeDependencies, rt.modules.GetRuntimeDependencies)
	vt.Set(coreiface.FnModuleGetExportableInterfaces, rt.modules.GetExportableInterfaces)
	vt.Set(coreiface.FnModuleGetInterface, rt.modules.GetInterface)

	return vt
}

// Interface returns the CBaseInterface ABI value a consumer bootstraps
// through: this Runtime as the opaque handle, paired with its VTable.
//
// The VTable's FnModuleGetExportedInterfaceHandle and FnModuleGetInterface
// slots hold the module registry's own methods, which are not of the
// coreiface.GetExportedInterfaceHandleFn/GetInterfaceFn types that
// coreiface.FetchInterface asserts, and no module exports
// coreiface.ReservedInterfaceName. FetchInterface therefore yields this
// value only through a get_function that supplies those two typed
// functions itself; handing it rt.VTable().GetFunction ends in
// coreiface.Panic.
func (rt *Runtime) Interface() *coreiface.CBaseInterface {
	return &coreiface.CBaseInterface{Handle: rt, VTable: rt.VTable()}
}

// FetchVersion reports the version this Runtime build implements.
func (rt *Runtime) FetchVersion() version.Version { return CoreVersion }

// Describe renders a one-line human-readable status summary, in the
// style of a daemon's startup log lines ("FUSE dir = %s", "Ready ...").
func (rt *Runtime) Describe() string {
	return fmt.Sprintf("emf-core-base runtime v%s: %d loaders, %d modules",
		CoreVersion.String(), rt.modules.GetNumLoaders(), rt.modules.GetNumModules())
}
