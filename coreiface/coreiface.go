// Package coreiface implements the function-id table and ABI boundary: a
// stable, append-only FnId enumeration, a VTable of optional function
// slots keyed by it, and the two mandatory interface-wide operations
// every implementation must expose -- has_function and get_function --
// plus the diverging Shutdown/Panic paths and the fetch_interface
// bootstrap protocol.
//
// Grounded on domain/handler.go's HandlerIface/HandlerServiceIface split:
// a named handler implementation is looked up and dispatched by
// interface method; here the lookup key is FnId instead of a path string,
// and "dispatch" is handing back an opaque function value for the host's
// own glue code to cast and call, since Go has no C ABI boundary.
package coreiface

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

// FnId is a stable, append-only numeric id for every public operation.
// Never renumber an existing constant; only append new ones.
type FnId int32

const (
	// version-group
	FnVersionNewShort FnId = iota
	FnVersionNewLong
	FnVersionNewFull
	FnVersionFromString
	FnVersionStringLengthShort
	FnVersionStringLengthLong
	FnVersionStringLengthFull
	FnVersionAsStringShort
	FnVersionAsStringLong
	FnVersionAsStringFull
	FnVersionStringIsValid
	FnVersionCompare
	FnVersionCompareWeak
	FnVersionCompareStrong
	FnVersionIsCompatible

	// sys-group
	FnSysShutdown
	FnSysPanic
	FnSysHasFunction
	FnSysGetFunction
	FnSysLock
	FnSysTryLock
	FnSysUnlock
	FnSysGetSyncHandler
	FnSysSetSyncHandler

	// library-group
	FnLibraryRegisterLoader
	FnLibraryUnregisterLoader
	FnLibraryGetLoaderInterface
	FnLibraryGetLoaderHandleFromType
	FnLibraryGetLoaderHandleFromLibrary
	FnLibraryGetNumLoaders
	FnLibraryLibraryExists
	FnLibraryTypeExists
	FnLibraryGetLibraryTypes
	FnLibraryCreateLibraryHandle
	FnLibraryRemoveLibraryHandle
	FnLibraryLinkLibrary
	FnLibraryGetInternalLibraryHandle
	FnLibraryLoad
	FnLibraryUnload
	FnLibraryGetDataSymbol
	FnLibraryGetFunctionSymbol

	// module-group
	FnModuleRegisterLoader
	FnModuleUnregisterLoader
	FnModuleGetLoaderInterface
	FnModuleGetLoaderHandleFromType
	FnModuleGetNumLoaders
	FnModuleGetModuleTypes
	FnModuleGetNumModules
	FnModuleGetModules
	FnModuleGetNumExportedInterfaces
	FnModuleGetExportedInterfaces
	FnModuleGetExportedInterfaceHandle
	FnModuleExportedInterfaceExists
	FnModuleAddModule
	FnModuleRemoveModule
	FnModuleLoad
	FnModuleUnload
	FnModuleInitialize
	FnModuleTerminate
	FnModuleAddRuntimeDependency
	FnModuleRemoveRuntimeDependency
	FnModuleExportInterface
	FnModuleFetchStatus
	FnModuleGetModuleInfo
	FnModuleGetModulePath
	FnModuleGetLoadDependencies
	FnModuleGetRuntimeDependencies
	FnModuleGetExportableInterfaces
	FnModuleGetInterface

	// extension-group (optional)
	FnExtGetUnwindInternalInterface
)

// VTable maps FnId to an opaque function value. A slot with a nil value
// is "absent" -- HasFunction reports false and GetFunction returns nil,
// ok=false rather than panicking; only direct calls to a caller-cast
// absent slot panic, and that panic lives on the caller's side of the
// cast, not in this package.
type VTable struct {
	slots map[FnId]interface{}
}

// NewVTable returns an empty VTable. Populate it with Set before handing
// it to a CBaseInterface.
func NewVTable() *VTable {
	return &VTable{slots: map[FnId]interface{}{}}
}

// Set installs fn at id. A nil fn removes the slot (marks it absent).
func (v *VTable) Set(id FnId, fn interface{}) {
	if fn == nil {
		delete(v.slots, id)
		return
	}
	v.slots[id] = fn
}

// HasFunction is one of the two mandatory interface-wide operations:
// reports whether id names a populated slot.
func (v *VTable) HasFunction(id FnId) bool {
	_, ok := v.slots[id]
	return ok
}

// GetFunction is the other mandatory operation: returns the opaque
// function value at id, or ok=false if absent. Callers cast the result to
// the typed function signature that id documents; that cast is host-side
// glue, not part of the core.
func (v *VTable) GetFunction(id FnId) (fn interface{}, ok bool) {
	fn, ok = v.slots[id]
	return
}

// CBaseInterface is the ABI surface a bootstrapped consumer resolves: an
// opaque handle to the implementation instance plus its VTable.
type CBaseInterface struct {
	Handle interface{}
	VTable *VTable
}

// Shutdown diverges: it terminates the process. It never returns --
// shutdown and panic both diverge and neither unwinds the registry.
func Shutdown() {
	logrus.Info("emf-core-base: shutdown requested")
	os.Exit(0)
}

// Panic logs cause (if any) and terminates the process, diverging like
// Shutdown. Reserved for unrecoverable bootstrap failure (missing
// required fn-ids, a corrupted vtable) or explicit user request --
// ordinary caller errors are always returned, never panicked.
func Panic(cause error) {
	if cause != nil {
		logrus.WithError(cause).Error("emf-core-base: fatal error")
	} else {
		logrus.Error("emf-core-base: panic requested with no cause")
	}
	os.Exit(1)
}

// ReservedInterfaceName is the exported-interface name fetch_interface
// resolves.
const ReservedInterfaceName = "emf::core_base"

// HasFunctionFn and GetFunctionFn are the curried, base-module-bound
// shapes of has_function/get_function that a native module's load
// callback receives directly, mirroring sys::api::{HasFunctionFn,
// GetFunctionFn} -- there base_module is an explicit first parameter
// alongside the FnId; here it is already bound into the closure, since
// Go has no raw base-module pointer to carry across the call.
type (
	HasFunctionFn func(id FnId) bool
	GetFunctionFn func(id FnId) (interface{}, bool)
)

// GetExportedInterfaceHandleFn and GetInterfaceFn are the typed shapes
// fetch_interface casts the two bootstrap function pointers to, after
// locating them via get_function.
type (
	GetExportedInterfaceHandleFn func(name string, version string) (interface{}, error)
	GetInterfaceFn               func(handle interface{}, name string, version string) (*CBaseInterface, error)
)

// FetchInterface implements fetch_interface(base_module, get_function):
// it locates ModuleGetExportedInterfaceHandle and ModuleGetInterface
// through getFunction, resolves ReservedInterfaceName at version, and
// returns the resulting CBaseInterface. A missing or mistyped bootstrap
// slot is the unrecoverable bootstrap failure case Panic is reserved for,
// since no error return exists yet to report through.
func FetchInterface(getFunction func(FnId) (interface{}, bool), version string) *CBaseInterface {
	rawHandleFn, ok := getFunction(FnModuleGetExportedInterfaceHandle)
	if !ok {
		Panic(fmt.Errorf("bootstrap: %s absent from vtable", "ModuleGetExportedInterfaceHandle"))
		return nil
	}
	handleFn, ok := rawHandleFn.(GetExportedInterfaceHandleFn)
	if !ok {
		Panic(fmt.Errorf("bootstrap: ModuleGetExportedInterfaceHandle has the wrong type"))
		return nil
	}

	rawGetIfaceFn, ok := getFunction(FnModuleGetInterface)
	if !ok {
		Panic(fmt.Errorf("bootstrap: %s absent from vtable", "ModuleGetInterface"))
		return nil
	}
	getIfaceFn, ok := rawGetIfaceFn.(GetInterfaceFn)
	if !ok {
		Panic(fmt.Errorf("bootstrap: ModuleGetInterface has the wrong type"))
		return nil
	}

	handle, err := handleFn(ReservedInterfaceName, version)
	if err != nil {
		Panic(fmt.Errorf("bootstrap: resolving %q: %w", ReservedInterfaceName, err))
		return nil
	}
	iface, err := getIfaceFn(handle, ReservedInterfaceName, version)
	if err != nil {
		Panic(fmt.Errorf("bootstrap: fetching %q: %w", ReservedInterfaceName, err))
		return nil
	}
	return iface
}
