package module

import "github.com/fimoengine/emf-core-base-go/rterror"

// Error kinds for the module subsystem.
const (
	KindPathInvalid             rterror.Kind = "module.PathInvalid"
	KindModuleStateInvalid      rterror.Kind = "module.ModuleStateInvalid"
	KindModuleHandleInvalid     rterror.Kind = "module.ModuleHandleInvalid"
	KindLoaderHandleInvalid     rterror.Kind = "module.LoaderHandleInvalid"
	KindInternalHandleInvalid   rterror.Kind = "module.InternalHandleInvalid"
	KindModuleTypeInvalid       rterror.Kind = "module.ModuleTypeInvalid"
	KindModuleTypeNotFound      rterror.Kind = "module.ModuleTypeNotFound"
	KindDuplicateModuleType     rterror.Kind = "module.DuplicateModuleType"
	KindInterfaceNotFound       rterror.Kind = "module.InterfaceNotFound"
	KindDuplicateInterface      rterror.Kind = "module.DuplicateInterface"
	KindModuleDependencyNotFound rterror.Kind = "module.ModuleDependencyNotFound"
	KindBufferOverflow          rterror.Kind = "module.BufferOverflow"
)

var (
	ErrPathInvalid             = rterror.New(KindPathInvalid, "module path is invalid")
	ErrModuleStateInvalid      = rterror.New(KindModuleStateInvalid, "module is not in the required state for this operation")
	ErrModuleHandleInvalid     = rterror.New(KindModuleHandleInvalid, "module handle is invalid")
	ErrLoaderHandleInvalid     = rterror.New(KindLoaderHandleInvalid, "module loader handle is invalid")
	ErrInternalHandleInvalid   = rterror.New(KindInternalHandleInvalid, "internal module handle is invalid")
	ErrModuleTypeInvalid       = rterror.New(KindModuleTypeInvalid, "module type string exceeds 64 bytes")
	ErrModuleTypeNotFound      = rterror.New(KindModuleTypeNotFound, "no loader registered for module type")
	ErrDuplicateModuleType     = rterror.New(KindDuplicateModuleType, "a loader is already registered for this module type")
	ErrInterfaceNotFound       = rterror.New(KindInterfaceNotFound, "required interface is not exported")
	ErrDuplicateInterface      = rterror.New(KindDuplicateInterface, "interface descriptor is already exported")
	ErrModuleDependencyNotFound = rterror.New(KindModuleDependencyNotFound, "dependency could not be resolved")
	ErrBufferOverflow          = rterror.New(KindBufferOverflow, "buffer too small")
)
