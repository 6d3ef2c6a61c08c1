package library

import "github.com/fimoengine/emf-core-base-go/rterror"

// Error kinds for the library subsystem.
const (
	KindPathNotFound         rterror.Kind = "library.PathNotFound"
	KindLibraryHandleInvalid rterror.Kind = "library.LibraryHandleInvalid"
	KindLoaderHandleInvalid  rterror.Kind = "library.LoaderHandleInvalid"
	KindInternalHandleInvalid rterror.Kind = "library.InternalHandleInvalid"
	KindLibraryTypeInvalid   rterror.Kind = "library.LibraryTypeInvalid"
	KindLibraryTypeNotFound  rterror.Kind = "library.LibraryTypeNotFound"
	KindDuplicatedLibraryType rterror.Kind = "library.DuplicatedLibraryType"
	KindSymbolNotFound       rterror.Kind = "library.SymbolNotFound"
	KindBufferOverflow       rterror.Kind = "library.BufferOverflow"
)

var (
	ErrPathNotFound          = rterror.New(KindPathNotFound, "path not found")
	ErrLibraryHandleInvalid  = rterror.New(KindLibraryHandleInvalid, "library handle is invalid")
	ErrLoaderHandleInvalid   = rterror.New(KindLoaderHandleInvalid, "loader handle is invalid")
	ErrInternalHandleInvalid = rterror.New(KindInternalHandleInvalid, "internal handle is invalid")
	ErrLibraryTypeInvalid    = rterror.New(KindLibraryTypeInvalid, "library type string exceeds 64 bytes")
	ErrLibraryTypeNotFound   = rterror.New(KindLibraryTypeNotFound, "no loader registered for library type")
	ErrDuplicatedLibraryType = rterror.New(KindDuplicatedLibraryType, "a loader is already registered for this library type")
	ErrSymbolNotFound        = rterror.New(KindSymbolNotFound, "symbol not found")
	ErrBufferOverflow        = rterror.New(KindBufferOverflow, "buffer too small")
)
