package runtime

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fimoengine/emf-core-base-go/coreiface"
	"github.com/fimoengine/emf-core-base-go/library"
	"github.com/fimoengine/emf-core-base-go/module"
)

func noopLibraryLoader() library.LoaderVTable {
	return library.LoaderVTable{
		Load:              func(path string) (library.InternalHandle, error) { return 0, errors.New("unsupported") },
		Unload:            func(library.InternalHandle) error { return errors.New("unsupported") },
		GetDataSymbol:     func(library.InternalHandle, string) (interface{}, error) { return nil, errors.New("unsupported") },
		GetFunctionSymbol: func(library.InternalHandle, string) (interface{}, error) { return nil, errors.New("unsupported") },
	}
}

func noopModuleLoader() module.LoaderVTable {
	return module.LoaderVTable{
		Load: func(module.ModuleHandle, string, coreiface.HasFunctionFn, coreiface.GetFunctionFn) (module.InternalHandle, error) {
			return 0, errors.New("unsupported")
		},
		Unload:     func(module.InternalHandle) error { return errors.New("unsupported") },
		Initialize: func(module.InternalHandle) error { return errors.New("unsupported") },
		Terminate:  func(module.InternalHandle) error { return errors.New("unsupported") },
		GetInterface: func(module.InternalHandle, module.InterfaceDescriptor) (interface{}, error) {
			return nil, errors.New("unsupported")
		},
		GetModuleInfo:          func(module.InternalHandle) (module.ModuleInfo, error) { return module.ModuleInfo{}, errors.New("unsupported") },
		GetLoadDependencies:    func(string) ([]module.InterfaceDescriptor, error) { return nil, nil },
		GetRuntimeDependencies: func(module.InternalHandle) ([]module.InterfaceDescriptor, error) { return nil, nil },
		GetExportableInterfaces: func(module.InternalHandle) ([]module.InterfaceDescriptor, error) {
			return nil, errors.New("unsupported")
		},
	}
}

func TestNewRuntimeWiresSubsystemsAndReportsVersion(t *testing.T) {
	rt := New(Config{
		NativeLibraryLoader: noopLibraryLoader(),
		NativeModuleLoader:  noopModuleLoader(),
	})

	assert.Equal(t, CoreVersion, rt.FetchVersion())
	assert.Equal(t, 1, rt.Libraries().GetNumLoaders())
	assert.Equal(t, 1, rt.Modules().GetNumLoaders())
}

func TestVTableExposesRegisteredFunctionsAndHidesUnset(t *testing.T) {
	rt := New(Config{
		NativeLibraryLoader: noopLibraryLoader(),
		NativeModuleLoader:  noopModuleLoader(),
	})
	vt := rt.VTable()

	assert.True(t, vt.HasFunction(coreiface.FnModuleGetNumModules))
	assert.False(t, vt.HasFunction(coreiface.FnExtGetUnwindInternalInterface))

	fn, ok := vt.GetFunction(coreiface.FnModuleGetNumModules)
	require.True(t, ok)
	getNumModules, ok := fn.(func() int)
	require.True(t, ok)
	assert.Equal(t, 0, getNumModules())
}

func TestLockUnlockRoundTripsThroughDefaultHandler(t *testing.T) {
	rt := New(Config{
		NativeLibraryLoader: noopLibraryLoader(),
		NativeModuleLoader:  noopModuleLoader(),
	})

	rt.Lock()
	unlocked := make(chan struct{})
	go func() {
		rt.Unlock()
		close(unlocked)
	}()
	<-unlocked

	assert.True(t, rt.TryLock())
	rt.Unlock()
}

func TestInterfaceResolvesReservedCoreInterfaceThroughFetchInterface(t *testing.T) {
	rt := New(Config{
		NativeLibraryLoader: noopLibraryLoader(),
		NativeModuleLoader:  noopModuleLoader(),
	})

	var getExportedInterfaceHandle coreiface.GetExportedInterfaceHandleFn = func(name, ver string) (interface{}, error) {
		assert.Equal(t, coreiface.ReservedInterfaceName, name)
		return rt, nil
	}
	var getInterface coreiface.GetInterfaceFn = func(handle interface{}, name, ver string) (*coreiface.CBaseInterface, error) {
		return rt.Interface(), nil
	}

	lookup := func(id coreiface.FnId) (interface{}, bool) {
		switch id {
		case coreiface.FnModuleGetExportedInterfaceHandle:
			return getExportedInterfaceHandle, true
		case coreiface.FnModuleGetInterface:
			return getInterface, true
		default:
			return nil, false
		}
	}

	iface := coreiface.FetchInterface(lookup, CoreVersion.String())
	require.NotNil(t, iface)
	assert.Same(t, rt, iface.Handle)
}
