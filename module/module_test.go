package module

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fimoengine/emf-core-base-go/coreiface"
	"github.com/fimoengine/emf-core-base-go/version"
)

// fakeModuleLoader is an in-memory loader vtable, mirroring
// library_test.go's fakeLoader but for the module subsystem's native ABI
// surface: status and exports are deliberately owned by the registry
// under test, not by this fake, since the real native module ABI doesn't
// expose hooks for them either (see vtable.go). Runtime dependencies can
// come from either side: the registry's own annotations, or a spec's
// self-reported runtimeDeps surfaced through GetRuntimeDependencies.
type fakeModuleLoader struct {
	modules   map[string]*fakeModuleSpec // path -> spec
	next      InternalHandle
	instances map[InternalHandle]*fakeModuleInstance

	// Recorded from the most recent Load call, so tests can assert the
	// handshake a native module's load callback relies on.
	lastLoadHandle  ModuleHandle
	lastHasFunction coreiface.HasFunctionFn
	lastGetFunction coreiface.GetFunctionFn
}

type fakeModuleSpec struct {
	info        ModuleInfo
	loadDeps    []InterfaceDescriptor
	runtimeDeps []InterfaceDescriptor // self-reported via GetRuntimeDependencies
	exportable  []InterfaceDescriptor
}

type fakeModuleInstance struct {
	spec *fakeModuleSpec
}

func newFakeModuleLoader() *fakeModuleLoader {
	return &fakeModuleLoader{
		modules:   map[string]*fakeModuleSpec{},
		instances: map[InternalHandle]*fakeModuleInstance{},
	}
}

func (f *fakeModuleLoader) vtable() LoaderVTable {
	return LoaderVTable{
		Load: func(h ModuleHandle, path string, hasFunction coreiface.HasFunctionFn, getFunction coreiface.GetFunctionFn) (InternalHandle, error) {
			spec, ok := f.modules[path]
			if !ok {
				return 0, errors.New("no such module")
			}
			f.lastLoadHandle = h
			f.lastHasFunction = hasFunction
			f.lastGetFunction = getFunction
			f.next++
			f.instances[f.next] = &fakeModuleInstance{spec: spec}
			return f.next, nil
		},
		Unload: func(internal InternalHandle) error {
			if _, ok := f.instances[internal]; !ok {
				return errors.New("not loaded")
			}
			delete(f.instances, internal)
			return nil
		},
		Initialize: func(internal InternalHandle) error {
			if _, ok := f.instances[internal]; !ok {
				return errors.New("not loaded")
			}
			return nil
		},
		Terminate: func(internal InternalHandle) error {
			if _, ok := f.instances[internal]; !ok {
				return errors.New("not loaded")
			}
			return nil
		},
		GetInterface: func(internal InternalHandle, desc InterfaceDescriptor) (interface{}, error) {
			inst, ok := f.instances[internal]
			if !ok {
				return nil, errors.New("not loaded")
			}
			for _, e := range inst.spec.exportable {
				if e.Equal(desc) {
					return "interface:" + desc.Name, nil
				}
			}
			return nil, errors.New("not exportable")
		},
		GetModuleInfo: func(internal InternalHandle) (ModuleInfo, error) {
			inst, ok := f.instances[internal]
			if !ok {
				return ModuleInfo{}, errors.New("not loaded")
			}
			return inst.spec.info, nil
		},
		GetLoadDependencies: func(path string) ([]InterfaceDescriptor, error) {
			spec, ok := f.modules[path]
			if !ok {
				return nil, errors.New("no such module")
			}
			return spec.loadDeps, nil
		},
		GetRuntimeDependencies: func(internal InternalHandle) ([]InterfaceDescriptor, error) {
			inst, ok := f.instances[internal]
			if !ok {
				return nil, errors.New("not loaded")
			}
			return inst.spec.runtimeDeps, nil
		},
		GetExportableInterfaces: func(internal InternalHandle) ([]InterfaceDescriptor, error) {
			inst, ok := f.instances[internal]
			if !ok {
				return nil, errors.New("not loaded")
			}
			return inst.spec.exportable, nil
		},
	}
}

func descFoo() InterfaceDescriptor {
	return InterfaceDescriptor{Name: "foo", Version: version.NewShort(1, 0, 0)}
}

// S4 - Module lifecycle.
func TestModuleLifecycle(t *testing.T) {
	fl := newFakeModuleLoader()
	fl.modules["/mod/a"] = &fakeModuleSpec{
		info:       ModuleInfo{Name: "a"},
		exportable: []InterfaceDescriptor{descFoo()},
	}
	r := NewRegistry(fl.vtable())

	m, err := r.AddModule(DefaultNativeModuleLoaderHandle, "/mod/a")
	require.NoError(t, err)

	status, err := r.FetchStatus(m)
	require.NoError(t, err)
	assert.Equal(t, Unloaded, status)

	require.NoError(t, r.Load(m))
	status, err = r.FetchStatus(m)
	require.NoError(t, err)
	assert.Equal(t, Terminated, status)

	require.NoError(t, r.Initialize(m))
	status, err = r.FetchStatus(m)
	require.NoError(t, err)
	assert.Equal(t, Ready, status)

	d := descFoo()
	require.NoError(t, r.ExportInterface(m, d))

	err = r.ExportInterface(m, d)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateInterface))

	require.NoError(t, r.Terminate(m))
	status, err = r.FetchStatus(m)
	require.NoError(t, err)
	assert.Equal(t, Terminated, status)
	assert.False(t, r.ExportedInterfaceExists(d))

	require.NoError(t, r.Unload(m))
	status, err = r.FetchStatus(m)
	require.NoError(t, err)
	assert.Equal(t, Unloaded, status)

	require.NoError(t, r.RemoveModule(m))
}

// S5 - Missing dependency on load.
func TestLoadFailsOnMissingLoadDependency(t *testing.T) {
	fl := newFakeModuleLoader()
	fl.modules["/mod/needs-foo"] = &fakeModuleSpec{
		info:     ModuleInfo{Name: "needs-foo"},
		loadDeps: []InterfaceDescriptor{{Name: "foo", Version: version.NewShort(1, 0, 0)}},
	}
	r := NewRegistry(fl.vtable())

	m, err := r.AddModule(DefaultNativeModuleLoaderHandle, "/mod/needs-foo")
	require.NoError(t, err)

	err = r.Load(m)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInterfaceNotFound))

	status, err := r.FetchStatus(m)
	require.NoError(t, err)
	assert.Equal(t, Unloaded, status)
}

// Invariant 9: the exported-interface table has no duplicates under
// descriptor equality, even across two distinct modules.
func TestExportedInterfaceTableRejectsCrossModuleDuplicate(t *testing.T) {
	fl := newFakeModuleLoader()
	fl.modules["/mod/a"] = &fakeModuleSpec{info: ModuleInfo{Name: "a"}, exportable: []InterfaceDescriptor{descFoo()}}
	fl.modules["/mod/b"] = &fakeModuleSpec{info: ModuleInfo{Name: "b"}, exportable: []InterfaceDescriptor{descFoo()}}
	r := NewRegistry(fl.vtable())

	a := mustReadyModule(t, r, fl, "/mod/a")
	b := mustReadyModule(t, r, fl, "/mod/b")

	require.NoError(t, r.ExportInterface(a, descFoo()))
	err := r.ExportInterface(b, descFoo())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateInterface))
}

// Invariants 10, 11, 12: terminate cascades through runtime-dependent
// modules, clears the exporter's own entries, and initialize only ever
// succeeds when every runtime dependency is satisfied at that instant.
func TestTerminateCascadesThroughRuntimeDependents(t *testing.T) {
	fl := newFakeModuleLoader()
	fl.modules["/mod/provider"] = &fakeModuleSpec{
		info:       ModuleInfo{Name: "provider"},
		exportable: []InterfaceDescriptor{descFoo()},
	}
	fl.modules["/mod/consumer"] = &fakeModuleSpec{
		info: ModuleInfo{Name: "consumer"},
	}
	r := NewRegistry(fl.vtable())

	provider := mustReadyModule(t, r, fl, "/mod/provider")
	require.NoError(t, r.ExportInterface(provider, descFoo()))

	consumer, err := r.AddModule(DefaultNativeModuleLoaderHandle, "/mod/consumer")
	require.NoError(t, err)
	require.NoError(t, r.Load(consumer))
	require.NoError(t, r.AddRuntimeDependency(consumer, descFoo()))

	// Invariant 12: initialize only succeeds because the dependency is
	// satisfied right now.
	require.NoError(t, r.Initialize(consumer))
	status, err := r.FetchStatus(consumer)
	require.NoError(t, err)
	assert.Equal(t, Ready, status)

	require.NoError(t, r.Terminate(provider))

	// Invariant 10: no exported interface remains whose module is provider.
	assert.False(t, r.ExportedInterfaceExists(descFoo()))

	// Invariant 11: consumer, which depended on provider's export, is no
	// longer Ready.
	status, err = r.FetchStatus(consumer)
	require.NoError(t, err)
	assert.NotEqual(t, Ready, status)
}

// A module that lists an exported interface solely as a load dependency
// (no runtime dependency at all) reaches Ready legitimately -- load only
// checks load dependencies, initialize only checks runtime dependencies,
// and this module has none of the latter. Terminating the provider must
// still find it through loadDependenciesOf/GetLoadDependencies and both
// terminate and unload it, since its load-time precondition no longer
// holds once the provider is gone.
func TestTerminateCascadesThroughLoadDependencyOnlyConsumer(t *testing.T) {
	fl := newFakeModuleLoader()
	fl.modules["/mod/provider"] = &fakeModuleSpec{
		info:       ModuleInfo{Name: "provider"},
		exportable: []InterfaceDescriptor{descFoo()},
	}
	fl.modules["/mod/consumer"] = &fakeModuleSpec{
		info:     ModuleInfo{Name: "consumer"},
		loadDeps: []InterfaceDescriptor{descFoo()},
	}
	r := NewRegistry(fl.vtable())

	provider := mustReadyModule(t, r, fl, "/mod/provider")
	require.NoError(t, r.ExportInterface(provider, descFoo()))

	consumer := mustReadyModule(t, r, fl, "/mod/consumer")
	status, err := r.FetchStatus(consumer)
	require.NoError(t, err)
	require.Equal(t, Ready, status)

	require.NoError(t, r.Terminate(provider))

	// The consumer held no runtime dependency at all, only a load
	// dependency -- it must still have been pulled into the cascade.
	status, err = r.FetchStatus(consumer)
	require.NoError(t, err)
	assert.Equal(t, Unloaded, status)
}

// Load receives the registry's own ModuleHandle plus working
// has_function/get_function accessors bound to the owning runtime's
// function table, so a native module's load callback can look up other
// core functions directly without taking the already-held lock.
func TestLoadPassesModuleHandleAndCoreAccessors(t *testing.T) {
	fl := newFakeModuleLoader()
	fl.modules["/mod/a"] = &fakeModuleSpec{info: ModuleInfo{Name: "a"}}
	r := NewRegistry(fl.vtable())
	r.SetCoreAccessors(
		func(coreiface.FnId) bool { return true },
		func(id coreiface.FnId) (interface{}, bool) { return int(id), true },
	)

	m, err := r.AddModule(DefaultNativeModuleLoaderHandle, "/mod/a")
	require.NoError(t, err)
	require.NoError(t, r.Load(m))

	assert.Equal(t, m, fl.lastLoadHandle)
	require.NotNil(t, fl.lastHasFunction)
	require.NotNil(t, fl.lastGetFunction)
	assert.True(t, fl.lastHasFunction(coreiface.FnModuleGetNumModules))
	val, ok := fl.lastGetFunction(coreiface.FnModuleGetNumModules)
	require.True(t, ok)
	assert.Equal(t, int(coreiface.FnModuleGetNumModules), val)
}

// A native module that self-reports runtime dependencies through
// GetRuntimeDependencies has them checked at Initialize exactly like an
// annotated one, and is itself found as a dependent by a later cascade.
func TestInitializeChecksNativelyReportedRuntimeDependencies(t *testing.T) {
	fl := newFakeModuleLoader()
	fl.modules["/mod/provider"] = &fakeModuleSpec{
		info:       ModuleInfo{Name: "provider"},
		exportable: []InterfaceDescriptor{descFoo()},
	}
	fl.modules["/mod/consumer"] = &fakeModuleSpec{
		info:        ModuleInfo{Name: "consumer"},
		runtimeDeps: []InterfaceDescriptor{descFoo()},
	}
	r := NewRegistry(fl.vtable())

	consumer, err := r.AddModule(DefaultNativeModuleLoaderHandle, "/mod/consumer")
	require.NoError(t, err)
	require.NoError(t, r.Load(consumer))

	// Not yet exported: initialize must fail on the natively-reported
	// dependency even though nothing was annotated through
	// AddRuntimeDependency.
	err = r.Initialize(consumer)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInterfaceNotFound))

	provider := mustReadyModule(t, r, fl, "/mod/provider")
	require.NoError(t, r.ExportInterface(provider, descFoo()))

	require.NoError(t, r.Initialize(consumer))

	require.NoError(t, r.Terminate(provider))
	status, err := r.FetchStatus(consumer)
	require.NoError(t, err)
	assert.NotEqual(t, Ready, status)
}

func mustReadyModule(t *testing.T, r *Registry, fl *fakeModuleLoader, path string) ModuleHandle {
	t.Helper()
	m, err := r.AddModule(DefaultNativeModuleLoaderHandle, path)
	require.NoError(t, err)
	require.NoError(t, r.Load(m))
	require.NoError(t, r.Initialize(m))
	return m
}
