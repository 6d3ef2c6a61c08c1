package library

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLoader is an in-memory loader vtable used to exercise the registry
// without touching a real shared object, mirroring how handler_test.go
// exercises handlerService against fake domain.HandlerIface values
// instead of real FUSE nodes.
type fakeLoader struct {
	files map[string]map[string]interface{} // path -> symbol name -> value
	next  InternalHandle
	byInt map[InternalHandle]string
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{
		files: map[string]map[string]interface{}{},
		byInt: map[InternalHandle]string{},
	}
}

func (f *fakeLoader) vtable() LoaderVTable {
	return LoaderVTable{
		Load: func(path string) (InternalHandle, error) {
			syms, ok := f.files[path]
			if !ok || syms == nil {
				return 0, errors.New("no such file")
			}
			f.next++
			f.byInt[f.next] = path
			return f.next, nil
		},
		Unload: func(internal InternalHandle) error {
			if _, ok := f.byInt[internal]; !ok {
				return errors.New("not loaded")
			}
			delete(f.byInt, internal)
			return nil
		},
		GetDataSymbol: func(internal InternalHandle, name string) (interface{}, error) {
			return f.lookup(internal, name)
		},
		GetFunctionSymbol: func(internal InternalHandle, name string) (interface{}, error) {
			return f.lookup(internal, name)
		},
	}
}

func (f *fakeLoader) lookup(internal InternalHandle, name string) (interface{}, error) {
	path, ok := f.byInt[internal]
	if !ok {
		return nil, errors.New("not loaded")
	}
	v, ok := f.files[path][name]
	if !ok {
		return nil, errors.New("no such symbol")
	}
	return v, nil
}

// S3 - Load / unload a library.
func TestLoadUnloadLibrary(t *testing.T) {
	fl := newFakeLoader()
	fl.files["/tmp/libadd.so"] = map[string]interface{}{
		"add": func(a, b int) int { return a + b },
	}
	r := NewRegistry(fl.vtable())

	h, err := r.Load(DefaultNativeLoaderHandle, "/tmp/libadd.so")
	require.NoError(t, err)
	assert.True(t, r.LibraryExists(h))

	sym, err := r.GetFunctionSymbol(h, "add")
	require.NoError(t, err)
	add := sym.(func(int, int) int)
	assert.Equal(t, 7, add(3, 4))

	require.NoError(t, r.Unload(h))
	assert.False(t, r.LibraryExists(h))
}

func TestLoadMissingPathFails(t *testing.T) {
	fl := newFakeLoader()
	r := NewRegistry(fl.vtable())

	_, err := r.Load(DefaultNativeLoaderHandle, "/does/not/exist.so")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPathNotFound))
}

func TestRegisterLoaderRejectsDuplicateType(t *testing.T) {
	fl := newFakeLoader()
	r := NewRegistry(fl.vtable())

	_, err := r.RegisterLoader(fl.vtable(), "custom::type")
	require.NoError(t, err)

	_, err = r.RegisterLoader(fl.vtable(), "custom::type")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicatedLibraryType))
}

func TestRegisterLoaderRejectsOversizedType(t *testing.T) {
	fl := newFakeLoader()
	r := NewRegistry(fl.vtable())

	long := make([]byte, 65)
	_, err := r.RegisterLoader(fl.vtable(), string(long))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLibraryTypeInvalid))
}

// Invariant 8: unregistering a loader invalidates every library linked to it.
func TestUnregisterLoaderInvalidatesLinkedLibraries(t *testing.T) {
	fl := newFakeLoader()
	fl.files["/tmp/a.so"] = map[string]interface{}{"x": 1}
	r := NewRegistry(fl.vtable())

	custom, err := r.RegisterLoader(fl.vtable(), "custom::type")
	require.NoError(t, err)

	h, err := r.Load(custom, "/tmp/a.so")
	require.NoError(t, err)
	require.True(t, r.LibraryExists(h))

	require.NoError(t, r.UnregisterLoader(custom))
	assert.False(t, r.LibraryExists(h))

	_, err = r.GetLoaderInterface(custom)
	assert.True(t, errors.Is(err, ErrLoaderHandleInvalid))
}

func TestCreateLinkRemoveLibraryHandle(t *testing.T) {
	fl := newFakeLoader()
	fl.files["/tmp/a.so"] = map[string]interface{}{"x": 1}
	r := NewRegistry(fl.vtable())

	h := r.CreateLibraryHandle()
	assert.True(t, r.LibraryExists(h))

	_, err := r.GetInternalLibraryHandle(h)
	assert.True(t, errors.Is(err, ErrInternalHandleInvalid))

	internal, err := fl.vtable().Load("/tmp/a.so")
	require.NoError(t, err)
	require.NoError(t, r.LinkLibrary(h, DefaultNativeLoaderHandle, internal))

	got, err := r.GetInternalLibraryHandle(h)
	require.NoError(t, err)
	assert.Equal(t, internal, got)

	require.NoError(t, r.RemoveLibraryHandle(h))
	assert.False(t, r.LibraryExists(h))
}

func TestGetLibraryTypesBufferOverflow(t *testing.T) {
	fl := newFakeLoader()
	r := NewRegistry(fl.vtable())

	_, err := r.GetLibraryTypes(make([]string, 0))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBufferOverflow))

	buf := make([]string, 4)
	n, err := r.GetLibraryTypes(buf)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, NativeLibraryType, buf[0])
}

func TestGetLoaderFromTypeCacheSurvivesReRegistration(t *testing.T) {
	fl := newFakeLoader()
	r := NewRegistry(fl.vtable())

	h, err := r.GetLoaderFromType(NativeLibraryType)
	require.NoError(t, err)
	assert.Equal(t, DefaultNativeLoaderHandle, h)

	// Prime the cache, then register a second loader of a different type
	// and confirm the first lookup is unaffected.
	_, err = r.GetLoaderFromType(NativeLibraryType)
	require.NoError(t, err)

	custom, err := r.RegisterLoader(fl.vtable(), "custom::type")
	require.NoError(t, err)

	got, err := r.GetLoaderFromType("custom::type")
	require.NoError(t, err)
	assert.Equal(t, custom, got)

	h, err = r.GetLoaderFromType(NativeLibraryType)
	require.NoError(t, err)
	assert.Equal(t, DefaultNativeLoaderHandle, h)
}
