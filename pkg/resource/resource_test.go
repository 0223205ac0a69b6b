package resource

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mash-protocol/m2m-client/pkg/session"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry(nil)
	require.NoError(t, r.Add(Definition{
		Path:       MustParsePath("/Test/0/D"),
		Type:       "ResourceTest",
		Kind:       KindInteger,
		Dynamic:    true,
		Operations: OpGetPutPostDelAllowed,
		Value:      []byte("0"),
		BlockWise:  true,
		Execute:    func(Path, []byte) error { return nil },
	}))
	require.NoError(t, r.Add(Definition{
		Path:       MustParsePath("/Test/0/S"),
		Type:       "ResourceTest",
		Kind:       KindString,
		Operations: OpGetAllowed,
		Value:      []byte("Static value"),
	}))
	return r
}

func TestParsePath(t *testing.T) {
	tests := []struct {
		in      string
		want    Path
		wantErr bool
	}{
		{"/Test/0/D", Path{"Test", 0, "D"}, false},
		{"3/0/17", Path{"3", 0, "17"}, false},
		{"/Test/0", Path{}, true},
		{"/Test/x/D", Path{}, true},
		{"/Test/70000/D", Path{}, true},
		{"//0/D", Path{}, true},
		{"", Path{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePath(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPath)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, "/Test/0/D", MustParsePath("Test/0/D").String())
	assert.Equal(t, "Test/0", MustParsePath("/Test/0/D").InstancePath())
}

func TestRegistryValues(t *testing.T) {
	r := newTestRegistry(t)

	v, err := r.GetValue("/Test/0/S")
	require.NoError(t, err)
	assert.Equal(t, "Static value", string(v))

	require.NoError(t, r.SetValue("/Test/0/D", []byte("42")))
	v, err = r.GetValue("/Test/0/D")
	require.NoError(t, err)
	assert.Equal(t, "42", string(v))

	// Returned slices are copies.
	v[0] = '9'
	v, _ = r.GetValue("/Test/0/D")
	assert.Equal(t, "42", string(v))

	assert.ErrorIs(t, r.SetValue("/Test/0/S", []byte("x")), ErrStatic)
	assert.ErrorIs(t, r.SetValue("/Test/0/D", []byte("abc")), ErrInvalidValue)
	assert.ErrorIs(t, r.SetValue("/Test/0/X", []byte("1")), ErrNotFound)
	assert.ErrorIs(t, r.SetValue("bad", []byte("1")), ErrInvalidPath)

	_, err = r.GetValue("/Nope/0/D")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistryAddDuplicate(t *testing.T) {
	r := newTestRegistry(t)
	err := r.Add(Definition{Path: MustParsePath("/Test/0/D")})
	assert.ErrorIs(t, err, ErrExists)

	err = r.Add(Definition{Path: MustParsePath("/Test/0/N"), Kind: KindInteger, Value: []byte("nan")})
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestRegistryServerOperations(t *testing.T) {
	r := newTestRegistry(t)
	d := MustParsePath("/Test/0/D")
	s := MustParsePath("/Test/0/S")

	require.NoError(t, r.Write(d, []byte("7")))
	v, err := r.Read(d)
	require.NoError(t, err)
	assert.Equal(t, "7", string(v))

	assert.ErrorIs(t, r.Write(s, []byte("x")), ErrStatic)
	assert.ErrorIs(t, r.Run(s, nil), ErrNotAllowed)
	require.NoError(t, r.Run(d, []byte("args")))

	require.NoError(t, r.Add(Definition{
		Path:       MustParsePath("/Test/0/W"),
		Dynamic:    true,
		Operations: OpPut,
	}))
	_, err = r.Read(MustParsePath("/Test/0/W"))
	assert.ErrorIs(t, err, ErrNotAllowed)

	require.NoError(t, r.Add(Definition{
		Path:       MustParsePath("/Test/0/R"),
		Dynamic:    true,
		Operations: OpGetAllowed | OpPost,
	}))
	assert.ErrorIs(t, r.Write(MustParsePath("/Test/0/R"), []byte("1")), ErrNotAllowed)
	assert.ErrorIs(t, r.Run(MustParsePath("/Test/0/R"), nil), ErrNotExecutable)
}

func TestExecutePassesArgs(t *testing.T) {
	r := NewRegistry(nil)
	var gotPath Path
	var gotArgs []byte
	require.NoError(t, r.Add(Definition{
		Path:       MustParsePath("/Test/0/D"),
		Dynamic:    true,
		Operations: OpPost,
		Execute: func(p Path, args []byte) error {
			gotPath, gotArgs = p, args
			return errors.New("refused")
		},
	}))

	err := r.Execute("/Test/0/D", []byte("payload"))
	assert.EqualError(t, err, "refused")
	assert.Equal(t, "/Test/0/D", gotPath.String())
	assert.Equal(t, "payload", string(gotArgs))
}

func TestChangeHooks(t *testing.T) {
	r := newTestRegistry(t)

	var (
		mu   sync.Mutex
		seen []Origin
	)
	r.OnValueChanged(func(p Path, o Origin) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, "/Test/0/D", p.String())
		seen = append(seen, o)
	})

	require.NoError(t, r.SetValue("/Test/0/D", []byte("1")))
	require.NoError(t, r.Write(MustParsePath("/Test/0/D"), []byte("2")))
	_ = r.SetValue("/Test/0/S", []byte("nope"))

	assert.Equal(t, []Origin{OriginLocal, OriginServer}, seen)
}

func TestInstancesAndPaths(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, AddDevice(r, session.DeviceInfo{
		Manufacturer: "ARM",
		DeviceType:   "test",
		ModelNumber:  "2015",
		SerialNumber: "12345",
	}))

	assert.Equal(t, []string{"3/0", "Test/0"}, r.Instances())

	paths := r.Paths()
	require.Len(t, paths, 6)
	assert.Equal(t, "/3/0/0", paths[0].String())
	assert.Equal(t, "/Test/0/S", paths[5].String())

	v, err := r.Read(DevicePath(DeviceManufacturer))
	require.NoError(t, err)
	assert.Equal(t, "ARM", string(v))
	assert.ErrorIs(t, r.Write(DevicePath(DeviceSerialNumber), []byte("x")), ErrStatic)

	def, ok := r.Definition(DevicePath(DeviceType))
	require.True(t, ok)
	assert.Equal(t, KindString, def.Kind)
}

func TestOperationsString(t *testing.T) {
	assert.Equal(t, "GPXD", OpGetPutPostDelAllowed.String())
	assert.Equal(t, "G---", OpGetAllowed.String())
	assert.Equal(t, "----", OpNone.String())
	assert.True(t, OpGetPutAllowed.Has(OpPut))
	assert.False(t, OpGetAllowed.Has(OpGetPutAllowed))
}
