package store

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvaleed/bigfile/internal/archetype"
	"github.com/mvaleed/bigfile/internal/bigfile"
	"github.com/mvaleed/bigfile/internal/bigfile/bigfiletest"
)

const (
	typeBlob    bigfile.TypeCode = 0x0001
	typeBroken  bigfile.TypeCode = 0x0002
	typeUnknown bigfile.TypeCode = 0x7777
)

var errBroken = errors.New("broken payload")

// brokenArchetype fails to parse any payload whose body starts with 'x'.
type brokenArchetype struct{ released int }

func (b *brokenArchetype) Parse(data []byte) error {
	if len(data) > 0 && data[0] == 'x' {
		return errBroken
	}
	return nil
}

func (b *brokenArchetype) Release() { b.released++ }

func testRegistry() *archetype.Registry {
	return archetype.NewRegistry(
		archetype.Registration{Code: typeBlob, Name: "blob", New: archetype.NewBlob},
		archetype.Registration{Code: typeBroken, Name: "broken", New: func() archetype.Archetype { return &brokenArchetype{} }},
	)
}

func newTestStore(t *testing.T, b *bigfiletest.Builder) *Store {
	t.Helper()
	s, err := New(b.Container(t), testRegistry())
	require.NoError(t, err)
	return s
}

func testArchive() *bigfiletest.Builder {
	b := bigfiletest.New(bigfile.VersionExtended)
	b.AddFolder("root", bigfile.NoFolder)
	b.AddFile(bigfiletest.File{Key: 1, Type: typeBlob, Name: "one", Refs: []bigfile.Key{2, 3}, Body: []byte("body-1")})
	b.AddFile(bigfiletest.File{Key: 2, Type: typeUnknown, Name: "two", Body: []byte("body-2")})
	b.AddFile(bigfiletest.File{Key: 3, Type: typeBlob, Name: "three", Stub: true})
	b.AddFile(bigfiletest.File{Key: 4, Type: typeBroken, Name: "four", Body: []byte("xbad")})
	b.AddFile(bigfiletest.File{Key: 5, Type: typeBlob, Name: "five", Refs: []bigfile.Key{1}, Body: []byte("zipped"), Zip: true})
	return b
}

func TestStore_New(t *testing.T) {
	s := newTestStore(t, testArchive())

	assert.Equal(t, 5, s.Len())
	for _, k := range []bigfile.Key{1, 2, 3, 4, 5} {
		obj, ok := s.Object(k)
		require.True(t, ok)
		assert.False(t, obj.Loaded)
		assert.Zero(t, obj.RefCount)
		assert.Nil(t, obj.Refs)
		assert.NotNil(t, obj.Payload)
	}

	obj, _ := s.Object(2)
	assert.Equal(t, archetype.Passthrough{}, obj.Payload, "unknown type gets the inert payload")

	t.Run("requires metadata", func(t *testing.T) {
		raw := testArchive().Bytes()
		c := bigfile.New(nil, int64(len(raw)))
		_, err := New(c, nil)
		assert.Error(t, err)
	})
}

func TestStore_LoadIdempotence(t *testing.T) {
	s := newTestStore(t, testArchive())

	did, err := s.Load(1)
	require.NoError(t, err)
	assert.True(t, did, "first load parses")

	did, err = s.Load(1)
	require.NoError(t, err)
	assert.False(t, did, "second load is the fast path")

	obj, _ := s.Object(1)
	assert.True(t, obj.Loaded)
	assert.Equal(t, 2, obj.RefCount)
	assert.Equal(t, []bigfile.Key{2, 3}, obj.Refs)
	assert.Equal(t, []byte("body-1"), obj.Payload.(*archetype.Blob).Data)
}

func TestStore_UnloadReleasesUnconditionally(t *testing.T) {
	s := newTestStore(t, testArchive())

	for range 3 {
		_, err := s.Load(1)
		require.NoError(t, err)
	}
	obj, _ := s.Object(1)
	require.Equal(t, 3, obj.RefCount)
	blob := obj.Payload.(*archetype.Blob)

	require.NoError(t, s.Unload(1))

	obj, _ = s.Object(1)
	assert.False(t, obj.Loaded, "one unload releases regardless of load count")
	assert.Zero(t, obj.RefCount)
	assert.Nil(t, obj.Refs)
	assert.Nil(t, blob.Data)
	assert.Nil(t, s.References(1))

	// Loading again parses again.
	did, err := s.Load(1)
	require.NoError(t, err)
	assert.True(t, did)
}

func TestStore_Unload(t *testing.T) {
	s := newTestStore(t, testArchive())

	assert.NoError(t, s.Unload(2), "not loaded is a no-op")
	assert.ErrorIs(t, s.Unload(99), bigfile.ErrNotFound)
}

func TestStore_LoadErrors(t *testing.T) {
	s := newTestStore(t, testArchive())

	t.Run("stub", func(t *testing.T) {
		assert.False(t, s.IsKeyValid(3))
		_, err := s.Load(3)
		assert.ErrorIs(t, err, bigfile.ErrNotFound)
	})

	t.Run("unknown key", func(t *testing.T) {
		assert.False(t, s.IsKeyValid(99))
		_, err := s.Load(99)
		assert.ErrorIs(t, err, bigfile.ErrNotFound)
	})

	t.Run("archetype failure", func(t *testing.T) {
		_, err := s.Load(4)
		assert.ErrorIs(t, err, bigfile.ErrParse)
		assert.ErrorIs(t, err, errBroken)
		assert.Equal(t, bigfile.Key(4), bigfile.KeyOf(err))

		obj, _ := s.Object(4)
		assert.False(t, obj.Loaded)
		assert.Equal(t, 1, obj.Payload.(*brokenArchetype).released)
	})
}

func TestStore_LoadZipped(t *testing.T) {
	s := newTestStore(t, testArchive())

	did, err := s.Load(5)
	require.NoError(t, err)
	assert.True(t, did)
	assert.Equal(t, []bigfile.Key{1}, s.References(5))

	obj, _ := s.Object(5)
	assert.Equal(t, []byte("zipped"), obj.Payload.(*archetype.Blob).Data)
}

func TestStore_LoadedKeysAndClose(t *testing.T) {
	s := newTestStore(t, testArchive())
	for _, k := range []bigfile.Key{5, 1, 2} {
		_, err := s.Load(k)
		require.NoError(t, err)
	}
	assert.Equal(t, []bigfile.Key{1, 2, 5}, s.LoadedKeys())

	require.NoError(t, s.Close())
	assert.Empty(t, s.LoadedKeys())
}

func TestStore_Open(t *testing.T) {
	path := testArchive().WriteFile(t)

	s, err := Open(path, testRegistry())
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Load(1)
	require.NoError(t, err)
	typ, ok := s.TypeOf(1)
	assert.True(t, ok)
	assert.Equal(t, typeBlob, typ)
}

func TestExtractReferences(t *testing.T) {
	t.Run("refs and body", func(t *testing.T) {
		refs, body, err := ExtractReferences(bigfiletest.Payload([]bigfile.Key{7, bigfile.NoKey}, []byte("rest")))
		require.NoError(t, err)
		assert.Equal(t, []bigfile.Key{7, bigfile.NoKey}, refs)
		assert.Equal(t, []byte("rest"), body)
	})

	t.Run("no refs", func(t *testing.T) {
		refs, body, err := ExtractReferences(bigfiletest.Payload(nil, nil))
		require.NoError(t, err)
		assert.Nil(t, refs)
		assert.Empty(t, body)
	})

	t.Run("malformed", func(t *testing.T) {
		negative := make([]byte, 4)
		binary.LittleEndian.PutUint32(negative, 0xFFFFFFF0)
		huge := make([]byte, 12)
		binary.LittleEndian.PutUint32(huge, 1<<30)

		for name, data := range map[string][]byte{
			"empty":          nil,
			"short count":    {1, 0},
			"negative count": negative,
			"count too big":  huge,
		} {
			_, _, err := ExtractReferences(data)
			assert.Error(t, err, name)
		}
	})
}

func TestStore_TruncatedPreambleIsParseError(t *testing.T) {
	b := bigfiletest.New(bigfile.VersionCompact)
	b.AddFolder("root", bigfile.NoFolder)
	b.AddFile(bigfiletest.File{Key: 1, Type: typeBlob, Name: "bad", Raw: []byte{9, 0, 0, 0, 1, 0}})
	s := newTestStore(t, b)

	_, err := s.Load(1)
	assert.ErrorIs(t, err, bigfile.ErrParse)
	assert.Equal(t, bigfile.Key(1), bigfile.KeyOf(err))
}
