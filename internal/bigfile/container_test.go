package bigfile_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvaleed/bigfile/internal/bigfile"
	"github.com/mvaleed/bigfile/internal/bigfile/bigfiletest"
)

func TestContainer_Open(t *testing.T) {
	b := sampleArchive(bigfile.VersionExtended)
	path := b.WriteFile(t)

	for name, opts := range map[string][]bigfile.Option{
		"mmap":    nil,
		"no mmap": {bigfile.WithoutMmap()},
	} {
		t.Run(name, func(t *testing.T) {
			c, err := bigfile.Open(path, opts...)
			require.NoError(t, err)
			defer c.Close()

			require.NoError(t, c.LoadMetadata())
			data, err := c.Payload(0x11)
			require.NoError(t, err)
			assert.Equal(t, bigfiletest.Payload([]bigfile.Key{0x10}, nil), data)
		})
	}

	t.Run("missing file", func(t *testing.T) {
		_, err := bigfile.Open(filepath.Join(t.TempDir(), "nope.big"))
		assert.ErrorIs(t, err, bigfile.ErrIO)
	})

	t.Run("empty file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "empty.big")
		require.NoError(t, os.WriteFile(path, nil, 0o644))

		c, err := bigfile.Open(path)
		require.NoError(t, err)
		defer c.Close()
		assert.ErrorIs(t, c.LoadMetadata(), bigfile.ErrIO)
	})
}

func TestContainer_Payload(t *testing.T) {
	b := bigfiletest.New(bigfile.VersionExtended)
	b.AddFolder("root", bigfile.NoFolder)
	b.AddFile(bigfiletest.File{Key: 1, Name: "a", Body: []byte("first")})
	b.AddFile(bigfiletest.File{Key: 2, Name: "b", Refs: []bigfile.Key{1}, Body: []byte("second"), Zip: true})
	b.AddFile(bigfiletest.File{Key: 3, Name: "c", Stub: true})
	b.AddFile(bigfiletest.File{Key: 4, Name: "d", Body: []byte("last")})
	c := b.Container(t)

	t.Run("delimited by next offset", func(t *testing.T) {
		data, err := c.Payload(1)
		require.NoError(t, err)
		assert.Equal(t, bigfiletest.Payload(nil, []byte("first")), data)
	})

	t.Run("zipped payload is inflated", func(t *testing.T) {
		data, err := c.Payload(2)
		require.NoError(t, err)
		assert.Equal(t, bigfiletest.Payload([]bigfile.Key{1}, []byte("second")), data)

		size, err := c.PayloadSize(2)
		require.NoError(t, err)
		assert.NotEqual(t, int64(len(data)), size, "size is the stored size")
	})

	t.Run("last payload runs to end of data", func(t *testing.T) {
		data, err := c.Payload(4)
		require.NoError(t, err)
		assert.Equal(t, bigfiletest.Payload(nil, []byte("last")), data)
	})

	t.Run("stub is not found", func(t *testing.T) {
		assert.False(t, c.IsKeyValid(3))
		_, err := c.Payload(3)
		assert.ErrorIs(t, err, bigfile.ErrNotFound)
		assert.Equal(t, bigfile.Key(3), bigfile.KeyOf(err))
	})

	t.Run("unknown and sentinel keys", func(t *testing.T) {
		assert.False(t, c.IsKeyValid(99))
		assert.False(t, c.IsKeyValid(bigfile.NoKey))
		_, err := c.Payload(99)
		assert.ErrorIs(t, err, bigfile.ErrNotFound)
		_, err = c.Payload(bigfile.NoKey)
		assert.ErrorIs(t, err, bigfile.ErrNotFound)
	})
}

func TestContainer_PayloadTruncatedArchive(t *testing.T) {
	b := bigfiletest.New(bigfile.VersionCompact)
	b.AddFolder("root", bigfile.NoFolder)
	b.AddFile(bigfiletest.File{Key: 1, Name: "a", Body: bytes.Repeat([]byte{0xAB}, 64)})
	b.AddFile(bigfiletest.File{Key: 2, Name: "b", Body: []byte("tail")})
	raw := b.Bytes()

	// Drop the last payload entirely and half of the first.
	cut := len(raw) - len(bigfiletest.Payload(nil, []byte("tail"))) - 32
	c := bigfile.New(bytes.NewReader(raw[:cut]), int64(cut))
	require.NoError(t, c.LoadMetadata())

	data, err := c.Payload(1)
	require.NoError(t, err, "payload is clipped to the data region")
	assert.Len(t, data, 4+64-32)

	_, err = c.Payload(2)
	assert.ErrorIs(t, err, bigfile.ErrIO)
	assert.Equal(t, bigfile.Key(2), bigfile.KeyOf(err))
}

func TestContainer_CorruptZip(t *testing.T) {
	b := bigfiletest.New(bigfile.VersionExtended)
	b.AddFolder("root", bigfile.NoFolder)
	b.AddFile(bigfiletest.File{Key: 1, Name: "a", Body: []byte("zipped"), Zip: true})
	raw := b.Bytes()
	raw[len(raw)-3] ^= 0xFF // Break the adler32 trailer

	c := bigfile.New(bytes.NewReader(raw), int64(len(raw)))
	require.NoError(t, c.LoadMetadata())
	_, err := c.Payload(1)
	assert.ErrorIs(t, err, bigfile.ErrIO)
}

func TestContainer_InflatedSizeLimit(t *testing.T) {
	body := bytes.Repeat([]byte{0}, 1<<16)
	inflated := int64(len(bigfiletest.Payload(nil, body)))

	b := bigfiletest.New(bigfile.VersionExtended)
	b.AddFolder("root", bigfile.NoFolder)
	b.AddFile(bigfiletest.File{Key: 1, Name: "bomb", Body: body, Zip: true})

	t.Run("over the limit", func(t *testing.T) {
		c := b.Container(t, bigfile.WithMaxInflatedSize(inflated-1))
		size, err := c.PayloadSize(1)
		require.NoError(t, err)
		require.Less(t, size, inflated/10, "zeros compress well")

		_, err = c.Payload(1)
		assert.ErrorIs(t, err, bigfile.ErrIO)
		assert.Equal(t, bigfile.Key(1), bigfile.KeyOf(err))
	})

	t.Run("at the limit", func(t *testing.T) {
		c := b.Container(t, bigfile.WithMaxInflatedSize(inflated))
		data, err := c.Payload(1)
		require.NoError(t, err)
		assert.Len(t, data, int(inflated))
	})
}
