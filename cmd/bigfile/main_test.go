package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvaleed/bigfile/internal/bigfile"
	"github.com/mvaleed/bigfile/internal/bigfile/bigfiletest"
)

func writeArchive(t *testing.T) string {
	t.Helper()
	b := bigfiletest.New(bigfile.VersionExtended)
	root := b.AddFolder("data", bigfile.NoFolder)
	meshes := b.AddFolder("meshes", root)
	b.AddFile(bigfiletest.File{Key: 0x10, Type: 0x0101, Folder: root, Name: "level.wld", Refs: []bigfile.Key{0x11, 0x12}, Body: []byte("world")})
	b.AddFile(bigfiletest.File{Key: 0x11, Type: 0x0102, Folder: meshes, Name: "crate.msh", Body: []byte("crate"), Zip: true})
	b.AddFile(bigfiletest.File{Key: 0x12, Type: 0x0102, Folder: meshes, Name: "gone.msh", Stub: true})
	return b.WriteFile(t)
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	color.NoColor = true
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--log-level", "error"))
	err := cmd.Execute()
	return out.String(), err
}

func TestInfo(t *testing.T) {
	out, err := run(t, "info", writeArchive(t))
	require.NoError(t, err)
	assert.Contains(t, out, "extended")
	assert.Regexp(t, `files\s+3`, out)
	assert.Regexp(t, `stubs\s+1`, out)
}

func TestTree(t *testing.T) {
	out, err := run(t, "tree", writeArchive(t))
	require.NoError(t, err)
	assert.Contains(t, out, "data/")
	assert.Contains(t, out, "  meshes/")
}

func TestLs(t *testing.T) {
	path := writeArchive(t)

	out, err := run(t, "ls", path, "1")
	require.NoError(t, err)
	assert.Contains(t, out, "data/meshes/crate.msh")
	assert.Contains(t, out, "stub")
	assert.NotContains(t, out, "level.wld")

	_, err = run(t, "ls", path, "meshes")
	assert.Error(t, err)
}

func TestCat(t *testing.T) {
	path := writeArchive(t)

	out, err := run(t, "cat", path, "0x11")
	require.NoError(t, err)
	assert.Equal(t, "crate", out)

	_, err = run(t, "cat", path, "0x12")
	assert.ErrorIs(t, err, bigfile.ErrNotFound)
}

func TestRefs(t *testing.T) {
	out, err := run(t, "refs", writeArchive(t), "0x10")
	require.NoError(t, err)
	assert.Contains(t, out, "0x00000011")
	assert.Contains(t, out, "0x00000012")
}

func TestWalk(t *testing.T) {
	out, err := run(t, "walk", writeArchive(t), "0x10", "--budget", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "total: 3 visited, 2 loaded, 1 skipped, 0 failed")
}

func TestConfigFlag(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "bigfile.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("types:\n  - code: 0x0102\n    name: mesh\n"), 0o644))

	out, err := run(t, "ls", writeArchive(t), "--config", cfg, "--no-mmap")
	require.NoError(t, err)
	assert.Contains(t, out, "mesh")
	assert.Contains(t, out, "type_0x0101")

	_, err = run(t, "info", writeArchive(t), "--budget", "0")
	assert.Error(t, err)
}
