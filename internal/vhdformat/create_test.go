package vhdformat

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateFixed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fixed.vhd")

	err := Create(path, CreateOptions{SizeBytes: 4 * 1024 * 1024, Sparse: false})
	require.NoError(t, err)

	footer, header, err := readFooterAndHeader(path)
	require.NoError(t, err)
	assert.Equal(t, DiskTypeFixed, footer.DiskType)
	assert.Nil(t, header)
}

func TestCreateDynamic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dyn.vhd")

	err := Create(path, CreateOptions{SizeBytes: 16 * 1024 * 1024, Sparse: true})
	require.NoError(t, err)

	footer, header, err := readFooterAndHeader(path)
	require.NoError(t, err)
	assert.Equal(t, DiskTypeDynamic, footer.DiskType)
	require.NotNil(t, header)
	assert.Equal(t, uint32(2*1024*1024), header.BlockSize)
	assert.Equal(t, uint32(8), header.MaxBATEntries)
}

func TestSnapshotAndParentResolution(t *testing.T) {
	dir := t.TempDir()
	parentPath := filepath.Join(dir, "base.vhd")
	childPath := filepath.Join(dir, "snap.vhd")

	require.NoError(t, Create(parentPath, CreateOptions{SizeBytes: 8 * 1024 * 1024, Sparse: true}))
	require.NoError(t, Snapshot(parentPath, childPath))

	childFooter, _, err := readFooterAndHeader(childPath)
	require.NoError(t, err)
	assert.Equal(t, DiskTypeDifferencing, childFooter.DiskType)
	assert.Equal(t, uint64(8*1024*1024), childFooter.CurrentSize)

	resolved, err := GetParentID(childPath)
	require.NoError(t, err)

	absParent, err := filepath.Abs(parentPath)
	require.NoError(t, err)
	assert.Equal(t, absParent, resolved)

	require.NoError(t, ValidateParent(childPath, parentPath))
}

func TestGetParentIDOnNonDiffReturnsErrNoParent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dyn.vhd")
	require.NoError(t, Create(path, CreateOptions{SizeBytes: 4 * 1024 * 1024, Sparse: true}))

	_, err := GetParentID(path)
	assert.ErrorIs(t, err, ErrNoParent)
}
