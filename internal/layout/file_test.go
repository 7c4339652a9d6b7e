package layout

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/larsks/vmbuild/internal/disk"
)

const twoDisks = `
disks:
  - filename: root.img
    size: 4G
    partitions:
      - size: 3G
        type: ext4
        mountpoint: /
      - type: swap
        end: 4095
  - filename: data.img
    size: 1024M
    partitions:
      - begin: 10
        end: 1000
        type: xfs
        mountpoint: /srv
`

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "layout.yaml")
	require.NoError(t, os.WriteFile(path, []byte(twoDisks), 0o644))

	profile, err := LoadFile(path)
	require.NoError(t, err)
	require.NoError(t, profile.Validate(Options{}))

	opts := Options{Dir: t.TempDir()}
	ds := newDiskSet()
	require.NoError(t, profile.Apply(ds, opts))

	disks := ds.Disks()
	require.Len(t, disks, 2)
	assert.Equal(t, filepath.Join(opts.Dir, "root.img"), disks[0].Filename())
	assert.Equal(t, int64(4096), disks[0].SizeMB())
	assert.Equal(t, int64(1024), disks[1].SizeMB())

	assert.Equal(t, []wantExtent{
		{1, 3073, disk.FilesystemExt4, "/"},
		{3073, 4095, disk.FilesystemSwap, ""},
		{10, 1000, disk.FilesystemXFS, "/srv"},
	}, extents(ds))
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDecodeFileUnknownField(t *testing.T) {
	_, err := decodeFile(strings.NewReader("disks:\n  - filename: a.img\n    colour: red\n"))
	assert.Error(t, err)
}

func TestFileProfile_Validate(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{name: "empty", input: "", wantErr: "no disks"},
		{name: "no filename", input: "disks:\n  - size: 1G\n", wantErr: "filename is required"},
		{name: "bad size", input: "disks:\n  - filename: a.img\n    size: 1T\n", wantErr: "invalid size"},
		{name: "bad type", input: "disks:\n  - filename: a.img\n    partitions:\n      - type: ntfs\n        end: 10\n", wantErr: "unknown filesystem type"},
		{name: "no extent", input: "disks:\n  - filename: a.img\n    partitions:\n      - type: ext3\n", wantErr: "exactly one of end and size"},
		{name: "both extents", input: "disks:\n  - filename: a.img\n    partitions:\n      - type: ext3\n        end: 10\n        size: 10M\n", wantErr: "exactly one of end and size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profile, err := decodeFile(strings.NewReader(tt.input))
			require.NoError(t, err)

			err = profile.Validate(Options{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFileProfile_ApplyOverlap(t *testing.T) {
	profile, err := decodeFile(strings.NewReader(`
disks:
  - filename: a.img
    size: 1G
    partitions:
      - {type: ext3, end: 512}
      - {type: ext3, begin: 256, end: 768}
`))
	require.NoError(t, err)
	require.NoError(t, profile.Validate(Options{}))

	err = profile.Apply(newDiskSet(), Options{Dir: t.TempDir()})
	assert.ErrorIs(t, err, disk.ErrPartitionOverlap)
}

func TestFileProfile_ApplyOrdersByBegin(t *testing.T) {
	profile, err := decodeFile(strings.NewReader(`
disks:
  - filename: a.img
    size: 2G
    partitions:
      - {type: swap, begin: 1025, end: 2047}
      - {type: ext4, begin: 1, end: 1025, mountpoint: /}
`))
	require.NoError(t, err)
	require.NoError(t, profile.Validate(Options{}))

	ds := newDiskSet()
	require.NoError(t, profile.Apply(ds, Options{Dir: t.TempDir()}))

	parts := ds.Disks()[0].Partitions()
	require.Len(t, parts, 2)

	assert.Equal(t, "/", parts[0].MountPoint)
	assert.Equal(t, int64(1), parts[0].Begin)
	assert.Equal(t, "a1", parts[0].Suffix())
	assert.Equal(t, "(hd0,0)", parts[0].GrubID())

	assert.Equal(t, disk.FilesystemSwap, parts[1].Type)
	assert.Equal(t, "a2", parts[1].Suffix())

	boot, err := ds.BootPartition()
	require.NoError(t, err)
	assert.Equal(t, 1, boot.Number())
}

func TestSelect(t *testing.T) {
	path := filepath.Join(t.TempDir(), "layout.yaml")
	require.NoError(t, os.WriteFile(path, []byte(twoDisks), 0o644))

	profile, err := Select("single", path)
	require.NoError(t, err)
	assert.Equal(t, "file", profile.Name())

	profile, err = Select("single", "")
	require.NoError(t, err)
	assert.Equal(t, "single", profile.Name())
}
