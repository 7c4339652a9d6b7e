//go:build linux

package disk

import (
	"context"
	"os"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/larsks/vmbuild/internal/cleanup"
	"github.com/larsks/vmbuild/internal/runner"
)

func requireTools(t *testing.T, tools ...string) {
	t.Helper()

	if os.Geteuid() != 0 {
		t.Skip("must be run as root")
	}

	for _, tool := range tools {
		if _, err := exec.LookPath(tool); err != nil {
			t.Skipf("%s not available", tool)
		}
	}
}

func TestPartitionSizeOnLoopDevice(t *testing.T) {
	requireTools(t, "qemu-img", "parted", "losetup", "mkfs.ext3")

	ctx := context.Background()
	stack := cleanup.New(nil)
	ds := NewDiskSet(WithRunner(runner.New()), WithCleanup(stack))

	defer func() {
		assert.NoError(t, stack.Unwind(ctx, t.Failed()))
	}()

	d, err := ds.AddDisk(tempImage(t, "disk.img"), "1G")
	require.NoError(t, err)
	p, err := d.AddPartition(1, 1023, FilesystemExt3, "/")
	require.NoError(t, err)

	require.NoError(t, ds.Materialize(ctx))

	size, err := DetectSize(p.Device())
	require.NoError(t, err)
	assert.Equal(t, int64(1023000576), size)

	require.NoError(t, ds.UnmapAll(ctx))
	assert.Empty(t, p.Device())
}

func TestCreateWithQemuImg(t *testing.T) {
	if _, err := exec.LookPath("qemu-img"); err != nil {
		t.Skip("qemu-img not available")
	}

	for _, size := range []string{"10G", "1G", "102400K", "10M"} {
		t.Run(size, func(t *testing.T) {
			ds := NewDiskSet(WithCleanup(cleanup.New(nil)))

			d, err := ds.AddDisk(tempImage(t, "disk.img"), size)
			require.NoError(t, err)
			require.NoError(t, d.Create(context.Background()))

			got, err := DetectSize(d.Filename())
			require.NoError(t, err)
			assert.Equal(t, d.SizeMB()*MiB, got)
		})
	}
}
