package disk

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/larsks/vmbuild/internal/cleanup"
	"github.com/larsks/vmbuild/internal/runner"
)

type mount struct {
	partition *Partition
	target    string
	entry     *cleanup.Entry
}

// MountTarget returns where p is mounted below root.
func MountTarget(root string, p *Partition) string {
	return filepath.Join(root, filepath.Clean("/"+p.MountPoint))
}

// Mount mounts every mapped partition with a mount point below root, parents
// before children. Swap and placeholder partitions are skipped. Each mount
// registers its unmount with the cleanup stack.
func (ds *DiskSet) Mount(ctx context.Context, root string) error {
	var parts []*Partition

	for _, p := range ds.OrderedPartitions() {
		if p.Mountable() {
			parts = append(parts, p)
		}
	}

	sortByMountDepth(parts)

	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("failed to create target directory %s: %w", root, err)
	}

	for _, p := range parts {
		if p.Device() == "" {
			return fmt.Errorf("%w: partition %s is not mapped", ErrMapping, p.Suffix())
		}

		target := MountTarget(root, p)

		if err := os.MkdirAll(target, 0o755); err != nil {
			return fmt.Errorf("failed to create mount point %s: %w", target, err)
		}

		if _, err := ds.runner.Run(ctx, runner.Cmd("mount", p.Device(), target)); err != nil {
			return fmt.Errorf("failed to mount %s to %s: %w", p.Device(), target, err)
		}

		m := &mount{partition: p, target: target}
		m.entry = ds.cleanup.Push("umount "+target, func(ctx context.Context) error {
			return ds.umount(ctx, m)
		})
		ds.mounts = append(ds.mounts, m)

		ds.logger.Infof("mounted %s (%dMB) to %s", p.Device(), p.SizeMB(), target)
	}

	return nil
}

func (ds *DiskSet) umount(ctx context.Context, m *mount) error {
	if _, err := ds.runner.Run(ctx, runner.Cmd("umount", m.target)); err != nil {
		return fmt.Errorf("failed to unmount %s: %w", m.target, err)
	}

	ds.mounts = slices.DeleteFunc(ds.mounts, func(other *mount) bool {
		return other == m
	})

	ds.logger.Infof("unmounted %s", m.target)

	return nil
}

// Unmount unmounts everything Mount mounted, children first.
func (ds *DiskSet) Unmount(ctx context.Context) error {
	for i := len(ds.mounts) - 1; i >= 0; i-- {
		if err := ds.mounts[i].entry.Run(ctx); err != nil {
			return err
		}
	}

	return nil
}

// Mounted returns the mount targets that are still mounted.
func (ds *DiskSet) Mounted() []string {
	targets := make([]string, 0, len(ds.mounts))
	for _, m := range ds.mounts {
		targets = append(targets, m.target)
	}

	return targets
}
