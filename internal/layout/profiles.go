package layout

import (
	"fmt"

	"github.com/larsks/vmbuild/internal/disk"
)

// DefaultProfile implements the default layout:
// - One disk holding a root partition and a swap partition
// - An /opt partition after swap when OptSize is set
type DefaultProfile struct{}

func (p *DefaultProfile) Name() string {
	return "default"
}

func (p *DefaultProfile) Validate(opts Options) error {
	return validateSizes(map[string]int64{
		"rootsize": opts.RootSize,
		"swapsize": opts.SwapSize,
		"optsize":  opts.OptSize,
	}, "rootsize")
}

func (p *DefaultProfile) Apply(ds *disk.DiskSet, opts Options) error {
	return addDisk(ds, opts, []part{
		{size: opts.RootSize, fsType: opts.Filesystem, mountPoint: "/"},
		{size: opts.SwapSize, fsType: disk.FilesystemSwap},
		{size: opts.OptSize, fsType: opts.Filesystem, mountPoint: "/opt"},
	})
}

// SingleProfile implements a single partition layout:
// - One disk holding only the root partition
type SingleProfile struct{}

func (p *SingleProfile) Name() string {
	return "single"
}

func (p *SingleProfile) Validate(opts Options) error {
	if opts.SwapSize > 0 || opts.OptSize > 0 {
		return fmt.Errorf("single profile only has a root partition, swapsize and optsize must be 0")
	}

	return validateSizes(map[string]int64{"rootsize": opts.RootSize}, "rootsize")
}

func (p *SingleProfile) Apply(ds *disk.DiskSet, opts Options) error {
	return addDisk(ds, opts, []part{
		{size: opts.RootSize, fsType: opts.Filesystem, mountPoint: "/"},
	})
}

// BootProfile implements a layout with a separate /boot:
// - Partition 1 (/boot) is always ext2 so any bootloader can read it
// - Partition 2 is root, followed by swap and the optional /opt
type BootProfile struct{}

func (p *BootProfile) Name() string {
	return "boot"
}

func (p *BootProfile) Validate(opts Options) error {
	return validateSizes(map[string]int64{
		"bootsize": opts.BootSize,
		"rootsize": opts.RootSize,
		"swapsize": opts.SwapSize,
		"optsize":  opts.OptSize,
	}, "bootsize", "rootsize")
}

func (p *BootProfile) Apply(ds *disk.DiskSet, opts Options) error {
	return addDisk(ds, opts, []part{
		{size: opts.BootSize, fsType: disk.FilesystemExt2, mountPoint: "/boot"},
		{size: opts.RootSize, fsType: opts.Filesystem, mountPoint: "/"},
		{size: opts.SwapSize, fsType: disk.FilesystemSwap},
		{size: opts.OptSize, fsType: opts.Filesystem, mountPoint: "/opt"},
	})
}
