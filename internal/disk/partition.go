package disk

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/larsks/vmbuild/internal/runner"
)

// Partition is one entry in a Disk's partition table. Begin and End are in
// megabytes and describe the extent [Begin, End).
type Partition struct {
	disk  *Disk
	index int

	Begin      int64
	End        int64
	Type       FilesystemType
	MountPoint string

	device string
	uuid   string
}

// Disk returns the disk the partition belongs to.
func (p *Partition) Disk() *Disk {
	return p.disk
}

// Index is the zero-based position at which the partition was added to its disk.
func (p *Partition) Index() int {
	return p.index
}

// Number is the one-based partition number used in device paths.
func (p *Partition) Number() int {
	return p.index + 1
}

// SizeMB returns the size of the extent.
func (p *Partition) SizeMB() int64 {
	return p.End - p.Begin
}

// Suffix is the device name suffix of the partition, e.g. "a1".
func (p *Partition) Suffix() string {
	return p.disk.DevLetters() + strconv.Itoa(p.Number())
}

// GrubID returns the legacy grub name of the partition, e.g. "(hd0,0)".
func (p *Partition) GrubID() string {
	return fmt.Sprintf("(hd%d,%d)", p.disk.Index(), p.index)
}

// Device returns the path of the mapped partition, or "" while the disk is
// not mapped.
func (p *Partition) Device() string {
	return p.device
}

// UUID returns the filesystem UUID assigned when the partition was formatted.
func (p *Partition) UUID() string {
	return p.uuid
}

// Mountable reports whether the partition gets mounted into the guest tree.
func (p *Partition) Mountable() bool {
	return p.MountPoint != "" && p.Type != FilesystemSwap && p.Type != FilesystemNone
}

// FstabType returns the filesystem column of the partition's fstab line.
func (p *Partition) FstabType() string {
	return p.Type.fstabType()
}

// FstabMountPoint returns the mount point column of the partition's fstab line.
func (p *Partition) FstabMountPoint() string {
	if p.Type == FilesystemSwap || p.MountPoint == "" {
		return "none"
	}

	return p.MountPoint
}

// FstabOptions returns the options column of the partition's fstab line.
func (p *Partition) FstabOptions() string {
	if p.Type == FilesystemSwap {
		return "sw"
	}

	if p.MountPoint == "/" {
		return "defaults,errors=remount-ro"
	}

	return "defaults"
}

func (p *Partition) overlaps(begin, end int64) bool {
	return begin < p.End && p.Begin < end
}

func (p *Partition) mkfs(ctx context.Context, r runner.Runner) error {
	if p.Type == FilesystemNone {
		return nil
	}

	if p.device == "" {
		return fmt.Errorf("%w: partition %s is not mapped", ErrMapping, p.Suffix())
	}

	id := uuid.New().String()

	if _, err := r.Run(ctx, runner.Cmd(p.Type.mkfsArgs(p.device, id)...)); err != nil {
		return fmt.Errorf("failed to create %s filesystem on %s: %w", p.Type, p.device, err)
	}

	p.uuid = id

	return nil
}
