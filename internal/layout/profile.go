// Package layout turns a named layout profile, or a layout file, into the
// disks and partitions of a DiskSet.
package layout

import (
	"fmt"
	"path/filepath"

	"github.com/larsks/vmbuild/internal/disk"
)

// Options holds the sizes and settings a profile lays out. Sizes are in
// megabytes.
type Options struct {
	// Dir is the directory new backing files are created in.
	Dir string
	// Raw is an existing image file to use instead of a new disk.
	Raw string

	RootSize int64
	SwapSize int64
	OptSize  int64
	BootSize int64

	Filesystem disk.FilesystemType
}

// DefaultOptions returns the sizes used when nothing else is configured.
func DefaultOptions() Options {
	return Options{
		RootSize:   4096,
		SwapSize:   1024,
		BootSize:   256,
		Filesystem: disk.FilesystemExt3,
	}
}

// Profile defines the interface for the different disk layouts.
type Profile interface {
	// Validate checks that the options describe a usable layout for this profile.
	Validate(opts Options) error

	// Apply adds the profile's disks and partitions to ds.
	Apply(ds *disk.DiskSet, opts Options) error

	// Name returns the profile name
	Name() string
}

// NewProfile creates a new layout profile by name
func NewProfile(name string) (Profile, error) {
	switch name {
	case "default":
		return &DefaultProfile{}, nil
	case "single":
		return &SingleProfile{}, nil
	case "boot":
		return &BootProfile{}, nil
	default:
		return nil, fmt.Errorf("unknown layout profile: %s (valid options: default, single, boot)", name)
	}
}

// part is one partition of a profile layout; the partitions of a disk are
// laid out back to back starting at 1MB.
type part struct {
	size       int64
	fsType     disk.FilesystemType
	mountPoint string
}

// alignment is the space left in front of the first partition.
const alignment = 1

// addDisk creates the disk for parts, sized to fit them, or opens the raw
// image, and adds the partitions in order.
func addDisk(ds *disk.DiskSet, opts Options, parts []part) error {
	total := int64(alignment)
	for _, p := range parts {
		total += p.size
	}

	var (
		d   *disk.Disk
		err error
	)

	if opts.Raw != "" {
		d, err = ds.AddDisk(opts.Raw, "")
	} else {
		d, err = ds.AddDiskMB(filepath.Join(opts.Dir, fmt.Sprintf("disk%d.img", len(ds.Disks()))), total)
	}

	if err != nil {
		return err
	}

	begin := int64(alignment)
	for _, p := range parts {
		if p.size == 0 {
			continue
		}

		if _, err := d.AddPartition(begin, begin+p.size, p.fsType, p.mountPoint); err != nil {
			return fmt.Errorf("failed to add %s partition: %w", p.mountPoint, err)
		}

		begin += p.size
	}

	return nil
}

func validateSizes(sizes map[string]int64, required ...string) error {
	for _, name := range required {
		if sizes[name] <= 0 {
			return fmt.Errorf("%s must be greater than zero, got %d", name, sizes[name])
		}
	}

	for name, size := range sizes {
		if size < 0 {
			return fmt.Errorf("%s must not be negative, got %d", name, size)
		}
	}

	return nil
}

// Select returns the layout file profile when file is set, otherwise the
// named profile.
func Select(name, file string) (Profile, error) {
	if file != "" {
		return LoadFile(file)
	}

	return NewProfile(name)
}
