// Package disk models the disks of a virtual machine: backing image files,
// the partitions laid out on them, and the device names, grub ids and mount
// points derived from that layout.
//
// A build creates a DiskSet, adds disks and partitions, and then
// materializes them: create the backing files, write the partition tables,
// map the partitions to loop devices and format them. All external work is
// done through a runner.Runner.
package disk

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/larsks/vmbuild/internal/cleanup"
	"github.com/larsks/vmbuild/internal/runner"
)

// Option configures a DiskSet.
type Option func(*DiskSet)

// WithRunner sets the runner used for all external tools.
func WithRunner(r runner.Runner) Option {
	return func(ds *DiskSet) {
		ds.runner = r
	}
}

// WithCleanup sets the stack teardown actions are registered with.
func WithCleanup(s *cleanup.Stack) Option {
	return func(ds *DiskSet) {
		ds.cleanup = s
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logrus.Entry) Option {
	return func(ds *DiskSet) {
		ds.logger = logger
	}
}

// WithRemoveOnFailure controls whether newly created backing files are
// removed when the build fails.
func WithRemoveOnFailure(remove bool) Option {
	return func(ds *DiskSet) {
		ds.removeOnFailure = remove
	}
}

// DiskSet is the ordered collection of disks of one build.
type DiskSet struct {
	disks []*Disk

	runner          runner.Runner
	cleanup         *cleanup.Stack
	logger          *logrus.Entry
	removeOnFailure bool

	mounts []*mount
}

// NewDiskSet creates an empty DiskSet.
func NewDiskSet(setters ...Option) *DiskSet {
	ds := &DiskSet{
		removeOnFailure: true,
	}

	for _, s := range setters {
		s(ds)
	}

	if ds.logger == nil {
		ds.logger = logrus.WithField("component", "disk")
	}

	if ds.runner == nil {
		ds.runner = runner.New(runner.WithLogger(ds.logger))
	}

	if ds.cleanup == nil {
		ds.cleanup = cleanup.New(ds.logger)
	}

	return ds
}

// AddDisk appends a disk backed by filename. An empty size means the file
// must already exist; otherwise it must not.
func (ds *DiskSet) AddDisk(filename, size string) (*Disk, error) {
	if size == "" {
		return ds.addDisk(filename, 0, false)
	}

	sizeMB, err := ParseSize(size)
	if err != nil {
		return nil, err
	}

	return ds.addDisk(filename, sizeMB, true)
}

// AddDiskMB appends a new disk of sizeMB megabytes backed by filename.
func (ds *DiskSet) AddDiskMB(filename string, sizeMB int64) (*Disk, error) {
	return ds.addDisk(filename, sizeMB, true)
}

func (ds *DiskSet) addDisk(filename string, sizeMB int64, sizeGiven bool) (*Disk, error) {
	abs, err := filepath.Abs(filename)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackingFile, err)
	}

	for _, d := range ds.disks {
		if d.filename == abs {
			return nil, fmt.Errorf("%w: %s is already part of this build", ErrBackingFile, abs)
		}
	}

	d, err := newDisk(ds, abs, sizeMB, sizeGiven)
	if err != nil {
		return nil, err
	}

	ds.disks = append(ds.disks, d)

	return d, nil
}

// Disks returns the disks in order.
func (ds *DiskSet) Disks() []*Disk {
	return append([]*Disk(nil), ds.disks...)
}

func (ds *DiskSet) indexOf(d *Disk) int {
	for i, other := range ds.disks {
		if other == d {
			return i
		}
	}

	return -1
}

// OrderedPartitions returns the partitions of all disks: disks in set
// order, each disk's partitions by begin offset.
func (ds *DiskSet) OrderedPartitions() []*Partition {
	var parts []*Partition

	for _, d := range ds.disks {
		parts = append(parts, d.sortedPartitions()...)
	}

	return parts
}

// BootPartition returns the first partition, in OrderedPartitions order,
// that is mounted on /.
func (ds *DiskSet) BootPartition() (*Partition, error) {
	for _, p := range ds.OrderedPartitions() {
		if p.MountPoint == "/" {
			return p, nil
		}
	}

	return nil, ErrNoBootPartition
}

// Materialize creates, partitions, maps and formats every disk in order,
// stopping at the first failure.
func (ds *DiskSet) Materialize(ctx context.Context) error {
	for _, d := range ds.disks {
		steps := []func(context.Context) error{d.Create, d.Partition, d.MapPartitions, d.Mkfs}

		for _, step := range steps {
			if err := step(ctx); err != nil {
				return err
			}
		}
	}

	return nil
}

// UnmapAll unmaps every disk, most recently added first.
func (ds *DiskSet) UnmapAll(ctx context.Context) error {
	for i := len(ds.disks) - 1; i >= 0; i-- {
		if err := ds.disks[i].Unmap(ctx); err != nil {
			return err
		}
	}

	return nil
}

// sortByMountDepth orders partitions so that a mount point comes before the
// mount points nested below it.
func sortByMountDepth(parts []*Partition) {
	sort.SliceStable(parts, func(i, j int) bool {
		return len(filepath.Clean(parts[i].MountPoint)) < len(filepath.Clean(parts[j].MountPoint))
	})
}
