package disk

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"github.com/larsks/vmbuild/internal/cleanup"
	"github.com/larsks/vmbuild/internal/runner"
)

// MiB is the number of bytes in a megabyte as used throughout this package.
const MiB = 1024 * 1024

// State is the lifecycle state of a Disk.
type State int

// Disk states.
const (
	StateUnallocated State = iota
	StateCreated
	StatePartitioned
	StateMapped
	StateUnmapped
)

func (s State) String() string {
	switch s {
	case StateUnallocated:
		return "unallocated"
	case StateCreated:
		return "created"
	case StatePartitioned:
		return "partitioned"
	case StateMapped:
		return "mapped"
	case StateUnmapped:
		return "unmapped"
	default:
		return "unknown"
	}
}

// Disk is a backing image file and the partitions laid out on it.
type Disk struct {
	set *DiskSet

	filename     string
	sizeMB       int64
	preallocated bool
	partitions   []*Partition

	state       State
	partitioned bool
	loopDevice  string
	unmapEntry  *cleanup.Entry

	logger *logrus.Entry
}

func newDisk(set *DiskSet, filename string, sizeMB int64, sizeGiven bool) (*Disk, error) {
	d := &Disk{
		set:      set,
		filename: filename,
		logger:   set.logger.WithField("disk", filepath.Base(filename)),
	}

	_, statErr := os.Stat(filename)
	exists := statErr == nil

	if sizeGiven {
		if exists {
			return nil, fmt.Errorf("%w: the disk image %s already exists. Please move it out of the way", ErrBackingFile, filename)
		}

		d.sizeMB = sizeMB

		return d, nil
	}

	if !exists {
		return nil, fmt.Errorf("%w: can't use %s: no size given and the file does not exist", ErrBackingFile, filename)
	}

	size, err := DetectSize(filename)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackingFile, err)
	}

	d.sizeMB = size / MiB
	d.preallocated = true

	return d, nil
}

func (d *Disk) runner() runner.Runner {
	return d.set.runner
}

// Filename returns the path of the backing file.
func (d *Disk) Filename() string {
	return d.filename
}

// SizeMB returns the size of the disk in megabytes.
func (d *Disk) SizeMB() int64 {
	return d.sizeMB
}

// Preallocated reports whether the disk uses an existing image file.
func (d *Disk) Preallocated() bool {
	return d.preallocated
}

// State returns the lifecycle state of the disk.
func (d *Disk) State() State {
	return d.state
}

// LoopDevice returns the loop device the disk is mapped to, if any.
func (d *Disk) LoopDevice() string {
	return d.loopDevice
}

// Partitions returns the partitions in the order they were added.
func (d *Disk) Partitions() []*Partition {
	return append([]*Partition(nil), d.partitions...)
}

// sortedPartitions returns the partitions ordered by begin offset, which is
// the order in which they are written to the partition table.
func (d *Disk) sortedPartitions() []*Partition {
	parts := d.Partitions()
	sort.SliceStable(parts, func(i, j int) bool {
		return parts[i].Begin < parts[j].Begin
	})

	return parts
}

// Index returns the position of the disk in its DiskSet.
func (d *Disk) Index() int {
	return d.set.indexOf(d)
}

// DevLetters returns the device letters of the disk, e.g. "a" for the first disk.
func (d *Disk) DevLetters() string {
	return IndexToName(d.Index())
}

// GrubID returns the legacy grub name of the disk, e.g. "(hd0)".
func (d *Disk) GrubID() string {
	return fmt.Sprintf("(hd%d)", d.Index())
}

// AddPartition adds the extent [begin, end) to the disk. The partition list
// is left untouched when validation fails.
func (d *Disk) AddPartition(begin, end int64, fsType FilesystemType, mountPoint string) (*Partition, error) {
	if begin < 0 || begin >= end {
		return nil, fmt.Errorf("%w: [%d, %d)", ErrInvalidExtent, begin, end)
	}

	if end > d.sizeMB {
		return nil, fmt.Errorf("%w: [%d, %d) on a %dMB disk", ErrPartitionExceedsDisk, begin, end, d.sizeMB)
	}

	for _, p := range d.partitions {
		if p.overlaps(begin, end) {
			return nil, fmt.Errorf("%w: [%d, %d) and [%d, %d)", ErrPartitionOverlap, begin, end, p.Begin, p.End)
		}
	}

	if d.state == StateMapped {
		return nil, fmt.Errorf("%w: %s is mapped", ErrMapping, d.filename)
	}

	// the table on disk no longer matches
	if d.state == StatePartitioned || d.state == StateUnmapped {
		d.partitioned = false
		d.state = StateCreated
	}

	p := &Partition{
		disk:       d,
		index:      len(d.partitions),
		Begin:      begin,
		End:        end,
		Type:       fsType,
		MountPoint: mountPoint,
	}
	d.partitions = append(d.partitions, p)

	return p, nil
}

// Create allocates the backing file. A disk without a size reuses the
// existing file and leaves its contents alone.
func (d *Disk) Create(ctx context.Context) error {
	if d.state != StateUnallocated {
		return nil
	}

	if d.preallocated {
		if _, err := os.Stat(d.filename); err != nil {
			return fmt.Errorf("%w: %v", ErrBackingFile, err)
		}

		d.logger.Infof("using existing image %s (%s)", d.filename, humanize.IBytes(uint64(d.sizeMB)*MiB))
		d.state = StateCreated

		return nil
	}

	d.logger.Infof("creating %s backing file %s", humanize.IBytes(uint64(d.sizeMB)*MiB), d.filename)

	if _, err := d.runner().Run(ctx, runner.Cmd("qemu-img", "create", "-f", "raw", d.filename, fmt.Sprintf("%dM", d.sizeMB))); err != nil {
		// qemu-img may leave a partial file behind
		os.Remove(d.filename) //nolint:errcheck

		return fmt.Errorf("%w: failed to create %s: %v", ErrBackingFile, d.filename, err)
	}

	if d.set.removeOnFailure {
		// Convert repoints d.filename at the converted image
		backing := d.filename
		d.set.cleanup.PushOnFailure("remove "+backing, func(context.Context) error {
			if err := os.Remove(backing); err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}

			return nil
		})
	}

	d.state = StateCreated

	return nil
}

// Partition writes an msdos partition table with the disk's partitions,
// ordered by begin offset. Writing the same layout again yields the same
// table.
func (d *Disk) Partition(ctx context.Context) error {
	switch d.state {
	case StateUnallocated:
		return fmt.Errorf("%w: %s has not been created", ErrBackingFile, d.filename)
	case StateMapped:
		return fmt.Errorf("%w: %s is mapped; unmap it before partitioning", ErrMapping, d.filename)
	}

	args := []string{"parted", "--script", d.filename, "mklabel", "msdos"}

	sorted := d.sortedPartitions()

	for n, p := range sorted {
		if p.index != n {
			d.logger.Warnf("partition %s was not added in begin order; it will be partition %d in the table", p.Suffix(), n+1)
		}
	}

	for _, p := range sorted {
		args = append(args, "mkpart", "primary")
		if t := p.Type.partedType(); t != "" {
			args = append(args, t)
		}

		args = append(args, strconv.FormatInt(p.Begin, 10), strconv.FormatInt(p.End, 10))
	}

	d.logger.Infof("partitioning %s (%d partitions)", d.filename, len(d.partitions))

	if _, err := d.runner().Run(ctx, runner.Cmd(args...)); err != nil {
		return fmt.Errorf("failed to partition %s: %w", d.filename, err)
	}

	d.partitioned = true
	d.state = StatePartitioned

	return nil
}

// checkPartitioned verifies that an image which was not partitioned by us
// carries a table with room for the declared partitions.
func (d *Disk) checkPartitioned(ctx context.Context) error {
	if d.partitioned {
		return nil
	}

	if !d.preallocated || d.state == StateUnallocated {
		return fmt.Errorf("%w: %s is not partitioned", ErrMapping, d.filename)
	}

	table, err := d.Table(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMapping, err)
	}

	if len(table.Partitions) < len(d.partitions) {
		return fmt.Errorf("%w: %s has %d partitions, %d declared", ErrMapping, d.filename, len(table.Partitions), len(d.partitions))
	}

	return nil
}

// MapPartitions attaches the backing file to a loop device and records the
// device of every partition.
func (d *Disk) MapPartitions(ctx context.Context) error {
	if d.state == StateMapped {
		return nil
	}

	if err := d.checkPartitioned(ctx); err != nil {
		return err
	}

	out, err := runner.Output(ctx, d.runner(), "losetup", "--find", "--show", "--partscan", d.filename)
	if err != nil {
		return fmt.Errorf("%w: failed to setup loopback device for %s: %v", ErrMapping, d.filename, err)
	}

	loop := strings.TrimSpace(out)
	if loop == "" {
		return fmt.Errorf("%w: losetup did not report a device for %s", ErrMapping, d.filename)
	}

	d.loopDevice = loop
	d.state = StateMapped
	d.unmapEntry = d.set.cleanup.Push("unmap "+d.filename, d.Unmap)

	for n, p := range d.sortedPartitions() {
		p.device = fmt.Sprintf("%sp%d", loop, n+1)
	}

	d.logger.Infof("attached %s to %s", d.filename, loop)

	return nil
}

// Mkfs formats every mapped partition according to its filesystem type.
// Placeholder partitions are skipped.
func (d *Disk) Mkfs(ctx context.Context) error {
	if d.state != StateMapped {
		return fmt.Errorf("%w: %s is not mapped", ErrMapping, d.filename)
	}

	for _, p := range d.partitions {
		if p.Type == FilesystemNone {
			continue
		}

		d.logger.Infof("creating %s filesystem on %s", p.Type, p.device)

		if err := p.mkfs(ctx, d.runner()); err != nil {
			return err
		}
	}

	return nil
}

// Unmap releases the loop device. Calling it on a disk that is not mapped
// does nothing.
func (d *Disk) Unmap(ctx context.Context) error {
	if d.state != StateMapped {
		return nil
	}

	if _, err := d.runner().Run(ctx, runner.Cmd("losetup", "-d", d.loopDevice)); err != nil {
		return fmt.Errorf("%w: failed to detach %s: %v", ErrMapping, d.loopDevice, err)
	}

	d.logger.Infof("detached %s", d.loopDevice)

	for _, p := range d.partitions {
		p.device = ""
	}

	if d.unmapEntry != nil {
		d.unmapEntry.Dismiss()
		d.unmapEntry = nil
	}

	d.loopDevice = ""
	d.state = StateUnmapped

	return nil
}

// Convert writes the image in the given qemu-img format to destdir. The
// raw backing file is removed afterwards unless it is a preallocated image
// supplied by the user. The path of the converted image is returned.
func (d *Disk) Convert(ctx context.Context, format, destdir string) (string, error) {
	if d.state == StateMapped {
		return "", fmt.Errorf("%w: %s is still mapped", ErrMapping, d.filename)
	}

	base := strings.TrimSuffix(filepath.Base(d.filename), filepath.Ext(d.filename))
	dest := filepath.Join(destdir, base+"."+format)

	if _, err := os.Stat(dest); err == nil {
		return "", fmt.Errorf("%w: %s already exists", ErrBackingFile, dest)
	}

	d.logger.Infof("converting %s to %s", d.filename, format)

	if _, err := d.runner().Run(ctx, runner.Cmd("qemu-img", "convert", "-O", format, d.filename, dest)); err != nil {
		return "", fmt.Errorf("failed to convert %s: %w", d.filename, err)
	}

	if !d.preallocated {
		if err := os.Remove(d.filename); err != nil && !errors.Is(err, os.ErrNotExist) {
			return "", err
		}

		d.filename = dest
	}

	return dest, nil
}
