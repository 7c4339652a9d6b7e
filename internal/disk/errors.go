package disk

import "errors"

var (
	// ErrInvalidSizeFormat is returned for size strings that cannot be parsed.
	ErrInvalidSizeFormat = errors.New("invalid size format")
	// ErrInvalidDeviceName is returned for device letter sequences outside a-z.
	ErrInvalidDeviceName = errors.New("invalid device name")
	// ErrPartitionOverlap is returned when a new partition intersects an existing one.
	ErrPartitionOverlap = errors.New("partitions are overlapping")
	// ErrPartitionExceedsDisk is returned when a partition ends beyond the disk.
	ErrPartitionExceedsDisk = errors.New("partition is out of bounds")
	// ErrInvalidExtent is returned for empty or inverted partition extents.
	ErrInvalidExtent = errors.New("invalid partition extent")
	// ErrBackingFile is returned when a backing image file cannot be used or allocated.
	ErrBackingFile = errors.New("backing file error")
	// ErrMapping is returned when partitions cannot be mapped, or are used unmapped.
	ErrMapping = errors.New("mapping error")
	// ErrNoBootPartition is returned when no partition is mounted on /.
	ErrNoBootPartition = errors.New("no boot partition")
)
