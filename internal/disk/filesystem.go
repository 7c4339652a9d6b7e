package disk

import (
	"fmt"
	"strings"
)

// FilesystemType is the filesystem a partition is formatted with.
type FilesystemType string

// Filesystem types.
const (
	FilesystemExt2 FilesystemType = "ext2"
	FilesystemExt3 FilesystemType = "ext3"
	FilesystemExt4 FilesystemType = "ext4"
	FilesystemXFS  FilesystemType = "xfs"
	FilesystemSwap FilesystemType = "linux-swap"
	// FilesystemNone marks a placeholder partition that is never formatted
	// or mounted.
	FilesystemNone FilesystemType = "none"
)

// ParseFilesystemType converts a user supplied filesystem name.
func ParseFilesystemType(s string) (FilesystemType, error) {
	switch strings.ToLower(s) {
	case "ext2":
		return FilesystemExt2, nil
	case "ext3":
		return FilesystemExt3, nil
	case "ext4":
		return FilesystemExt4, nil
	case "xfs":
		return FilesystemXFS, nil
	case "linux-swap", "swap":
		return FilesystemSwap, nil
	case "none", "":
		return FilesystemNone, nil
	default:
		return "", fmt.Errorf("unknown filesystem type: %s (valid options: ext2, ext3, ext4, xfs, linux-swap, none)", s)
	}
}

// partedType is the filesystem hint given to parted's mkpart; parted only
// uses it to pick the partition type id.
func (t FilesystemType) partedType() string {
	switch t {
	case FilesystemSwap:
		return "linux-swap"
	case FilesystemXFS:
		return "xfs"
	case FilesystemNone:
		return ""
	default:
		return "ext2"
	}
}

// fstabType is the third fstab column.
func (t FilesystemType) fstabType() string {
	if t == FilesystemSwap {
		return "swap"
	}

	return string(t)
}

// mkfsArgs returns the command that formats device with a filesystem
// carrying the given UUID, or nil for placeholders.
func (t FilesystemType) mkfsArgs(device, uuid string) []string {
	switch t {
	case FilesystemExt2, FilesystemExt3, FilesystemExt4:
		return []string{"mkfs." + string(t), "-F", "-U", uuid, device}
	case FilesystemXFS:
		return []string{"mkfs.xfs", "-f", "-m", "uuid=" + uuid, device}
	case FilesystemSwap:
		return []string{"mkswap", "-U", uuid, device}
	default:
		return nil
	}
}
