package guest

import (
	"fmt"
	"strings"

	"github.com/larsks/vmbuild/internal/disk"
)

const fstabHeader = `# /etc/fstab: static file system information.
#
# <file system>                                 <mount point>   <type>  <options>       <dump>  <pass>
proc                                            /proc           proc    defaults        0       0
`

// DeviceName returns the path of p as the guest sees it, e.g. /dev/sda1, or
// UUID=... when useUUID is set and the partition has been formatted.
func DeviceName(p *disk.Partition, prefix string, useUUID bool) string {
	if useUUID && p.UUID() != "" {
		return "UUID=" + p.UUID()
	}

	return "/dev/" + prefix + p.Suffix()
}

// Fstab renders /etc/fstab for the partitions of ds. Placeholder partitions
// are left out.
func Fstab(ds *disk.DiskSet, prefix string, useUUID bool) string {
	var b strings.Builder

	b.WriteString(fstabHeader)

	for _, p := range ds.OrderedPartitions() {
		if p.Type == disk.FilesystemNone {
			continue
		}

		fmt.Fprintf(&b, "%-47s %-15s %-7s %-15s %d       %d\n",
			DeviceName(p, prefix, useUUID), p.FstabMountPoint(), p.FstabType(), p.FstabOptions(), 0, 0)
	}

	return b.String()
}

// DeviceMap renders grub's device.map, mapping each disk's grub name to its
// guest device.
func DeviceMap(ds *disk.DiskSet, prefix string) string {
	var b strings.Builder

	for _, d := range ds.Disks() {
		fmt.Fprintf(&b, "%s /dev/%s%s\n", d.GrubID(), prefix, d.DevLetters())
	}

	return b.String()
}

// RootDevice returns the kernel root= argument for the boot partition.
func RootDevice(ds *disk.DiskSet, prefix string, useUUID bool) (string, error) {
	p, err := ds.BootPartition()
	if err != nil {
		return "", err
	}

	return DeviceName(p, prefix, useUUID), nil
}
