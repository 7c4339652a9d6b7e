package builder

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"github.com/larsks/vmbuild/internal/disk"
	"github.com/larsks/vmbuild/internal/guest"
)

// Plan lays out the disks without creating anything and writes a summary:
// the disks and partitions with their guest device names and grub ids,
// followed by the fstab and device.map the build would install.
func (b *Builder) Plan(w io.Writer) error {
	base := b.cfg.Workdir
	if base == "" {
		base = os.TempDir()
	}

	if err := b.layoutDisks(filepath.Join(base, "vmbuild-plan")); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintln(tw, "DEVICE\tGRUB\tBEGIN\tEND\tSIZE\tTYPE\tMOUNT POINT")

	for _, d := range b.disks.Disks() {
		fmt.Fprintf(tw, "/dev/%s%s\t%s\t\t\t%s\t\t%s\n",
			b.cfg.DiskPrefix, d.DevLetters(), d.GrubID(), humanize.IBytes(uint64(d.SizeMB())*disk.MiB), d.Filename())

		for _, p := range d.Partitions() {
			fmt.Fprintf(tw, "  %s\t%s\t%d\t%d\t%s\t%s\t%s\n",
				guest.DeviceName(p, b.cfg.DiskPrefix, false), p.GrubID(), p.Begin, p.End,
				humanize.IBytes(uint64(p.SizeMB())*disk.MiB), p.Type, p.MountPoint)
		}
	}

	if err := tw.Flush(); err != nil {
		return err
	}

	root, err := guest.RootDevice(b.disks, b.cfg.DiskPrefix, false)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "\nroot=%s\n\n%s\n%s", root, guest.Fstab(b.disks, b.cfg.DiskPrefix, false), guest.DeviceMap(b.disks, b.cfg.DiskPrefix))

	return nil
}
