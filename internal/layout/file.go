package layout

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/larsks/vmbuild/internal/disk"
)

// PartitionSpec is a partition entry of a layout file. Begin defaults to the
// end of the previous partition (1 for the first one); the extent ends at
// End, or Size megabytes after Begin.
type PartitionSpec struct {
	Begin      *int64 `yaml:"begin,omitempty"`
	End        int64  `yaml:"end,omitempty"`
	Size       string `yaml:"size,omitempty"`
	Type       string `yaml:"type"`
	MountPoint string `yaml:"mountpoint,omitempty"`
}

// DiskSpec is a disk entry of a layout file. A disk without a size uses an
// existing image file.
type DiskSpec struct {
	Filename   string          `yaml:"filename"`
	Size       string          `yaml:"size,omitempty"`
	Partitions []PartitionSpec `yaml:"partitions"`
}

// FileProfile is a layout read from a YAML file:
//
//	disks:
//	  - filename: root.img
//	    size: 8G
//	    partitions:
//	      - size: 7G
//	        type: ext4
//	        mountpoint: /
//	      - type: swap
//	        end: 8191
type FileProfile struct {
	Disks []DiskSpec `yaml:"disks"`
}

// LoadFile reads a layout file.
func LoadFile(path string) (*FileProfile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open layout file: %w", err)
	}
	defer f.Close() //nolint:errcheck

	return decodeFile(f)
}

func decodeFile(r io.Reader) (*FileProfile, error) {
	var profile FileProfile

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	if err := dec.Decode(&profile); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse layout file: %w", err)
	}

	return &profile, nil
}

func (p *FileProfile) Name() string {
	return "file"
}

// Validate checks the file without touching any disk; sizes and types must
// parse. Extents are checked when the partitions are added.
func (p *FileProfile) Validate(_ Options) error {
	if len(p.Disks) == 0 {
		return fmt.Errorf("layout file defines no disks")
	}

	for i, d := range p.Disks {
		if d.Filename == "" {
			return fmt.Errorf("disk %d: filename is required", i)
		}

		if d.Size != "" {
			if _, err := disk.ParseSize(d.Size); err != nil {
				return fmt.Errorf("disk %s: %w", d.Filename, err)
			}
		}

		for j, part := range d.Partitions {
			if _, err := disk.ParseFilesystemType(part.Type); err != nil {
				return fmt.Errorf("disk %s partition %d: %w", d.Filename, j, err)
			}

			if (part.End == 0) == (part.Size == "") {
				return fmt.Errorf("disk %s partition %d: exactly one of end and size is required", d.Filename, j)
			}

			if part.Size != "" {
				if _, err := disk.ParseSize(part.Size); err != nil {
					return fmt.Errorf("disk %s partition %d: %w", d.Filename, j, err)
				}
			}
		}
	}

	return nil
}

// Apply adds the disks of the file. Relative filenames are resolved against
// opts.Dir; opts.Raw is ignored.
func (p *FileProfile) Apply(ds *disk.DiskSet, opts Options) error {
	for _, spec := range p.Disks {
		filename := spec.Filename
		if !filepath.IsAbs(filename) {
			filename = filepath.Join(opts.Dir, filename)
		}

		d, err := ds.AddDisk(filename, spec.Size)
		if err != nil {
			return err
		}

		parts, err := resolveExtents(spec.Partitions)
		if err != nil {
			return fmt.Errorf("disk %s: %w", spec.Filename, err)
		}

		for _, part := range parts {
			if _, err := d.AddPartition(part.begin, part.end, part.fsType, part.mountPoint); err != nil {
				return fmt.Errorf("disk %s partition %d: %w", spec.Filename, part.pos, err)
			}
		}
	}

	return nil
}

type extent struct {
	pos        int
	begin, end int64
	fsType     disk.FilesystemType
	mountPoint string
}

// resolveExtents computes the begin and end of every partition and orders
// them by begin, which is the order of the written partition table. A
// partition without a begin starts where the previous one in the file ends.
func resolveExtents(specs []PartitionSpec) ([]extent, error) {
	parts := make([]extent, 0, len(specs))
	begin := int64(alignment)

	for j, part := range specs {
		if part.Begin != nil {
			begin = *part.Begin
		}

		end := part.End
		if part.Size != "" {
			size, err := disk.ParseSize(part.Size)
			if err != nil {
				return nil, fmt.Errorf("partition %d: %w", j, err)
			}

			end = begin + size
		}

		fsType, err := disk.ParseFilesystemType(part.Type)
		if err != nil {
			return nil, fmt.Errorf("partition %d: %w", j, err)
		}

		parts = append(parts, extent{pos: j, begin: begin, end: end, fsType: fsType, mountPoint: part.MountPoint})

		begin = end
	}

	sort.SliceStable(parts, func(i, j int) bool {
		return parts[i].begin < parts[j].begin
	})

	return parts, nil
}
