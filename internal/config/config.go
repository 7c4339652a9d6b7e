// Package config holds the settings of a build, read from a TOML file and
// overridden by command line flags.
package config

import (
	"fmt"
	"io"
	"slices"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"

	"github.com/larsks/vmbuild/internal/disk"
	"github.com/larsks/vmbuild/internal/layout"
)

// DefaultPath is where the CLI looks for a config file when none is given.
const DefaultPath = "/etc/vmbuild/vmbuild.toml"

// OutputFormats are the qemu-img formats an image can be converted to.
var OutputFormats = []string{"raw", "qcow2", "vmdk", "vdi", "vpc", "vhdx"}

type Layout struct {
	Profile    string `toml:"profile"`
	File       string `toml:"file,omitempty"`
	RootSize   Size   `toml:"rootsize"`
	SwapSize   Size   `toml:"swapsize"`
	OptSize    Size   `toml:"optsize"`
	BootSize   Size   `toml:"bootsize"`
	Filesystem string `toml:"filesystem"`
	Raw        string `toml:"raw,omitempty"`
}

type Guest struct {
	Suite      string   `toml:"suite"`
	Mirror     string   `toml:"mirror"`
	Arch       string   `toml:"arch"`
	Flavour    string   `toml:"flavour"`
	Hostname   string   `toml:"hostname"`
	Domain     string   `toml:"domain"`
	AddPkg     []string `toml:"addpkg,omitempty"`
	RemovePkg  []string `toml:"removepkg,omitempty"`
	Bootloader string   `toml:"bootloader"`
}

type Scripts struct {
	FirstBoot  string `toml:"firstboot,omitempty"`
	FirstLogin string `toml:"firstlogin,omitempty"`
}

type Config struct {
	Workdir      string `toml:"workdir,omitempty"`
	Destdir      string `toml:"destdir,omitempty"`
	OutputFormat string `toml:"output_format"`
	KeepTemp     bool   `toml:"keep_temp"`
	LogLevel     string `toml:"log_level"`
	DiskPrefix   string `toml:"disk_prefix"`
	FstabUUID    bool   `toml:"fstab_uuid"`

	Layout  Layout  `toml:"layout"`
	Guest   Guest   `toml:"guest"`
	Scripts Scripts `toml:"scripts"`
}

func Default() *Config {
	return &Config{
		OutputFormat: "qcow2",
		LogLevel:     "info",
		DiskPrefix:   "sd",
		Layout: Layout{
			Profile:    "default",
			RootSize:   4096,
			SwapSize:   1024,
			OptSize:    0,
			BootSize:   256,
			Filesystem: string(disk.FilesystemExt3),
		},
		Guest: Guest{
			Suite:      "noble",
			Mirror:     "http://archive.ubuntu.com/ubuntu",
			Arch:       "amd64",
			Flavour:    "generic",
			Hostname:   "ubuntu",
			Domain:     "localdomain",
			Bootloader: "grub",
		},
	}
}

// Load decodes the TOML file name over the defaults.
func Load(name string) (*Config, error) {
	c := Default()

	md, err := toml.DecodeFile(name, c)
	if err != nil {
		return nil, err
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown keys in %s: %v", name, undecoded)
	}

	return c, nil
}

// Dump writes c as TOML.
func Dump(c *Config, w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}

// Validate checks the values that are not checked by the components that
// use them.
func (c *Config) Validate() error {
	if !slices.Contains(OutputFormats, c.OutputFormat) {
		return fmt.Errorf("unknown output format: %s (valid options: %v)", c.OutputFormat, OutputFormats)
	}

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return err
	}

	if _, err := disk.ParseFilesystemType(c.Layout.Filesystem); err != nil {
		return err
	}

	switch c.Guest.Bootloader {
	case "grub", "none":
	default:
		return fmt.Errorf("unknown bootloader: %s (valid options: grub, none)", c.Guest.Bootloader)
	}

	return nil
}

// LayoutOptions returns the layout settings for images created in dir.
func (c *Config) LayoutOptions(dir string) (layout.Options, error) {
	fsType, err := disk.ParseFilesystemType(c.Layout.Filesystem)
	if err != nil {
		return layout.Options{}, err
	}

	return layout.Options{
		Dir:        dir,
		Raw:        c.Layout.Raw,
		RootSize:   int64(c.Layout.RootSize),
		SwapSize:   int64(c.Layout.SwapSize),
		OptSize:    int64(c.Layout.OptSize),
		BootSize:   int64(c.Layout.BootSize),
		Filesystem: fsType,
	}, nil
}
