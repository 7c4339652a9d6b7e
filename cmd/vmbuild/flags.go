package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/larsks/vmbuild/internal/config"
)

func addLayoutFlags(fs *pflag.FlagSet) {
	def := config.Default()

	options.rootSize = def.Layout.RootSize
	options.swapSize = def.Layout.SwapSize
	options.optSize = def.Layout.OptSize
	options.bootSize = def.Layout.BootSize

	fs.StringVarP(&options.profile, "profile", "p", def.Layout.Profile, "layout profile to use (default, single, boot)")
	fs.StringVar(&options.layoutFile, "layout-file", "", "read the disk layout from a YAML file")
	fs.Var(&options.rootSize, "rootsize", "size of the root partition (e.g. 4096, 4G)")
	fs.Var(&options.swapSize, "swapsize", "size of the swap partition")
	fs.Var(&options.optSize, "optsize", "size of the /opt partition, 0 for none")
	fs.Var(&options.bootSize, "bootsize", "size of the /boot partition (boot profile)")
	fs.StringVar(&options.filesystem, "filesystem", def.Layout.Filesystem, "filesystem for root and /opt (ext2, ext3, ext4, xfs)")
	fs.StringVar(&options.raw, "raw", "", "use an existing image file instead of creating a disk")
	fs.StringVar(&options.diskPrefix, "disk-prefix", def.DiskPrefix, "device prefix the guest uses for its disks (sd, vd, hd)")
	fs.StringVar(&options.workdir, "workdir", "", "directory for temporary files")
}

func addBuildFlags(fs *pflag.FlagSet) {
	def := config.Default()

	fs.StringVarP(&options.outputFormat, "format", "f", def.OutputFormat, "output image format (raw, qcow2, vmdk, vdi, vpc, vhdx)")
	fs.StringVarP(&options.destdir, "destdir", "d", "", "directory the finished images are written to")
	fs.BoolVar(&options.keepTemp, "keep-temp", false, "keep temporary files after the build")
	fs.BoolVar(&options.fstabUUID, "fstab-uuid", false, "use UUID= entries in fstab")

	fs.StringVar(&options.suite, "suite", def.Guest.Suite, "suite to install")
	fs.StringVar(&options.mirror, "mirror", def.Guest.Mirror, "package mirror")
	fs.StringVar(&options.arch, "arch", def.Guest.Arch, "guest architecture")
	fs.StringVar(&options.flavour, "flavour", def.Guest.Flavour, "kernel flavour")
	fs.StringVar(&options.hostname, "hostname", def.Guest.Hostname, "guest hostname")
	fs.StringVar(&options.domain, "domain", def.Guest.Domain, "guest domain")
	fs.StringSliceVar(&options.addPkg, "addpkg", nil, "install an extra package (may be repeated)")
	fs.StringSliceVar(&options.removePkg, "removepkg", nil, "remove a package (may be repeated)")
	fs.StringVar(&options.bootloader, "bootloader", def.Guest.Bootloader, "bootloader to install (grub, none)")

	fs.StringVar(&options.firstBoot, "firstboot", "", "script run once on the first boot of the guest")
	fs.StringVar(&options.firstLogin, "firstlogin", "", "script run once on the first login to the guest")
}

// apply copies the flags that were given on the command line into cfg.
func (o *Options) apply(cmd *cobra.Command, cfg *config.Config) {
	fs := cmd.Flags()

	set := func(name string, fn func()) {
		if f := fs.Lookup(name); f != nil && f.Changed {
			fn()
		}
	}

	set("log-level", func() { cfg.LogLevel = o.logLevel })
	set("workdir", func() { cfg.Workdir = o.workdir })
	set("destdir", func() { cfg.Destdir = o.destdir })
	set("format", func() { cfg.OutputFormat = o.outputFormat })
	set("keep-temp", func() { cfg.KeepTemp = o.keepTemp })
	set("disk-prefix", func() { cfg.DiskPrefix = o.diskPrefix })
	set("fstab-uuid", func() { cfg.FstabUUID = o.fstabUUID })

	set("profile", func() { cfg.Layout.Profile = o.profile })
	set("layout-file", func() { cfg.Layout.File = o.layoutFile })
	set("rootsize", func() { cfg.Layout.RootSize = o.rootSize })
	set("swapsize", func() { cfg.Layout.SwapSize = o.swapSize })
	set("optsize", func() { cfg.Layout.OptSize = o.optSize })
	set("bootsize", func() { cfg.Layout.BootSize = o.bootSize })
	set("filesystem", func() { cfg.Layout.Filesystem = o.filesystem })
	set("raw", func() { cfg.Layout.Raw = o.raw })

	set("suite", func() { cfg.Guest.Suite = o.suite })
	set("mirror", func() { cfg.Guest.Mirror = o.mirror })
	set("arch", func() { cfg.Guest.Arch = o.arch })
	set("flavour", func() { cfg.Guest.Flavour = o.flavour })
	set("hostname", func() { cfg.Guest.Hostname = o.hostname })
	set("domain", func() { cfg.Guest.Domain = o.domain })
	set("addpkg", func() { cfg.Guest.AddPkg = o.addPkg })
	set("removepkg", func() { cfg.Guest.RemovePkg = o.removePkg })
	set("bootloader", func() { cfg.Guest.Bootloader = o.bootloader })

	set("firstboot", func() { cfg.Scripts.FirstBoot = o.firstBoot })
	set("firstlogin", func() { cfg.Scripts.FirstLogin = o.firstLogin })
}
