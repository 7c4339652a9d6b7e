// Package guest installs a Debian-style guest operating system into the
// mounted disks of a build and writes the files that tie it to the disk
// layout (fstab, grub's device.map).
package guest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/larsks/vmbuild/internal/cleanup"
	"github.com/larsks/vmbuild/internal/disk"
	"github.com/larsks/vmbuild/internal/runner"
)

// Options describes the guest to install.
type Options struct {
	Suite      string
	Mirror     string
	Arch       string
	Flavour    string
	Hostname   string
	Domain     string
	AddPkg     []string
	RemovePkg  []string
	Bootloader string

	// DiskPrefix is the device prefix the guest kernel uses, e.g. "sd".
	DiskPrefix string
	// FstabUUID selects UUID= entries in fstab.
	FstabUUID bool
}

// Suite installs a guest with debootstrap and apt.
type Suite struct {
	opts    Options
	runner  runner.Runner
	cleanup *cleanup.Stack
	logger  *logrus.Entry
}

func New(opts Options, r runner.Runner, stack *cleanup.Stack, logger *logrus.Entry) *Suite {
	if logger == nil {
		logger = logrus.WithField("component", "guest")
	}

	return &Suite{opts: opts, runner: r, cleanup: stack, logger: logger}
}

func (s *Suite) Name() string {
	return "guest"
}

// NeedsBootloader reports whether a kernel and grub are installed.
func (s *Suite) NeedsBootloader() bool {
	return s.opts.Bootloader != "none"
}

// KernelPackage returns the name of the kernel package for the flavour.
func (s *Suite) KernelPackage() string {
	return "linux-image-" + s.opts.Flavour
}

// Preflight checks the settings that debootstrap and apt would only reject
// halfway through the install.
func (s *Suite) Preflight(context.Context) error {
	if s.opts.Suite == "" {
		return fmt.Errorf("no suite given")
	}

	if s.opts.Hostname == "" || strings.ContainsAny(s.opts.Hostname, " ./") {
		return fmt.Errorf("invalid hostname: %q", s.opts.Hostname)
	}

	if s.NeedsBootloader() && s.opts.Flavour == "" {
		return fmt.Errorf("a kernel flavour is required to install a bootloader")
	}

	return nil
}

// Install installs the guest into root, where the partitions of ds are mounted.
func (s *Suite) Install(ctx context.Context, root string, ds *disk.DiskSet) error {
	i := &install{Suite: s, root: root, disks: ds}

	steps := []struct {
		name string
		fn   func(context.Context) error
		boot bool
	}{
		{"debootstrapping", i.debootstrap, false},
		{"installing fstab", i.installFstab, false},
		{"configuring guest networking", i.configNetwork, false},
		{"preventing daemons from starting", i.preventDaemons, false},
		{"mounting virtual filesystems", i.mountVirtual, true},
		{"installing kernel", i.installKernel, true},
		{"creating device.map", i.installDeviceMap, true},
		{"installing grub", i.installGrub, true},
		{"installing extra packages", i.installExtras, false},
		{"unmounting volatile filesystems", i.unmountVolatile, false},
	}

	for _, step := range steps {
		if step.boot && !s.NeedsBootloader() {
			continue
		}

		s.logger.Info(step.name)

		if err := step.fn(ctx); err != nil {
			return fmt.Errorf("%s: %w", step.name, err)
		}
	}

	return i.release(ctx)
}

// install is the state of one Install call.
type install struct {
	*Suite

	root  string
	disks *disk.DiskSet

	// released in reverse order once the install is done
	entries []*cleanup.Entry
}

func (i *install) path(p string) string {
	return filepath.Join(i.root, p)
}

func (i *install) writeFile(p, contents string, mode os.FileMode) error {
	dest := i.path(p)

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}

	if err := os.WriteFile(dest, []byte(contents), mode); err != nil {
		return err
	}

	return os.Chmod(dest, mode)
}

func (i *install) run(ctx context.Context, args ...string) error {
	_, err := i.runner.Run(ctx, runner.Cmd(args...))
	return err
}

func (i *install) runInTarget(ctx context.Context, args ...string) error {
	_, err := i.runner.Run(ctx, runner.Command{
		Args: append([]string{"chroot", i.root}, args...),
		Env:  map[string]string{"DEBIAN_FRONTEND": "noninteractive"},
	})

	return err
}

func (i *install) push(name string, fn cleanup.Func) {
	i.entries = append(i.entries, i.cleanup.Push(name, fn))
}

func (i *install) release(ctx context.Context) error {
	for len(i.entries) > 0 {
		e := i.entries[len(i.entries)-1]
		i.entries = i.entries[:len(i.entries)-1]

		if err := e.Run(ctx); err != nil {
			return err
		}
	}

	return nil
}

func (i *install) debootstrap(ctx context.Context) error {
	args := []string{"debootstrap"}
	if i.opts.Arch != "" {
		args = append(args, "--arch="+i.opts.Arch)
	}

	args = append(args, i.opts.Suite, i.root)
	if i.opts.Mirror != "" {
		args = append(args, i.opts.Mirror)
	}

	return i.run(ctx, args...)
}

func (i *install) installFstab(context.Context) error {
	return i.writeFile("/etc/fstab", Fstab(i.disks, i.opts.DiskPrefix, i.opts.FstabUUID), 0o644)
}

func (i *install) configNetwork(context.Context) error {
	if err := i.writeFile("/etc/hostname", i.opts.Hostname+"\n", 0o644); err != nil {
		return err
	}

	return i.writeFile("/etc/hosts", hostsFile(i.opts.Hostname, i.opts.Domain), 0o644)
}

func (i *install) preventDaemons(context.Context) error {
	if err := i.writeFile("/usr/sbin/policy-rc.d", policyRCD, 0o755); err != nil {
		return err
	}

	i.push("remove policy-rc.d", func(context.Context) error {
		return os.Remove(i.path("/usr/sbin/policy-rc.d"))
	})

	return nil
}

func (i *install) mountVirtual(ctx context.Context) error {
	mounts := []struct {
		target string
		args   []string
	}{
		{"/dev", []string{"mount", "--bind", "/dev", i.path("/dev")}},
		{"/proc", []string{"mount", "-t", "proc", "proc", i.path("/proc")}},
		{"/sys", []string{"mount", "-t", "sysfs", "sysfs", i.path("/sys")}},
	}

	for _, m := range mounts {
		target := i.path(m.target)

		if err := os.MkdirAll(target, 0o755); err != nil {
			return err
		}

		if err := i.run(ctx, m.args...); err != nil {
			return err
		}

		i.push("umount "+target, func(ctx context.Context) error {
			return i.run(ctx, "umount", target)
		})
	}

	return nil
}

func (i *install) installKernel(ctx context.Context) error {
	if err := i.writeFile("/etc/kernel-img.conf", kernelImgConf, 0o644); err != nil {
		return err
	}

	return i.runInTarget(ctx, "apt-get", "-y", "install", i.KernelPackage(), "grub-pc")
}

func (i *install) installDeviceMap(context.Context) error {
	return i.writeFile("/boot/grub/device.map", DeviceMap(i.disks, i.opts.DiskPrefix), 0o644)
}

// installGrub installs grub to the disk holding / and points the generated
// config at the guest's root device rather than the loop device seen in
// the chroot.
func (i *install) installGrub(ctx context.Context) error {
	boot, err := i.disks.BootPartition()
	if err != nil {
		return err
	}

	if err := i.runInTarget(ctx, "grub-install", "--target=i386-pc", "--modules=part_msdos", boot.Disk().LoopDevice()); err != nil {
		return err
	}

	if err := i.runInTarget(ctx, "update-grub"); err != nil {
		return err
	}

	rootDevice, err := RootDevice(i.disks, i.opts.DiskPrefix, i.opts.FstabUUID)
	if err != nil {
		return err
	}

	return i.run(ctx, "sed", "-i", fmt.Sprintf("s#%s#%s#g", boot.Device(), rootDevice), i.path("/boot/grub/grub.cfg"))
}

func (i *install) installExtras(ctx context.Context) error {
	if len(i.opts.AddPkg) == 0 && len(i.opts.RemovePkg) == 0 {
		return nil
	}

	args := []string{"apt-get", "install", "-y"}
	args = append(args, i.opts.AddPkg...)

	for _, pkg := range i.opts.RemovePkg {
		args = append(args, pkg+"-")
	}

	return i.runInTarget(ctx, args...)
}

func (i *install) unmountVolatile(ctx context.Context) error {
	matches, err := filepath.Glob(i.path("/lib/modules/*/volatile"))
	if err != nil {
		return err
	}

	for _, m := range matches {
		i.logger.Debugf("unmounting %s", m)

		if err := i.run(ctx, "umount", m); err != nil {
			return err
		}
	}

	return nil
}
