// Package builder drives a complete build: it lays out and materializes
// the disks, mounts them, installs the guest, runs the hooks and converts
// the finished images.
package builder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/larsks/vmbuild/internal/cleanup"
	"github.com/larsks/vmbuild/internal/config"
	"github.com/larsks/vmbuild/internal/disk"
	"github.com/larsks/vmbuild/internal/firstscripts"
	"github.com/larsks/vmbuild/internal/guest"
	"github.com/larsks/vmbuild/internal/hooks"
	"github.com/larsks/vmbuild/internal/layout"
	"github.com/larsks/vmbuild/internal/runner"
)

// Installer installs the guest operating system into root.
type Installer interface {
	Install(ctx context.Context, root string, ds *disk.DiskSet) error
}

// Option configures a Builder.
type Option func(*Builder)

func WithRunner(r runner.Runner) Option {
	return func(b *Builder) {
		b.runner = r
	}
}

func WithLogger(logger *logrus.Entry) Option {
	return func(b *Builder) {
		b.logger = logger
	}
}

// WithInstaller replaces the debootstrap based guest installer.
func WithInstaller(i Installer) Option {
	return func(b *Builder) {
		b.installer = i
	}
}

// WithHandlers registers extra hook handlers after the built-in ones.
func WithHandlers(handlers ...hooks.Handler) Option {
	return func(b *Builder) {
		b.extra = append(b.extra, handlers...)
	}
}

type Builder struct {
	cfg     *config.Config
	profile layout.Profile

	runner    runner.Runner
	logger    *logrus.Entry
	installer Installer
	extra     []hooks.Handler

	cleanup *cleanup.Stack
	hooks   *hooks.Registry
	disks   *disk.DiskSet
	workdir string
}

func New(cfg *config.Config, setters ...Option) (*Builder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	profile, err := layout.Select(cfg.Layout.Profile, cfg.Layout.File)
	if err != nil {
		return nil, err
	}

	b := &Builder{cfg: cfg, profile: profile}

	for _, s := range setters {
		s(b)
	}

	if b.logger == nil {
		b.logger = logrus.WithField("component", "builder")
	}

	if b.runner == nil {
		b.runner = runner.New(runner.WithLogger(b.logger.WithField("component", "runner")))
	}

	b.cleanup = cleanup.New(b.logger.WithField("component", "cleanup"))
	b.hooks = hooks.NewRegistry(b.logger.WithField("component", "hooks"))

	if b.installer == nil {
		suite := guest.New(guestOptions(cfg), b.runner, b.cleanup, b.logger.WithField("component", "guest"))
		b.installer = suite

		if err := b.hooks.Register(suite); err != nil {
			return nil, err
		}
	}

	handlers := []hooks.Handler{
		firstscripts.New(cfg.Scripts.FirstBoot, cfg.Scripts.FirstLogin, b.logger.WithField("component", "firstscripts")),
	}

	for _, h := range append(handlers, b.extra...) {
		if err := b.hooks.Register(h); err != nil {
			return nil, err
		}
	}

	return b, nil
}

func guestOptions(cfg *config.Config) guest.Options {
	return guest.Options{
		Suite:      cfg.Guest.Suite,
		Mirror:     cfg.Guest.Mirror,
		Arch:       cfg.Guest.Arch,
		Flavour:    cfg.Guest.Flavour,
		Hostname:   cfg.Guest.Hostname,
		Domain:     cfg.Guest.Domain,
		AddPkg:     cfg.Guest.AddPkg,
		RemovePkg:  cfg.Guest.RemovePkg,
		Bootloader: cfg.Guest.Bootloader,
		DiskPrefix: cfg.DiskPrefix,
		FstabUUID:  cfg.FstabUUID,
	}
}

// Disks returns the disk set of the last Build or Plan.
func (b *Builder) Disks() *disk.DiskSet {
	return b.disks
}

// layoutDisks validates the layout and adds its disks to a fresh DiskSet
// with images in dir. Nothing is created on disk.
func (b *Builder) layoutDisks(dir string) error {
	opts, err := b.cfg.LayoutOptions(dir)
	if err != nil {
		return err
	}

	if err := b.profile.Validate(opts); err != nil {
		return fmt.Errorf("invalid %s layout: %w", b.profile.Name(), err)
	}

	b.disks = disk.NewDiskSet(
		disk.WithRunner(b.runner),
		disk.WithCleanup(b.cleanup),
		disk.WithLogger(b.logger.WithField("component", "disk")),
		disk.WithRemoveOnFailure(!b.cfg.KeepTemp),
	)

	if err := b.profile.Apply(b.disks, opts); err != nil {
		return err
	}

	if _, err := b.disks.BootPartition(); err != nil {
		return err
	}

	b.logger.Infof("using %s layout: %d disks, %d partitions", b.profile.Name(), len(b.disks.Disks()), len(b.disks.OrderedPartitions()))

	return nil
}

// makeWorkdir creates the directory holding the raw images and the mount
// tree, and registers its removal.
func (b *Builder) makeWorkdir() error {
	base := b.cfg.Workdir
	if base == "" {
		base = os.TempDir()
	}

	b.workdir = filepath.Join(base, "vmbuild-"+uuid.NewString())

	if err := os.MkdirAll(b.workdir, 0o755); err != nil {
		return fmt.Errorf("failed to create work directory: %w", err)
	}

	b.logger.Debugf("working in %s", b.workdir)

	if b.cfg.KeepTemp {
		return nil
	}

	b.cleanup.Push("remove "+b.workdir, func(context.Context) error {
		// never remove a tree that still has a guest filesystem mounted in it
		if mounted := b.disks.Mounted(); len(mounted) > 0 {
			return fmt.Errorf("not removing %s: %v still mounted", b.workdir, mounted)
		}

		return os.RemoveAll(b.workdir)
	})

	return nil
}

// Build runs the whole build and returns the paths of the finished images.
// Everything acquired along the way is released before Build returns; when
// that fails too, the cleanup errors are appended to the build error.
func (b *Builder) Build(ctx context.Context) (images []string, err error) {
	if b.cfg.Destdir == "" {
		return nil, fmt.Errorf("no destination directory given")
	}

	defer func() {
		// teardown still has to run when ctx was cancelled
		if cerr := b.cleanup.Unwind(context.WithoutCancel(ctx), err != nil); cerr != nil {
			if err == nil {
				err = cerr
				return
			}

			err = multierror.Append(err, cerr)
		}
	}()

	b.disks = disk.NewDiskSet(disk.WithRunner(b.runner), disk.WithCleanup(b.cleanup))

	if err := b.hooks.Preflight(ctx); err != nil {
		return nil, err
	}

	if err := b.makeWorkdir(); err != nil {
		return nil, err
	}

	if err := b.layoutDisks(b.workdir); err != nil {
		return nil, err
	}

	if err := b.disks.Materialize(ctx); err != nil {
		return nil, err
	}

	root := filepath.Join(b.workdir, "root")

	if err := b.disks.Mount(ctx, root); err != nil {
		return nil, err
	}

	env := &hooks.Env{
		Root:   root,
		Disks:  b.disks,
		Runner: b.runner,
		Logger: b.logger,
	}

	if err := b.hooks.PreInstall(ctx, env); err != nil {
		return nil, err
	}

	if err := b.installer.Install(ctx, root, b.disks); err != nil {
		return nil, err
	}

	if err := b.hooks.PostInstall(ctx, env); err != nil {
		return nil, err
	}

	if err := b.disks.Unmount(ctx); err != nil {
		return nil, err
	}

	if err := b.disks.UnmapAll(ctx); err != nil {
		return nil, err
	}

	return b.convert(ctx)
}

func (b *Builder) convert(ctx context.Context) ([]string, error) {
	if err := os.MkdirAll(b.cfg.Destdir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create destination directory: %w", err)
	}

	var images []string

	for _, d := range b.disks.Disks() {
		image, err := d.Convert(ctx, b.cfg.OutputFormat, b.cfg.Destdir)
		if err != nil {
			return images, err
		}

		b.logger.Infof("wrote %s", image)
		images = append(images, image)
	}

	return images, nil
}
