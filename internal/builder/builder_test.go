package builder

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/larsks/vmbuild/internal/config"
	"github.com/larsks/vmbuild/internal/disk"
	"github.com/larsks/vmbuild/internal/hooks"
	"github.com/larsks/vmbuild/internal/runner"
	"github.com/larsks/vmbuild/internal/runner/mocks"
)

func isCommand(args ...string) any {
	return mock.MatchedBy(func(c runner.Command) bool {
		if len(c.Args) < len(args) {
			return false
		}

		for i, a := range args {
			if c.Args[i] != a {
				return false
			}
		}

		return true
	})
}

func newRunner(overrides func(m *mocks.Runner)) *mocks.Runner {
	m := &mocks.Runner{}
	if overrides != nil {
		overrides(m)
	}

	m.On("Run", mock.Anything, isCommand("losetup", "--find")).Return(&runner.Result{Stdout: "/dev/loop0\n"}, nil)
	m.On("Run", mock.Anything, mock.Anything).Return(&runner.Result{}, nil)

	return m
}

func programs(m *mocks.Runner) []string {
	var out []string

	for _, call := range m.Calls {
		cmd := call.Arguments.Get(1).(runner.Command)
		out = append(out, strings.Join(cmd.Args[:2], " "))
	}

	return out
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.Default()
	cfg.Workdir = t.TempDir()
	cfg.Destdir = filepath.Join(t.TempDir(), "images")
	cfg.Layout.Profile = "single"
	cfg.Layout.RootSize = 100
	cfg.Layout.SwapSize = 0

	return cfg
}

type fakeInstaller struct {
	root string
	err  error
}

func (f *fakeInstaller) Install(_ context.Context, root string, ds *disk.DiskSet) error {
	f.root = root
	return f.err
}

type recordingHandler struct {
	hooks.Base
	calls []string
}

func (h *recordingHandler) Name() string { return "recorder" }

func (h *recordingHandler) PreInstall(_ context.Context, env *hooks.Env) error {
	h.calls = append(h.calls, "pre:"+filepath.Base(env.Root))
	return nil
}

func (h *recordingHandler) PostInstall(_ context.Context, env *hooks.Env) error {
	h.calls = append(h.calls, "post:"+filepath.Base(env.Root))
	return nil
}

func TestBuild(t *testing.T) {
	cfg := testConfig(t)
	m := newRunner(nil)
	installer := &fakeInstaller{}
	handler := &recordingHandler{}

	b, err := New(cfg, WithRunner(m), WithInstaller(installer), WithHandlers(handler))
	require.NoError(t, err)

	images, err := b.Build(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{filepath.Join(cfg.Destdir, "disk0.qcow2")}, images)
	assert.Equal(t, []string{
		"qemu-img create",
		"parted --script",
		"losetup --find",
		"mkfs.ext3 -F",
		"mount /dev/loop0p1",
		"umount " + installer.root,
		"losetup -d",
		"qemu-img convert",
	}, programs(m))

	assert.Equal(t, []string{"pre:root", "post:root"}, handler.calls)
	assert.DirExists(t, cfg.Destdir)

	// the work directory is gone
	entries, err := os.ReadDir(cfg.Workdir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestBuildKeepTemp(t *testing.T) {
	cfg := testConfig(t)
	cfg.KeepTemp = true

	b, err := New(cfg, WithRunner(newRunner(nil)), WithInstaller(&fakeInstaller{}))
	require.NoError(t, err)

	_, err = b.Build(context.Background())
	require.NoError(t, err)

	entries, err := os.ReadDir(cfg.Workdir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Name(), "vmbuild-"))
}

func TestBuildInstallFailure(t *testing.T) {
	cfg := testConfig(t)
	m := newRunner(nil)
	installErr := errors.New("debootstrap failed")

	b, err := New(cfg, WithRunner(m), WithInstaller(&fakeInstaller{err: installErr}))
	require.NoError(t, err)

	images, err := b.Build(context.Background())
	require.ErrorIs(t, err, installErr)
	assert.Empty(t, images)

	// torn down in reverse order of acquisition
	assert.Equal(t, []string{
		"qemu-img create",
		"parted --script",
		"losetup --find",
		"mkfs.ext3 -F",
		"mount /dev/loop0p1",
		"umount " + filepath.Join(b.workdir, "root"),
		"losetup -d",
	}, programs(m))

	assert.NoDirExists(t, b.workdir)
	assert.NoDirExists(t, cfg.Destdir)
}

func TestBuildCleanupErrorsDoNotMaskBuildError(t *testing.T) {
	cfg := testConfig(t)
	installErr := errors.New("debootstrap failed")

	m := newRunner(func(m *mocks.Runner) {
		m.On("Run", mock.Anything, isCommand("umount")).Return(nil, errors.New("target is busy"))
	})

	b, err := New(cfg, WithRunner(m), WithInstaller(&fakeInstaller{err: installErr}))
	require.NoError(t, err)

	_, err = b.Build(context.Background())
	require.ErrorIs(t, err, installErr)
	assert.Contains(t, err.Error(), "target is busy")

	// the tree is left alone while the guest filesystem is still mounted
	assert.Contains(t, err.Error(), "still mounted")
	assert.DirExists(t, b.workdir)
}

func TestBuildPreflightFailure(t *testing.T) {
	cfg := testConfig(t)
	cfg.Scripts.FirstBoot = filepath.Join(t.TempDir(), "missing.sh")
	m := newRunner(nil)

	b, err := New(cfg, WithRunner(m), WithInstaller(&fakeInstaller{}))
	require.NoError(t, err)

	_, err = b.Build(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "first-boot script")
	m.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
}

func TestBuildInvalidLayout(t *testing.T) {
	cfg := testConfig(t)
	cfg.Layout.SwapSize = 256
	m := newRunner(nil)

	b, err := New(cfg, WithRunner(m), WithInstaller(&fakeInstaller{}))
	require.NoError(t, err)

	_, err = b.Build(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid single layout")
	m.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
}

func TestBuildRequiresDestdir(t *testing.T) {
	cfg := testConfig(t)
	cfg.Destdir = ""

	b, err := New(cfg, WithRunner(newRunner(nil)), WithInstaller(&fakeInstaller{}))
	require.NoError(t, err)

	_, err = b.Build(context.Background())
	assert.Error(t, err)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.OutputFormat = "iso"

	_, err := New(cfg)
	assert.Error(t, err)

	cfg = testConfig(t)
	cfg.Layout.Profile = "raspberrypi"

	_, err = New(cfg)
	assert.Error(t, err)
}

func TestNewRegistersHandlers(t *testing.T) {
	b, err := New(testConfig(t), WithRunner(newRunner(nil)))
	require.NoError(t, err)

	var names []string
	for _, h := range b.hooks.Handlers() {
		names = append(names, h.Name())
	}

	assert.Equal(t, []string{"guest", "firstscripts"}, names)
}

func TestPlan(t *testing.T) {
	cfg := testConfig(t)
	cfg.Layout.Profile = "default"
	cfg.Layout.RootSize = 1024
	cfg.Layout.SwapSize = 256
	m := newRunner(nil)

	b, err := New(cfg, WithRunner(m), WithInstaller(&fakeInstaller{}))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, b.Plan(&buf))

	out := buf.String()
	assert.Contains(t, out, "/dev/sda ")
	assert.Contains(t, out, "/dev/sda1")
	assert.Contains(t, out, "(hd0,1)")
	assert.Contains(t, out, "1.3 GiB")
	assert.Contains(t, out, "root=/dev/sda1")
	assert.Contains(t, out, "(hd0) /dev/sda")
	assert.Contains(t, out, "proc                                            /proc")

	m.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
	assert.NoDirExists(t, filepath.Join(cfg.Workdir, "vmbuild-plan"))
}
