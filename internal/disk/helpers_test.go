package disk

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/larsks/vmbuild/internal/cleanup"
	"github.com/larsks/vmbuild/internal/runner"
)

// fakeRunner records every command. Unless handle says otherwise it behaves
// like the real tools just enough for the disk code: qemu-img create makes a
// sparse file and losetup reports /dev/loop7.
type fakeRunner struct {
	calls  [][]string
	handle func(args []string) (string, error)
}

func (f *fakeRunner) Run(_ context.Context, cmd runner.Command) (*runner.Result, error) {
	f.calls = append(f.calls, cmd.Args)

	if f.handle != nil {
		out, err := f.handle(cmd.Args)
		if err != nil {
			return &runner.Result{ExitCode: 1}, err
		}

		return &runner.Result{Stdout: out}, nil
	}

	return defaultResponse(cmd.Args)
}

func defaultResponse(args []string) (*runner.Result, error) {
	switch {
	case args[0] == "qemu-img" && args[1] == "create":
		mb, err := strconv.ParseInt(strings.TrimSuffix(args[5], "M"), 10, 64)
		if err != nil {
			return nil, err
		}

		f, err := os.Create(args[4])
		if err != nil {
			return nil, err
		}
		defer f.Close() //nolint:errcheck

		return &runner.Result{}, f.Truncate(mb * MiB)
	case args[0] == "losetup" && args[1] == "--find":
		return &runner.Result{Stdout: "/dev/loop7\n"}, nil
	}

	return &runner.Result{}, nil
}

// commands returns the recorded calls joined into strings.
func (f *fakeRunner) commands() []string {
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, strings.Join(c, " "))
	}

	return out
}

func newTestSet(f *fakeRunner) (*DiskSet, *cleanup.Stack) {
	stack := cleanup.New(nil)

	return NewDiskSet(WithRunner(f), WithCleanup(stack)), stack
}

// tempImage returns a path in a fresh directory that does not exist yet.
func tempImage(t *testing.T, name string) string {
	t.Helper()

	return filepath.Join(t.TempDir(), name)
}
