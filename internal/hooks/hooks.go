// Package hooks lets optional components take part in a build. A handler
// implements any of the capability interfaces below and is called, in
// registration order, at the matching point of the build.
package hooks

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/larsks/vmbuild/internal/disk"
	"github.com/larsks/vmbuild/internal/runner"
)

// Env is what a handler sees of a running build.
type Env struct {
	// Root is the directory the guest filesystem is mounted on.
	Root   string
	Disks  *disk.DiskSet
	Runner runner.Runner
	Logger *logrus.Entry
}

// Handler is anything that can be registered.
type Handler interface {
	Name() string
}

// PreflightChecker validates settings before any disk is touched.
type PreflightChecker interface {
	Handler
	Preflight(ctx context.Context) error
}

// PreInstaller runs after the disks are mounted, before the guest is installed.
type PreInstaller interface {
	Handler
	PreInstall(ctx context.Context, env *Env) error
}

// PostInstaller runs after the guest is installed, before the disks are unmounted.
type PostInstaller interface {
	Handler
	PostInstall(ctx context.Context, env *Env) error
}

// Base provides no-op implementations of every capability. Embed it and
// override what is needed.
type Base struct{}

func (Base) Preflight(context.Context) error { return nil }

func (Base) PreInstall(context.Context, *Env) error { return nil }

func (Base) PostInstall(context.Context, *Env) error { return nil }

// Registry is the ordered list of handlers of a build.
type Registry struct {
	handlers []Handler
	logger   *logrus.Entry
}

func NewRegistry(logger *logrus.Entry) *Registry {
	if logger == nil {
		logger = logrus.WithField("component", "hooks")
	}

	return &Registry{logger: logger}
}

// Register appends h. Registering the same name twice is an error.
func (r *Registry) Register(h Handler) error {
	for _, other := range r.handlers {
		if other.Name() == h.Name() {
			return fmt.Errorf("handler %s is already registered", h.Name())
		}
	}

	r.handlers = append(r.handlers, h)

	return nil
}

// Handlers returns the registered handlers in order.
func (r *Registry) Handlers() []Handler {
	return append([]Handler(nil), r.handlers...)
}

// each calls fn for every handler implementing T, stopping at the first error.
func each[T Handler](r *Registry, phase string, fn func(T) error) error {
	for _, h := range r.handlers {
		t, ok := h.(T)
		if !ok {
			continue
		}

		r.logger.Debugf("running %s hook of %s", phase, h.Name())

		if err := fn(t); err != nil {
			return fmt.Errorf("%s %s: %w", h.Name(), phase, err)
		}
	}

	return nil
}

func (r *Registry) Preflight(ctx context.Context) error {
	return each(r, "preflight", func(h PreflightChecker) error {
		return h.Preflight(ctx)
	})
}

func (r *Registry) PreInstall(ctx context.Context, env *Env) error {
	return each(r, "pre-install", func(h PreInstaller) error {
		return h.PreInstall(ctx, env)
	})
}

func (r *Registry) PostInstall(ctx context.Context, env *Env) error {
	return each(r, "post-install", func(h PostInstaller) error {
		return h.PostInstall(ctx, env)
	})
}
