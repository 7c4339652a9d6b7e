package hooks

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	Base
	name  string
	calls *[]string
	fail  string
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) record(phase string) error {
	*r.calls = append(*r.calls, r.name+":"+phase)
	if r.fail == phase {
		return errors.New("boom")
	}

	return nil
}

func (r *recorder) Preflight(context.Context) error { return r.record("preflight") }

func (r *recorder) PostInstall(context.Context, *Env) error { return r.record("post") }

// preOnly implements a single capability without Base.
type preOnly struct {
	calls *[]string
}

func (p *preOnly) Name() string { return "pre-only" }

func (p *preOnly) PreInstall(_ context.Context, env *Env) error {
	*p.calls = append(*p.calls, "pre-only:pre:"+env.Root)
	return nil
}

func TestRegistryOrder(t *testing.T) {
	var calls []string

	r := NewRegistry(nil)
	require.NoError(t, r.Register(&recorder{name: "first", calls: &calls}))
	require.NoError(t, r.Register(&preOnly{calls: &calls}))
	require.NoError(t, r.Register(&recorder{name: "second", calls: &calls}))

	ctx := context.Background()
	env := &Env{Root: "/target"}

	require.NoError(t, r.Preflight(ctx))
	require.NoError(t, r.PreInstall(ctx, env))
	require.NoError(t, r.PostInstall(ctx, env))

	assert.Equal(t, []string{
		"first:preflight", "second:preflight",
		"pre-only:pre:/target",
		"first:post", "second:post",
	}, calls)
	assert.Len(t, r.Handlers(), 3)
}

func TestRegistryStopsAtFirstError(t *testing.T) {
	var calls []string

	r := NewRegistry(nil)
	require.NoError(t, r.Register(&recorder{name: "first", calls: &calls, fail: "post"}))
	require.NoError(t, r.Register(&recorder{name: "second", calls: &calls}))

	err := r.PostInstall(context.Background(), &Env{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "first post-install: boom")
	assert.Equal(t, []string{"first:post"}, calls)
}

func TestRegisterDuplicate(t *testing.T) {
	var calls []string

	r := NewRegistry(nil)
	require.NoError(t, r.Register(&recorder{name: "dup", calls: &calls}))
	assert.Error(t, r.Register(&recorder{name: "dup", calls: &calls}))
}

func TestBaseIsNoop(t *testing.T) {
	var b Base

	assert.NoError(t, b.Preflight(context.Background()))
	assert.NoError(t, b.PreInstall(context.Background(), nil))
	assert.NoError(t, b.PostInstall(context.Background(), nil))
}
