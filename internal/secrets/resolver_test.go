package secrets

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveFallsThroughToEnv(t *testing.T) {
	t.Setenv("LLM_API_KEY", "sk-test-value")
	r := NewResolver(ManagedSource{})

	v, err := r.Resolve(context.Background(), "LLM_API_KEY")
	require.NoError(t, err)
	require.Equal(t, "sk-test-value", v)
}

func TestResolveCachesAcrossEnvChanges(t *testing.T) {
	t.Setenv("SIGNING_KEY", "first-value")
	r := NewResolver(ManagedSource{})

	v1, err := r.Resolve(context.Background(), "SIGNING_KEY")
	require.NoError(t, err)
	require.Equal(t, "first-value", v1)

	t.Setenv("SIGNING_KEY", "second-value")
	v2, err := r.Resolve(context.Background(), "SIGNING_KEY")
	require.NoError(t, err)
	require.Equal(t, "first-value", v2, "cached value must not change until invalidated")

	r.Invalidate("SIGNING_KEY")
	v3, err := r.Resolve(context.Background(), "SIGNING_KEY")
	require.NoError(t, err)
	require.Equal(t, "second-value", v3)
}

func TestRequireAtStartupFailsFast(t *testing.T) {
	r := NewResolver(ManagedSource{})
	_, err := r.RequireAtStartup(context.Background(), "NEVER_SET_ANYWHERE")
	require.Error(t, err)
}
