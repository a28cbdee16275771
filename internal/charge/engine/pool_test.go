package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChargeablePool(t *testing.T) {
	owners := map[string]string{"ph": "host", "p1": "u1", "p2": "u2", "orphan": ""}
	attending := []string{"p2", "ph", "p1", "orphan"}

	on := NewHostExemption(true, []string{"host"}, owners)
	off := NewHostExemption(false, []string{"host"}, owners)

	assert.Equal(t, []string{"p2", "p1", "orphan"}, ChargeablePool(attending, on))
	assert.Equal(t, attending, ChargeablePool(attending, off))
	assert.Empty(t, ChargeablePool([]string{"ph"}, on))
	assert.NotNil(t, ChargeablePool(nil, on))
	assert.True(t, on.IsHost("ph"))
	assert.False(t, on.IsHost("orphan"))
}

func TestPayorResolverPrecedence(t *testing.T) {
	overrides := map[string]string{"a": "override"}
	defaults := map[string]string{"a": "default-a", "b": "default-b"}
	owners := map[string]string{"a": "owner-a", "b": "owner-b", "c": "owner-c", "d": ""}

	r := NewPayorResolver(overrides, defaults, owners)

	assert.Equal(t, "override", r.Resolve("a"))
	assert.Equal(t, "default-b", r.Resolve("b"))
	assert.Equal(t, "owner-c", r.Resolve("c"))
	assert.Equal(t, "d", r.Resolve("d"))
	assert.Equal(t, "e", r.Resolve("e"))
	assert.Equal(t, "x", NewPayorResolver().Resolve("x"))
}
