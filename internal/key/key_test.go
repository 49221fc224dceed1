package key_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"gotest.tools/v3/assert"

	"github.com/peak/ksort/internal/key"
)

func TestKeyCompare(t *testing.T) {
	cases := []struct {
		name     string
		a, b     key.Key
		wantLess bool
		wantEq   bool
	}{
		{"equal", key.New([]byte("k1")), key.New([]byte("k1")), false, true},
		{"less", key.New([]byte("k1")), key.New([]byte("k2")), true, false},
		{"shorter-prefix-less", key.New([]byte("k1")), key.New([]byte("k1"), []byte("x")), true, false},
		{"empty-equal", key.New(), key.New(), false, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.a.Less(c.b), c.wantLess)
			assert.Equal(t, c.a.Equal(c.b), c.wantEq)
		})
	}
}

func TestKeyCloneIndependence(t *testing.T) {
	buf := []byte("hello")
	k := key.New(buf)
	clone := k.Clone()
	buf[0] = 'X'
	if diff := cmp.Diff("hello", string(clone.Part(0))); diff != "" {
		t.Fatalf("clone mutated by source buffer write: %s", diff)
	}
}

func TestKeyProject(t *testing.T) {
	k := key.New([]byte("root"), []byte("sub"), []byte("leaf"))
	p := k.Project(1)
	assert.Equal(t, p.Len(), 1)
	assert.Equal(t, string(p.Part(0)), "root")

	wide := key.New([]byte("root")).Project(2)
	assert.Equal(t, wide.Len(), 2)
	assert.Equal(t, string(wide.Part(1)), "")
}
