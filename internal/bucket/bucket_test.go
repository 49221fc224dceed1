package bucket_test

import (
	"testing"

	"gotest.tools/v3/assert"

	"github.com/peak/ksort/internal/bucket"
	"github.com/peak/ksort/internal/key"
)

func TestSetPartitionsKeySpace(t *testing.T) {
	splits := []key.Key{key.New([]byte("m")), key.New([]byte("t"))}
	set := bucket.NewSet(splits)
	assert.Equal(t, set.Len(), 3)

	cases := []struct {
		k        string
		wantID   int
	}{
		{"a", 0},
		{"m", 0},
		{"n", 1},
		{"t", 1},
		{"u", 2},
		{"zzz", 2},
	}
	for _, c := range cases {
		got := set.Lookup(key.New([]byte(c.k)))
		assert.Equal(t, got.ID, c.wantID, "key %q", c.k)
	}
}

func TestBucketSingleton(t *testing.T) {
	k := key.New([]byte("x"))
	b := bucket.NewBucket(0, bucket.InclusiveBound(k), bucket.InclusiveBound(k))
	assert.Equal(t, b.Singleton(), true)
}

func TestBucketAppendAndDrain(t *testing.T) {
	b := bucket.NewBucket(0, bucket.NoBound, bucket.NoBound)
	n := b.AppendRecord([]byte("hello\n"))
	assert.Equal(t, n, int64(6))
	recs, total := b.DrainInMemory()
	assert.Equal(t, len(recs), 1)
	assert.Equal(t, total, int64(6))
	assert.Equal(t, b.InMemoryBytes(), int64(0))
}
