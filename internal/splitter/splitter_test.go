package splitter_test

import (
	"fmt"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/peak/ksort/internal/key"
	"github.com/peak/ksort/internal/splitter"
	"github.com/peak/ksort/internal/xrand"
)

func sampleKeys(n int) []key.Key {
	out := make([]key.Key, n)
	for i := 0; i < n; i++ {
		out[i] = key.New([]byte(fmt.Sprintf("k%06d", i)))
	}
	return out
}

func TestChooseReturnsAscendingSplits(t *testing.T) {
	keys := sampleKeys(5000)
	splits := splitter.Choose(keys, 3, 16, 4, xrand.New(11))
	assert.Equal(t, len(splits) > 0, true)
	assert.Equal(t, len(splits) <= 16, true)
	for i := 1; i < len(splits); i++ {
		assert.Equal(t, splits[i-1].Less(splits[i]), true)
	}
}

func TestChooseSmallSampleUsesEqualWidth(t *testing.T) {
	keys := sampleKeys(4)
	splits := splitter.Choose(keys, 3, 16, 2, xrand.New(1))
	assert.Equal(t, len(splits) <= 3, true)
	for i := 1; i < len(splits); i++ {
		assert.Equal(t, splits[i-1].Less(splits[i]), true)
	}
}

func TestRequiredSampleSizeGrowsWithMinSplits(t *testing.T) {
	small := splitter.RequiredSampleSize(3)
	large := splitter.RequiredSampleSize(300)
	assert.Equal(t, large > small, true)
}
