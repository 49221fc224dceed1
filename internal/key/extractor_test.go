package key_test

import (
	"testing"

	"gotest.tools/v3/assert"

	"github.com/peak/ksort/internal/key"
	"github.com/peak/ksort/internal/reader"
)

func TestExtractorParseNext(t *testing.T) {
	buf := []byte("k2;a\nk1;b\nk2;c\n")
	e := key.NewExtractor([]int{0}, ';')

	var keys []string
	pos := 0
	for pos < len(buf) {
		k, _, end, status := e.ParseNext(buf, pos)
		assert.Equal(t, status, reader.OK)
		keys = append(keys, string(k.Part(0)))
		pos = end
	}
	assert.DeepEqual(t, keys, []string{"k2", "k1", "k2"})
}

func TestExtractorShortLine(t *testing.T) {
	buf := []byte("onlyonefield\n")
	e := key.NewExtractor([]int{0, 1}, ';')
	k, _, _, status := e.ParseNext(buf, 0)
	assert.Equal(t, status, reader.FieldCountShort)
	assert.Equal(t, string(k.Part(1)), "")
}

func TestExtractorQuotedSeparator(t *testing.T) {
	buf := []byte(`"a;b";c` + "\n")
	e := key.NewExtractor([]int{0}, ';')
	k, _, _, status := e.ParseNext(buf, 0)
	assert.Equal(t, status, reader.OK)
	assert.Equal(t, string(k.Part(0)), "a;b")
}
