package command

import (
	"fmt"
	"testing"

	"gotest.tools/v3/assert"
)

func TestCleanupErrorCollapsesWhitespace(t *testing.T) {
	err := fmt.Errorf("line one\nline  two\twith a tab")
	got := cleanupError(err)
	assert.Equal(t, got, "line one line two with a tab")
}

func TestCleanupErrorTrimsSurroundingSpace(t *testing.T) {
	err := fmt.Errorf("  padded  ")
	assert.Equal(t, cleanupError(err), "padded")
}
