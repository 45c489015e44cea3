package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersionIsTrimmedAndPrefixed(t *testing.T) {
	v := Get()
	assert.NotEmpty(t, v)
	assert.Equal(t, byte('v'), v[0])
	assert.NotContains(t, v, "\n")
}
