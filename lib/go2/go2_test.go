package go2_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"oss.terrastruct.com/pumlview/lib/go2"
)

func TestPointer(t *testing.T) {
	t.Parallel()

	p := go2.Pointer(false)
	assert.False(t, *p)
	*p = true
	assert.True(t, *go2.Pointer(*p))
}

func TestContains(t *testing.T) {
	t.Parallel()

	assert.True(t, go2.Contains([]string{".puml", ".pu"}, ".pu"))
	assert.False(t, go2.Contains([]string{".puml", ".pu"}, ".p"))
	assert.False(t, go2.Contains(nil, 0))
}

func TestUnique(t *testing.T) {
	t.Parallel()

	in := []string{"b.puml", "a.puml", "b.puml", "c.pu", "a.puml"}
	assert.Equal(t, []string{"b.puml", "a.puml", "c.pu"}, go2.Unique(in))
	assert.Equal(t, []string{"b.puml", "a.puml", "b.puml", "c.pu", "a.puml"}, in)
	assert.Empty(t, go2.Unique([]int(nil)))
}
