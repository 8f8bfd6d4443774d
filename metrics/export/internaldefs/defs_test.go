package internaldefs

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCumulative(t *testing.T) {
	assert.Equal(t, [8]uint64{1, 3, 6, 6, 6, 6, 6, 6}, Cumulative([]uint64{1, 2, 3}))
	assert.Equal(t, [8]uint64{}, Cumulative(nil))
}

func TestDefinitionsAreUnique(t *testing.T) {
	names := map[string]bool{}
	for _, d := range CounterDefs {
		assert.False(t, names[d.Name], "duplicate %s", d.Name)
		assert.True(t, strings.HasSuffix(d.Name, "_total"), d.Name)
		names[d.Name] = true
	}
	assert.Len(t, HistogramBounds, len(HistogramBoundSuffix))
}
