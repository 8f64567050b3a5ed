package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLineAmount(t *testing.T) {
	v, ok := Price{UnitAmount: 1200}.LineAmount(3)
	assert.True(t, ok)
	assert.Equal(t, int64(3600), v)

	_, ok = Price{UnitAmount: 2}.LineAmount(math.MaxInt64/2 + 1)
	assert.False(t, ok)

	_, ok = Price{UnitAmount: 500}.LineAmount(-1)
	assert.False(t, ok)

	v, ok = Price{}.LineAmount(math.MaxInt64)
	assert.True(t, ok)
	assert.Zero(t, v)
}
