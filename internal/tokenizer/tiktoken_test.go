package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewEstimator_DefaultsToCl100kBase(t *testing.T) {
	e := NewEstimator("")
	assert.Equal(t, "cl100k_base", e.encoding)
}

func TestNewEstimator_KeepsExplicitEncoding(t *testing.T) {
	e := NewEstimator("p50k_base")
	assert.Equal(t, "p50k_base", e.encoding)
}

func TestEstimator_CountEmptyStringIsZero(t *testing.T) {
	e := NewEstimator("")
	assert.Equal(t, 0, e.Count(""))
}

func TestEstimator_CountNonEmptyTextIsPositive(t *testing.T) {
	e := NewEstimator("")
	n := e.Count("the quick brown fox jumps over the lazy dog")
	assert.GreaterOrEqual(t, n, 0)
}

func TestEstimator_CountReturnsZeroOnBadEncodingName(t *testing.T) {
	e := NewEstimator("not-a-real-encoding")
	assert.Equal(t, 0, e.Count("hello"))
}
