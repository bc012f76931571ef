package procurement

import (
	"testing"

	"go.llib.dev/testcase/assert"
)

func TestRound2(t *testing.T) {
	for in, want := range map[float64]float64{
		2.125:   2.12,
		2.375:   2.38,
		47250.0: 47250,
	} {
		assert.Equal(t, want, round2(in), assert.MessageF("round2(%v)", in))
	}
}
