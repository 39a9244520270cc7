package ipc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLimitsConstants(t *testing.T) {
	assert.GreaterOrEqual(t, maxRequestBodyBytes, int64(1<<10))
	assert.GreaterOrEqual(t, maxWSReadBytes, 1<<10)
	assert.Positive(t, maxWSClients)
	assert.GreaterOrEqual(t, defaultInboundBurst, defaultInboundRate)
	assert.GreaterOrEqual(t, defaultSessionCreateBurst, defaultSessionCreateRate)
}
