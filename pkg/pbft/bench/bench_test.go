package bench

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/murmesh/pkg/xcrypto"
)

func TestRunCompletesAllClosedLoopInvocations(t *testing.T) {
	result, err := Run(Config{
		Replicas:     4,
		Clients:      3,
		OpsPerClient: 5,
		CryptoFlavor: xcrypto.Plain,
	})
	require.NoError(t, err)

	assert.Equal(t, 15, result.TotalOps)
	assert.Greater(t, result.Elapsed, time.Duration(0))
	assert.Greater(t, result.Throughput, 0.0)
	assert.Greater(t, result.MeanLatency, time.Duration(0))
}
