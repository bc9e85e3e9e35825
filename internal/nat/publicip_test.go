package nat

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/edgefip/internal/gateway"
	"github.com/imamik/edgefip/internal/platform/memory"
	"github.com/imamik/edgefip/internal/task"
)

func TestPublicIPPool_AllocateAndRelease(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	gw := memory.NewGateway("edge", "1.1.1.1").WithSpareIPs("1.1.1.7")
	m := NewMetrics(prometheus.NewRegistry())
	p := NewPublicIPPool(testWaiter())
	p.Metrics = m

	address, err := p.Allocate(ctx, gw)
	require.NoError(t, err)
	assert.Equal(t, "1.1.1.7", address)

	require.NoError(t, p.Release(ctx, gw, address))
	pool, err := gw.PublicIPs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"1.1.1.1"}, pool)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.publicIPs.WithLabelValues("allocate", "applied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.publicIPs.WithLabelValues("deallocate", "applied")))
}

func TestPublicIPPool_Declined(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	gw := memory.NewGateway("edge", "1.1.1.1")
	m := NewMetrics(prometheus.NewRegistry())
	p := NewPublicIPPool(testWaiter())
	p.Metrics = m

	_, err := p.Allocate(ctx, gw)
	var reqErr *gateway.PublicIPRequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, "allocate", reqErr.Action)

	err = p.Release(ctx, gw, "9.9.9.9")
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, "9.9.9.9", reqErr.Address)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.publicIPs.WithLabelValues("allocate", "rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.publicIPs.WithLabelValues("deallocate", "rejected")))
}

func TestPublicIPPool_TaskFailure(t *testing.T) {
	t.Parallel()
	gw := memory.NewGateway("edge").WithSpareIPs("1.1.1.7")
	gw.ScriptTasks("quota exceeded", gateway.TaskRunning, gateway.TaskError)
	m := NewMetrics(prometheus.NewRegistry())
	p := NewPublicIPPool(task.NewWaiter(time.Millisecond, time.Second))
	p.Metrics = m

	_, err := p.Allocate(context.Background(), gw)
	require.ErrorIs(t, err, gateway.ErrPublicIPRequest)
	require.ErrorIs(t, err, gateway.ErrRemoteOperationFailed)
	assert.ErrorContains(t, err, "quota exceeded")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.publicIPs.WithLabelValues("allocate", "failed")))
}
