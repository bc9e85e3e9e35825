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

func TestMetrics_NilIsNoop(t *testing.T) {
	t.Parallel()
	var m *Metrics
	m.ObserveTaskWait(1, time.Second, nil)
	m.ruleRequest("create", gateway.SNAT, nil)
	m.commit(true, nil)
	m.publicIPRequest("allocate", nil)
}

func TestMetrics_RecordsAllocatorAndPersistor(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	waiter := task.NewWaiter(time.Millisecond, time.Second, task.WithObserver(m))
	ctx := context.Background()

	gw := memory.NewGateway("edge", "1.2.3.4")
	a := NewAllocator(waiter)
	a.Metrics = m
	require.NoError(t, a.CreatePair(ctx, gw, "10.0.0.5", "1.2.3.4"))

	gw.Reject("del", gateway.SNAT, "locked")
	require.Error(t, a.DeletePair(ctx, gw, "10.0.0.5", "1.2.3.4"))

	p := NewPersistor(waiter)
	p.Metrics = m
	gw.SetBusy(true)
	applied, err := p.Commit(ctx, gw)
	require.NoError(t, err)
	assert.False(t, applied)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ruleRequests.WithLabelValues("create", "SNAT", "applied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ruleRequests.WithLabelValues("create", "DNAT", "applied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ruleRequests.WithLabelValues("delete", "SNAT", "rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.commits.WithLabelValues("busy")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.taskPolls))
	assert.Equal(t, 1, testutil.CollectAndCount(m.taskWaits), "only successful waits were observed")
}
