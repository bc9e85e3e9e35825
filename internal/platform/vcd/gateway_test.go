package vcd

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/edgefip/internal/gateway"
	"github.com/imamik/edgefip/internal/nat"
	"github.com/imamik/edgefip/internal/task"
)

func snatRule(internal, external string) gateway.NATRule {
	return gateway.NATRule{Type: gateway.SNAT, OriginalIP: internal, OriginalPort: gateway.AnyPort,
		TranslatedIP: external, TranslatedPort: gateway.AnyPort, Protocol: gateway.Any}
}

func TestClient_GetGateway(t *testing.T) {
	t.Parallel()
	f := newFakeVCD(t)
	c := f.client(t)
	ctx := context.Background()

	gw, err := c.GetGateway(ctx, "edge")
	require.NoError(t, err)
	require.NotNil(t, gw)
	assert.Equal(t, "edge", gw.Name())

	missing, err := c.GetGateway(ctx, "other")
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, _, logins := f.snapshot()
	assert.Equal(t, 1, logins, "session is reused")
	ids, _, _ := f.recorded()
	assert.NotEmpty(t, ids)
	assert.NotContains(t, ids, "", "every request carries a request id")
}

func TestGateway_PublicIPs(t *testing.T) {
	t.Parallel()
	f := newFakeVCD(t)
	gw, err := f.client(t).GetGateway(context.Background(), "edge")
	require.NoError(t, err)

	ips, err := gw.PublicIPs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"203.0.113.10", "203.0.113.11", "203.0.113.12", "203.0.113.20"}, ips)
}

func TestGateway_AddAndDeleteNATRule(t *testing.T) {
	t.Parallel()
	f := newFakeVCD(t)
	ctx := context.Background()
	gw, err := f.client(t).GetGateway(ctx, "edge")
	require.NoError(t, err)
	waiter := task.NewWaiter(time.Millisecond, time.Second)

	ok, tk, err := gw.AddNATRule(ctx, snatRule("10.0.0.5", "203.0.113.10"))
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, waiter.Wait(ctx, tk))
	assert.Contains(t, tk.ID(), "urn:vcloud:task:")

	rules, err := gw.NATRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.True(t, rules[0].Matches(snatRule("10.0.0.5", "203.0.113.10")))
	assert.Equal(t, "ext-net", rules[0].Interface, "rule bound to the uplink")
	_, contentType, bodies := f.recorded()
	assert.Equal(t, mediaServiceConfiguration, contentType)
	require.Len(t, bodies, 1)
	assert.Contains(t, bodies[0], "<FirewallService>", "other services are posted back")

	ok, _, err = gw.DelNATRule(ctx, snatRule("10.0.0.9", "203.0.113.10"))
	require.NoError(t, err)
	assert.False(t, ok, "no matching rule")

	ok, tk, err = gw.DelNATRule(ctx, snatRule("10.0.0.5", "203.0.113.10"))
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, waiter.Wait(ctx, tk))

	posted, posts, _ := f.snapshot()
	assert.Empty(t, posted)
	assert.Equal(t, 2, posts)
}

func TestGateway_NamedInterface(t *testing.T) {
	t.Parallel()
	f := newFakeVCD(t)
	ctx := context.Background()
	gw, err := f.client(t).GetGateway(ctx, "edge")
	require.NoError(t, err)

	rule := snatRule("10.0.0.5", "203.0.113.10")
	rule.Interface = "tenant"
	ok, _, err := gw.AddNATRule(ctx, rule)
	require.NoError(t, err)
	require.True(t, ok)

	rules, _, _ := f.snapshot()
	require.Len(t, rules, 1)
	assert.Equal(t, "tenant", rules[0].Gateway.Interface.Name)

	rule.Interface = "nope"
	_, _, err = gw.AddNATRule(ctx, rule)
	assert.ErrorContains(t, err, `no interface "nope"`)
}

func TestGateway_Busy(t *testing.T) {
	t.Parallel()
	f := newFakeVCD(t)
	ctx := context.Background()
	gw, err := f.client(t).GetGateway(ctx, "edge")
	require.NoError(t, err)
	f.mu.Lock()
	f.busy = true
	f.mu.Unlock()

	accepted, tk, busy, err := gw.SaveServicesConfiguration(ctx)
	require.NoError(t, err)
	assert.False(t, accepted)
	assert.Nil(t, tk)
	assert.True(t, busy)

	ok, _, err := gw.AddNATRule(ctx, snatRule("10.0.0.5", "203.0.113.10"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGateway_Declined(t *testing.T) {
	t.Parallel()
	f := newFakeVCD(t)
	ctx := context.Background()
	gw, err := f.client(t).GetGateway(ctx, "edge")
	require.NoError(t, err)
	f.mu.Lock()
	f.decline = true
	f.mu.Unlock()

	accepted, _, busy, err := gw.SaveServicesConfiguration(ctx)
	require.NoError(t, err)
	assert.False(t, accepted)
	assert.False(t, busy)
}

func TestTask_Status(t *testing.T) {
	t.Parallel()
	f := newFakeVCD(t)
	f.mu.Lock()
	f.taskError = "NAT rule conflicts with existing rule"
	f.mu.Unlock()
	ctx := context.Background()
	gw, err := f.client(t).GetGateway(ctx, "edge")
	require.NoError(t, err)

	_, tk, err := gw.AddNATRule(ctx, snatRule("10.0.0.5", "203.0.113.10"))
	require.NoError(t, err)

	status, _, err := tk.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, gateway.TaskRunning, status)

	status, reason, err := tk.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, gateway.TaskError, status)
	assert.Equal(t, "NAT rule conflicts with existing rule", reason)
}

func TestClient_RenewsExpiredSession(t *testing.T) {
	t.Parallel()
	f := newFakeVCD(t)
	ctx := context.Background()
	c := f.client(t)
	gw, err := c.GetGateway(ctx, "edge")
	require.NoError(t, err)

	f.expireSession()
	_, err = gw.NATRules(ctx)
	require.NoError(t, err)

	_, _, logins := f.snapshot()
	assert.Equal(t, 2, logins)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	t.Parallel()
	f := newFakeVCD(t)
	ctx := context.Background()
	gw, err := f.client(t).GetGateway(ctx, "edge")
	require.NoError(t, err)

	f.mu.Lock()
	f.failNext = 1
	f.mu.Unlock()
	_, err = gw.NATRules(ctx)
	require.NoError(t, err)

	f.mu.Lock()
	f.failNext = 5
	f.mu.Unlock()
	_, err = gw.NATRules(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestClient_BadCredentials(t *testing.T) {
	t.Parallel()
	f := newFakeVCD(t)
	c := f.client(t)
	c.cfg.Password = "wrong"

	_, err := c.GetGateway(context.Background(), "edge")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to log in as admin@acme")
}

func TestAllocatorOnVCD(t *testing.T) {
	t.Parallel()
	f := newFakeVCD(t)
	ctx := context.Background()
	gw, err := f.client(t).GetGateway(ctx, "edge")
	require.NoError(t, err)

	free, err := nat.FreeExternalAddress(ctx, gw)
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.10", free)

	alloc := nat.NewAllocator(task.NewWaiter(time.Millisecond, time.Second))
	require.NoError(t, alloc.CreatePair(ctx, gw, "10.0.0.5", free))

	pairs, err := nat.ListAssignedPairs(ctx, gw)
	require.NoError(t, err)
	assert.True(t, pairs.Has(gateway.AssignedIPs{External: free, Internal: "10.0.0.5"}))

	next, err := nat.FreeExternalAddress(ctx, gw)
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.11", next)

	require.NoError(t, alloc.DeletePair(ctx, gw, "10.0.0.5", free))
	rules, _, _ := f.snapshot()
	assert.Empty(t, rules)
}

func TestGateway_NetworkSubnets(t *testing.T) {
	t.Parallel()
	f := newFakeVCD(t)
	ctx := context.Background()
	gw, err := f.client(t).GetGateway(ctx, "edge")
	require.NoError(t, err)

	subnets, err := gw.NetworkSubnets(ctx, "tenant")
	require.NoError(t, err)
	require.Len(t, subnets, 1)
	assert.Equal(t, "10.0.0.0/24", subnets[0].String())

	none, err := gw.NetworkSubnets(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRoutedNetworkOnVCD(t *testing.T) {
	t.Parallel()
	f := newFakeVCD(t)
	ctx := context.Background()
	gw, err := f.client(t).GetGateway(ctx, "edge")
	require.NoError(t, err)

	routed, err := nat.IsRoutedToNetwork(ctx, gw, "tenant")
	require.NoError(t, err)
	assert.False(t, routed)

	alloc := nat.NewAllocator(task.NewWaiter(time.Millisecond, time.Second))
	require.NoError(t, alloc.CreatePair(ctx, gw, "10.0.0.5", "203.0.113.10"))
	rules, err := gw.NATRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "ext-net", rules[0].Interface, "rules are bound to the uplink")

	routed, err = nat.IsRoutedToNetwork(ctx, gw, "tenant")
	require.NoError(t, err)
	assert.True(t, routed)

	routed, err = nat.IsRoutedToNetwork(ctx, gw, "ext-net")
	require.NoError(t, err)
	assert.False(t, routed)
}

func TestGateway_PublicIPOnDemand(t *testing.T) {
	t.Parallel()
	f := newFakeVCD(t)
	ctx := context.Background()
	gw, err := f.client(t).GetGateway(ctx, "edge")
	require.NoError(t, err)
	pool := nat.NewPublicIPPool(task.NewWaiter(time.Millisecond, time.Second))

	address, err := pool.Allocate(ctx, gw)
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.30", address)
	_, contentType, bodies := f.recorded()
	assert.Equal(t, mediaExternalIPActions, contentType)
	require.Len(t, bodies, 1)
	assert.Contains(t, bodies[0], "<NumberOfExternalIpAddressesToAllocate>1</NumberOfExternalIpAddressesToAllocate>")

	ips, err := gw.PublicIPs(ctx)
	require.NoError(t, err)
	assert.Contains(t, ips, "203.0.113.30")

	_, err = pool.Allocate(ctx, gw)
	require.ErrorIs(t, err, gateway.ErrPublicIPRequest, "no spare address left")

	require.NoError(t, pool.Release(ctx, gw, "203.0.113.30"))
	after, err := gw.PublicIPs(ctx)
	require.NoError(t, err)
	assert.NotContains(t, after, "203.0.113.30")

	err = pool.Release(ctx, gw, "203.0.113.10")
	require.ErrorIs(t, err, gateway.ErrPublicIPRequest)
	assert.ErrorContains(t, err, "203.0.113.10")
}

func TestSubnetPrefix(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		sp      subnetParticipation
		want    string
		wantErr bool
	}{
		{name: "v4", sp: subnetParticipation{Gateway: "192.168.7.1", Netmask: "255.255.254.0"}, want: "192.168.6.0/23"},
		{name: "bad gateway", sp: subnetParticipation{Gateway: "x", Netmask: "255.255.255.0"}, wantErr: true},
		{name: "bad netmask", sp: subnetParticipation{Gateway: "10.0.0.1", Netmask: "255.0.255.0"}, wantErr: true},
		{name: "family mismatch", sp: subnetParticipation{Gateway: "10.0.0.1", Netmask: "ffff::"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := subnetPrefix(tt.sp)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestExpandRange(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		r       ipRange
		want    []string
		wantErr bool
	}{
		{name: "single", r: ipRange{Start: "198.51.100.1"}, want: []string{"198.51.100.1"}},
		{name: "span", r: ipRange{Start: "198.51.100.254", End: "198.51.101.1"},
			want: []string{"198.51.100.254", "198.51.100.255", "198.51.101.0", "198.51.101.1"}},
		{name: "reversed", r: ipRange{Start: "198.51.100.5", End: "198.51.100.1"}, wantErr: true},
		{name: "garbage", r: ipRange{Start: "x"}, wantErr: true},
		{name: "mixed families", r: ipRange{Start: "198.51.100.1", End: "2001:db8::1"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := expandRange(tt.r)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTaskStatusMapping(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]gateway.TaskStatus{
		"queued":     gateway.TaskRunning,
		"preRunning": gateway.TaskRunning,
		"running":    gateway.TaskRunning,
		"success":    gateway.TaskSuccess,
		"error":      gateway.TaskError,
		"aborted":    gateway.TaskError,
		"canceled":   gateway.TaskError,
	} {
		assert.Equal(t, want, taskStatus(in), in)
	}
}
