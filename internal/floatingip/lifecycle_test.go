package floatingip_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/imamik/edgefip/internal/floatingip"
	"github.com/imamik/edgefip/internal/gateway"
	"github.com/imamik/edgefip/internal/nat"
	"github.com/imamik/edgefip/internal/platform/memory"
	"github.com/imamik/edgefip/internal/task"
)

var _ = Describe("Floating IP lifecycle", func() {
	var (
		ctx     context.Context
		gw      *memory.Gateway
		vapps   *memory.Workloads
		reg     *prometheus.Registry
		metrics *nat.Metrics
		ctrl    *floatingip.Controller
	)

	newInterface := func(id, vapp string) floatingip.InterfaceContext {
		return floatingip.InterfaceContext{
			ID:     id,
			Config: floatingip.Config{Gateway: "edge", Commit: true},
			Relationships: []floatingip.Relationship{
				floatingip.RelationshipFromProperties("server", map[string]string{floatingip.WorkloadIDKey: vapp}),
			},
			Runtime: &floatingip.RuntimeState{},
		}
	}

	BeforeEach(func() {
		ctx = context.Background()
		gw = memory.NewGateway("edge", "198.51.100.10", "198.51.100.11")
		vapps = memory.NewWorkloads().
			Set("web", gateway.Connection{Connected: true, IP: "10.10.0.2", Network: "tenant"}).
			Set("db", gateway.Connection{Connected: true, IP: "10.10.0.3", Network: "tenant"})
		reg = prometheus.NewRegistry()
		metrics = nat.NewMetrics(reg)
		waiter := task.NewWaiter(time.Millisecond, time.Second, task.WithObserver(metrics))
		ctrl = floatingip.NewController(memory.NewClient(gw), vapps, waiter)
		ctrl.Metrics = metrics
	})

	It("reuses a released address", func() {
		web := newInterface("web-nic", "web")

		By("connecting the first workload")
		res, err := ctrl.Connect(ctx, web)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Done()).To(BeTrue())
		Expect(web.Runtime.PublicIP).To(Equal("198.51.100.10"))

		By("disconnecting it again")
		_, err = ctrl.Disconnect(ctx, web)
		Expect(err).NotTo(HaveOccurred())
		Expect(gw.Rules()).To(BeEmpty())

		By("connecting another workload")
		db := newInterface("db-nic", "db")
		_, err = ctrl.Connect(ctx, db)
		Expect(err).NotTo(HaveOccurred())
		Expect(db.Runtime.PublicIP).To(Equal("198.51.100.10"))
	})

	It("gives each workload its own address", func() {
		web := newInterface("web-nic", "web")
		db := newInterface("db-nic", "db")

		Expect(ctrl.Connect(ctx, web)).Error().NotTo(HaveOccurred())
		Expect(ctrl.Connect(ctx, db)).Error().NotTo(HaveOccurred())
		Expect(web.Runtime.PublicIP).To(Equal("198.51.100.10"))
		Expect(db.Runtime.PublicIP).To(Equal("198.51.100.11"))

		By("running out of addresses")
		vapps.Set("cache", gateway.Connection{Connected: true, IP: "10.10.0.4", Network: "tenant"})
		_, err := ctrl.Connect(ctx, newInterface("cache-nic", "cache"))
		Expect(err).To(MatchError(gateway.ErrNoFreeAddress))
		Expect(gateway.IsNonRecoverable(err)).To(BeTrue())
	})

	It("does not mutate the gateway twice", func() {
		web := newInterface("web-nic", "web")
		Expect(ctrl.Connect(ctx, web)).Error().NotTo(HaveOccurred())
		Expect(ctrl.Connect(ctx, web)).Error().NotTo(HaveOccurred())
		Expect(gw.MutationCount()).To(Equal(2))

		Expect(ctrl.Disconnect(ctx, web)).Error().NotTo(HaveOccurred())
		Expect(ctrl.Disconnect(ctx, web)).Error().NotTo(HaveOccurred())
		Expect(gw.MutationCount()).To(Equal(4))
	})

	It("defers the commit while the gateway is busy", func() {
		web := newInterface("web-nic", "web")
		gw.SetBusy(true)

		res, err := ctrl.Connect(ctx, web)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.RetryAfter).To(Equal(floatingip.DefaultRetryAfter))

		gw.SetBusy(false)
		res, err = ctrl.Connect(ctx, web)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Done()).To(BeTrue())
		Expect(web.Runtime.Pending).To(BeEmpty())
	})

	It("records rule requests and task waits", func() {
		Expect(ctrl.Connect(ctx, newInterface("web-nic", "web"))).Error().NotTo(HaveOccurred())

		Expect(testutil.GatherAndCount(reg, "edgefip_nat_rule_requests_total")).To(Equal(2))
		Expect(testutil.GatherAndCount(reg, "edgefip_task_wait_seconds")).To(Equal(1))
	})

	It("fails when the task does not complete in time", func() {
		gw.ScriptTasks("", gateway.TaskRunning)
		ctrl.Waiter = task.NewWaiter(time.Millisecond, 5*time.Millisecond)

		_, err := ctrl.Connect(ctx, newInterface("web-nic", "web"))
		Expect(err).To(MatchError(gateway.ErrNATRuleCommitFailed))
		Expect(gateway.IsTimeout(err)).To(BeTrue())
	})
})
