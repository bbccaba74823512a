package observability

import (
	"math/big"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// FarmMetrics aggregates the prometheus collectors tracking farm activity.
type FarmMetrics struct {
	deposits         prometheus.Counter
	withdrawals      prometheus.Counter
	compounds        prometheus.Counter
	periodAdvances   prometheus.Counter
	issuanceRefusals *prometheus.CounterVec
	requests         *prometheus.CounterVec
	totalStaked      prometheus.Gauge
}

var (
	farmMetricsOnce sync.Once
	farmRegistry    *FarmMetrics
)

// Metrics returns the lazily-initialised farm metrics registry.
func Metrics() *FarmMetrics {
	farmMetricsOnce.Do(func() {
		farmRegistry = &FarmMetrics{
			deposits: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "stakefarm",
				Subsystem: "pool",
				Name:      "deposits_total",
				Help:      "Total deposit operations applied to the pool.",
			}),
			withdrawals: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "stakefarm",
				Subsystem: "pool",
				Name:      "withdrawals_total",
				Help:      "Total withdraw operations applied to the pool.",
			}),
			compounds: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "stakefarm",
				Subsystem: "pool",
				Name:      "compounds_total",
				Help:      "Total harvest-and-compound operations.",
			}),
			periodAdvances: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "stakefarm",
				Subsystem: "pool",
				Name:      "period_advances_total",
				Help:      "Schedule boundaries crossed by the pool accumulator.",
			}),
			issuanceRefusals: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stakefarm",
				Subsystem: "pool",
				Name:      "issuance_refusals_total",
				Help:      "Reward mint requests refused by the issuance authority.",
			}, []string{"stream"}),
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stakefarm",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "RPC requests segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			totalStaked: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "stakefarm",
				Subsystem: "pool",
				Name:      "total_staked",
				Help:      "Aggregate staked balance across all positions.",
			}),
		}
		prometheus.MustRegister(
			farmRegistry.deposits,
			farmRegistry.withdrawals,
			farmRegistry.compounds,
			farmRegistry.periodAdvances,
			farmRegistry.issuanceRefusals,
			farmRegistry.requests,
			farmRegistry.totalStaked,
		)
	})
	return farmRegistry
}

func (m *FarmMetrics) ObserveDeposit()    { m.deposits.Inc() }
func (m *FarmMetrics) ObserveWithdrawal() { m.withdrawals.Inc() }
func (m *FarmMetrics) ObserveCompound()   { m.compounds.Inc() }

// ObservePeriodAdvance records one schedule boundary crossing.
func (m *FarmMetrics) ObservePeriodAdvance() { m.periodAdvances.Inc() }

// ObserveIssuanceRefusal records a refused mint, segmented by reward stream.
func (m *FarmMetrics) ObserveIssuanceRefusal(stream string) {
	m.issuanceRefusals.WithLabelValues(stream).Inc()
}

// ObserveRequest records one RPC request with its outcome label.
func (m *FarmMetrics) ObserveRequest(method, outcome string) {
	m.requests.WithLabelValues(method, outcome).Inc()
}

// SetTotalStaked publishes the pool's aggregate stake. Precision above
// float64 is irrelevant for dashboarding.
func (m *FarmMetrics) SetTotalStaked(total *big.Int) {
	if total == nil {
		m.totalStaked.Set(0)
		return
	}
	f, _ := new(big.Float).SetInt(total).Float64()
	m.totalStaked.Set(f)
}
