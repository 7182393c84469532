package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type PresaleMetrics struct {
	offersRegistered prometheus.Counter
	purchases        prometheus.Counter
	settlements      prometheus.Counter
	withdrawals      prometheus.Counter
	guardRejections  *prometheus.CounterVec
	nativeCustody    prometheus.Gauge
}

var (
	presaleOnce     sync.Once
	presaleRegistry *PresaleMetrics
)

func Presale() *PresaleMetrics {
	presaleOnce.Do(func() {
		presaleRegistry = &PresaleMetrics{
			offersRegistered: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "presale_offers_registered_total",
				Help: "Count of offers committed through batch registration.",
			}),
			purchases: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "presale_purchases_total",
				Help: "Count of successful purchases across all offers.",
			}),
			settlements: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "presale_settlements_total",
				Help: "Count of offers settled into liquidity positions.",
			}),
			withdrawals: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "presale_withdrawals_total",
				Help: "Count of post-settlement inventory withdrawals.",
			}),
			guardRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "presale_guard_rejections_total",
				Help: "Count of operations rejected by lifecycle or funding guards.",
			}, []string{"op"}),
			nativeCustody: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "presale_native_custody_wei",
				Help: "Native currency currently held in engine custody.",
			}),
		}
		prometheus.MustRegister(
			presaleRegistry.offersRegistered,
			presaleRegistry.purchases,
			presaleRegistry.settlements,
			presaleRegistry.withdrawals,
			presaleRegistry.guardRejections,
			presaleRegistry.nativeCustody,
		)
	})
	return presaleRegistry
}

func (m *PresaleMetrics) ObserveOffersRegistered(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.offersRegistered.Add(float64(count))
}

func (m *PresaleMetrics) ObservePurchase() {
	if m == nil {
		return
	}
	m.purchases.Inc()
}

func (m *PresaleMetrics) ObserveSettlement() {
	if m == nil {
		return
	}
	m.settlements.Inc()
}

func (m *PresaleMetrics) ObserveWithdrawal() {
	if m == nil {
		return
	}
	m.withdrawals.Inc()
}

func (m *PresaleMetrics) ObserveGuardRejection(op string) {
	if m == nil {
		return
	}
	if op == "" {
		op = "unknown"
	}
	m.guardRejections.WithLabelValues(op).Inc()
}

func (m *PresaleMetrics) SetNativeCustody(wei float64) {
	if m == nil {
		return
	}
	m.nativeCustody.Set(wei)
}
