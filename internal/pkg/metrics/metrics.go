package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "quota_relay"

// 额度与会员
var (
	AdmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admissions_total",
			Help:      "Counted commands by decision",
		},
		[]string{"decision"},
	)

	StorageFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_failures_total",
			Help:      "Failed storage calls by operation",
		},
		[]string{"op"},
	)

	EntitlementsGranted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entitlements_granted_total",
			Help:      "Entitlements granted by source",
		},
		[]string{"source"},
	)
)

// 支付请求
var (
	PaymentRequestsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_requests_created_total",
			Help:      "Payment requests created",
		},
	)

	PaymentResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_resolutions_total",
			Help:      "Payment requests resolved by outcome",
		},
		[]string{"outcome"},
	)
)

// 事件与通知
var (
	EventsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_processed_total",
			Help:      "Inbound events by kind and status",
		},
		[]string{"kind", "status"},
	)

	NoticeDeliveryFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notice_delivery_failures_total",
			Help:      "Notices that could not be published",
		},
	)
)
