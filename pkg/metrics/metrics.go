package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MQ 消费延迟（毫秒）
	MQConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mq_consume_latency_ms",
			Help:    "MQ message consumption latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"routing_key", "queue"},
	)

	// 支付网关调用延迟（毫秒）
	GatewayCallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_gateway_call_latency_ms",
			Help:    "Payment gateway call latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(50, 2, 10),
		},
		[]string{"endpoint", "status"},
	)

	// HTTP 请求延迟（秒）
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)

	SlowQueryCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_slow_query_total",
			Help: "Number of queries slower than the configured threshold",
		},
		[]string{"statement"},
	)

	// 捐款确认结果计数
	DonationConfirmCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "donation_confirm_total",
			Help: "Donation confirmation attempts by outcome",
		},
		[]string{"outcome"}, // outcome: succeeded, invalid_signature, duplicate, order_mismatch, not_found, error
	)

	DonationAmountTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "donation_amount_total",
			Help: "Sum of confirmed donation amounts",
		},
	)

	MilestoneReachedCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_milestone_reached_total",
			Help: "Funding milestones crossed by confirmed donations",
		},
		[]string{"milestone"},
	)

	// 邮件发送计数
	EmailSentCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "email_sent_total",
			Help: "Outbound emails by kind and status",
		},
		[]string{"kind", "status"}, // status: success, failed
	)

	// 对账发现的不一致活动数
	ReconcileDriftCampaigns = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reconcile_drift_campaigns",
			Help: "Campaigns whose current_amount disagreed with the donation ledger in the last run",
		},
	)
)

// RecordMQConsumeLatency 记录 MQ 消费延迟
func RecordMQConsumeLatency(routingKey, queue string, duration time.Duration) {
	MQConsumeLatency.WithLabelValues(routingKey, queue).Observe(float64(duration.Milliseconds()))
}

// RecordGatewayCallLatency 记录支付网关调用延迟
func RecordGatewayCallLatency(endpoint, status string, duration time.Duration) {
	GatewayCallLatency.WithLabelValues(endpoint, status).Observe(float64(duration.Milliseconds()))
}

// RecordHTTPRequestDuration 记录 HTTP 请求延迟
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// IncrementSlowQuery 记录慢查询
func IncrementSlowQuery(statement string, _ time.Duration) {
	SlowQueryCount.WithLabelValues(statement).Inc()
}

func IncrementDonationConfirm(outcome string) {
	DonationConfirmCount.WithLabelValues(outcome).Inc()
}

func AddDonationAmount(amount float64) {
	DonationAmountTotal.Add(amount)
}

func IncrementMilestone(milestone string) {
	MilestoneReachedCount.WithLabelValues(milestone).Inc()
}

func IncrementEmailSent(kind, status string) {
	EmailSentCount.WithLabelValues(kind, status).Inc()
}

func SetReconcileDrift(n int) {
	ReconcileDriftCampaigns.Set(float64(n))
}
