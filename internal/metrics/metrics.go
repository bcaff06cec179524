package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	paymentOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_outcomes_total",
			Help: "Payment workflow outcomes (initiated, initiation_failed, paid, signature_mismatch)",
		},
		[]string{"outcome"},
	)

	compensationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_compensations_total",
			Help: "Orders deleted as a compensating action",
		},
		[]string{"reason", "result"},
	)

	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_notifications_total",
			Help: "Order accepted notifications by result",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpRequestDuration)
	prometheus.MustRegister(paymentOutcomesTotal)
	prometheus.MustRegister(compensationsTotal)
	prometheus.MustRegister(notificationsTotal)
}

const (
	OutcomeInitiated         = "initiated"
	OutcomeInitiationFailed  = "initiation_failed"
	OutcomePaid              = "paid"
	OutcomeSignatureMismatch = "signature_mismatch"
)

func RecordPayment(outcome string) {
	paymentOutcomesTotal.WithLabelValues(outcome).Inc()
}

func RecordCompensation(reason string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	compensationsTotal.WithLabelValues(reason, result).Inc()
}

func RecordNotification(err error) {
	result := "sent"
	if err != nil {
		result = "failed"
	}
	notificationsTotal.WithLabelValues(result).Inc()
}

// echoのルートパス単位で件数と処理時間を取る
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			path := c.Path()
			if path == "" {
				path = c.Request().URL.Path
			}
			status := strconv.Itoa(c.Response().Status)

			httpRequestsTotal.WithLabelValues(c.Request().Method, path, status).Inc()
			httpRequestDuration.WithLabelValues(c.Request().Method, path).Observe(time.Since(start).Seconds())
			return nil
		}
	}
}

func Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.Handler())
}
