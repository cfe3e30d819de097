package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "library_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "library_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	borrowingOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "library_borrowing_operations_total",
		Help: "Borrowing create/return attempts by result",
	}, []string{"operation", "result"})

	notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "library_notifications_total",
		Help: "Outbound borrowing notifications by sink and result",
	}, []string{"sink", "result"})
)

const (
	ResultOK    = "ok"
	ResultError = "error"
)

func ObserveHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// ObserveBorrowing counts a ledger operation ("create" or "return").
func ObserveBorrowing(operation string, err error) {
	borrowingOperations.WithLabelValues(operation, result(err)).Inc()
}

func ObserveNotification(sink string, err error) {
	notifications.WithLabelValues(sink, result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}

// Middleware labels requests by route pattern, not by raw path.
func Middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		status := c.Response().Status
		if he, ok := err.(*echo.HTTPError); ok {
			status = he.Code
		}
		ObserveHTTPRequest(c.Request().Method, c.Path(), strconv.Itoa(status), time.Since(start))
		return err
	}
}

func Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.Handler())
}
