package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "byb_http_requests_total",
			Help: "HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "byb_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	reservationTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "byb_reservation_transitions_total",
			Help: "Reservation state transitions",
		},
		[]string{"state"},
	)

	holdFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "byb_hold_insufficient_stock_total",
			Help: "Hold attempts rejected for lack of stock",
		},
	)

	ticketsIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "byb_tickets_issued_total",
			Help: "Tickets issued",
		},
	)

	redemptions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "byb_ticket_redemptions_total",
			Help: "Door scans by result",
		},
		[]string{"result"},
	)

	gatewayCalls = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "byb_payment_gateway_duration_seconds",
			Help:    "Payment gateway call latency",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 8),
		},
		[]string{"operation", "outcome"},
	)

	sweptReservations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "byb_expired_reservations_swept_total",
			Help: "Pending reservations expired by the sweeper",
		},
	)
)

// Middleware records request counts and latency per matched route
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

func ReservationTransition(state string) {
	reservationTransitions.WithLabelValues(state).Inc()
}

func HoldRejected() {
	holdFailures.Inc()
}

func TicketsIssued(n int) {
	ticketsIssued.Add(float64(n))
}

func Redemption(result string) {
	redemptions.WithLabelValues(result).Inc()
}

func GatewayCall(operation string, err error, d time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	gatewayCalls.WithLabelValues(operation, outcome).Observe(d.Seconds())
}

func Swept(n int) {
	sweptReservations.Add(float64(n))
}
