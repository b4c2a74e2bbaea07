package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tphummel/rackline/internal/models"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rackline_http_requests_total",
			Help: "Total number of HTTP requests by method, route, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rackline_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds by method and route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rackline_http_requests_in_flight",
		Help: "Current number of HTTP requests being processed.",
	})

	historyAppendedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rackline_history_entries_total",
			Help: "History entries appended to the ledger by entity type.",
		},
		[]string{"entity_type"},
	)

	historyTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rackline_status_transitions_total",
			Help: "Status transitions recorded in the ledger by entity type.",
		},
		[]string{"entity_type"},
	)

	historyFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rackline_history_append_failures_total",
			Help: "History entries that could not be appended after their change committed.",
		},
		[]string{"entity_type"},
	)
)

// scrapeTimeout bounds the inventory queries run on each scrape.
const scrapeTimeout = 5 * time.Second

// InventoryDB is the subset of db.DB needed to collect inventory metrics.
type InventoryDB interface {
	CountServersByStatus(ctx context.Context) (map[string]int, error)
	CountOpenDefectsByStatus(ctx context.Context) (map[string]int, error)
	CountOccupiedUnits(ctx context.Context) (map[string]int, error)
}

// inventoryCollector queries the database on each scrape so the gauges
// always match the stored state.
type inventoryCollector struct {
	db          InventoryDB
	serversDesc *prometheus.Desc
	defectsDesc *prometheus.Desc
	unitsDesc   *prometheus.Desc
}

func newInventoryCollector(db InventoryDB) *inventoryCollector {
	return &inventoryCollector{
		db: db,
		serversDesc: prometheus.NewDesc(
			"rackline_servers",
			"Number of servers, partitioned by status.",
			[]string{"status"},
			nil,
		),
		defectsDesc: prometheus.NewDesc(
			"rackline_open_defects",
			"Number of unresolved defect records, partitioned by status.",
			[]string{"status"},
			nil,
		),
		unitsDesc: prometheus.NewDesc(
			"rackline_rack_units_occupied",
			"Number of occupied units, partitioned by rack.",
			[]string{"rack"},
			nil,
		),
	}
}

func (c *inventoryCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.serversDesc
	ch <- c.defectsDesc
	ch <- c.unitsDesc
}

func (c *inventoryCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), scrapeTimeout)
	defer cancel()

	for _, q := range []struct {
		desc  *prometheus.Desc
		count func(context.Context) (map[string]int, error)
	}{
		{c.serversDesc, c.db.CountServersByStatus},
		{c.defectsDesc, c.db.CountOpenDefectsByStatus},
		{c.unitsDesc, c.db.CountOccupiedUnits},
	} {
		counts, err := q.count(ctx)
		if err != nil {
			ch <- prometheus.NewInvalidMetric(q.desc, err)
			continue
		}
		for label, n := range counts {
			ch <- prometheus.MustNewConstMetric(q.desc, prometheus.GaugeValue, float64(n), label)
		}
	}
}

// Register registers all metrics with reg. Call once at startup after the
// database is initialised.
func Register(reg prometheus.Registerer, db InventoryDB) {
	reg.MustRegister(
		// Standard Go runtime and process metrics
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),

		// HTTP service metrics
		httpRequestsTotal,
		httpRequestDuration,
		httpRequestsInFlight,

		// Ledger metrics
		historyAppendedTotal,
		historyTransitionsTotal,
		historyFailedTotal,

		// Inventory metrics
		newInventoryCollector(db),
	)
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Ledger counts history appends. It satisfies service.LedgerMetrics.
type Ledger struct{}

// HistoryAppended counts one appended entry.
func (Ledger) HistoryAppended(t models.EntityType, transition bool) {
	historyAppendedTotal.WithLabelValues(string(t)).Inc()
	if transition {
		historyTransitionsTotal.WithLabelValues(string(t)).Inc()
	}
}

// HistoryFailed counts one entry lost after its change committed.
func (Ledger) HistoryFailed(t models.EntityType) {
	historyFailedTotal.WithLabelValues(string(t)).Inc()
}

// responseWriter wraps http.ResponseWriter to capture the response status code.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware wraps an http.Handler to record HTTP metrics.
// pattern should be the route pattern string (e.g. "GET /api/v1/servers/{id}")
// so the path label has bounded cardinality.
func Middleware(pattern string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		httpRequestsInFlight.Inc()

		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		defer func() {
			httpRequestsInFlight.Dec()
			status := strconv.Itoa(rw.status)
			httpRequestsTotal.WithLabelValues(r.Method, pattern, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, pattern).Observe(time.Since(start).Seconds())
		}()

		next.ServeHTTP(rw, r)
	})
}
