package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "route", "status"},
	)

	buildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_build_info",
			Help: "Build information for the binary.",
		},
		[]string{"version"},
	)

	treeMappings = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mapping_tree_mappings",
		Help: "Mappings currently indexed by the mapping tree.",
	})

	treeNodes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mapping_tree_nodes",
		Help: "Nodes currently allocated in the mapping tree.",
	})

	treeStructural = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mapping_tree_structural_changes_total",
			Help: "Node subdivisions and merges.",
		},
		[]string{"change"},
	)

	treeQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mapping_tree_queries_total",
			Help: "Mapping tree queries by mode.",
		},
		[]string{"mode"},
	)

	selectionEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "selection_events_total",
			Help: "Selection outcomes (selected, cycled, deselected, pending, restored, ignored).",
		},
		[]string{"outcome"},
	)

	selectionPublish = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "selection_publish_total",
			Help: "Selection events handed to the Kafka publisher by result (queued, dropped, error).",
		},
		[]string{"result"},
	)

	selectionCandidates = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "selection_candidates",
		Help:    "Candidates gathered by a fresh click query.",
		Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 21},
	})

	exprErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "style_expression_errors_total",
			Help: "Style rules that did not apply because evaluation failed.",
		},
		[]string{"rule"},
	)

	tileEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tile_events_total",
			Help: "Tile stream events by type and outcome.",
		},
		[]string{"type", "outcome"},
	)

	storeOpDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "attr_store_operation_duration_seconds",
			Help:    "Latency of attribute store operations against Redis.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"op", "result"},
	)

	storeRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attr_store_rows_total",
			Help: "Attribute rows read from the store by result.",
		},
		[]string{"result"},
	)

	frameDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "frame_duration_seconds",
		Help:    "Time spent in one frame update.",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 10),
	})
)

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func ExposeBuildInfo(version string) {
	if version == "" {
		version = "dev"
	}
	buildInfo.WithLabelValues(version).Set(1)
}

func SetTreeSize(mappings, nodes int) {
	treeMappings.Set(float64(mappings))
	treeNodes.Set(float64(nodes))
}

func IncTreeSubdivision() { treeStructural.WithLabelValues("subdivide").Inc() }
func IncTreeMerge()       { treeStructural.WithLabelValues("merge").Inc() }

func IncTreeQuery(mode string) { treeQueries.WithLabelValues(mode).Inc() }

func IncSelection(outcome string) { selectionEvents.WithLabelValues(outcome).Inc() }

func IncSelectionPublish(result string) { selectionPublish.WithLabelValues(result).Inc() }

func ObserveSelectionCandidates(n int) { selectionCandidates.Observe(float64(n)) }

func IncExprError(rule string) { exprErrors.WithLabelValues(rule).Inc() }

func IncTileEvent(typ, outcome string) { tileEvents.WithLabelValues(typ, outcome).Inc() }

func ObserveFrame(durationSeconds float64) { frameDurationSeconds.Observe(durationSeconds) }

func ObserveStoreOp(op string, err error, durationSeconds float64) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	storeOpDurationSeconds.WithLabelValues(op, result).Observe(durationSeconds)
}

func AddStoreRows(found, missing int) {
	if found > 0 {
		storeRows.WithLabelValues("found").Add(float64(found))
	}
	if missing > 0 {
		storeRows.WithLabelValues("missing").Add(float64(missing))
	}
}
