package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	classificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querypilot_classifications_total",
			Help: "Total number of classified user messages by resolved category.",
		},
		[]string{"category"},
	)
	classificationDowngradesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "querypilot_classification_downgrades_total",
			Help: "Total number of data_analysis classifications downgraded for lack of prior results.",
		},
	)
	llmCallDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "querypilot_llm_call_duration_seconds",
			Help:    "LLM call latency by caller role.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 60},
		},
		[]string{"role", "outcome"},
	)
	sqlRejectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "querypilot_sql_rejections_total",
			Help: "Total number of generated SQL statements rejected by the safety check.",
		},
	)
	cacheRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querypilot_cache_refresh_total",
			Help: "Total number of metadata cache refresh attempts by outcome.",
		},
		[]string{"outcome"},
	)
	cacheSnapshotAgeSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "querypilot_cache_snapshot_age_seconds",
			Help: "Age of the current metadata snapshot in seconds.",
		},
	)
	pipelineFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querypilot_pipeline_failures_total",
			Help: "Total number of pipeline stage failures by stage.",
		},
		[]string{"stage"},
	)
	blocksPersistedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querypilot_blocks_persisted_total",
			Help: "Total number of context blocks persisted by terminal status.",
		},
		[]string{"status"},
	)
	persistFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "querypilot_persist_failures_total",
			Help: "Total number of context block persistence failures.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		classificationsTotal,
		classificationDowngradesTotal,
		llmCallDurationSeconds,
		sqlRejectionsTotal,
		cacheRefreshTotal,
		cacheSnapshotAgeSeconds,
		pipelineFailuresTotal,
		blocksPersistedTotal,
		persistFailuresTotal,
	)
}

func ObserveClassification(category string) {
	classificationsTotal.WithLabelValues(category).Inc()
}

func IncrementClassificationDowngrade() {
	classificationDowngradesTotal.Inc()
}

func ObserveLLMCall(role string, elapsed time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	llmCallDurationSeconds.WithLabelValues(role, outcome).Observe(elapsed.Seconds())
}

func IncrementSQLRejection() {
	sqlRejectionsTotal.Inc()
}

func ObserveCacheRefresh(outcome string) {
	cacheRefreshTotal.WithLabelValues(outcome).Inc()
}

func SetCacheSnapshotAge(age time.Duration) {
	if age < 0 {
		age = 0
	}
	cacheSnapshotAgeSeconds.Set(age.Seconds())
}

func ObserveStageFailure(stage string) {
	pipelineFailuresTotal.WithLabelValues(stage).Inc()
}

func ObserveBlockPersisted(status string) {
	blocksPersistedTotal.WithLabelValues(status).Inc()
}

func IncrementPersistFailure() {
	persistFailuresTotal.Inc()
}
