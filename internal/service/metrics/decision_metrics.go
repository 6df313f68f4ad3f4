package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"TradeMind/internal/domain/models"
	"TradeMind/internal/domain/service"
)

var (
	once sync.Once

	Decisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trademind",
			Subsystem: "decision",
			Name:      "total",
			Help:      "Decisions by action and reason",
		},
		[]string{"action", "reason"},
	)

	DecisionConfidence = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "trademind",
			Subsystem: "decision",
			Name:      "confidence",
			Help:      "Final confidence of evaluated decisions",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		},
	)

	SafeguardBlocks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trademind",
			Subsystem: "safeguard",
			Name:      "blocks_total",
			Help:      "Decisions refused at the blocked risk level",
		},
		[]string{"reason"},
	)

	Rewards = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "trademind",
			Subsystem: "learning",
			Name:      "reward",
			Help:      "Reward per fill",
			Buckets:   []float64{-100, -10, -1, -0.1, 0, 0.1, 1, 10, 100},
		},
		[]string{"symbol"},
	)

	LearningFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trademind",
			Subsystem: "learning",
			Name:      "failures_total",
			Help:      "Q updates that failed and were skipped",
		},
		[]string{"symbol"},
	)

	ExplorationRate = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "trademind",
		Subsystem: "agent",
		Name:      "exploration_rate",
		Help:      "Current epsilon",
	})

	QTableSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "trademind",
		Subsystem: "agent",
		Name:      "q_table_states",
		Help:      "States in the Q-table",
	})

	CheckpointDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "trademind",
			Subsystem: "checkpoint",
			Name:      "duration_seconds",
			Help:      "Checkpoint save/load latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"op", "result"},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			Decisions, DecisionConfidence, SafeguardBlocks,
			Rewards, LearningFailures,
			ExplorationRate, QTableSize,
			CheckpointDuration,
		)
	})
}

// Recorder is the Prometheus-backed DecisionMetrics.
type Recorder struct{}

// NewRecorder registers the collectors on first use.
func NewRecorder() *Recorder {
	Register()
	return &Recorder{}
}

func (Recorder) ObserveDecision(d models.TradeDecision) {
	Decisions.WithLabelValues(d.Action.String(), d.Reason).Inc()
	DecisionConfidence.Observe(d.Confidence)
	if d.RiskLevel == models.RiskBlocked {
		SafeguardBlocks.WithLabelValues(d.Reason).Inc()
	}
}

func (Recorder) ObserveReward(symbol string, reward float64) {
	Rewards.WithLabelValues(symbol).Observe(reward)
}

func (Recorder) ObserveLearningFailure(symbol string) {
	LearningFailures.WithLabelValues(symbol).Inc()
}

func (Recorder) SetAgentState(exploration float64, tableSize int) {
	ExplorationRate.Set(exploration)
	QTableSize.Set(float64(tableSize))
}

func (Recorder) ObserveCheckpoint(op string, seconds float64, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	CheckpointDuration.WithLabelValues(op, result).Observe(seconds)
}

var _ service.DecisionMetrics = (*Recorder)(nil)
