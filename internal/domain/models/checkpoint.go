package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// CheckpointVersion is bumped whenever the persisted layout changes.
const CheckpointVersion = 2

// ActionValues holds one Q estimate per action, indexed by Action.
type ActionValues [NumActions]float64

// QTable maps a state key to its action values.
type QTable map[string]ActionValues

// MarshalJSON writes {"BUY": 0.1, ...} so checkpoints stay readable.
func (v ActionValues) MarshalJSON() ([]byte, error) {
	m := make(map[string]float64, NumActions)
	for _, a := range AllActions {
		m[a.String()] = v[a]
	}
	return json.Marshal(m)
}

func (v *ActionValues) UnmarshalJSON(b []byte) error {
	var m map[string]float64
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	var out ActionValues
	for name, q := range m {
		a, err := ParseAction(name)
		if err != nil {
			return fmt.Errorf("q-table: %w", err)
		}
		out[a] = q
	}
	*v = out
	return nil
}

// Clone deep-copies the table.
func (q QTable) Clone() QTable {
	out := make(QTable, len(q))
	for k, v := range q {
		out[k] = v
	}
	return out
}

// RewardSample is one (P&L, post-trade equity) observation.
type RewardSample struct {
	PnL    float64 `json:"pnl"`
	Equity float64 `json:"equity"`
}

// RewardMetricsState is the persisted form of the rolling reward tracker.
type RewardMetricsState struct {
	WindowSize int            `json:"window_size"`
	Samples    []RewardSample `json:"samples"`
	PeakEquity float64        `json:"peak_equity"`
	Drawdown   float64        `json:"drawdown"`
	Streak     int            `json:"streak"`
}

// Checkpoint is the single persisted document of one engine instance.
// RewardMetrics is absent in legacy documents.
type Checkpoint struct {
	Version           int                          `json:"version"`
	SavedAt           time.Time                    `json:"saved_at"`
	QTable            QTable                       `json:"q_table"`
	TotalTrades       int                          `json:"total_trades"`
	WinningTrades     int                          `json:"winning_trades"`
	CumulativePnL     float64                      `json:"cumulative_pnl"`
	ExplorationRate   float64                      `json:"exploration_rate"`
	SymbolPerformance map[string]SymbolPerformance `json:"symbol_performance"`
	RewardMetrics     *RewardMetricsState          `json:"reward_metrics,omitempty"`
}
