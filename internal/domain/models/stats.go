package models

// EngineStats is the introspection snapshot served over HTTP.
type EngineStats struct {
	TotalTrades        int     `json:"total_trades"`
	WinningTrades      int     `json:"winning_trades"`
	CumulativePnL      float64 `json:"cumulative_pnl"`
	ExplorationRate    float64 `json:"exploration_rate"`
	QTableSize         int     `json:"q_table_size"`
	LearningFailures   int64   `json:"learning_failures"`
	Sharpe             float64 `json:"sharpe"`
	Sortino            float64 `json:"sortino"`
	SortinoUnbounded   bool    `json:"sortino_unbounded"` // no downside sample yet
	Drawdown           float64 `json:"drawdown"`
	Streak             int     `json:"streak"`
	PatternCacheHits   int64   `json:"pattern_cache_hits"`
	PatternCacheMisses int64   `json:"pattern_cache_misses"`
}

// WarmupSummary reports what a historical replay did.
type WarmupSummary struct {
	Symbols         int      `json:"symbols"`
	BarsSeen        int      `json:"bars_seen"`
	StatesObserved  int      `json:"states_observed"`
	SimulatedTrades int      `json:"simulated_trades"`
	Updates         int      `json:"updates"`
	QTableSize      int      `json:"q_table_size"`
	FinalCash       float64  `json:"final_cash"`
	Skipped         []string `json:"skipped,omitempty"`
}
