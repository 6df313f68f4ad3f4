package service

import "TradeMind/internal/domain/models"

// TimeframeAnalyzer correlates the tracked timeframes of a symbol.
type TimeframeAnalyzer interface {
	AnalyzeCrossTimeframe(symbol string) models.CrossTimeframeAnalysis
}

// PatternRecognizer finds candlestick patterns in the tail of a bar series.
type PatternRecognizer interface {
	DetectPatterns(bars []models.Bar) []models.DetectedPattern
	StrongestSignal(found []models.DetectedPattern) (models.Signal, float64)
}

// PortfolioView is the read-only ledger the engine evaluates against.
type PortfolioView interface {
	Snapshot() models.PortfolioSnapshot
}

// DecisionMetrics receives decision-core observations.
type DecisionMetrics interface {
	ObserveDecision(d models.TradeDecision)
	ObserveReward(symbol string, reward float64)
	ObserveLearningFailure(symbol string)
	SetAgentState(exploration float64, tableSize int)
	ObserveCheckpoint(op string, seconds float64, err error)
}
