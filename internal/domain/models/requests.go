package models

// Query and body shapes of the HTTP API. Binding reads the query tag for GET
// and the json tag for POST bodies.

type SymbolQuery struct {
	Symbol string `query:"symbol" json:"symbol"`
}

type TimeframesQuery struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required"`
}

type DecisionHistoryQuery struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required"`
	Limit  int    `query:"limit" json:"limit" default:"50" validate:"gte=1,lte=1000"`
}
