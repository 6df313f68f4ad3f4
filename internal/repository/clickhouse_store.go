package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"TradeMind/internal/domain/models"
	drepo "TradeMind/internal/domain/repository"
	pkgch "TradeMind/pkg/clickhouse"
	"TradeMind/pkg/logger"
)

const insertChunk = 2000

// CHDecisionStore keeps the decision audit trail in ClickHouse.
type CHDecisionStore struct {
	db    *sql.DB
	table string
	log   *logger.Logger
}

var _ drepo.DecisionStore = (*CHDecisionStore)(nil)

func NewCHDecisionStore(ch *pkgch.Client, table string, log *logger.Logger) *CHDecisionStore {
	if log == nil {
		log = logger.Nop()
	}
	if table == "" {
		table = "decisions"
	}
	return &CHDecisionStore{db: ch.DB(), table: table, log: log.Named("ch_decisions")}
}

var decisionColumns = []string{
	"ts", "symbol", "should_trade", "action", "direction", "size_fraction",
	"confidence", "reason", "risk_level", "state_key", "breakdown", "warnings",
}

func decisionSchema(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    ts            DateTime64(3, 'UTC'),
    symbol        LowCardinality(String),
    should_trade  UInt8,
    action        LowCardinality(String),
    direction     Int8,
    size_fraction Float64,
    confidence    Float64,
    reason        LowCardinality(String),
    risk_level    LowCardinality(String),
    state_key     String,
    breakdown     String,
    warnings      Array(String)
) ENGINE = MergeTree
ORDER BY (symbol, ts)`, table)
}

func (s *CHDecisionStore) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, decisionSchema(s.table)); err != nil {
		return fmt.Errorf("init %s: %w", s.table, err)
	}
	return nil
}

func decisionArgs(d models.TradeDecision) ([]interface{}, error) {
	breakdown, err := json.Marshal(d.Breakdown)
	if err != nil {
		return nil, fmt.Errorf("encode breakdown: %w", err)
	}
	warnings := d.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	var trade uint8
	if d.ShouldTrade {
		trade = 1
	}
	return []interface{}{
		d.Timestamp.UTC(), d.Symbol, trade, d.Action.String(), int8(d.Direction), d.SizeFraction,
		d.Confidence, d.Reason, string(d.RiskLevel), d.StateKey, string(breakdown), warnings,
	}, nil
}

func (s *CHDecisionStore) StoreDecisions(ctx context.Context, ds []models.TradeDecision) error {
	for start := 0; start < len(ds); start += insertChunk {
		end := min(start+insertChunk, len(ds))
		args := make([]interface{}, 0, (end-start)*len(decisionColumns))
		rows := 0
		for _, d := range ds[start:end] {
			if d.Symbol == "" || d.Timestamp.IsZero() {
				continue
			}
			a, err := decisionArgs(d)
			if err != nil {
				return err
			}
			args = append(args, a...)
			rows++
		}
		if rows == 0 {
			continue
		}
		if _, err := s.db.ExecContext(ctx, buildInsert(s.table, decisionColumns, rows), args...); err != nil {
			s.log.Error("clickhouse store_decisions error",
				logger.String("table", s.table), logger.Int("rows", rows), logger.Error(err))
			return fmt.Errorf("store decisions: %w", err)
		}
	}
	return nil
}

func (s *CHDecisionStore) RecentDecisions(ctx context.Context, symbol string, limit int) ([]models.TradeDecision, error) {
	if limit <= 0 {
		limit = 100
	}
	q := fmt.Sprintf("SELECT %s FROM %s WHERE symbol = ? ORDER BY ts DESC LIMIT ?",
		strings.Join(decisionColumns, ", "), s.table)
	rows, err := s.db.QueryContext(ctx, q, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("recent decisions: %w", err)
	}
	defer rows.Close()

	out := make([]models.TradeDecision, 0, limit)
	for rows.Next() {
		var (
			d         models.TradeDecision
			trade     uint8
			action    string
			direction int8
			risk      string
			breakdown string
		)
		if err := rows.Scan(&d.Timestamp, &d.Symbol, &trade, &action, &direction, &d.SizeFraction,
			&d.Confidence, &d.Reason, &risk, &d.StateKey, &breakdown, &d.Warnings); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		if d.Action, err = models.ParseAction(action); err != nil {
			return nil, err
		}
		if breakdown != "" {
			if err := json.Unmarshal([]byte(breakdown), &d.Breakdown); err != nil {
				return nil, fmt.Errorf("decode breakdown: %w", err)
			}
		}
		d.ShouldTrade = trade == 1
		d.Direction = int(direction)
		d.RiskLevel = models.RiskLevel(risk)
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *CHDecisionStore) Close() error { return nil }

// CHBarHistory stores closed bars for warmup and retraining.
type CHBarHistory struct {
	db    *sql.DB
	table string
	log   *logger.Logger
}

var _ drepo.BarHistory = (*CHBarHistory)(nil)

func NewCHBarHistory(ch *pkgch.Client, table string, log *logger.Logger) *CHBarHistory {
	if log == nil {
		log = logger.Nop()
	}
	if table == "" {
		table = "bars"
	}
	return &CHBarHistory{db: ch.DB(), table: table, log: log.Named("ch_bars")}
}

var barColumns = []string{"ts", "symbol", "timeframe", "open", "high", "low", "close", "volume"}

func barSchema(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    ts        DateTime64(3, 'UTC'),
    symbol    LowCardinality(String),
    timeframe LowCardinality(String),
    open      Decimal(18, 6),
    high      Decimal(18, 6),
    low       Decimal(18, 6),
    close     Decimal(18, 6),
    volume    Int64
) ENGINE = ReplacingMergeTree
ORDER BY (symbol, timeframe, ts)`, table)
}

func (h *CHBarHistory) Init(ctx context.Context) error {
	if _, err := h.db.ExecContext(ctx, barSchema(h.table)); err != nil {
		return fmt.Errorf("init %s: %w", h.table, err)
	}
	return nil
}

func (h *CHBarHistory) StoreBars(ctx context.Context, bars []*models.Bar) error {
	for start := 0; start < len(bars); start += insertChunk {
		end := min(start+insertChunk, len(bars))
		args := make([]interface{}, 0, (end-start)*len(barColumns))
		rows := 0
		for _, b := range bars[start:end] {
			if b == nil || b.Symbol == "" || b.Timestamp.IsZero() {
				continue
			}
			args = append(args, b.Timestamp.UTC(), b.Symbol, string(b.Timeframe),
				b.Open, b.High, b.Low, b.Close, b.Volume)
			rows++
		}
		if rows == 0 {
			continue
		}
		if _, err := h.db.ExecContext(ctx, buildInsert(h.table, barColumns, rows), args...); err != nil {
			h.log.Error("clickhouse store_bars error",
				logger.String("table", h.table), logger.Int("rows", rows), logger.Error(err))
			return fmt.Errorf("store bars: %w", err)
		}
	}
	return nil
}

// QueryBars returns bars in ascending time order. With limit > 0 the most
// recent limit bars of the window are kept.
func (h *CHBarHistory) QueryBars(ctx context.Context, symbol string, tf models.Timeframe, from, to time.Time, limit int) ([]models.Bar, error) {
	start := time.Now()
	q := fmt.Sprintf(`SELECT %s FROM %s FINAL
        WHERE symbol = ? AND timeframe = ? AND ts >= ? AND ts <= ?
        ORDER BY ts DESC`, strings.Join(barColumns, ", "), h.table)
	args := []interface{}{symbol, string(tf), from.UTC(), to.UTC()}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := h.db.QueryContext(ctx, q, args...)
	if err != nil {
		h.log.Error("clickhouse query_bars error",
			logger.String("symbol", symbol), logger.String("tf", string(tf)), logger.Error(err))
		return nil, fmt.Errorf("query bars: %w", err)
	}
	defer rows.Close()

	var out []models.Bar
	for rows.Next() {
		var (
			b   models.Bar
			raw string
		)
		if err := rows.Scan(&b.Timestamp, &b.Symbol, &raw, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		b.Timeframe = models.Timeframe(raw)
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	reverseBars(out)
	h.log.Debug("clickhouse query_bars ok",
		logger.String("symbol", symbol),
		logger.String("tf", string(tf)),
		logger.Int("rows", len(out)),
		logger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

func (h *CHBarHistory) Health(ctx context.Context) error { return h.db.PingContext(ctx) }

// Close is a no-op; the pool belongs to pkg/clickhouse.
func (h *CHBarHistory) Close() error { return nil }

// buildInsert renders a multi-row VALUES insert with placeholders.
func buildInsert(table string, columns []string, rows int) string {
	ph := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ") + ")"
	values := make([]string, rows)
	for i := range values {
		values[i] = ph
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", table, strings.Join(columns, ", "), strings.Join(values, ","))
}

func reverseBars(bars []models.Bar) {
	for i, j := 0, len(bars)-1; i < j; i, j = i+1, j-1 {
		bars[i], bars[j] = bars[j], bars[i]
	}
}
