package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"FinDS/internal/domain/models"
	"FinDS/internal/domain/repository"
)

const insertChunk = 2000

// ClickHouseVintageStore keeps observations in a ReplacingMergeTree keyed by
// (series_id, date, realtime_start); the newest ingested_at wins on merge and
// reads use FINAL.
type ClickHouseVintageStore struct {
	db    *sql.DB
	table string
}

// NewClickHouseVintageStore uses table, qualified or not ("finds.observations").
func NewClickHouseVintageStore(db *sql.DB, table string) *ClickHouseVintageStore {
	return &ClickHouseVintageStore{db: db, table: table}
}

var _ repository.VintageStore = (*ClickHouseVintageStore)(nil)

// Schema returns the DDL for the store's table.
func (s *ClickHouseVintageStore) Schema() []string {
	stmts := []string{}
	if db, _, ok := strings.Cut(s.table, "."); ok {
		stmts = append(stmts, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", db))
	}
	return append(stmts, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	series_id String,
	date String,
	realtime_start String,
	realtime_end String,
	value String,
	ingested_at DateTime64(3)
) ENGINE = ReplacingMergeTree(ingested_at)
ORDER BY (series_id, date, realtime_start)`, s.table))
}

func (s *ClickHouseVintageStore) Init(ctx context.Context) error {
	for _, stmt := range s.Schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init %s: %w", s.table, err)
		}
	}
	return nil
}

// Put inserts obs in chunks of multi-row VALUES statements.
func (s *ClickHouseVintageStore) Put(ctx context.Context, seriesID string, obs []models.Observation) (int, error) {
	now := time.Now().UTC()
	written := 0
	for start := 0; start < len(obs); start += insertChunk {
		end := start + insertChunk
		if end > len(obs) {
			end = len(obs)
		}
		q, args := s.insertQuery(seriesID, obs[start:end], now)
		if len(args) == 0 {
			continue
		}
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return written, fmt.Errorf("insert %s: %w", seriesID, err)
		}
		written += len(args) / 6
	}
	return written, nil
}

func (s *ClickHouseVintageStore) insertQuery(seriesID string, obs []models.Observation, at time.Time) (string, []interface{}) {
	values := make([]string, 0, len(obs))
	args := make([]interface{}, 0, len(obs)*6)
	for _, o := range obs {
		if o.Date == "" {
			continue
		}
		values = append(values, "(?, ?, ?, ?, ?, ?)")
		args = append(args, seriesID, o.Date, o.RealtimeStart, o.RealtimeEnd, o.Value, at)
	}
	q := fmt.Sprintf("INSERT INTO %s (series_id, date, realtime_start, realtime_end, value, ingested_at) VALUES %s",
		s.table, strings.Join(values, ","))
	return q, args
}

func (s *ClickHouseVintageStore) Get(ctx context.Context, seriesID string) ([]models.Observation, error) {
	q := fmt.Sprintf(`SELECT date, realtime_start, realtime_end, value FROM %s FINAL
WHERE series_id = ? ORDER BY date, realtime_start`, s.table)
	rows, err := s.db.QueryContext(ctx, q, seriesID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Observation
	for rows.Next() {
		var o models.Observation
		if err := rows.Scan(&o.Date, &o.RealtimeStart, &o.RealtimeEnd, &o.Value); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s", repository.ErrSeriesNotFound, seriesID)
	}
	return out, nil
}

func (s *ClickHouseVintageStore) List(ctx context.Context) ([]models.SeriesInfo, error) {
	q := fmt.Sprintf(`SELECT series_id, count(), max(ingested_at) FROM %s FINAL
GROUP BY series_id ORDER BY series_id`, s.table)
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.SeriesInfo
	for rows.Next() {
		var info models.SeriesInfo
		var n uint64
		if err := rows.Scan(&info.SeriesID, &n, &info.UpdatedAt); err != nil {
			return nil, err
		}
		info.Observations = int(n)
		out = append(out, info)
	}
	return out, rows.Err()
}

// Delete issues a lightweight delete mutation.
func (s *ClickHouseVintageStore) Delete(ctx context.Context, seriesID string) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE series_id = ?", s.table), seriesID)
	return err
}

func (s *ClickHouseVintageStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
