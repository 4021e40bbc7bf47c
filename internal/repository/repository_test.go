package repository

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinDS/internal/domain/models"
	"FinDS/internal/domain/repository"
)

func TestMemoryVintageStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryVintageStore()

	n, err := s.Put(ctx, "GDP", []models.Observation{
		{Date: "2020-04-01", RealtimeStart: "2020-07-30", RealtimeEnd: "2020-08-26", Value: "19408"},
		{Date: "2020-01-01", RealtimeStart: "2020-04-29", RealtimeEnd: "2020-05-27", Value: "21539"},
		{Date: "", Value: "skip"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// same key replaces the value
	_, err = s.Put(ctx, "GDP", []models.Observation{
		{Date: "2020-01-01", RealtimeStart: "2020-04-29", RealtimeEnd: "2020-05-27", Value: "21540"},
		{Date: "2020-01-01", RealtimeStart: "2020-05-28", RealtimeEnd: "9999-12-31", Value: "21561"},
	})
	require.NoError(t, err)

	obs, err := s.Get(ctx, "GDP")
	require.NoError(t, err)
	require.Len(t, obs, 3)
	assert.Equal(t, "21540", obs[0].Value)
	assert.Equal(t, "2020-05-28", obs[1].RealtimeStart)
	assert.Equal(t, "2020-04-01", obs[2].Date)

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 3, list[0].Observations)
	assert.WithinDuration(t, time.Now(), list[0].UpdatedAt, time.Minute)

	require.NoError(t, s.Delete(ctx, "GDP"))
	_, err = s.Get(ctx, "GDP")
	assert.ErrorIs(t, err, repository.ErrSeriesNotFound)
}

func TestClickHouseInsertQuery(t *testing.T) {
	s := NewClickHouseVintageStore(nil, "finds.observations")
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	q, args := s.insertQuery("CPI", []models.Observation{
		{Date: "2020-01-01", RealtimeStart: "2020-02-13", RealtimeEnd: "2020-03-10", Value: "258.6"},
		{Date: ""},
		{Date: "2020-02-01", RealtimeStart: "2020-03-11", RealtimeEnd: "9999-12-31", Value: "."},
	}, at)

	assert.True(t, strings.HasPrefix(q, "INSERT INTO finds.observations (series_id, date, realtime_start, realtime_end, value, ingested_at) VALUES "))
	assert.Equal(t, 2, strings.Count(q, "(?, ?, ?, ?, ?, ?)"))
	require.Len(t, args, 12)
	assert.Equal(t, []interface{}{"CPI", "2020-02-01", "2020-03-11", "9999-12-31", ".", at}, args[6:])
}

func TestClickHouseSchema(t *testing.T) {
	stmts := NewClickHouseVintageStore(nil, "finds.observations").Schema()
	require.Len(t, stmts, 2)
	assert.Equal(t, "CREATE DATABASE IF NOT EXISTS finds", stmts[0])
	assert.Contains(t, stmts[1], "ReplacingMergeTree(ingested_at)")

	assert.Len(t, NewClickHouseVintageStore(nil, "observations").Schema(), 1)
}
