package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"FinDS/internal/domain/models"
	domrepo "FinDS/internal/domain/repository"
	"FinDS/internal/services/alfred"
	applogger "FinDS/pkg/logger"
)

// VintageService stores ALFRED observations and builds series from them.
type VintageService struct {
	store   domrepo.VintageStore
	metrics domrepo.Metrics
	log     *applogger.Logger
}

func NewVintageService(store domrepo.VintageStore, m domrepo.Metrics, lgr *applogger.Logger) *VintageService {
	if m == nil {
		m = nopMetrics{}
	}
	if lgr == nil {
		lgr = applogger.Nop()
	}
	return &VintageService{store: store, metrics: m, log: lgr}
}

// Put merges observations into a stored series and returns how many rows
// were written. source labels the ingest metric (http, kafka).
func (s *VintageService) Put(ctx context.Context, source, seriesID string, obs []models.Observation) (int, error) {
	seriesID = strings.TrimSpace(seriesID)
	if seriesID == "" {
		return 0, &RecipeError{Recipe: "vintage_put", Err: fmt.Errorf("series id is required")}
	}
	start := time.Now()
	n, err := s.store.Put(ctx, seriesID, obs)
	if err != nil {
		return 0, fmt.Errorf("store observations for %s: %w", seriesID, err)
	}
	s.metrics.Ingested(source, n)
	s.log.Info("observations stored",
		applogger.String("series_id", seriesID),
		applogger.String("source", source),
		applogger.Int("rows", n),
		applogger.Duration("latency_ms", time.Since(start)))
	return n, nil
}

func (s *VintageService) Get(ctx context.Context, seriesID string) ([]models.Observation, error) {
	return s.store.Get(ctx, seriesID)
}

func (s *VintageService) List(ctx context.Context) ([]models.SeriesInfo, error) {
	return s.store.List(ctx)
}

func (s *VintageService) Delete(ctx context.Context, seriesID string) error {
	return s.store.Delete(ctx, seriesID)
}

// observations resolves the query's rows: inline ones win over a stored
// series. Backfill converts a FRED response, whose rows all carry the
// request's realtime window, to ALFRED form.
func (s *VintageService) observations(ctx context.Context, q *models.VintageQuery) ([]models.Observation, error) {
	obs := q.Observations
	if len(obs) == 0 {
		if q.SeriesID == "" {
			return nil, &RecipeError{Recipe: "vintage", Err: fmt.Errorf("observations or series_id is required")}
		}
		var err error
		if obs, err = s.store.Get(ctx, q.SeriesID); err != nil {
			return nil, err
		}
	}
	if q.Backfill && len(obs) > 0 {
		obs = alfred.BackfillRealtime(obs, obs[0].RealtimeStart, obs[0].RealtimeEnd)
	}
	return obs, nil
}

func seriesOptions(q *models.VintageQuery) alfred.Options {
	opts := alfred.Options{
		Vintage: q.Vintage,
		Release: q.Release,
		Start:   q.Start,
		End:     q.End,
		Freq:    q.Freq,
	}
	if q.ReleaseOffset != nil {
		opts.ReleaseOffset = &alfred.Offset{Months: q.ReleaseOffset.Months, Days: q.ReleaseOffset.Days}
	}
	return opts
}

// Construct keeps one release per period as of the query's vintage.
func (s *VintageService) Construct(ctx context.Context, q *models.VintageQuery) ([]models.Point, error) {
	obs, err := s.observations(ctx, q)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	points, err := alfred.ConstructSeries(obs, seriesOptions(q))
	s.metrics.ObserveRecipe("construct_series", time.Since(start), err)
	if err != nil {
		return nil, &RecipeError{Recipe: "construct_series", Err: err}
	}
	return points, nil
}

// Transform constructs the series and applies a FRED units or McCracken
// transformation code.
func (s *VintageService) Transform(ctx context.Context, req *models.VintageTransformRequest) ([]models.Point, error) {
	spec, err := alfred.TransformCode(req.Units)
	if err != nil {
		return nil, &RecipeError{Recipe: "transform", Err: err}
	}
	points, err := s.Construct(ctx, &req.VintageQuery)
	if err != nil {
		return nil, err
	}
	return alfred.Transform(points, spec), nil
}

// Spans constructs the series and returns the periods where it exceeds the
// threshold, such as recessions in USREC.
func (s *VintageService) Spans(ctx context.Context, req *models.VintageSpansRequest) ([]models.Span, error) {
	points, err := s.Construct(ctx, &req.VintageQuery)
	if err != nil {
		return nil, err
	}
	return alfred.DateSpans(points, req.Threshold), nil
}

// ObservationsHandler stores observation batches consumed from Kafka.
// Messages look like {"series_id": "GDP", "observations": [...]}.
type ObservationsHandler struct {
	topic   string
	vintage *VintageService
}

func NewObservationsHandler(topic string, vintage *VintageService) *ObservationsHandler {
	return &ObservationsHandler{topic: topic, vintage: vintage}
}

func (h *ObservationsHandler) Topic() string { return h.topic }

type observationsMessage struct {
	SeriesID     string               `json:"series_id"`
	Observations []models.Observation `json:"observations"`
}

func (h *ObservationsHandler) Handle(ctx context.Context, b []byte) error {
	var m observationsMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return fmt.Errorf("decode observations message: %w", err)
	}
	_, err := h.vintage.Put(ctx, "kafka", m.SeriesID, m.Observations)
	return err
}
