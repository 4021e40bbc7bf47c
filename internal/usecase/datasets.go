package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"FinDS/internal/domain/models"
	domrepo "FinDS/internal/domain/repository"
	"FinDS/internal/services/alfred"
	"FinDS/pkg/cache"
	applogger "FinDS/pkg/logger"
)

// DatasetLoader reads FRED-MD/QD vintages.
type DatasetLoader interface {
	Load(ctx context.Context, kind alfred.Kind, vintage int) (*models.Dataset, error)
}

// PageScraper reads series from public web pages.
type PageScraper interface {
	Shiller(ctx context.Context, page string) ([]models.Point, error)
	Popular(ctx context.Context, page int) ([]string, error)
}

// UpstreamError wraps a failure of an external data source.
type UpstreamError struct {
	Source string
	Err    error
}

func (e *UpstreamError) Error() string { return e.Source + ": " + e.Err.Error() }

func (e *UpstreamError) Unwrap() error { return e.Err }

// DatasetService serves downloaded datasets through the cache.
type DatasetService struct {
	loader  DatasetLoader
	scraper PageScraper
	cache   cache.Service
	ttl     time.Duration
	metrics domrepo.Metrics
	log     *applogger.Logger
}

func NewDatasetService(loader DatasetLoader, scraper PageScraper, c cache.Service, ttl time.Duration, m domrepo.Metrics, lgr *applogger.Logger) *DatasetService {
	if m == nil {
		m = nopMetrics{}
	}
	if lgr == nil {
		lgr = applogger.Nop()
	}
	return &DatasetService{loader: loader, scraper: scraper, cache: c, ttl: ttl, metrics: m, log: lgr}
}

// FredMD returns a FRED-MD (kind md) or FRED-QD (qd) vintage, YYYYMM or 0
// for the current file. With transform set, each column gets the
// transformation code from the dataset's metadata.
func (s *DatasetService) FredMD(ctx context.Context, kind string, vintage int, transform bool) (*models.Dataset, error) {
	k := alfred.Kind(kind)
	if k != alfred.Monthly && k != alfred.Quarterly {
		return nil, &RecipeError{Recipe: "fredmd", Err: alfred.ErrKind}
	}
	key := cache.GenerateKeyWithParams("dataset:fredmd", kind, vintage)

	start := time.Now()
	ds, hit, err := cache.Remember(ctx, s.cache, key, s.ttl, func(ctx context.Context) (*models.Dataset, error) {
		return s.loader.Load(ctx, k, vintage)
	})
	s.metrics.CacheLookup("dataset", hit)
	if err != nil {
		s.log.Warn("fredmd load failed",
			applogger.String("kind", kind),
			applogger.Int("vintage", vintage),
			applogger.Error(err))
		if errors.Is(err, alfred.ErrNotFound) {
			return nil, err
		}
		return nil, &UpstreamError{Source: "fredmd", Err: err}
	}
	s.log.Debug("fredmd loaded",
		applogger.String("path", ds.Path),
		applogger.Bool("cached", hit),
		applogger.Duration("latency_ms", time.Since(start)))

	if !transform {
		return ds, nil
	}
	out := *ds
	out.Panel = ds.Panel.Clone()
	if err := alfred.TransformPanel(out.Panel, ds.TransformCodes()); err != nil {
		return nil, &RecipeError{Recipe: "transform_panel", Err: err}
	}
	return &out, nil
}

// FactorPanel returns a transformed FRED-MD/QD vintage ready for the factor
// model: the leading rows emptied by differencing are dropped.
func (s *DatasetService) FactorPanel(ctx context.Context, kind string, vintage int) (*models.Panel, error) {
	ds, err := s.FredMD(ctx, kind, vintage, true)
	if err != nil {
		return nil, err
	}
	return ds.Panel.DropLeading(alfred.TransformWarmup), nil
}

// Shiller returns a monthly multpl.com series. page is a page slug such as
// "shiller-pe" or a FRED-MD series name listed in alfred.ShillerPages.
func (s *DatasetService) Shiller(ctx context.Context, page string) ([]models.Point, error) {
	if slug, ok := alfred.ShillerPages[page]; ok {
		page = slug
	}
	if page == "" {
		return nil, &RecipeError{Recipe: "shiller", Err: fmt.Errorf("page is required")}
	}
	points, hit, err := cache.Remember(ctx, s.cache, cache.GenerateKey("dataset:shiller", page), s.ttl,
		func(ctx context.Context) ([]models.Point, error) {
			return s.scraper.Shiller(ctx, page)
		})
	s.metrics.CacheLookup("dataset", hit)
	if err != nil {
		return nil, &UpstreamError{Source: "multpl", Err: err}
	}
	return points, nil
}

// Popular lists the series ids on one page of FRED's most viewed series.
func (s *DatasetService) Popular(ctx context.Context, page int) ([]string, error) {
	if page < 1 {
		return nil, &RecipeError{Recipe: "popular", Err: fmt.Errorf("page must be positive, got %d", page)}
	}
	ids, hit, err := cache.Remember(ctx, s.cache, cache.GenerateKey("dataset:popular", fmt.Sprint(page)), s.ttl,
		func(ctx context.Context) ([]string, error) {
			return s.scraper.Popular(ctx, page)
		})
	s.metrics.CacheLookup("dataset", hit)
	if err != nil {
		return nil, &UpstreamError{Source: "fred", Err: err}
	}
	return ids, nil
}
