package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.ObserveRecipe("factors_em", time.Millisecond, nil)
	r.ObserveRecipe("factors_em", time.Millisecond, errors.New("x"))
	r.CacheLookup("recipe", true)
	r.CacheLookup("recipe", false)
	r.CacheLookup("recipe", false)
	r.JobFinished("factors_em", "completed", time.Second)
	r.Ingested("kafka", 5)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.recipeErrors.WithLabelValues("factors_em")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.cacheLookups.WithLabelValues("recipe", "hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.cacheLookups.WithLabelValues("recipe", "miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.jobs.WithLabelValues("factors_em", "completed")))
	assert.Equal(t, 5.0, testutil.ToFloat64(r.ingested.WithLabelValues("kafka")))

	n, err := testutil.GatherAndCount(reg, "finds_recipe_duration_seconds")
	assert.NoError(t, err)
	assert.Equal(t, 1, n)
}
