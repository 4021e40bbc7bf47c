package di

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internalrepo "FinDS/internal/repository"
	"FinDS/pkg/cache"
	"FinDS/pkg/config"
	"FinDS/pkg/queue"
)

func TestInitializeAppWithDefaults(t *testing.T) {
	cfg := config.Default()
	cfg.Logging.Output = "stderr"

	app, err := InitializeApp(cfg)
	require.NoError(t, err)
	assert.NotNil(t, app)
}

func TestProvideInMemoryFallbacks(t *testing.T) {
	cfg := config.Default()

	store, err := ProvideVintageStore(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &internalrepo.MemoryVintageStore{}, store)

	caches := ProvideCaches(cfg, nil)
	assert.IsType(t, &cache.MemoryCache{}, caches.Results)
	assert.IsType(t, &cache.MemoryCache{}, caches.Jobs)
	assert.NotSame(t, caches.Results, caches.Jobs)
	require.NoError(t, caches.Close())
}

func TestProvideQueue(t *testing.T) {
	cfg := config.Default()
	lgr, err := ProvideLogger(cfg)
	require.NoError(t, err)

	q, err := ProvideQueue(cfg, lgr, nil)
	require.NoError(t, err)
	assert.IsType(t, &queue.LocalQueue{}, q)

	cfg.Jobs.Backend = "redis"
	_, err = ProvideQueue(cfg, lgr, nil)
	assert.Error(t, err)

	cfg.Jobs.Backend = "nats"
	_, err = ProvideQueue(cfg, lgr, nil)
	assert.Error(t, err)
}

func TestProvideOptionalClientsDisabled(t *testing.T) {
	cfg := config.Default()

	ch, err := ProvideClickHouseClient(cfg)
	require.NoError(t, err)
	assert.Nil(t, ch)

	rc, err := ProvideRedisCache(cfg)
	require.NoError(t, err)
	assert.Nil(t, rc)

	p, err := ProvideKafkaProducer(cfg)
	require.NoError(t, err)
	assert.Nil(t, p)

	assert.IsType(t, &internalrepo.LogPublisher{}, ProvideEventPublisher(cfg, nil, nil))
}

func TestProvideHubWithoutRedis(t *testing.T) {
	cfg := config.Default()
	hub := ProvideHub(cfg, nil, nil)
	require.NotNil(t, hub)
	assert.NoError(t, hub.Run(context.Background()))
}
