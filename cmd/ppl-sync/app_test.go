package main

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/BearBump/ShipSync/config"
	"github.com/BearBump/ShipSync/internal/cache"
	"github.com/BearBump/ShipSync/internal/cache/memcache"
	"github.com/BearBump/ShipSync/internal/models"
	"github.com/BearBump/ShipSync/internal/ppl"
	"github.com/BearBump/ShipSync/internal/ppl/fake"
	"github.com/BearBump/ShipSync/internal/services/labelsync"
	"github.com/stretchr/testify/require"
)

type stubRepo struct{}

func (stubRepo) PendingLabel(ctx context.Context, limit int) ([]*models.Fulfillment, error) {
	return nil, nil
}

func (stubRepo) ShippedUndelivered(ctx context.Context, limit int) ([]*models.Fulfillment, error) {
	return nil, nil
}

func (stubRepo) UpdateData(ctx context.Context, id uint64, data models.FulfillmentData) error {
	return nil
}

func (stubRepo) MarkShipped(ctx context.Context, id uint64, at time.Time) error { return nil }

func (stubRepo) SetDelivered(ctx context.Context, id uint64, at time.Time, data models.FulfillmentData) error {
	return nil
}

type noopProducer struct{}

func (noopProducer) Publish(ctx context.Context, topic string, key, value []byte) error { return nil }

type noopFiles struct{}

func (noopFiles) Store(ctx context.Context, data []byte, filename, contentType string) (string, error) {
	return "https://files.example/" + filename, nil
}

func stubFactories() syncFactories {
	return syncFactories{
		newStorage: func(cfg *config.Config) (fulfillmentRepo, func(), error) {
			return stubRepo{}, nil, nil
		},
		newProducer: func(cfg *config.Config) producer {
			return noopProducer{}
		},
		newSharedCache: func(cfg *config.Config) (cache.BytesCache, cache.Locker) {
			return memcache.New(), memcache.NewLock()
		},
		newCarrier: func(cfg *config.Config, shared cache.BytesCache) carrierClient {
			return fake.New()
		},
		newFileStore: func(ctx context.Context, cfg *config.Config) (labelsync.FileStore, error) {
			return noopFiles{}, nil
		},
	}
}

func TestDefaultSyncFactories_SelectCarrier(t *testing.T) {
	f := defaultSyncFactories()
	shared := memcache.New()

	cfgFake := &config.Config{PPL: config.PPLConfig{Mode: "fake"}}
	c1 := f.newCarrier(cfgFake, shared)
	_, ok := c1.(*fake.FakeClient)
	require.True(t, ok)

	cfgReal := &config.Config{PPL: config.PPLConfig{
		Environment: "test",
		ClientID:    "id",
		ClientSecret: "secret",
	}}
	c2 := f.newCarrier(cfgReal, shared)
	_, ok = c2.(*ppl.Client)
	require.True(t, ok)
}

func TestDefaultSyncFactories_ProducerNonNil(t *testing.T) {
	f := defaultSyncFactories()
	cfg := &config.Config{Kafka: config.KafkaConfig{Host: "localhost", Port: 9092}}
	require.NotNil(t, f.newProducer(cfg))
}

func TestRunSync_ContextCanceled(t *testing.T) {
	calledClose := false
	f := stubFactories()
	f.newStorage = func(cfg *config.Config) (fulfillmentRepo, func(), error) {
		return stubRepo{}, func() { calledClose = true }, nil
	}

	cfg := &config.Config{Sync: config.SyncConfig{HTTPAddr: "127.0.0.1:0"}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RunSync(ctx, cfg, f)
	require.ErrorIs(t, err, context.Canceled)
	require.True(t, calledClose)
}

func TestOpsServer_StatsAndTrigger(t *testing.T) {
	labelJob := labelsync.New(stubRepo{}, fake.New(), noopFiles{}, noopProducer{}, memcache.NewLock()).
		WithSettings(time.Hour, time.Second, 1)

	addrCh := make(chan string, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		_ = runOpsServer(ctx, opsServerOpts{
			httpAddr: "127.0.0.1:0",
			onListen: func(a string) { addrCh <- a },
			labelJob: labelJob,
			cfg:      &config.Config{},
		})
	}()

	var addr string
	select {
	case addr = <-addrCh:
	case <-time.After(2 * time.Second):
		t.Fatal("ops server did not start")
	}

	resp, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	resp, err = http.Get("http://" + addr + "/stats")
	require.NoError(t, err)
	var stats map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	_ = resp.Body.Close()
	require.Contains(t, stats, "labels")

	resp, err = http.Post("http://"+addr+"/trigger/labels", "application/json", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()
}
