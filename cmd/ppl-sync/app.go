package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BearBump/ShipSync/config"
	"github.com/BearBump/ShipSync/internal/broker/kafka"
	"github.com/BearBump/ShipSync/internal/cache"
	"github.com/BearBump/ShipSync/internal/cache/memcache"
	"github.com/BearBump/ShipSync/internal/cache/rediscache"
	"github.com/BearBump/ShipSync/internal/ppl"
	"github.com/BearBump/ShipSync/internal/ppl/fake"
	"github.com/BearBump/ShipSync/internal/services/labelsync"
	"github.com/BearBump/ShipSync/internal/services/tracksync"
	"github.com/BearBump/ShipSync/internal/storage/pgfulfillment"
	"github.com/BearBump/ShipSync/internal/storage/s3labels"
)

// fulfillmentRepo is what both sync jobs need from storage.
type fulfillmentRepo interface {
	labelsync.Repository
	tracksync.Repository
}

// carrierClient covers both jobs' views of the carrier. Implemented by
// the real HTTP client and by the in-process fake.
type carrierClient interface {
	CreateShipmentBatch(ctx context.Context, shipments []ppl.Shipment) (string, error)
	GetBatchStatus(ctx context.Context, batchID string) ([]ppl.BatchItem, error)
	GetShipmentInfo(ctx context.Context, q ppl.ShipmentInfoQuery) ([]ppl.ShipmentInfo, error)
	CancelShipment(ctx context.Context, shipmentNumber string) bool
	DownloadLabel(ctx context.Context, labelURL string) ([]byte, error)
	TrackingURL(shipmentNumber string) string
}

type producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

type syncFactories struct {
	newStorage   func(cfg *config.Config) (repo fulfillmentRepo, closeFn func(), err error)
	newProducer  func(cfg *config.Config) producer
	newSharedCache func(cfg *config.Config) (cache.BytesCache, cache.Locker)
	newCarrier   func(cfg *config.Config, shared cache.BytesCache) carrierClient
	newFileStore func(ctx context.Context, cfg *config.Config) (labelsync.FileStore, error)
}

func defaultSyncFactories() syncFactories {
	return syncFactories{
		newStorage: func(cfg *config.Config) (fulfillmentRepo, func(), error) {
			sslMode := cfg.Database.SSLMode
			if sslMode == "" {
				sslMode = "disable"
			}
			connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
				cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
			st, err := pgfulfillment.New(connString)
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newProducer: func(cfg *config.Config) producer {
			brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
			return kafka.NewProducer(brokers)
		},
		newSharedCache: func(cfg *config.Config) (cache.BytesCache, cache.Locker) {
			// Redis держит общий токен, троттлинг и локи на весь флот.
			// Без Redis деградируем до process-local состояния: корректно
			// для одного инстанса, для нескольких теряется координация.
			addr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
			rc := rediscache.New(addr)
			pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := rc.Ping(pingCtx); err != nil {
				slog.Warn("redis unreachable, using in-process cache and lock", "addr", addr, "error", err.Error())
				return memcache.New(), memcache.NewLock()
			}
			return rc, rediscache.NewLock(addr)
		},
		newCarrier: func(cfg *config.Config, shared cache.BytesCache) carrierClient {
			if cfg.PPL.Mode == "fake" {
				return fake.New()
			}
			return ppl.NewClient(ppl.Config{
				BaseURL:      cfg.PPL.BaseURL,
				Environment:  cfg.PPL.Environment,
				ClientID:     cfg.PPL.ClientID,
				ClientSecret: cfg.PPL.ClientSecret,
				LabelFormat:  cfg.PPL.LabelFormat,
				LabelDpi:     cfg.PPL.LabelDpi,
			}, shared)
		},
		newFileStore: func(ctx context.Context, cfg *config.Config) (labelsync.FileStore, error) {
			st, err := s3labels.New(s3labels.Config{
				Endpoint:      cfg.Storage.Endpoint,
				Region:        cfg.Storage.Region,
				AccessKey:     cfg.Storage.AccessKey,
				SecretKey:     cfg.Storage.SecretKey,
				Bucket:        cfg.Storage.Bucket,
				UseSSL:        cfg.Storage.UseSSL,
				UsePathStyle:  cfg.Storage.UsePathStyle,
				PublicBaseURL: cfg.Storage.PublicBaseURL,
			})
			if err != nil {
				return nil, err
			}
			if err := st.EnsureBucket(ctx); err != nil {
				return nil, err
			}
			return st, nil
		},
	}
}

func RunSync(ctx context.Context, cfg *config.Config, f syncFactories) error {
	labelInterval := time.Duration(cfg.Sync.LabelIntervalSeconds) * time.Second
	if labelInterval <= 0 {
		labelInterval = time.Minute
	}
	labelLockTTL := time.Duration(cfg.Sync.LabelLockTTLSeconds) * time.Second
	if labelLockTTL <= 0 {
		labelLockTTL = 120 * time.Second
	}
	labelBatch := cfg.Sync.LabelBatchSize
	if labelBatch <= 0 {
		labelBatch = 500
	}
	labelMaxAttempts := cfg.Sync.LabelMaxAttempts
	if labelMaxAttempts <= 0 {
		labelMaxAttempts = 60
	}
	labelMaxAge := time.Duration(cfg.Sync.LabelMaxPendingAgeHours) * time.Hour
	if labelMaxAge <= 0 {
		labelMaxAge = 24 * time.Hour
	}

	trackInterval := time.Duration(cfg.Sync.TrackingIntervalSeconds) * time.Second
	if trackInterval <= 0 {
		trackInterval = 15 * time.Minute
	}
	trackLockTTL := time.Duration(cfg.Sync.TrackingLockTTLSeconds) * time.Second
	if trackLockTTL <= 0 {
		trackLockTTL = 300 * time.Second
	}
	trackLimit := cfg.Sync.TrackingQueryLimit
	if trackLimit <= 0 {
		trackLimit = 5000
	}

	repo, closeFn, err := f.newStorage(cfg)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}

	prod := f.newProducer(cfg)
	sharedCache, lock := f.newSharedCache(cfg)
	carrier := f.newCarrier(cfg, sharedCache)

	files, err := f.newFileStore(ctx, cfg)
	if err != nil {
		return err
	}

	labelJob := labelsync.New(repo, carrier, files, prod, lock).
		WithSettings(labelInterval, labelLockTTL, labelBatch).
		WithGuards(labelMaxAttempts, labelMaxAge)

	trackJob := tracksync.New(repo, carrier, prod, lock).
		WithSettings(trackInterval, trackLockTTL, trackLimit)

	go func() {
		if err := runOpsServer(ctx, opsServerOpts{
			httpAddr:    cfg.Sync.HTTPAddr,
			swaggerPath: cfg.Sync.SwaggerPath,
			labelJob:    labelJob,
			trackJob:    trackJob,
			cfg:         cfg,
		}); err != nil && ctx.Err() == nil {
			slog.Error("ops http server", "error", err.Error())
		}
	}()

	go func() {
		if err := trackJob.Run(ctx); err != nil && ctx.Err() == nil {
			slog.Error("tracking sync stopped", "error", err.Error())
		}
	}()

	return labelJob.Run(ctx)
}
