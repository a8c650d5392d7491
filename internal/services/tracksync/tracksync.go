package tracksync

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BearBump/ShipSync/internal/broker/messages"
	"github.com/BearBump/ShipSync/internal/cache"
	"github.com/BearBump/ShipSync/internal/models"
	"github.com/BearBump/ShipSync/internal/ppl"
	"github.com/pkg/errors"
)

const (
	lockKey = "ppl-tracking-sync-job"

	// Потолок batch-запроса перевозчика по номерам отправлений.
	shipmentQueryChunk = 100
)

type Repository interface {
	ShippedUndelivered(ctx context.Context, limit int) ([]*models.Fulfillment, error)
	UpdateData(ctx context.Context, id uint64, data models.FulfillmentData) error
	SetDelivered(ctx context.Context, id uint64, at time.Time, data models.FulfillmentData) error
}

type Carrier interface {
	GetShipmentInfo(ctx context.Context, q ppl.ShipmentInfoQuery) ([]ppl.ShipmentInfo, error)
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// Job advances shipped-but-undelivered fulfillments through the carrier
// delivery states. Все записи идемпотентны ("update if changed"), лок
// здесь только защита от двойного расхода rate limit.
type Job struct {
	repo     Repository
	carrier  Carrier
	producer Producer
	lock     cache.Locker

	interval   time.Duration
	lockTTL    time.Duration
	queryLimit int

	triggerCh chan struct{}
	now       func() time.Time

	startedAtUnixNano int64
	lastCycleUnixNano atomic.Int64
	totalChecked      atomic.Int64
	totalDelivered    atomic.Int64
	totalFailed       atomic.Int64
	totalErrors       atomic.Int64
	lastErrorMu       sync.Mutex
	lastError         string
}

func New(repo Repository, carrier Carrier, producer Producer, lock cache.Locker) *Job {
	return &Job{
		repo: repo, carrier: carrier, producer: producer, lock: lock,
		interval:          15 * time.Minute,
		lockTTL:           300 * time.Second,
		queryLimit:        5000,
		triggerCh:         make(chan struct{}, 1),
		now:               time.Now,
		startedAtUnixNano: time.Now().UTC().UnixNano(),
	}
}

func (j *Job) WithSettings(interval, lockTTL time.Duration, queryLimit int) *Job {
	if interval > 0 {
		j.interval = interval
	}
	if lockTTL > 0 {
		j.lockTTL = lockTTL
	}
	if queryLimit > 0 {
		j.queryLimit = queryLimit
	}
	return j
}

// Trigger forces an immediate sync cycle (best-effort, non-blocking).
func (j *Job) Trigger() {
	select {
	case j.triggerCh <- struct{}{}:
	default:
	}
}

type Stats struct {
	StartedAt      time.Time  `json:"startedAt"`
	LastCycleAt    *time.Time `json:"lastCycleAt,omitempty"`
	TotalChecked   int64      `json:"totalChecked"`
	TotalDelivered int64      `json:"totalDelivered"`
	TotalFailed    int64      `json:"totalFailed"`
	TotalErrors    int64      `json:"totalErrors"`
	LastError      string     `json:"lastError,omitempty"`
}

func (j *Job) Stats() Stats {
	st := Stats{
		StartedAt:      time.Unix(0, j.startedAtUnixNano).UTC(),
		TotalChecked:   j.totalChecked.Load(),
		TotalDelivered: j.totalDelivered.Load(),
		TotalFailed:    j.totalFailed.Load(),
		TotalErrors:    j.totalErrors.Load(),
	}
	if n := j.lastCycleUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastCycleAt = &t
	}
	j.lastErrorMu.Lock()
	st.LastError = j.lastError
	j.lastErrorMu.Unlock()
	return st
}

func (j *Job) Run(ctx context.Context) error {
	t := time.NewTicker(j.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			j.runOnce(ctx)
		case <-j.triggerCh:
			j.runOnce(ctx)
		}
	}
}

func (j *Job) runOnce(ctx context.Context) {
	j.lastCycleUnixNano.Store(j.now().UTC().UnixNano())

	err := j.lock.WithLock(ctx, lockKey, j.lockTTL, j.sync)
	if errors.Is(err, cache.ErrLockBusy) {
		slog.Info("tracking sync already running elsewhere")
		return
	}
	if err != nil {
		j.recordError(err)
		slog.Error("tracking sync cycle", "error", err.Error())
	}
}

func (j *Job) sync(ctx context.Context) error {
	items, err := j.repo.ShippedUndelivered(ctx, j.queryLimit)
	if err != nil {
		return errors.Wrap(err, "query shipped fulfillments")
	}
	if len(items) == 0 {
		return nil
	}

	byNumber := make(map[string]*models.Fulfillment, len(items))
	numbers := make([]string, 0, len(items))
	for _, f := range items {
		n := f.Data.ShipmentNumber
		if n == "" {
			continue
		}
		byNumber[n] = f
		numbers = append(numbers, n)
	}

	for start := 0; start < len(numbers); start += shipmentQueryChunk {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		end := start + shipmentQueryChunk
		if end > len(numbers) {
			end = len(numbers)
		}
		chunk := numbers[start:end]

		infos, err := j.carrier.GetShipmentInfo(ctx, ppl.ShipmentInfoQuery{
			Limit:           len(chunk),
			ShipmentNumbers: chunk,
		})
		if err != nil {
			// Неудачный батч пропускаем, следующие обрабатываем.
			j.recordError(err)
			slog.Error("get shipment info batch", "size", len(chunk), "error", err.Error())
			continue
		}

		for _, info := range infos {
			f, ok := byNumber[info.ShipmentNumber]
			if !ok {
				continue
			}
			j.totalChecked.Add(1)
			if err := j.applyOne(ctx, f, info); err != nil {
				j.recordError(err)
				slog.Error("apply shipment state", "fulfillment_id", f.ID, "error", err.Error())
			}
		}
	}
	return nil
}

func (j *Job) applyOne(ctx context.Context, f *models.Fulfillment, info ppl.ShipmentInfo) error {
	// Без изменений — без записи и без события.
	if info.ShipmentState == f.Data.LastStatus {
		return nil
	}

	now := j.now().UTC()
	statusDate := info.StateDate
	if statusDate == nil {
		statusDate = &now
	}

	d := f.Data
	d.LastStatus = info.ShipmentState
	d.LastStatusDate = statusDate

	switch {
	case ppl.IsDeliveredState(info.ShipmentState):
		deliveredAt := now
		if info.DeliveryDate != nil {
			deliveredAt = *info.DeliveryDate
		}
		if err := j.repo.SetDelivered(ctx, f.ID, deliveredAt, d); err != nil {
			return errors.Wrap(err, "set delivered")
		}
		j.totalDelivered.Add(1)
		j.emit(ctx, messages.TopicDelivered, f.ID, messages.Delivered{
			FulfillmentID:  f.ID,
			ShipmentNumber: info.ShipmentNumber,
			DeliveredAt:    deliveredAt,
			Status:         info.ShipmentState,
		})

	case ppl.IsFailedState(info.ShipmentState):
		d.DeliveryFailed = true
		if err := j.repo.UpdateData(ctx, f.ID, d); err != nil {
			return errors.Wrap(err, "record delivery failure")
		}
		j.totalFailed.Add(1)
		j.emit(ctx, messages.TopicDeliveryFailed, f.ID, messages.DeliveryFailed{
			FulfillmentID:  f.ID,
			ShipmentNumber: info.ShipmentNumber,
			Status:         info.ShipmentState,
			StatusDate:     statusDate,
		})

	default:
		// Обычный in-transit тик: фиксируем статус, событий нет.
		if err := j.repo.UpdateData(ctx, f.ID, d); err != nil {
			return errors.Wrap(err, "record transit state")
		}
	}
	return nil
}

func (j *Job) emit(ctx context.Context, topic string, fulfillmentID uint64, payload any) {
	b, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal event", "topic", topic, "error", err.Error())
		return
	}
	key := []byte(strconv.FormatUint(fulfillmentID, 10))
	if err := j.producer.Publish(ctx, topic, key, b); err != nil {
		slog.Warn("publish event", "topic", topic, "fulfillment_id", fulfillmentID, "error", err.Error())
	}
}

func (j *Job) recordError(err error) {
	j.totalErrors.Add(1)
	j.lastErrorMu.Lock()
	j.lastError = err.Error()
	j.lastErrorMu.Unlock()
}
