package labelsync

import (
	"context"
	"encoding/json"
	"fmt"
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

const lockKey = "ppl-label-sync-job"

type Repository interface {
	PendingLabel(ctx context.Context, limit int) ([]*models.Fulfillment, error)
	UpdateData(ctx context.Context, id uint64, data models.FulfillmentData) error
	MarkShipped(ctx context.Context, id uint64, at time.Time) error
}

type Carrier interface {
	GetBatchStatus(ctx context.Context, batchID string) ([]ppl.BatchItem, error)
	DownloadLabel(ctx context.Context, labelURL string) ([]byte, error)
	TrackingURL(shipmentNumber string) string
}

type FileStore interface {
	Store(ctx context.Context, data []byte, filename, contentType string) (string, error)
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// Job polls pending label batches and drives each fulfillment through
// pending -> completed/error. One instance per tick cluster-wide (lock);
// внутри тика записи обрабатываются строго последовательно.
type Job struct {
	repo    Repository
	carrier Carrier
	files   FileStore
	producer Producer
	lock    cache.Locker

	interval      time.Duration
	lockTTL       time.Duration
	batchLimit    int
	maxAttempts   int32
	maxPendingAge time.Duration

	triggerCh chan struct{}
	now       func() time.Time

	startedAtUnixNano int64
	lastCycleUnixNano atomic.Int64
	totalProcessed    atomic.Int64
	totalCompleted    atomic.Int64
	totalFailed       atomic.Int64
	totalErrors       atomic.Int64
	lastErrorMu       sync.Mutex
	lastError         string
}

func New(repo Repository, carrier Carrier, files FileStore, producer Producer, lock cache.Locker) *Job {
	return &Job{
		repo: repo, carrier: carrier, files: files, producer: producer, lock: lock,
		interval:      time.Minute,
		lockTTL:       120 * time.Second,
		batchLimit:    500,
		maxAttempts:   60,
		maxPendingAge: 24 * time.Hour,
		triggerCh:     make(chan struct{}, 1),
		now:           time.Now,
		startedAtUnixNano: time.Now().UTC().UnixNano(),
	}
}

func (j *Job) WithSettings(interval, lockTTL time.Duration, batchLimit int) *Job {
	if interval > 0 {
		j.interval = interval
	}
	if lockTTL > 0 {
		j.lockTTL = lockTTL
	}
	if batchLimit > 0 {
		j.batchLimit = batchLimit
	}
	return j
}

func (j *Job) WithGuards(maxAttempts int, maxPendingAge time.Duration) *Job {
	if maxAttempts > 0 {
		j.maxAttempts = int32(maxAttempts)
	}
	if maxPendingAge > 0 {
		j.maxPendingAge = maxPendingAge
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
	TotalProcessed int64      `json:"totalProcessed"`
	TotalCompleted int64      `json:"totalCompleted"`
	TotalFailed    int64      `json:"totalFailed"`
	TotalErrors    int64      `json:"totalErrors"`
	LastError      string     `json:"lastError,omitempty"`
}

func (j *Job) Stats() Stats {
	st := Stats{
		StartedAt:      time.Unix(0, j.startedAtUnixNano).UTC(),
		TotalProcessed: j.totalProcessed.Load(),
		TotalCompleted: j.totalCompleted.Load(),
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
		// Другой инстанс уже обрабатывает этот тик — это не ошибка.
		slog.Info("label sync already running elsewhere")
		return
	}
	if err != nil {
		j.recordError(err)
		slog.Error("label sync cycle", "error", err.Error())
	}
}

func (j *Job) sync(ctx context.Context) error {
	items, err := j.repo.PendingLabel(ctx, j.batchLimit)
	if err != nil {
		return errors.Wrap(err, "query pending fulfillments")
	}

	for _, f := range items {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := j.processOne(ctx, f); err != nil {
			// Одна плохая запись не валит весь тик: фиксируем попытку и идём дальше.
			j.recordError(err)
			j.recordAttempt(ctx, f)
			slog.Error("process fulfillment label", "fulfillment_id", f.ID, "error", err.Error())
		}
		j.totalProcessed.Add(1)
	}
	return nil
}

func (j *Job) processOne(ctx context.Context, f *models.Fulfillment) error {
	now := j.now().UTC()
	d := f.Data
	attempt := d.SyncAttempts + 1

	// Гарантия конечности: даже если перевозчик никогда не завершит батч.
	if attempt >= j.maxAttempts {
		return j.fail(ctx, f, fmt.Sprintf("label batch %s not resolved after %d attempts", d.BatchID, j.maxAttempts))
	}
	if now.Sub(f.CreatedAt) > j.maxPendingAge {
		return j.fail(ctx, f, fmt.Sprintf("label batch %s pending for more than %s", d.BatchID, j.maxPendingAge))
	}

	items, err := j.carrier.GetBatchStatus(ctx, d.BatchID)
	if err != nil {
		return errors.Wrap(err, "get batch status")
	}
	if len(items) == 0 {
		return j.fail(ctx, f, fmt.Sprintf("batch %s returned no items", d.BatchID))
	}

	item := findItem(items, f.ID)
	if item == nil {
		return j.fail(ctx, f, fmt.Sprintf("batch %s has no item for fulfillment %d", d.BatchID, f.ID))
	}

	switch {
	case item.ImportState == ppl.ImportStateError || item.ErrorMessage != "":
		msg := item.ErrorMessage
		if msg == "" {
			msg = "carrier reported import error"
		}
		return j.fail(ctx, f, msg)

	case item.ImportState == ppl.ImportStateComplete:
		return j.complete(ctx, f, item, attempt, now)

	default:
		// Received/InProcess: батч ещё крутится, заходим на следующем тике.
		d.SyncAttempts = attempt
		d.LastSyncAttempt = &now
		if d.FirstSyncAttempt == nil {
			d.FirstSyncAttempt = &now
		}
		return errors.Wrap(j.repo.UpdateData(ctx, f.ID, d), "update sync attempt")
	}
}

func (j *Job) complete(ctx context.Context, f *models.Fulfillment, item *ppl.BatchItem, attempt int32, now time.Time) error {
	if item.ShipmentNumber == "" || item.LabelURL == "" {
		return j.fail(ctx, f, fmt.Sprintf("batch item for fulfillment %d is complete but incomplete: shipmentNumber=%q labelUrl=%q",
			f.ID, item.ShipmentNumber, item.LabelURL))
	}

	// Перекладываем этикетку в своё хранилище; при любом сбое остаёмся на
	// URL перевозчика — этикетка рабочая, страдает только долговечность.
	labelURL := item.LabelURL
	if b, err := j.carrier.DownloadLabel(ctx, item.LabelURL); err != nil {
		slog.Warn("label download failed, keeping carrier url", "fulfillment_id", f.ID, "error", err.Error())
	} else if stored, err := j.files.Store(ctx, b, fmt.Sprintf("%s.pdf", item.ShipmentNumber), "application/pdf"); err != nil {
		slog.Warn("label store failed, keeping carrier url", "fulfillment_id", f.ID, "error", err.Error())
	} else {
		labelURL = stored
	}

	trackingURL := item.TrackingURL
	if trackingURL == "" {
		trackingURL = j.carrier.TrackingURL(item.ShipmentNumber)
	}

	d := f.Data
	d.Status = models.LabelStatusCompleted
	d.ShipmentNumber = item.ShipmentNumber
	d.PPLLabelURL = item.LabelURL
	d.LabelURL = labelURL
	d.TrackingURL = trackingURL
	d.SyncAttempts = attempt
	d.LastSyncAttempt = &now
	if d.FirstSyncAttempt == nil {
		d.FirstSyncAttempt = &now
	}
	d.ErrorMessage = ""

	if err := j.repo.UpdateData(ctx, f.ID, d); err != nil {
		return errors.Wrap(err, "complete fulfillment")
	}
	// Этикетка есть — отправление считается отгруженным, с этого момента
	// его подхватывает tracking-синк.
	if err := j.repo.MarkShipped(ctx, f.ID, now); err != nil {
		return errors.Wrap(err, "mark shipped")
	}
	j.totalCompleted.Add(1)

	j.emit(ctx, messages.TopicLabelReady, f.ID, messages.LabelReady{
		FulfillmentID:  f.ID,
		ShipmentNumber: item.ShipmentNumber,
		LabelURL:       labelURL,
		TrackingURL:    trackingURL,
	})
	return nil
}

// fail moves the fulfillment into the terminal error state with a
// human-readable message and emits label_failed.
func (j *Job) fail(ctx context.Context, f *models.Fulfillment, msg string) error {
	now := j.now().UTC()

	d := f.Data
	d.Status = models.LabelStatusError
	d.ErrorMessage = msg
	d.SyncAttempts++
	d.LastSyncAttempt = &now
	if d.FirstSyncAttempt == nil {
		d.FirstSyncAttempt = &now
	}

	if err := j.repo.UpdateData(ctx, f.ID, d); err != nil {
		return errors.Wrap(err, "fail fulfillment")
	}
	j.totalFailed.Add(1)

	j.emit(ctx, messages.TopicLabelFailed, f.ID, messages.LabelFailed{
		FulfillmentID: f.ID,
		BatchID:       f.Data.BatchID,
		ErrorMessage:  msg,
	})
	return nil
}

// recordAttempt converts a processing failure into an attempt-count
// update, so the timeout guard eventually terminates the record.
func (j *Job) recordAttempt(ctx context.Context, f *models.Fulfillment) {
	now := j.now().UTC()

	d := f.Data
	d.SyncAttempts++
	d.LastSyncAttempt = &now
	if d.FirstSyncAttempt == nil {
		d.FirstSyncAttempt = &now
	}
	if err := j.repo.UpdateData(ctx, f.ID, d); err != nil {
		slog.Error("record sync attempt", "fulfillment_id", f.ID, "error", err.Error())
	}
}

// emit publishes fire-and-forget: a lost event is logged, not retried.
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

func findItem(items []ppl.BatchItem, fulfillmentID uint64) *ppl.BatchItem {
	ref := strconv.FormatUint(fulfillmentID, 10)
	for i := range items {
		if items[i].ReferenceID == ref {
			return &items[i]
		}
	}
	// Одиночный батч без referenceId принимаем как наш.
	if len(items) == 1 && items[0].ReferenceID == "" {
		return &items[0]
	}
	return nil
}
