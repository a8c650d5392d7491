package tracksync

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BearBump/ShipSync/internal/models"
	"github.com/stretchr/testify/require"
)

type countingRepo struct {
	calls atomic.Int64
}

func (r *countingRepo) ShippedUndelivered(ctx context.Context, limit int) ([]*models.Fulfillment, error) {
	r.calls.Add(1)
	return nil, nil
}

func (r *countingRepo) UpdateData(ctx context.Context, id uint64, data models.FulfillmentData) error {
	return nil
}

func (r *countingRepo) SetDelivered(ctx context.Context, id uint64, at time.Time, data models.FulfillmentData) error {
	return nil
}

func TestJob_Run_StopsOnContextCancel(t *testing.T) {
	repo := &countingRepo{}
	j := New(repo, &fakeCarrier{}, &fakeProducer{}, passLock{}).
		WithSettings(5*time.Millisecond, time.Second, 10)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	err := j.Run(ctx)
	require.Error(t, err)
	require.GreaterOrEqual(t, repo.calls.Load(), int64(1))
}

func TestJob_TriggerForcesCycle(t *testing.T) {
	repo := &countingRepo{}
	j := New(repo, &fakeCarrier{}, &fakeProducer{}, passLock{}).
		WithSettings(time.Hour, time.Second, 10)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = j.Run(ctx) }()

	j.Trigger()
	require.Eventually(t, func() bool { return repo.calls.Load() >= 1 }, time.Second, 5*time.Millisecond)
}
