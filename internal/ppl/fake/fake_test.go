package fake

import (
	"context"
	"testing"

	"github.com/BearBump/ShipSync/internal/ppl"
	"github.com/stretchr/testify/require"
)

func TestFake_Deterministic(t *testing.T) {
	f := New()
	ctx := context.Background()

	id1, err := f.CreateShipmentBatch(ctx, []ppl.Shipment{{ReferenceID: "42"}})
	require.NoError(t, err)
	id2, err := f.CreateShipmentBatch(ctx, []ppl.Shipment{{ReferenceID: "42"}})
	require.NoError(t, err)
	require.Equal(t, id1, id2)

	items, err := f.GetBatchStatus(ctx, id1)
	require.NoError(t, err)
	require.Len(t, items, 1)

	infos, err := f.GetShipmentInfo(ctx, ppl.ShipmentInfoQuery{ShipmentNumbers: []string{"A", "B"}})
	require.NoError(t, err)
	require.Len(t, infos, 2)
	again, _ := f.GetShipmentInfo(ctx, ppl.ShipmentInfoQuery{ShipmentNumbers: []string{"A", "B"}})
	require.Equal(t, infos, again)
}
