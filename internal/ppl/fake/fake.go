package fake

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/BearBump/ShipSync/internal/ppl"
)

// FakeClient — детерминированная заглушка перевозчика для локального
// запуска без PPL-кредов. Судьба отправления считается по хэшу номера.
type FakeClient struct{}

func New() *FakeClient { return &FakeClient{} }

func hash32(parts ...string) uint32 {
	h := fnv.New32a()
	for _, p := range parts {
		_, _ = h.Write([]byte(p))
		_, _ = h.Write([]byte("|"))
	}
	return h.Sum32()
}

func (f *FakeClient) CreateShipmentBatch(ctx context.Context, shipments []ppl.Shipment) (string, error) {
	if len(shipments) == 0 {
		return "", fmt.Errorf("shipments is empty")
	}
	return fmt.Sprintf("fake-batch-%08x", hash32(shipments[0].ReferenceID)), nil
}

// GetBatchStatus resolves every reference deterministically: ~10% error,
// the rest Complete with a synthetic shipment number and label URL.
func (f *FakeClient) GetBatchStatus(ctx context.Context, batchID string) ([]ppl.BatchItem, error) {
	v := hash32(batchID)
	item := ppl.BatchItem{
		ReferenceID: fmt.Sprintf("%d", v%100000),
		ImportState: ppl.ImportStateComplete,
	}
	if v%10 == 0 {
		item.ImportState = ppl.ImportStateError
		item.ErrorMessage = "fake import rejected"
	} else {
		item.ShipmentNumber = fmt.Sprintf("FAKE%08d", v%100000000)
		item.LabelURL = "/label/" + item.ShipmentNumber
	}
	return []ppl.BatchItem{item}, nil
}

// GetShipmentInfo: ~20% отправлений считаем доставленными, остальные в пути.
func (f *FakeClient) GetShipmentInfo(ctx context.Context, q ppl.ShipmentInfoQuery) ([]ppl.ShipmentInfo, error) {
	out := make([]ppl.ShipmentInfo, 0, len(q.ShipmentNumbers))
	for _, n := range q.ShipmentNumbers {
		state := ppl.ShipmentStateActive
		if hash32(n)%5 == 0 {
			state = ppl.ShipmentStateDelivered
		}
		out = append(out, ppl.ShipmentInfo{ShipmentNumber: n, ShipmentState: state})
	}
	return out, nil
}

func (f *FakeClient) CancelShipment(ctx context.Context, shipmentNumber string) bool {
	return shipmentNumber != ""
}

func (f *FakeClient) DownloadLabel(ctx context.Context, labelURL string) ([]byte, error) {
	return []byte("%PDF-1.4 fake label " + labelURL), nil
}

func (f *FakeClient) TrackingURL(shipmentNumber string) string {
	return "https://example.invalid/track/" + shipmentNumber
}
