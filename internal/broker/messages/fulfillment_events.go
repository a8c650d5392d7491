package messages

import "time"

// Topics the sync jobs publish to. Fire-and-forget, at-least-once.
const (
	TopicLabelReady     = "fulfillment.label_ready"
	TopicLabelFailed    = "fulfillment.label_failed"
	TopicDelivered      = "fulfillment.delivered"
	TopicDeliveryFailed = "fulfillment.delivery_failed"
)

type LabelReady struct {
	FulfillmentID  uint64 `json:"fulfillment_id"`
	ShipmentNumber string `json:"shipment_number"`
	LabelURL       string `json:"label_url"`
	TrackingURL    string `json:"tracking_url"`
}

type LabelFailed struct {
	FulfillmentID uint64 `json:"fulfillment_id"`
	BatchID       string `json:"batch_id"`
	ErrorMessage  string `json:"error_message"`
}

type Delivered struct {
	FulfillmentID  uint64    `json:"fulfillment_id"`
	ShipmentNumber string    `json:"shipment_number"`
	DeliveredAt    time.Time `json:"delivered_at"`
	Status         string    `json:"status"`
}

type DeliveryFailed struct {
	FulfillmentID  uint64     `json:"fulfillment_id"`
	ShipmentNumber string     `json:"shipment_number"`
	Status         string     `json:"status"`
	StatusDate     *time.Time `json:"status_date,omitempty"`
}
