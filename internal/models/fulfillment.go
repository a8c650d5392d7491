package models

import "time"

// Статусы создания этикетки (label lifecycle). После completed/error
// data больше не мутируется label-синком.
const (
	LabelStatusPending   = "pending"
	LabelStatusCompleted = "completed"
	LabelStatusError     = "error"
)

type Fulfillment struct {
	ID          uint64
	OrderRef    string
	Carrier     string
	Data        FulfillmentData
	ShippedAt   *time.Time
	DeliveredAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// FulfillmentData is the opaque payload stored alongside the fulfillment.
// Label fields are written by the label sync job until status reaches a
// terminal value; tracking fields by the tracking sync job afterwards.
type FulfillmentData struct {
	Status        string `json:"status,omitempty"`
	BatchID       string `json:"batch_id,omitempty"`
	ProductType   string `json:"product_type,omitempty"`
	AccessPointID string `json:"access_point_id,omitempty"`

	ShipmentNumber string `json:"shipment_number,omitempty"`
	PPLLabelURL    string `json:"ppl_label_url,omitempty"`
	LabelURL       string `json:"label_url,omitempty"`
	TrackingURL    string `json:"tracking_url,omitempty"`

	SyncAttempts     int32      `json:"sync_attempts,omitempty"`
	FirstSyncAttempt *time.Time `json:"first_sync_attempt,omitempty"`
	LastSyncAttempt  *time.Time `json:"last_sync_attempt,omitempty"`
	ErrorMessage     string     `json:"error_message,omitempty"`

	LastStatus     string     `json:"last_status,omitempty"`
	LastStatusDate *time.Time `json:"last_status_date,omitempty"`
	DeliveryFailed bool       `json:"delivery_failed,omitempty"`
}

type FulfillmentCreateInput struct {
	OrderRef      string
	Carrier       string
	BatchID       string
	ProductType   string
	AccessPointID string
}
