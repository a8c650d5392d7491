package ppl

import "time"

// importState у элемента батча на стороне перевозчика.
const (
	ImportStateReceived  = "Received"
	ImportStateInProcess = "InProcess"
	ImportStateComplete  = "Complete"
	ImportStateError     = "Error"
)

// shipmentState values the sync routes on. The carrier enumeration is
// wider; anything not in the delivered/failed sets is treated as
// in-transit and re-evaluated on the next tick.
const (
	ShipmentStateActive    = "Active"
	ShipmentStatePickedUp  = "PickedUp"
	ShipmentStateDelivered = "Delivered"
	ShipmentStateHandedOver = "HandedOver"
	ShipmentStateRejected  = "Rejected"
	ShipmentStateCancelled = "Cancelled"
	ShipmentStateReturned  = "ReturnedToSender"
	ShipmentStateLost      = "Lost"
)

var deliveredStates = map[string]bool{
	ShipmentStateDelivered:  true,
	ShipmentStateHandedOver: true,
}

var failedStates = map[string]bool{
	ShipmentStateRejected:  true,
	ShipmentStateCancelled: true,
	ShipmentStateReturned:  true,
	ShipmentStateLost:      true,
}

func IsDeliveredState(s string) bool { return deliveredStates[s] }
func IsFailedState(s string) bool    { return failedStates[s] }

// BatchItem — carrier-side record of one shipment inside an async batch,
// keyed by referenceId (= fulfillment id). Never persisted verbatim.
type BatchItem struct {
	ReferenceID    string `json:"referenceId"`
	ImportState    string `json:"importState"`
	ShipmentNumber string `json:"shipmentNumber,omitempty"`
	LabelURL       string `json:"labelUrl,omitempty"`
	TrackingURL    string `json:"trackingUrl,omitempty"`
	ErrorMessage   string `json:"errorMessage,omitempty"`
}

// ShipmentInfo — current carrier snapshot for a shipment number.
type ShipmentInfo struct {
	ShipmentNumber string     `json:"shipmentNumber"`
	ShipmentState  string     `json:"shipmentState"`
	StateDate      *time.Time `json:"stateDate,omitempty"`
	DeliveryDate   *time.Time `json:"deliveryDate,omitempty"`
	PickupDate     *time.Time `json:"pickupDate,omitempty"`
}

type ShipmentInfoQuery struct {
	Limit           int
	Offset          int
	ShipmentNumbers []string
	DateFrom        *time.Time
	DateTo          *time.Time
}

type Address struct {
	Name    string `json:"name"`
	Street  string `json:"street"`
	City    string `json:"city"`
	ZipCode string `json:"zipCode"`
	Country string `json:"country"`
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
}

type SpecificDelivery struct {
	ParcelShopCode string `json:"parcelShopCode"`
}

type CashOnDelivery struct {
	CodPrice    float64 `json:"codPrice"`
	CodCurrency string  `json:"codCurrency"`
	CodVarSym   string  `json:"codVarSym,omitempty"`
}

type Shipment struct {
	ReferenceID      string            `json:"referenceId"`
	ProductType      string            `json:"productType"`
	Note             string            `json:"note,omitempty"`
	Weight           float64           `json:"weight,omitempty"`
	Sender           *Address          `json:"sender,omitempty"`
	Recipient        *Address          `json:"recipient"`
	SpecificDelivery *SpecificDelivery `json:"specificDelivery,omitempty"`
	CashOnDelivery   *CashOnDelivery   `json:"cashOnDelivery,omitempty"`
}

type LabelSettings struct {
	Format string `json:"format"`
	Dpi    int    `json:"dpi"`
}

type ReturnChannel struct {
	Type    string `json:"type"`
	Address string `json:"address,omitempty"`
}

type BatchCreateRequest struct {
	Shipments        []Shipment     `json:"shipments"`
	LabelSettings    LabelSettings  `json:"labelSettings"`
	ReturnChannel    *ReturnChannel `json:"returnChannel,omitempty"`
	ShipmentsOrderBy string         `json:"shipmentsOrderBy,omitempty"`
}

type Customer struct {
	CustomerID string `json:"customerId"`
	Name       string `json:"name"`
	Email      string `json:"email,omitempty"`
}

type CustomerAddress struct {
	Name    string `json:"name"`
	Street  string `json:"street"`
	City    string `json:"city"`
	ZipCode string `json:"zipCode"`
	Country string `json:"country"`
}

// Product — codelist entry describing an orderable carrier product
// (productType values accepted by shipment creation).
type Product struct {
	Code          string `json:"code"`
	Name          string `json:"name"`
	CodAllowed    bool   `json:"codAllowed,omitempty"`
	AgeCheckAllowed bool `json:"ageCheckAllowed,omitempty"`
}
