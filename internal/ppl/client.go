package ppl

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/BearBump/ShipSync/internal/cache"
	"github.com/pkg/errors"
)

const (
	prodBaseURL = "https://api.dhl.com/ecs/ppl/myapi2"
	testBaseURL = "https://api-dev.dhl.com/ecs/ppl/myapi2"

	trackingURLBase = "https://www.ppl.cz/vyhledat-zasilku?shipmentId="
)

func BaseURLForEnvironment(env string) string {
	if env == "prod" || env == "production" {
		return prodBaseURL
	}
	return testBaseURL
}

type Config struct {
	// BaseURL overrides the environment-derived URL when set.
	BaseURL      string
	Environment  string
	ClientID     string
	ClientSecret string
	LabelFormat  string
	LabelDpi     int
}

// Client is the typed facade over the retrying transport. Token and
// throttle state live in the shared cache, so every instance in the
// fleet sees one token and one spacing mark.
type Client struct {
	tr          *Transport
	labelFormat string
	labelDpi    int
}

func NewClient(cfg Config, shared cache.BytesCache) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = BaseURLForEnvironment(cfg.Environment)
	}
	labelFormat := cfg.LabelFormat
	if labelFormat == "" {
		labelFormat = "Pdf"
	}
	labelDpi := cfg.LabelDpi
	if labelDpi <= 0 {
		labelDpi = 300
	}

	th := NewThrottle(shared)
	ts := NewTokenSource(shared, th, baseURL, cfg.ClientID, cfg.ClientSecret)
	return &Client{
		tr:          newTransport(baseURL, ts, th),
		labelFormat: labelFormat,
		labelDpi:    labelDpi,
	}
}

// CreateShipmentBatch submits shipments as an async batch. The carrier
// answers 201 with the batch id as the trailing segment of the Location
// header; the body is empty.
func (c *Client) CreateShipmentBatch(ctx context.Context, shipments []Shipment) (string, error) {
	if len(shipments) == 0 {
		return "", errors.New("shipments is empty")
	}

	resp, err := c.tr.Do(ctx, RequestSpec{
		Method: http.MethodPost,
		Path:   "/shipment/batch",
		Body: BatchCreateRequest{
			Shipments:     shipments,
			LabelSettings: LabelSettings{Format: c.labelFormat, Dpi: c.labelDpi},
		},
	})
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusCreated {
		return "", errors.Errorf("unexpected status %d creating shipment batch", resp.StatusCode)
	}

	loc := resp.Header.Get("Location")
	if loc == "" {
		return "", errors.New("batch create response has no Location header")
	}
	id := path.Base(strings.TrimRight(loc, "/"))
	if id == "" || id == "." || id == "/" {
		return "", errors.Errorf("cannot extract batch id from Location %q", loc)
	}
	return id, nil
}

func (c *Client) GetBatchStatus(ctx context.Context, batchID string) ([]BatchItem, error) {
	if batchID == "" {
		return nil, errors.New("batchID is empty")
	}

	resp, err := c.tr.Do(ctx, RequestSpec{
		Method: http.MethodGet,
		Path:   "/shipment/batch/" + url.PathEscape(batchID),
	})
	if err != nil {
		return nil, err
	}

	var out struct {
		Items []BatchItem `json:"items"`
	}
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, errors.Wrap(err, "decode batch status")
	}
	return out.Items, nil
}

// GetShipmentInfo queries current shipment snapshots. Перевозчик отвечает
// то голым массивом, то конвертом {items,...} — принимаем оба.
func (c *Client) GetShipmentInfo(ctx context.Context, q ShipmentInfoQuery) ([]ShipmentInfo, error) {
	query := url.Values{}
	if q.Limit > 0 {
		query.Set("Limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		query.Set("Offset", strconv.Itoa(q.Offset))
	}
	for _, n := range q.ShipmentNumbers {
		query.Add("ShipmentNumbers", n)
	}
	if q.DateFrom != nil {
		query.Set("DateFrom", q.DateFrom.UTC().Format(time.RFC3339))
	}
	if q.DateTo != nil {
		query.Set("DateTo", q.DateTo.UTC().Format(time.RFC3339))
	}

	resp, err := c.tr.Do(ctx, RequestSpec{
		Method: http.MethodGet,
		Path:   "/shipment",
		Query:  query,
	})
	if err != nil {
		return nil, err
	}

	var bare []ShipmentInfo
	if err := json.Unmarshal(resp.Body, &bare); err == nil {
		return bare, nil
	}
	var envelope struct {
		Items []ShipmentInfo `json:"items"`
	}
	if err := json.Unmarshal(resp.Body, &envelope); err != nil {
		return nil, errors.Wrap(err, "decode shipment info")
	}
	return envelope.Items, nil
}

// CancelShipment reports success as a bool instead of an error: a failed
// cancel is an expected business outcome (the parcel may already be with
// the courier), so all failure modes collapse to false.
func (c *Client) CancelShipment(ctx context.Context, shipmentNumber string) bool {
	if shipmentNumber == "" {
		return false
	}

	_, err := c.tr.Do(ctx, RequestSpec{
		Method: http.MethodPost,
		Path:   "/shipment/" + url.PathEscape(shipmentNumber) + "/cancel",
	})
	if err != nil {
		slog.Warn("ppl cancel shipment failed", "shipment_number", shipmentNumber, "error", err.Error())
		return false
	}
	return true
}

// DownloadLabel fetches binary label content from an absolute or
// base-relative URL. Any non-2xx is a hard failure.
func (c *Client) DownloadLabel(ctx context.Context, labelURL string) ([]byte, error) {
	if labelURL == "" {
		return nil, errors.New("labelURL is empty")
	}

	resp, err := c.tr.Do(ctx, RequestSpec{
		Method: http.MethodGet,
		RawURL: labelURL,
	})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// GetCustomer returns nil (not an error) when no customer profile is
// configured on the carrier side.
func (c *Client) GetCustomer(ctx context.Context) (*Customer, error) {
	resp, err := c.tr.Do(ctx, RequestSpec{
		Method:        http.MethodGet,
		Path:          "/customer",
		AllowNotFound: true,
	})
	if err != nil {
		return nil, err
	}
	if resp.NotFound {
		return nil, nil
	}

	var out Customer
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, errors.Wrap(err, "decode customer")
	}
	return &out, nil
}

func (c *Client) GetCustomerAddress(ctx context.Context) (*CustomerAddress, error) {
	resp, err := c.tr.Do(ctx, RequestSpec{
		Method:        http.MethodGet,
		Path:          "/customer/address",
		AllowNotFound: true,
	})
	if err != nil {
		return nil, err
	}
	if resp.NotFound {
		return nil, nil
	}

	var out CustomerAddress
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, errors.Wrap(err, "decode customer address")
	}
	return &out, nil
}

// GetProducts lists the carrier's orderable product codelist.
func (c *Client) GetProducts(ctx context.Context) ([]Product, error) {
	resp, err := c.tr.Do(ctx, RequestSpec{
		Method: http.MethodGet,
		Path:   "/codelist/product",
	})
	if err != nil {
		return nil, err
	}

	var out struct {
		Items []Product `json:"items"`
	}
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, errors.Wrap(err, "decode product codelist")
	}
	return out.Items, nil
}

// TrackingURL derives the public tracking page for a shipment number.
func (c *Client) TrackingURL(shipmentNumber string) string {
	return trackingURLBase + url.QueryEscape(shipmentNumber)
}
