package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"order-fulfillment-service/internal/model"
)

// HTTPCarrierClient requests shipments from the carrier integration
// service over HTTP. The carrier assigns the shipment id and AWB code.
type HTTPCarrierClient struct {
	carrierURL string
	client     *http.Client
}

func NewHTTPCarrierClient(carrierURL string) *HTTPCarrierClient {
	return &HTTPCarrierClient{
		carrierURL: carrierURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type carrierShipmentRequest struct {
	OrderID        string `json:"order_id"`
	DisplayOrderID string `json:"display_order_id"`
	FullName       string `json:"full_name"`
	Phone          string `json:"phone"`
	AddressLine1   string `json:"address_line1"`
	AddressLine2   string `json:"address_line2,omitempty"`
	City           string `json:"city"`
	State          string `json:"state"`
	PostalCode     string `json:"postal_code"`
	CODAmount      int64  `json:"cod_amount,omitempty"`
}

type carrierShipmentResponse struct {
	Carrier    string `json:"carrier"`
	ShipmentID string `json:"shipment_id"`
	AWBCode    string `json:"awb_code"`
}

func (c *HTTPCarrierClient) CreateShipment(ctx context.Context, o *model.Order) (ShipmentRef, error) {
	payload := carrierShipmentRequest{
		OrderID:        o.ID,
		DisplayOrderID: o.DisplayOrderID,
		FullName:       o.Address.FullName,
		Phone:          o.Address.Phone,
		AddressLine1:   o.Address.AddressLine1,
		AddressLine2:   o.Address.AddressLine2,
		City:           o.Address.City,
		State:          o.Address.State,
		PostalCode:     o.Address.PostalCode,
	}
	if o.Payment.Method == model.PaymentMethodCOD {
		payload.CODAmount = o.Total
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return ShipmentRef{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.carrierURL+"/shipments", bytes.NewReader(body))
	if err != nil {
		return ShipmentRef{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return ShipmentRef{}, fmt.Errorf("carrier request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return ShipmentRef{}, fmt.Errorf("carrier returned status %d", resp.StatusCode)
	}

	var out carrierShipmentResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return ShipmentRef{}, err
	}

	return ShipmentRef{
		Carrier:    out.Carrier,
		ShipmentID: out.ShipmentID,
		AWBCode:    out.AWBCode,
	}, nil
}
