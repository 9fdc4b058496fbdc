// dto.go
package dto

import "time"

// CreateOrderRequest is sent by the checkout collaborator once payment
// is confirmed (or COD accepted). The display order id is generated
// here, never upstream.
type CreateOrderRequest struct {
	OrderID     string           `json:"orderId"` // optional upstream correlation id
	UserID      string           `json:"userId" binding:"required"`
	Items       []LineItemDTO    `json:"items" binding:"required,min=1,dive"`
	ShippingFee int64            `json:"shippingFee"`
	Address     AddressDTO       `json:"address" binding:"required"`
	Payment     PaymentDTO       `json:"payment" binding:"required"`
}

type LineItemDTO struct {
	ProductID string `json:"productId" binding:"required"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity" binding:"required,gt=0"`
	UnitPrice int64  `json:"unitPrice" binding:"gte=0"`
}

type AddressDTO struct {
	FullName         string `json:"fullName"`
	Phone            string `json:"phone"`
	AddressLine1     string `json:"addressLine1"`
	AddressLine2     string `json:"addressLine2"`
	City             string `json:"city"`
	State            string `json:"state"`
	PostalCode       string `json:"postalCode"`
	Country          string `json:"country"`
	VerifiedDelivery *bool  `json:"verifiedDelivery"`
}

type PaymentDTO struct {
	Method         string `json:"method" binding:"required,oneof=cod prepaid"`
	Status         string `json:"status"`
	TransactionRef string `json:"transactionRef"`
}

// UpdateStatusRequest is the operator action surface for the coarse
// order status (e.g. a drag-and-drop board column change).
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
	Reason string `json:"reason"`
}

// UpdateLifecycleRequest drives the carrier-level shipment status.
type UpdateLifecycleRequest struct {
	LifecycleStatus string `json:"lifecycleStatus" binding:"required"`
	Location        string `json:"location"`
	Description     string `json:"description"`
}

// CarrierWebhookPayload is the inbound carrier event shape. Only the
// event id plus enough correlation data to resolve an order is
// mandatory; everything else is carrier flavor.
type CarrierWebhookPayload struct {
	EventID       string `json:"event_id"`
	EventType     string `json:"event_type"`
	ShipmentID    string `json:"shipment_id"`
	AWBCode       string `json:"awb_code"`
	OrderID       string `json:"order_id"`
	CurrentStatus string `json:"current_status"`
	Location      string `json:"location"`
	Remark        string `json:"remark"`
	Timestamp     string `json:"timestamp"`
}

type OrderResponse struct {
	ID              string    `json:"id"`
	DisplayOrderID  string    `json:"displayOrderId"`
	UserID          string    `json:"userId"`
	Status          string    `json:"status"`
	LifecycleStatus string    `json:"lifecycleStatus,omitempty"`
	Total           int64     `json:"total"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}
