// models.go
package model

import (
	"time"

	"order-fulfillment-service/internal/status"
)

// Order is the aggregate under fulfillment management.
type Order struct {
	ID             string        `bson:"_id" json:"id"`
	DisplayOrderID string        `bson:"display_order_id" json:"displayOrderId"` // immutable once assigned
	UserID         string        `bson:"user_id" json:"userId"`
	Items          []LineItem    `bson:"items" json:"items"`
	Subtotal       int64         `bson:"subtotal" json:"subtotal"` // minor currency units (paise)
	ShippingFee    int64         `bson:"shipping_fee" json:"shippingFee"`
	Total          int64         `bson:"total" json:"total"`
	Address        Address       `bson:"address" json:"address"`
	Payment        Payment       `bson:"payment" json:"payment"`
	Shipping       Shipping      `bson:"shipping" json:"shipping"`
	Status         status.Status `bson:"status" json:"status"`
	CreatedAt      time.Time     `bson:"created_at" json:"createdAt"`
	UpdatedAt      time.Time     `bson:"updated_at" json:"updatedAt"`
}

type LineItem struct {
	ProductID string `bson:"product_id" json:"productId"`
	Name      string `bson:"name" json:"name"`
	Quantity  int    `bson:"quantity" json:"quantity"`
	UnitPrice int64  `bson:"unit_price" json:"unitPrice"`
}

// Address is a validated shipping address produced by the upstream
// checkout flow. VerifiedDelivery is set only when serviceability of
// the area was explicitly checked.
type Address struct {
	FullName         string `bson:"full_name" json:"fullName"`
	Phone            string `bson:"phone" json:"phone"`
	AddressLine1     string `bson:"address_line1" json:"addressLine1"`
	AddressLine2     string `bson:"address_line2,omitempty" json:"addressLine2,omitempty"`
	City             string `bson:"city" json:"city"`
	State            string `bson:"state" json:"state"`
	PostalCode       string `bson:"postal_code" json:"postalCode"`
	Country          string `bson:"country,omitempty" json:"country,omitempty"`
	VerifiedDelivery *bool  `bson:"verified_delivery,omitempty" json:"verifiedDelivery,omitempty"`
}

// Payment mirrors the confirmed output of the payment gateway; this
// service never talks to the gateway itself.
type Payment struct {
	Method         string `bson:"method" json:"method"` // cod | prepaid
	Status         string `bson:"status" json:"status"`
	TransactionRef string `bson:"transaction_ref,omitempty" json:"transactionRef,omitempty"`
}

const PaymentMethodCOD = "cod"

// Shipping carries the carrier-side view of the order. TrackingHistory
// is append-only, ordered by event receipt time.
type Shipping struct {
	CarrierName       string           `bson:"carrier_name,omitempty" json:"carrierName,omitempty"`
	ShipmentID        string           `bson:"shipment_id,omitempty" json:"shipmentId,omitempty"`
	AWBCode           string           `bson:"awb_code,omitempty" json:"awbCode,omitempty"`
	LifecycleStatus   status.Lifecycle `bson:"lifecycle_status,omitempty" json:"lifecycleStatus,omitempty"`
	TrackingHistory   []TrackingEvent  `bson:"tracking_history" json:"trackingHistory"`
	ShipmentAttempted bool             `bson:"shipment_attempted" json:"shipmentAttempted"`
	ManualReview      bool             `bson:"manual_review" json:"manualReview"`
}

type TrackingEvent struct {
	Status      string    `bson:"status" json:"status"`
	Timestamp   time.Time `bson:"timestamp" json:"timestamp"`
	Location    string    `bson:"location,omitempty" json:"location,omitempty"`
	Description string    `bson:"description,omitempty" json:"description,omitempty"`
}

// Counter is one atomically-incrementing daily sequence document,
// keyed "<name>-<YYMMDD>".
type Counter struct {
	ID  string `bson:"_id"`
	Seq int64  `bson:"seq"`
}
