// webhook.go
package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Webhook ledger processing states.
const (
	WebhookPending   = "pending"
	WebhookProcessed = "processed"
	WebhookFailed    = "failed"
	WebhookDuplicate = "duplicate"
)

// WebhookLogEntry records one received carrier event. The provider
// event id is the sole dedup key: at most one entry per id is ever in a
// non-duplicate state, enforced by a partial unique index.
type WebhookLogEntry struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ProviderEventID string             `bson:"provider_event_id" json:"providerEventId"`
	EventType       string             `bson:"event_type" json:"eventType"`
	ShipmentID      string             `bson:"shipment_id,omitempty" json:"shipmentId,omitempty"`
	AWBCode         string             `bson:"awb_code,omitempty" json:"awbCode,omitempty"`
	OrderID         string             `bson:"order_id,omitempty" json:"orderId,omitempty"`
	Payload         string             `bson:"payload" json:"payload"` // raw body, replayed on retry
	Status          string             `bson:"status" json:"status"`
	Result          string             `bson:"result,omitempty" json:"result,omitempty"`
	RetryCount      int                `bson:"retry_count" json:"retryCount"`
	MaxRetries      int                `bson:"max_retries" json:"maxRetries"`
	NextRetryAt     time.Time          `bson:"next_retry_at,omitempty" json:"nextRetryAt,omitempty"`
	SourceIP        string             `bson:"source_ip,omitempty" json:"sourceIp,omitempty"`
	SourceUserAgent string             `bson:"source_user_agent,omitempty" json:"sourceUserAgent,omitempty"`
	ReceivedAt      time.Time          `bson:"received_at" json:"receivedAt"`
	ProcessedAt     *time.Time         `bson:"processed_at,omitempty" json:"processedAt,omitempty"`
}
