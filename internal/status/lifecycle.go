// lifecycle.go
package status

import "strings"

// Lifecycle is the carrier-level shipment status, finer than the coarse
// order Status. Webhooks primarily move this value; the coarse status is
// only promoted at specific checkpoints (see Promotes).
type Lifecycle string

const (
	ReadyToShip        Lifecycle = "ready_to_ship"
	ShipmentCreated    Lifecycle = "shipment_created"
	PickupScheduled    Lifecycle = "pickup_scheduled"
	PickedUp           Lifecycle = "picked_up"
	InTransit          Lifecycle = "in_transit"
	OutForDelivery     Lifecycle = "out_for_delivery"
	LifecycleDelivered Lifecycle = "delivered"

	// Exception branch after a delivery attempt fails.
	FailedDelivery Lifecycle = "failed_delivery"
	RTOInitiated   Lifecycle = "rto_initiated"
	RTOInTransit   Lifecycle = "rto_in_transit"
	RTODelivered   Lifecycle = "rto_delivered"
)

// Mainline progression order. A carrier retransmission whose rank is
// not strictly greater than the order's current rank is stale and must
// be discarded, never applied. FailedDelivery sits outside this ladder:
// it branches off the mainline and either re-enters it on a redelivery
// attempt or continues into the return flow.
var lifecycleRank = map[Lifecycle]int{
	ReadyToShip:        1,
	ShipmentCreated:    2,
	PickupScheduled:    3,
	PickedUp:           4,
	InTransit:          5,
	OutForDelivery:     6,
	LifecycleDelivered: 7,
}

// Return flow after the carrier gives up on delivery.
var rtoRank = map[Lifecycle]int{
	RTOInitiated: 1,
	RTOInTransit: 2,
	RTODelivered: 3,
}

// Coarse-status checkpoints: the only lifecycle positions that promote
// the order status, and only when the transition table allows it.
var promotions = map[Lifecycle]Status{
	PickedUp:           Shipped,
	LifecycleDelivered: Delivered,
}

// IsValidLifecycle reports whether l names a declared lifecycle state.
func IsValidLifecycle(l Lifecycle) bool {
	if l == FailedDelivery {
		return true
	}
	if _, ok := lifecycleRank[l]; ok {
		return true
	}
	_, ok := rtoRank[l]
	return ok
}

// Advances reports whether moving from current to next is forward
// progress. An unset current (empty string) always advances. Within the
// mainline and within the return flow, ordering is by rank. A failed
// attempt can follow any mainline position short of delivered, and from
// there the shipment either re-enters the mainline on the final leg
// (a redelivery attempt) or moves into the return flow; once in the
// return flow it never comes back.
func Advances(current, next Lifecycle) bool {
	if !IsValidLifecycle(next) {
		return false
	}
	if current == "" || !IsValidLifecycle(current) {
		return true
	}

	if next == FailedDelivery {
		r, mainline := lifecycleRank[current]
		return mainline && r < lifecycleRank[LifecycleDelivered]
	}

	if nr, ok := rtoRank[next]; ok {
		if cr, ok := rtoRank[current]; ok {
			return nr > cr
		}
		return true
	}

	// next is mainline
	if _, ok := rtoRank[current]; ok {
		return false
	}
	if current == FailedDelivery {
		return next == OutForDelivery || next == LifecycleDelivered
	}
	return lifecycleRank[next] > lifecycleRank[current]
}

// Promotes returns the coarse status implied by reaching l, if any.
func Promotes(l Lifecycle) (Status, bool) {
	s, ok := promotions[l]
	return s, ok
}

// ParseLifecycle normalizes a carrier-reported status string into a
// lifecycle state. Carriers spell the same milestone several ways.
func ParseLifecycle(raw string) (Lifecycle, bool) {
	key := strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(raw))), "_")
	if alias, ok := lifecycleAliases[key]; ok {
		key = string(alias)
	}
	l := Lifecycle(key)
	if !IsValidLifecycle(l) {
		return "", false
	}
	return l, true
}

var lifecycleAliases = map[string]Lifecycle{
	"manifested":         ShipmentCreated,
	"pickup_generated":   PickupScheduled,
	"picked":             PickedUp,
	"shipped":            InTransit,
	"undelivered":        FailedDelivery,
	"delivery_failed":    FailedDelivery,
	"rto":                RTOInitiated,
	"returned_to_origin": RTODelivered,
}
