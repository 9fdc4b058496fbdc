package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"order-fulfillment-service/internal/dto"
	"order-fulfillment-service/internal/model"
	"order-fulfillment-service/internal/risk"
	"order-fulfillment-service/internal/status"
)

// Interfaces implemented by the repository layer.
type OrderRepository interface {
	Insert(ctx context.Context, o *model.Order) error
	FindByID(ctx context.Context, id string) (*model.Order, error)
	FindByDisplayID(ctx context.Context, displayID string) (*model.Order, error)
	FindByShipment(ctx context.Context, shipmentID, awbCode string) (*model.Order, error)
	UpdateStatus(ctx context.Context, id string, from, to status.Status, event model.TrackingEvent) error
	UpdateLifecycle(ctx context.Context, id string, from, to status.Lifecycle, promote *status.Status, event model.TrackingEvent) error
	SetShipment(ctx context.Context, id, carrier, shipmentID, awbCode string, event model.TrackingEvent) error
	MarkManualReview(ctx context.Context, id string) error
	FindAll(ctx context.Context) ([]*model.Order, error)
	FindByStatus(ctx context.Context, s status.Status) ([]*model.Order, error)
	FindByUserID(ctx context.Context, userID string) ([]*model.Order, error)
}

type CounterRepository interface {
	Increment(ctx context.Context, key string) (int64, error)
}

// CarrierClient requests a shipment from the external carrier; the
// carrier itself is an opaque collaborator.
type CarrierClient interface {
	CreateShipment(ctx context.Context, o *model.Order) (ShipmentRef, error)
}

type ShipmentRef struct {
	Carrier    string
	ShipmentID string
	AWBCode    string
}

// Business errors surfaced to the controllers.
var (
	ErrOrderAlreadyExists       = errors.New("order was already created")
	ErrShipmentAlreadyAttempted = errors.New("shipment creation was already attempted for this order")
	ErrManualReviewRequired     = errors.New("order is blocked for manual review by the risk gate")
	ErrStaleLifecycle           = errors.New("event is behind the order's current lifecycle position")
	ErrUnknownLifecycle         = errors.New("unknown lifecycle status")
)

type OrderService struct {
	orders   OrderRepository
	counters CounterRepository
	carrier  CarrierClient
	analyzer risk.Analyzer
	idPrefix string
	now      func() time.Time
	log      zerolog.Logger
}

func NewOrderService(orders OrderRepository, counters CounterRepository, carrier CarrierClient, analyzer risk.Analyzer, idPrefix string, log zerolog.Logger) *OrderService {
	return &OrderService{
		orders:   orders,
		counters: counters,
		carrier:  carrier,
		analyzer: analyzer,
		idPrefix: idPrefix,
		now:      time.Now,
		log:      log.With().Str("component", "order_service").Logger(),
	}
}

// WithClock overrides the service clock; used by tests to pin the UTC day.
func (s *OrderService) WithClock(now func() time.Time) *OrderService {
	s.now = now
	return s
}

// GenerateDisplayOrderID returns the next human-readable order id for
// the current UTC day, format "<prefix>-YYMMDD-<1000+seq>". The suffix
// starts at 1001 each day and grows past 4 digits without truncation.
// A counter failure aborts; ids are never guessed locally.
func (s *OrderService) GenerateDisplayOrderID(ctx context.Context) (string, error) {
	now := s.now().UTC()
	dateStr := now.Format("060102")

	seq, err := s.counters.Increment(ctx, "orders-"+dateStr)
	if err != nil {
		return "", fmt.Errorf("generating display order id: %w", err)
	}

	return fmt.Sprintf("%s-%s-%04d", s.idPrefix, dateStr, 1000+seq), nil
}

// CreateOrder persists a new confirmed order for the checkout
// collaborator. The display id is generated and set before any other
// write; totals are recomputed server-side.
func (s *OrderService) CreateOrder(ctx context.Context, req dto.CreateOrderRequest) (*model.Order, error) {
	id := req.OrderID
	if id == "" {
		id = uuid.NewString()
	} else if existing, err := s.orders.FindByID(ctx, id); err == nil && existing != nil {
		return nil, ErrOrderAlreadyExists
	}

	displayID, err := s.GenerateDisplayOrderID(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()

	var subtotal int64
	items := make([]model.LineItem, 0, len(req.Items))
	for _, it := range req.Items {
		subtotal += int64(it.Quantity) * it.UnitPrice
		items = append(items, model.LineItem{
			ProductID: it.ProductID,
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		})
	}

	order := &model.Order{
		ID:             id,
		DisplayOrderID: displayID,
		UserID:         req.UserID,
		Items:          items,
		Subtotal:       subtotal,
		ShippingFee:    req.ShippingFee,
		Total:          subtotal + req.ShippingFee,
		Address: model.Address{
			FullName:         req.Address.FullName,
			Phone:            req.Address.Phone,
			AddressLine1:     req.Address.AddressLine1,
			AddressLine2:     req.Address.AddressLine2,
			City:             req.Address.City,
			State:            req.Address.State,
			PostalCode:       req.Address.PostalCode,
			Country:          req.Address.Country,
			VerifiedDelivery: req.Address.VerifiedDelivery,
		},
		Payment: model.Payment{
			Method:         req.Payment.Method,
			Status:         req.Payment.Status,
			TransactionRef: req.Payment.TransactionRef,
		},
		Shipping: model.Shipping{
			LifecycleStatus: status.ReadyToShip,
			TrackingHistory: []model.TrackingEvent{
				{
					Status:      string(status.ReadyToShip),
					Timestamp:   now,
					Description: "order confirmed",
				},
			},
		},
		Status:    status.Confirmed,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.orders.Insert(ctx, order); err != nil {
		return nil, fmt.Errorf("inserting order: %w", err)
	}

	s.log.Info().
		Str("order_id", order.ID).
		Str("display_order_id", order.DisplayOrderID).
		Msg("order created")
	return order, nil
}

// GetOrder resolves an order by internal id first, display id second.
func (s *OrderService) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	o, err := s.orders.FindByID(ctx, id)
	if err == nil {
		return o, nil
	}
	return s.orders.FindByDisplayID(ctx, id)
}

func (s *OrderService) GetAll(ctx context.Context) ([]*model.Order, error) {
	return s.orders.FindAll(ctx)
}

func (s *OrderService) GetByStatus(ctx context.Context, st status.Status) ([]*model.Order, error) {
	return s.orders.FindByStatus(ctx, st)
}

func (s *OrderService) GetByUserID(ctx context.Context, userID string) ([]*model.Order, error) {
	return s.orders.FindByUserID(ctx, userID)
}

// UpdateStatus applies an operator-requested coarse transition through
// the state machine. Requesting the current state is a no-op; a pair
// absent from the table returns *status.TransitionError untouched so
// the caller can name both states in its rejection message.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID string, target status.Status, reason, actorID string) (*model.Order, error) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	changed, err := status.Transition(order.Status, target)
	if err != nil {
		return nil, err
	}
	if !changed {
		return order, nil
	}

	event := model.TrackingEvent{
		Status:      string(target),
		Timestamp:   s.now().UTC(),
		Description: reason,
	}
	if err := s.orders.UpdateStatus(ctx, order.ID, order.Status, target, event); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("order_id", order.ID).
		Str("from", string(order.Status)).
		Str("to", string(target)).
		Str("actor", actorID).
		Msg("order status updated")

	order.Status = target
	order.Shipping.TrackingHistory = append(order.Shipping.TrackingHistory, event)
	return order, nil
}

// UpdateLifecycle applies an operator-entered carrier status.
func (s *OrderService) UpdateLifecycle(ctx context.Context, orderID, rawStatus, location, description string) (*model.Order, error) {
	next, ok := status.ParseLifecycle(rawStatus)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLifecycle, rawStatus)
	}

	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := s.ApplyLifecycle(ctx, order, next, location, description); err != nil {
		return nil, err
	}
	return order, nil
}

// ApplyLifecycle advances the order's carrier lifecycle and appends one
// immutable tracking event. Events behind the current lifecycle
// position return ErrStaleLifecycle and change nothing. At promotion
// checkpoints the coarse status moves too, but only through the
// transition table; a promotion the table forbids is skipped, never
// forced. Mutates order in place on success.
func (s *OrderService) ApplyLifecycle(ctx context.Context, order *model.Order, next status.Lifecycle, location, description string) error {
	current := order.Shipping.LifecycleStatus
	if !status.Advances(current, next) {
		return fmt.Errorf("%w: %s -> %s", ErrStaleLifecycle, current, next)
	}

	var promote *status.Status
	if target, ok := status.Promotes(next); ok {
		if changed, err := status.Transition(order.Status, target); err == nil && changed {
			promote = &target
		} else if err != nil {
			s.log.Warn().
				Str("order_id", order.ID).
				Str("from", string(order.Status)).
				Str("to", string(target)).
				Msg("lifecycle checkpoint promotion skipped: transition not allowed")
		}
	}

	event := model.TrackingEvent{
		Status:      string(next),
		Timestamp:   s.now().UTC(),
		Location:    location,
		Description: description,
	}
	if err := s.orders.UpdateLifecycle(ctx, order.ID, current, next, promote, event); err != nil {
		return err
	}

	order.Shipping.LifecycleStatus = next
	order.Shipping.TrackingHistory = append(order.Shipping.TrackingHistory, event)
	if promote != nil {
		order.Status = *promote
	}
	return nil
}

// Risk computes the advisory risk report for an order.
func (s *OrderService) Risk(ctx context.Context, orderID string) (*model.Order, risk.Report, error) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, risk.Report{}, err
	}
	return order, s.analyzer.Analyze(order), nil
}

// CreateShipment runs the risk gate and, when it passes, requests a
// shipment from the carrier and records the hand-off. An order with a
// high-severity finding is flagged for manual review instead; either
// way the attempt is durable, so the gate decision survives a restart.
func (s *OrderService) CreateShipment(ctx context.Context, orderID string) (*model.Order, risk.Report, error) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, risk.Report{}, err
	}
	if order.Shipping.ShipmentAttempted {
		return order, risk.Report{}, ErrShipmentAlreadyAttempted
	}
	if order.Status != status.Confirmed && order.Status != status.Processing {
		return order, risk.Report{}, &status.TransitionError{From: order.Status, To: status.Shipped}
	}

	report := s.analyzer.Analyze(order)
	if report.HighSeverityCount > 0 {
		if err := s.orders.MarkManualReview(ctx, order.ID); err != nil {
			return order, report, err
		}
		order.Shipping.ManualReview = true
		order.Shipping.ShipmentAttempted = true

		s.log.Warn().
			Str("order_id", order.ID).
			Int("high_severity_findings", report.HighSeverityCount).
			Msg("shipment blocked by risk gate")
		return order, report, ErrManualReviewRequired
	}

	// Direct hand-off from confirmed moves the order to processing
	// first, through the same table as any operator action.
	if order.Status == status.Confirmed {
		if _, err := s.UpdateStatus(ctx, order.ID, status.Processing, "shipment requested", "system"); err != nil {
			return order, report, err
		}
		order.Status = status.Processing
	}

	ref, err := s.carrier.CreateShipment(ctx, order)
	if err != nil {
		return order, report, fmt.Errorf("requesting carrier shipment: %w", err)
	}

	event := model.TrackingEvent{
		Status:      string(status.ShipmentCreated),
		Timestamp:   s.now().UTC(),
		Description: "shipment created with " + ref.Carrier,
	}
	if err := s.orders.SetShipment(ctx, order.ID, ref.Carrier, ref.ShipmentID, ref.AWBCode, event); err != nil {
		return order, report, err
	}

	order.Shipping.CarrierName = ref.Carrier
	order.Shipping.ShipmentID = ref.ShipmentID
	order.Shipping.AWBCode = ref.AWBCode
	order.Shipping.LifecycleStatus = status.ShipmentCreated
	order.Shipping.ShipmentAttempted = true
	order.Shipping.TrackingHistory = append(order.Shipping.TrackingHistory, event)

	s.log.Info().
		Str("order_id", order.ID).
		Str("shipment_id", ref.ShipmentID).
		Str("awb_code", ref.AWBCode).
		Msg("shipment created")
	return order, report, nil
}
