package controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"order-fulfillment-service/internal/dto"
	"order-fulfillment-service/internal/model"
	"order-fulfillment-service/internal/repository"
	"order-fulfillment-service/internal/service"
	"order-fulfillment-service/internal/status"
)

type OrderController struct {
	Service *service.OrderService
}

func NewOrderController(s *service.OrderService) *OrderController {
	return &OrderController{Service: s}
}

// POST /orders — checkout collaborator; the Rabbit consumer is the
// primary path, this endpoint serves direct calls and testing.
func (ctl *OrderController) CreateOrder(c *gin.Context) {
	var req dto.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order, err := ctl.Service.CreateOrder(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrOrderAlreadyExists) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, order)
}

// PATCH /orders/:orderId/status — operator coarse transition; an
// invalid move returns the rejection naming both states.
func (ctl *OrderController) UpdateStatus(c *gin.Context) {
	orderID := c.Param("orderId")

	var req dto.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	actorID := c.GetString("userID")
	order, err := ctl.Service.UpdateStatus(c.Request.Context(), orderID, status.Status(req.Status), req.Reason, actorID)
	if err != nil {
		var te *status.TransitionError
		switch {
		case errors.As(err, &te):
			c.JSON(http.StatusConflict, gin.H{"error": te.Error(), "from": te.From, "to": te.To})
		case errors.Is(err, repository.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, order)
}

// PATCH /orders/:orderId/lifecycle — operator carrier-status entry,
// same ordering rules as the webhook applier.
func (ctl *OrderController) UpdateLifecycle(c *gin.Context) {
	orderID := c.Param("orderId")

	var req dto.UpdateLifecycleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order, err := ctl.Service.UpdateLifecycle(c.Request.Context(), orderID, req.LifecycleStatus, req.Location, req.Description)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnknownLifecycle):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrStaleLifecycle):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, repository.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, order)
}

// POST /orders/:orderId/ship — risk-gated carrier hand-off.
func (ctl *OrderController) CreateShipment(c *gin.Context) {
	orderID := c.Param("orderId")

	order, report, err := ctl.Service.CreateShipment(c.Request.Context(), orderID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrManualReviewRequired):
			c.JSON(http.StatusConflict, gin.H{
				"error": err.Error(),
				"risk":  report,
				"order": order,
			})
		case errors.Is(err, service.ErrShipmentAlreadyAttempted):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, repository.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
		default:
			var te *status.TransitionError
			if errors.As(err, &te) {
				c.JSON(http.StatusConflict, gin.H{"error": te.Error()})
				return
			}
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"order": order, "risk": report})
}

// GET /orders/:orderId/risk — advisory report for the operator dashboard.
func (ctl *OrderController) GetRisk(c *gin.Context) {
	orderID := c.Param("orderId")

	order, report, err := ctl.Service.Risk(c.Request.Context(), orderID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"orderId":        order.ID,
		"displayOrderId": order.DisplayOrderID,
		"risk":           report,
	})
}

// GET /orders/:orderId — owner or admin.
func (ctl *OrderController) GetOrder(c *gin.Context) {
	orderID := c.Param("orderId")
	actorID := c.GetString("userID")
	perms := c.GetStringSlice("userPermissions")

	o, err := ctl.Service.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
		return
	}

	isAdmin := false
	for _, p := range perms {
		if p == "admin" {
			isAdmin = true
			break
		}
	}
	if !isAdmin && o.UserID != actorID {
		c.JSON(http.StatusForbidden, gin.H{"error": "you cannot view another user's order"})
		return
	}

	c.JSON(http.StatusOK, o)
}

// List endpoints return summaries; the single-order fetch returns the
// full document with tracking history.
func toSummaries(orders []*model.Order) []dto.OrderResponse {
	out := make([]dto.OrderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, dto.OrderResponse{
			ID:              o.ID,
			DisplayOrderID:  o.DisplayOrderID,
			UserID:          o.UserID,
			Status:          string(o.Status),
			LifecycleStatus: string(o.Shipping.LifecycleStatus),
			Total:           o.Total,
			CreatedAt:       o.CreatedAt,
			UpdatedAt:       o.UpdatedAt,
		})
	}
	return out
}

// GET /orders/mine
func (ctl *OrderController) GetMyOrders(c *gin.Context) {
	userID := c.GetString("userID")
	orders, err := ctl.Service.GetByUserID(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, toSummaries(orders))
}

// GET /admin/orders
func (ctl *OrderController) GetAllOrders(c *gin.Context) {
	orders, err := ctl.Service.GetAll(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, toSummaries(orders))
}

// GET /admin/orders/status/:status
func (ctl *OrderController) GetOrdersByStatus(c *gin.Context) {
	st := status.Status(c.Param("status"))
	if !status.IsValid(st) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status"})
		return
	}

	orders, err := ctl.Service.GetByStatus(c.Request.Context(), st)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, toSummaries(orders))
}
