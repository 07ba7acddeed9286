package httpserver

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/velmart/backend/internal/models"
)

func (s *Server) listOrders(c echo.Context) error {
	userID, ok := userIDFrom(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))

	orders, err := s.Orders.ListByUser(c.Request().Context(), userID, limit, offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, orders)
}

func (s *Server) getOrder(c echo.Context) error {
	id, err := orderIDParam(c)
	if err != nil {
		return err
	}
	o, err := s.Orders.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	if !s.mayAccessOrder(c, o.UserID) {
		return echo.NewHTTPError(http.StatusForbidden, "not your order")
	}
	return c.JSON(http.StatusOK, o)
}

func (s *Server) cancelOrder(c echo.Context) error {
	id, err := orderIDParam(c)
	if err != nil {
		return err
	}
	o, err := s.Orders.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	if !s.mayAccessOrder(c, o.UserID) {
		return echo.NewHTTPError(http.StatusForbidden, "not your order")
	}
	// Customers may cancel before fulfilment starts; once the order is
	// processing only an admin can pull it back.
	if !isAdmin(c) && o.Status != models.OrderStatusPending && o.Status != models.OrderStatusConfirmed {
		return echo.NewHTTPError(http.StatusConflict, "order can no longer be cancelled")
	}

	var req struct {
		Reason string `json:"reason"`
	}
	_ = c.Bind(&req)
	if req.Reason == "" {
		req.Reason = "cancelled by customer"
	}

	o, err = s.Orders.Cancel(c.Request().Context(), id, req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, o)
}

func (s *Server) adminUpdateOrder(c echo.Context) error {
	id, err := orderIDParam(c)
	if err != nil {
		return err
	}
	var req struct {
		Status         *models.OrderStatus `json:"status,omitempty"`
		TrackingNumber *string             `json:"tracking_number,omitempty"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	o, err := s.Orders.UpdateAdmin(c.Request().Context(), id, req.Status, req.TrackingNumber)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, o)
}

// mayAccessOrder: admins see everything, users their own orders, guests the
// orders their session created (which have no user id).
func (s *Server) mayAccessOrder(c echo.Context, ownerID *uint) bool {
	if isAdmin(c) {
		return true
	}
	userID, ok := userIDFrom(c)
	if ok {
		return ownerID != nil && *ownerID == userID
	}
	return ownerID == nil
}

// guardOrderAccess loads the order and applies the same ownership rule as
// mayAccessOrder. Used by payment endpoints that are keyed by order id.
func (s *Server) guardOrderAccess(c echo.Context, orderID uuid.UUID) error {
	o, err := s.Orders.Get(c.Request().Context(), orderID)
	if err != nil {
		return err
	}
	if !s.mayAccessOrder(c, o.UserID) {
		return echo.NewHTTPError(http.StatusForbidden, "not your order")
	}
	return nil
}

func orderIDParam(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid order id")
	}
	return id, nil
}
