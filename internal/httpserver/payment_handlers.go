package httpserver

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/velmart/backend/internal/models"
	"github.com/velmart/backend/internal/service/payment"
)

func (s *Server) getPayment(c echo.Context) error {
	id, err := paymentIDParam(c)
	if err != nil {
		return err
	}
	p, err := s.Payments.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	if err := s.guardOrderAccess(c, p.OrderID); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (s *Server) processPayment(c echo.Context) error {
	id, err := paymentIDParam(c)
	if err != nil {
		return err
	}
	existing, err := s.Payments.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	if err := s.guardOrderAccess(c, existing.OrderID); err != nil {
		return err
	}

	var req struct {
		PaymentMethodToken string `json:"payment_method_token"`
		PayPalOrderID      string `json:"paypal_order_id"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	p, err := s.Payments.Process(c.Request().Context(), id, payment.ProcessArgs{
		PaymentMethodToken: req.PaymentMethodToken,
		PayPalOrderID:      req.PayPalOrderID,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (s *Server) retryPayment(c echo.Context) error {
	orderID, err := orderIDParam(c)
	if err != nil {
		return err
	}
	if err := s.guardOrderAccess(c, orderID); err != nil {
		return err
	}
	var req struct {
		PaymentMethod models.PaymentMethod `json:"payment_method"`
	}
	if err := c.Bind(&req); err != nil || req.PaymentMethod == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "payment_method is required")
	}

	p, init, err := s.Payments.RetryForOrder(c.Request().Context(), orderID, req.PaymentMethod)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, map[string]any{
		"payment":       p,
		"client_secret": init.ClientSecret,
		"approval_url":  init.ApprovalURL,
		"reference":     init.Reference,
		"bank_details":  init.BankDetails,
	})
}

func (s *Server) listOrderPayments(c echo.Context) error {
	orderID, err := orderIDParam(c)
	if err != nil {
		return err
	}
	if err := s.guardOrderAccess(c, orderID); err != nil {
		return err
	}
	payments, err := s.Payments.ListByOrder(c.Request().Context(), orderID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, payments)
}

// adminCapturePayment confirms a bank transfer deposit.
func (s *Server) adminCapturePayment(c echo.Context) error {
	id, err := paymentIDParam(c)
	if err != nil {
		return err
	}
	var req struct {
		CaptureRef string `json:"capture_ref"`
	}
	_ = c.Bind(&req)

	p, err := s.Payments.MarkCaptured(c.Request().Context(), id, req.CaptureRef)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (s *Server) adminCreateRefund(c echo.Context) error {
	id, err := paymentIDParam(c)
	if err != nil {
		return err
	}
	var req struct {
		Amount decimal.Decimal `json:"amount"`
		Reason string          `json:"reason"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	rf, err := s.Payments.CreateRefund(c.Request().Context(), id, req.Amount, req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, rf)
}

func (s *Server) adminCompleteRefund(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid refund id")
	}
	rf, err := s.Payments.CompleteRefund(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rf)
}

func paymentIDParam(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid payment id")
	}
	return id, nil
}
