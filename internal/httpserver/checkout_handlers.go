package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/velmart/backend/internal/models"
	"github.com/velmart/backend/internal/service/checkout"
)

type checkoutRequest struct {
	ShippingAddress models.Address       `json:"shipping_address"`
	BillingAddress  models.Address       `json:"billing_address"`
	PaymentMethod   models.PaymentMethod `json:"payment_method"`
	Currency        string               `json:"currency"`
}

func (s *Server) bindCheckout(c echo.Context) (checkout.Input, error) {
	id, err := identityFrom(c)
	if err != nil {
		return checkout.Input{}, err
	}
	var req checkoutRequest
	if err := c.Bind(&req); err != nil {
		return checkout.Input{}, echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return checkout.Input{
		Identity:        id,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
		PaymentMethod:   req.PaymentMethod,
		Currency:        req.Currency,
	}, nil
}

func (s *Server) checkoutQuote(c echo.Context) error {
	in, err := s.bindCheckout(c)
	if err != nil {
		return err
	}
	quote, err := s.Checkout.Quote(c.Request().Context(), in.Identity, in.ShippingAddress, in.Currency)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, quote)
}

func (s *Server) checkoutValidate(c echo.Context) error {
	in, err := s.bindCheckout(c)
	if err != nil {
		return err
	}
	res, err := s.Checkout.Validate(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) checkoutConfirm(c echo.Context) error {
	in, err := s.bindCheckout(c)
	if err != nil {
		return err
	}
	if in.PaymentMethod == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "payment_method is required")
	}
	res, err := s.Checkout.Confirm(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, res)
}
