package httpserver

import (
	"bytes"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Webhook bodies are small; cap reads so a hostile sender cannot balloon
// memory.
const maxWebhookBody = int64(64 << 10)

func (s *Server) stripeWebhook(c echo.Context) error {
	body, err := readWebhookBody(c)
	if err != nil {
		return err
	}

	ev, err := s.StripeParser.Parse(body, c.Request().Header.Get("Stripe-Signature"))
	if err != nil {
		return err
	}
	if err := s.Webhooks.Apply(c.Request().Context(), ev); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"received": true})
}

func (s *Server) paypalWebhook(c echo.Context) error {
	if s.PayPalParser.Verifier == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "paypal webhooks not configured")
	}
	body, err := readWebhookBody(c)
	if err != nil {
		return err
	}
	// Verification re-reads the request body, so restore it after buffering.
	c.Request().Body = io.NopCloser(bytes.NewReader(body))

	ev, err := s.PayPalParser.Parse(c.Request().Context(), c.Request(), body)
	if err != nil {
		return err
	}
	if err := s.Webhooks.Apply(c.Request().Context(), ev); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"received": true})
}

func readWebhookBody(c echo.Context) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "unreadable body")
	}
	return body, nil
}
