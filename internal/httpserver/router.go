// Package httpserver exposes the shop over HTTP. Handlers stay thin: bind,
// call a service, map the result; all policy lives below.
package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"gorm.io/gorm"

	"github.com/velmart/backend/internal/metrics"
	"github.com/velmart/backend/internal/service/cart"
	"github.com/velmart/backend/internal/service/checkout"
	"github.com/velmart/backend/internal/service/inventory"
	"github.com/velmart/backend/internal/service/order"
	"github.com/velmart/backend/internal/service/payment"
	"github.com/velmart/backend/internal/service/product"
	"github.com/velmart/backend/internal/service/webhook"
)

type Server struct {
	DB        *gorm.DB
	Carts     *cart.Service
	Products  *product.Service
	Inventory *inventory.Ledger
	Checkout  *checkout.Service
	Orders    *order.Service
	Payments  *payment.Service
	Webhooks  *webhook.Reconciler

	StripeParser webhook.StripeParser
	PayPalParser webhook.PayPalParser

	Metrics   *metrics.Metrics
	JWTSecret []byte
	Logger    *slog.Logger
}

func (s *Server) Router() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = errorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestLogger(s.Logger))
	e.Use(authenticate(s.JWTSecret))

	e.GET("/healthz", s.healthz)
	e.GET("/readyz", s.readyz)
	if s.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(s.Metrics.Handler()))
	}

	api := e.Group("/api/v1")

	api.GET("/products", s.listProducts)
	api.GET("/products/:id", s.getProduct)
	api.GET("/products/:id/stock", s.getStock)

	api.GET("/cart", s.getCart)
	api.GET("/cart/totals", s.cartTotals)
	api.POST("/cart/items", s.addCartItem)
	api.PATCH("/cart/items/:productID", s.updateCartItem)
	api.DELETE("/cart/items/:productID", s.removeCartItem)
	api.DELETE("/cart", s.clearCart)

	api.POST("/checkout/quote", s.checkoutQuote)
	api.POST("/checkout/validate", s.checkoutValidate)
	api.POST("/checkout/confirm", s.checkoutConfirm)

	api.GET("/orders", s.listOrders, requireUser)
	api.GET("/orders/:id", s.getOrder)
	api.POST("/orders/:id/cancel", s.cancelOrder)
	api.GET("/orders/:id/payments", s.listOrderPayments)
	api.POST("/orders/:id/payments", s.retryPayment)

	api.GET("/payments/:id", s.getPayment)
	api.POST("/payments/:id/process", s.processPayment)

	api.POST("/webhooks/stripe", s.stripeWebhook)
	api.POST("/webhooks/paypal", s.paypalWebhook)

	admin := api.Group("/admin", requireUser, requireAdmin)
	admin.POST("/products", s.createProduct)
	admin.PATCH("/products/:id", s.updateProduct)
	admin.PUT("/products/:id/stock", s.setStock)
	admin.PATCH("/orders/:id", s.adminUpdateOrder)
	admin.POST("/payments/:id/capture", s.adminCapturePayment)
	admin.POST("/payments/:id/refunds", s.adminCreateRefund)
	admin.POST("/refunds/:id/complete", s.adminCompleteRefund)

	return e
}

func (s *Server) healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(c echo.Context) error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "database unavailable")
	}
	if err := sqlDB.PingContext(c.Request().Context()); err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "database unavailable")
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ready"})
}
