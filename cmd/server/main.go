package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/velmart/backend/internal/config"
	"github.com/velmart/backend/internal/database"
	"github.com/velmart/backend/internal/events"
	"github.com/velmart/backend/internal/httpserver"
	"github.com/velmart/backend/internal/logging"
	"github.com/velmart/backend/internal/metrics"
	"github.com/velmart/backend/internal/models"
	"github.com/velmart/backend/internal/repo"
	"github.com/velmart/backend/internal/service/cart"
	"github.com/velmart/backend/internal/service/checkout"
	"github.com/velmart/backend/internal/service/inventory"
	"github.com/velmart/backend/internal/service/order"
	"github.com/velmart/backend/internal/service/payment"
	"github.com/velmart/backend/internal/service/product"
	"github.com/velmart/backend/internal/service/webhook"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	config.MustNonEmpty(cfg.DatabaseURL, "DATABASE_URL")
	config.MustNonEmpty(string(cfg.JWTSecret), "JWT_SECRET")

	logger := logging.New(cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	db, err := database.Open(ctx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	var publisher events.Publisher = events.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.KafkaBrokers)
	}

	m := metrics.New()
	r := repo.New(db)

	stripe.Key = cfg.StripeSecretKey

	gateways := payment.Registry{
		models.PaymentMethodStripe: payment.StripeGateway{},
		models.PaymentMethodCard:   payment.StripeGateway{},
		models.PaymentMethodBankTransfer: &payment.BankTransferGateway{
			Details: payment.BankDetails{
				BankName:    cfg.BankName,
				Account:     cfg.BankAccount,
				Beneficiary: cfg.BankBeneficiary,
			},
		},
	}

	var paypalParser webhook.PayPalParser
	if cfg.PayPalClientID != "" {
		ppGateway, err := payment.NewPayPalGateway(cfg.PayPalClientID, cfg.PayPalSecret, cfg.PayPalAPIBase)
		if err != nil {
			log.Fatalf("paypal client: %v", err)
		}
		tokCtx, tokCancel := context.WithTimeout(context.Background(), 10*time.Second)
		if _, err := ppGateway.Client.GetAccessToken(tokCtx); err != nil {
			logger.Warn("paypal_token_fetch_failed", "error", err)
		}
		tokCancel()
		gateways[models.PaymentMethodPayPal] = ppGateway
		paypalParser = webhook.PayPalParser{
			Verifier:  webhook.PayPalAPIVerifier{Client: ppGateway.Client},
			WebhookID: cfg.PayPalWebhookID,
		}
	}

	ledger := &inventory.Ledger{Repo: r, Events: publisher, Metrics: m}
	carts := &cart.Service{Repo: r, Events: publisher}
	products := &product.Service{Repo: r, Inventory: ledger}
	payments := &payment.Service{Repo: r, Gateways: gateways, Events: publisher, Metrics: m}
	orders := &order.Service{Repo: r, Inventory: ledger, Events: publisher}
	checkouts := &checkout.Service{
		Repo:      r,
		Carts:     carts,
		Inventory: ledger,
		Payments:  payments,
		Events:    publisher,
		Metrics:   m,
		Shipping: checkout.ShippingPolicy{
			FreeThreshold: cfg.FreeShippingThreshold,
			FlatRate:      cfg.FlatShippingRate,
			Surcharge:     cfg.NonMetroSurcharge,
			MetroStates:   cfg.MetroStates,
		},
		TaxRate:         cfg.TaxRate,
		DefaultCurrency: cfg.DefaultCurrency,
	}
	reconciler := &webhook.Reconciler{Repo: r, Payments: payments, Metrics: m}

	server := &httpserver.Server{
		DB:           db,
		Carts:        carts,
		Products:     products,
		Inventory:    ledger,
		Checkout:     checkouts,
		Orders:       orders,
		Payments:     payments,
		Webhooks:     reconciler,
		StripeParser: webhook.StripeParser{Secret: cfg.StripeWebhookSecret},
		PayPalParser: paypalParser,
		Metrics:      m,
		JWTSecret:    cfg.JWTSecret,
		Logger:       logger,
	}

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      server.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("listening", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			log.Printf("db close error: %v", err)
		}
	}
	if err := publisher.Close(); err != nil {
		log.Printf("kafka close error: %v", err)
	}

	logger.Info("shutdown complete")
}
