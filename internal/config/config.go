package config

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	DatabaseURL  string
	KafkaBrokers []string
	LogLevel     string
	ListenAddr   string

	JWTSecret []byte

	DefaultCurrency string

	StripeSecretKey     string
	StripeWebhookSecret string

	PayPalClientID  string
	PayPalSecret    string
	PayPalAPIBase   string
	PayPalWebhookID string

	BankName        string
	BankAccount     string
	BankBeneficiary string

	TaxRate               decimal.Decimal
	FreeShippingThreshold decimal.Decimal
	FlatShippingRate      decimal.Decimal
	NonMetroSurcharge     decimal.Decimal
	MetroStates           []string
}

func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Notice: .env file not found: %v. Using system environment variables", err)
	}

	cfg := &Config{
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		KafkaBrokers: splitList(getenv("KAFKA_BROKERS", "localhost:9092")),
		LogLevel:     getenv("LOG_LEVEL", "info"),
		ListenAddr:   getenv("LISTEN_ADDR", ":8080"),

		JWTSecret: []byte(os.Getenv("JWT_SECRET")),

		DefaultCurrency: getenv("DEFAULT_CURRENCY", "MXN"),

		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),

		PayPalClientID:  os.Getenv("PAYPAL_CLIENT_ID"),
		PayPalSecret:    os.Getenv("PAYPAL_SECRET"),
		PayPalAPIBase:   getenv("PAYPAL_API_BASE", "https://api-m.sandbox.paypal.com"),
		PayPalWebhookID: os.Getenv("PAYPAL_WEBHOOK_ID"),

		BankName:        getenv("BANK_NAME", "BBVA"),
		BankAccount:     os.Getenv("BANK_ACCOUNT"),
		BankBeneficiary: os.Getenv("BANK_BENEFICIARY"),

		MetroStates: splitList(getenv("SHIPPING_METRO_STATES", "CDMX,Jalisco,Nuevo Leon")),
	}

	var err error
	if cfg.TaxRate, err = decimalEnv("TAX_RATE", "0.16"); err != nil {
		return nil, err
	}
	if cfg.FreeShippingThreshold, err = decimalEnv("FREE_SHIPPING_THRESHOLD", "999"); err != nil {
		return nil, err
	}
	if cfg.FlatShippingRate, err = decimalEnv("FLAT_SHIPPING_RATE", "99"); err != nil {
		return nil, err
	}
	if cfg.NonMetroSurcharge, err = decimalEnv("NON_METRO_SURCHARGE", "50"); err != nil {
		return nil, err
	}

	return cfg, nil
}

// MustNonEmpty exits on missing required configuration, used at startup only.
func MustNonEmpty(v, name string) {
	if strings.TrimSpace(v) == "" {
		log.Fatalf("required environment variable %s is empty", name)
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func decimalEnv(key, def string) (decimal.Decimal, error) {
	v := getenv(key, def)
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: invalid decimal %q: %w", key, v, err)
	}
	return d, nil
}
