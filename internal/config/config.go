package config

import (
	"errors"
	"os"
	"strconv"
)

// ErrUnconfigured signals that required external credentials or endpoints
// are absent. Callers must fail fast on it rather than attempt a call
// against a misconfigured backend.
var ErrUnconfigured = errors.New("required configuration missing")

type Config struct {
	// DBSource is the Postgres connection string. Empty selects the
	// in-memory store, for local development only.
	DBSource string
	Port     string
	Env      string

	RazorpayKeyID     string
	RazorpayKeySecret string

	// NATSURL enables the operator alert bus when set.
	NATSURL string

	// PurchaseRetryLimit bounds ledger retries in the purchase flow.
	PurchaseRetryLimit int
}

func Load() (*Config, error) {
	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}

	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	retries := 3
	if v := os.Getenv("PURCHASE_RETRY_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, errors.New("PURCHASE_RETRY_LIMIT must be a non-negative integer")
		}
		retries = n
	}

	return &Config{
		DBSource:           os.Getenv("DB_SOURCE"),
		Port:               port,
		Env:                env,
		RazorpayKeyID:      os.Getenv("RAZORPAY_KEY_ID"),
		RazorpayKeySecret:  os.Getenv("RAZORPAY_KEY_SECRET"),
		NATSURL:            os.Getenv("NATS_URL"),
		PurchaseRetryLimit: retries,
	}, nil
}
