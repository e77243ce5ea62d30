package config

import (
	"os"
)

// Config holds all recognized options. Values are read once at startup and
// are immutable afterwards.
type Config struct {
	Env      string
	HTTPPort string

	DatabasePath string
	JWTSecret    string

	// Gateway options
	GatewayHost     string
	GatewayClient   string
	GatewayPassword string
	UseCV2AVS       bool
	CaptureMethod   string
	Currency        string
}

func Load() Config {
	return Config{
		Env:          get("ENV", "dev"),
		HTTPPort:     get("PORT", "8080"),
		DatabasePath: get("DATABASE_PATH", "payments.db"),
		JWTSecret:    get("JWT_SECRET", "payments-secret-key"),

		GatewayHost:     get("GATEWAY_HOST", "testserver.gateway.example"),
		GatewayClient:   get("GATEWAY_CLIENT", "99000001"),
		GatewayPassword: get("GATEWAY_PASSWORD", "password"),
		UseCV2AVS:       get("GATEWAY_USE_CV2AVS", "false") == "true",
		CaptureMethod:   get("GATEWAY_CAPTURE_METHOD", "ecomm"),
		Currency:        get("GATEWAY_CURRENCY", "GBP"),
	}
}

func get(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}
