package config

import (
	"os"
	"strconv"
)

type Config struct {
	Port                    string
	DatabaseURL             string
	SlotCapacity            int
	RateLimitPerMinute      int
	RateLimitBurst          int
	ActorRateLimitPerMinute int
	ActorRateLimitBurst     int
	OTLPEndpoint            string
	OTLPInsecure            bool
}

func Load() Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	return Config{
		Port:                    port,
		DatabaseURL:             os.Getenv("DB_DSN"),
		SlotCapacity:            readInt("SLOT_CAPACITY", 3),
		RateLimitPerMinute:      readInt("RATE_LIMIT_PER_MIN", 120),
		RateLimitBurst:          readInt("RATE_LIMIT_BURST", 30),
		ActorRateLimitPerMinute: readInt("ACTOR_RATE_LIMIT_PER_MIN", 600),
		ActorRateLimitBurst:     readInt("ACTOR_RATE_LIMIT_BURST", 120),
		OTLPEndpoint:            os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		OTLPInsecure:            readBool("OTEL_EXPORTER_OTLP_INSECURE", false),
	}
}

func readBool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
