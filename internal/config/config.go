package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	HTTPAddr string

	DBDriver string // sqlite|postgres|memory
	DBDSN    string

	MediaBasePath string // base dir of the fs blob store

	MaxQueueItems  int // max docs sampled into one run
	MinTextLetters int // alphabetic chars required in free-text answers

	ParticipantSecret string // HMAC key for the identity cookie

	CORSOrigins []string
}

func FromEnv() Config {
	return Config{
		HTTPAddr:          envOr("HTTP_ADDR", ":8080"),
		DBDriver:          envOr("DB_DRIVER", "sqlite"),
		DBDSN:             envOr("DB_DSN", ""),
		MediaBasePath:     envOr("MEDIA_BASE_PATH", "./media"),
		MaxQueueItems:     envInt("MAX_QUEUE_ITEMS", 5),
		MinTextLetters:    envInt("MIN_TEXT_LETTERS", 2),
		ParticipantSecret: envOr("PARTICIPANT_SECRET", "dev-only-participant-secret"),
		CORSOrigins:       csvOr("CORS_ORIGINS", "http://localhost:3000"),
	}
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func envInt(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func csvOr(k, def string) []string {
	v := envOr(k, def)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
