package config

import (
	"os"
	"strconv"
)

type Config struct {
	Port                 int
	MongoURI             string
	MongoDB              string
	LogLevel             string
	OpenAIAPIKey         string
	ChatModel            string
	WhisperModel         string
	PolicyTimeoutSeconds int
	NatsURL              string
	NatsToken            string
	PhoneRegion          string
}

func Load() Config {
	return Config{
		Port:                 envInt("PORT", 8080),
		MongoURI:             envStr("MONGO_URI", "mongodb://127.0.0.1:27017"),
		MongoDB:              envStr("MONGO_DB_NAME", "doctorai"),
		LogLevel:             envStr("LOG_LEVEL", "info"),
		OpenAIAPIKey:         envStr("OPENAI_API_KEY", ""),
		ChatModel:            envStr("CLINICD_MODEL", "gpt-4o-mini"),
		WhisperModel:         envStr("WHISPER_MODEL", "whisper-1"),
		PolicyTimeoutSeconds: envInt("POLICY_TIMEOUT_SECONDS", 30),
		NatsURL:              envStr("NATS_URL", ""),
		NatsToken:            envStr("NATS_TOKEN", ""),
		PhoneRegion:          envStr("PHONE_REGION", "IN"),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
