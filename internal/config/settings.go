package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"riskgate/decision-api/internal/domain"
)

// Settings holds process-level configuration for the service and CLI.
type Settings struct {
	Port             int
	RulesPath        string
	LogLevel         string
	LogFormat        string
	AlertWebhookURL  string
	AlertMinDecision domain.Decision
	KafkaBrokers     []string
	KafkaTopic       string
}

// LoadSettings reads settings from environment variables with sensible defaults.
// PORT and ALERT_MIN_DECISION are parsed here so a typo stops the process at start.
func LoadSettings() (Settings, error) {
	s := Settings{
		RulesPath:  getEnv("RISK_CONFIG", ""),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		LogFormat:  getEnv("LOG_FORMAT", "text"),
		KafkaTopic: getEnv("KAFKA_TOPIC", "risk.decisions"),

		AlertWebhookURL: getEnv("ALERT_WEBHOOK_URL", ""),
	}

	port, err := strconv.Atoi(getEnv("PORT", "8080"))
	if err != nil || port <= 0 || port > 65535 {
		return Settings{}, fmt.Errorf("invalid PORT %q", os.Getenv("PORT"))
	}
	s.Port = port

	minDecision, err := domain.ParseDecision(getEnv("ALERT_MIN_DECISION", string(domain.DecisionRejected)))
	if err != nil {
		return Settings{}, fmt.Errorf("invalid ALERT_MIN_DECISION: %w", err)
	}
	s.AlertMinDecision = minDecision

	s.KafkaBrokers = splitList(getEnv("KAFKA_BROKERS", ""))

	return s, nil
}

// Address returns the HTTP listen address.
func (s Settings) Address() string {
	return fmt.Sprintf(":%d", s.Port)
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
