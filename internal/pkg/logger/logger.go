package logger

import (
	"strings"

	"go.uber.org/zap"
)

// New builds the process logger. Production config (JSON, info level) unless
// the environment is development, which gets the console encoder.
func New(environment string) (*zap.Logger, error) {
	env := strings.ToLower(strings.TrimSpace(environment))
	if env == "development" || env == "dev" || env == "local" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
