// Package logging builds the structured logger the API server and its
// services log through: a zap core wrapped in logr, the same pairing
// the rest of the trust engine's dependency stack is drawn from.
package logging

import (
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a named logr.Logger backed by zap. production selects
// JSON output tuned for ingestion; the development encoder is used
// otherwise, with level names in color for a terminal.
func New(name string, production bool) (logr.Logger, error) {
	var zc zap.Config
	if production {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zc.DisableStacktrace = true

	z, err := zc.Build()
	if err != nil {
		return logr.Discard(), err
	}

	return zapr.NewLogger(z).WithName(name), nil
}
