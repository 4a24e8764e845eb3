// Package logging provides structured logging for Gray Logic Hub.
//
// It wraps log/slog so every component emits records with the same
// default fields (service, version) and level filtering.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("starting hub", "port", 5000)
//
// # Security
//
// Never log PINs, fingerprint secrets, or tokens. Log the principal
// and the method instead.
package logging
