// Package logx configures fleetnotify's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Per-component verbosity (Logger.WithLevel) without touching the root level
package logx
