// Package logx is a thin zerolog wrapper shared by all services.
//
// It provides a value-type Logger with slog-like field helpers and a Service
// that can re-apply sink/level configuration at runtime (config hot reload).
package logx
