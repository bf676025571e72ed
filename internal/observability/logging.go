// Package observability provides logging implementations.
package observability

import (
	"encoding/json"
	"io"
	"log"

	"go.uber.org/zap"
)

// StdLogger logs structured JSON lines to an io.Writer.
type StdLogger struct {
	l *log.Logger
}

// NewStdLogger constructs a StdLogger. A nil writer discards output.
func NewStdLogger(w io.Writer) *StdLogger {
	if w == nil {
		w = io.Discard
	}
	return &StdLogger{l: log.New(w, "", log.LstdFlags)}
}

// Info logs an info message.
func (s *StdLogger) Info(msg string, fields map[string]any) {
	s.log("info", msg, fields)
}

// Error logs an error message.
func (s *StdLogger) Error(msg string, fields map[string]any) {
	s.log("error", msg, fields)
}

func (s *StdLogger) log(level string, msg string, fields map[string]any) {
	if s == nil || s.l == nil {
		return
	}
	payload := map[string]any{
		"level": level,
		"msg":   msg,
	}
	for key, value := range fields {
		payload[key] = value
	}
	data, err := json.Marshal(payload)
	if err != nil {
		s.l.Println(msg)
		return
	}
	s.l.Println(string(data))
}

// ZapLogger adapts a zap logger to the Logger interface.
type ZapLogger struct {
	l *zap.Logger
}

// NewZapLogger wraps a zap logger.
func NewZapLogger(l *zap.Logger) *ZapLogger {
	return &ZapLogger{l: l}
}

// Info logs an info message.
func (z *ZapLogger) Info(msg string, fields map[string]any) {
	if z == nil || z.l == nil {
		return
	}
	z.l.Info(msg, zapFields(fields)...)
}

// Error logs an error message.
func (z *ZapLogger) Error(msg string, fields map[string]any) {
	if z == nil || z.l == nil {
		return
	}
	z.l.Error(msg, zapFields(fields)...)
}

func zapFields(fields map[string]any) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(fields))
	for key, value := range fields {
		out = append(out, zap.Any(key, value))
	}
	return out
}
