package obs

import "github.com/rs/zerolog"

// Logger is a minimal structured-logging interface satisfied by zerolog and
// by test doubles. Every pipeline component logs through this, never
// through the stdlib log package directly.
type Logger interface {
	Info(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)
	Debug(msg string, fields map[string]any)
}

// ZerologLogger adapts the global zerolog logger (configured once at
// startup by internal/observability.InitLogger) to the Logger interface.
type ZerologLogger struct {
	base zerolog.Logger
}

// NewZerologLogger wraps base for use as a component Logger.
func NewZerologLogger(base zerolog.Logger) *ZerologLogger {
	return &ZerologLogger{base: base}
}

func (l *ZerologLogger) Info(msg string, fields map[string]any) {
	withFields(l.base.Info(), fields).Msg(msg)
}

func (l *ZerologLogger) Error(msg string, fields map[string]any) {
	withFields(l.base.Error(), fields).Msg(msg)
}

func (l *ZerologLogger) Debug(msg string, fields map[string]any) {
	withFields(l.base.Debug(), fields).Msg(msg)
}

func withFields(e *zerolog.Event, fields map[string]any) *zerolog.Event {
	for k, v := range fields {
		e = e.Interface(k, v)
	}
	return e
}

// MockLogger captures log lines in memory for assertions in tests.
type MockLogger struct {
	Lines []MockLogLine
}

// MockLogLine is one recorded log call.
type MockLogLine struct {
	Level  string
	Msg    string
	Fields map[string]any
}

func (l *MockLogger) Info(msg string, fields map[string]any) {
	l.Lines = append(l.Lines, MockLogLine{Level: "info", Msg: msg, Fields: fields})
}

func (l *MockLogger) Error(msg string, fields map[string]any) {
	l.Lines = append(l.Lines, MockLogLine{Level: "error", Msg: msg, Fields: fields})
}

func (l *MockLogger) Debug(msg string, fields map[string]any) {
	l.Lines = append(l.Lines, MockLogLine{Level: "debug", Msg: msg, Fields: fields})
}
