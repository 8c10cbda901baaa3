package core

// Logger is the minimal leveled logging surface the service depends on.
// Adapters for concrete backends live with the callers that own them.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NopLogger returns a logger that discards everything.
func NopLogger() Logger { return noopLogger{} }

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
