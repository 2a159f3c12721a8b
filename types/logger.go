package types

// Logger is the structured logging sink used by the concentrator, the NATS
// transport and the heartbeat.
//
// Fields are passed as alternating keys and values, the convention shared by
// zap.SugaredLogger (the *w methods) and log/slog. Implementations must be
// safe for concurrent use: Sort and the publication loop log from different
// goroutines.
//
// Loggers never terminate the process. Failures surface as errors or through
// Hooks.OnProcessException.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}
