package logging

var _ Logger = noopLogger{}

type noopLogger struct{}

// NewNoop returns a Logger that discards everything, used as the context
// default and in tests that don't care about log output.
func NewNoop() Logger { return noopLogger{} }

func (noopLogger) Debug(string, ...any)      {}
func (noopLogger) Info(string, ...any)       {}
func (noopLogger) Warn(string, ...any)       {}
func (noopLogger) Error(string, ...any)      {}
func (noopLogger) Fatal(string, ...any)      {}
func (noopLogger) Trace(string, ...any)      {}
func (n noopLogger) With(string, any) Logger { return n }
func (n noopLogger) NewSystem(string) Logger { return n }
