package logger

// ComponentLogger prefixes every message with a bracketed component name,
// e.g. "[Research] provider failed".
type ComponentLogger struct {
	prefix  string
	keyvals []any
}

// Component returns a logger that tags messages with the given component name.
func Component(name string) ComponentLogger {
	return ComponentLogger{prefix: "[" + name + "] "}
}

// With returns a copy of the logger that appends keyvals to every call.
func (c ComponentLogger) With(keyvals ...any) ComponentLogger {
	merged := make([]any, 0, len(c.keyvals)+len(keyvals))
	merged = append(merged, c.keyvals...)
	merged = append(merged, keyvals...)
	return ComponentLogger{prefix: c.prefix, keyvals: merged}
}

func (c ComponentLogger) args(keyvals []any) []any {
	if len(c.keyvals) == 0 {
		return keyvals
	}
	out := make([]any, 0, len(c.keyvals)+len(keyvals))
	out = append(out, c.keyvals...)
	return append(out, keyvals...)
}

func (c ComponentLogger) Debug(message string, keyvals ...any) {
	Debug(c.prefix+message, c.args(keyvals)...)
}

func (c ComponentLogger) Info(message string, keyvals ...any) {
	Info(c.prefix+message, c.args(keyvals)...)
}

func (c ComponentLogger) Warn(message string, keyvals ...any) {
	Warn(c.prefix+message, c.args(keyvals)...)
}

func (c ComponentLogger) Error(message string, keyvals ...any) {
	Error(c.prefix+message, c.args(keyvals)...)
}
