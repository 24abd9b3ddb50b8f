// Package logger is the process-wide logging facade. Backends are registered
// once with Init; every call fans out to all of them.
package logger

// LoggerInstance defines the interface for logging backends.
type LoggerInstance interface {
	Log(message string, keyvals ...any)
	Debug(message string, keyvals ...any)
	Info(message string, keyvals ...any)
	Warn(message string, keyvals ...any)
	Error(message string, keyvals ...any)
	Fatal(message string, keyvals ...any)
}

// Logger holds multiple logging backends and dispatches log calls to all of them.
type Logger struct {
	instances []LoggerInstance
}

var singleton *Logger

// Init initializes the global logger with one or more logging backends.
// Calls made before Init are dropped.
func Init(instances ...LoggerInstance) {
	singleton = &Logger{
		instances: instances,
	}
}

type level func(LoggerInstance, string, ...any)

func dispatch(lvl level, message string, keyvals []any) {
	l := singleton
	if l == nil {
		return
	}
	for _, instance := range l.instances {
		lvl(instance, message, keyvals...)
	}
}

// Log writes a message without a level to all configured backends.
func Log(message string, keyvals ...any) {
	dispatch(LoggerInstance.Log, message, keyvals)
}

// Info writes a message at INFO level to all configured backends.
func Info(message string, keyvals ...any) {
	dispatch(LoggerInstance.Info, message, keyvals)
}

// Warn writes a message at WARN level to all configured backends.
func Warn(message string, keyvals ...any) {
	dispatch(LoggerInstance.Warn, message, keyvals)
}

// Error writes a message at ERROR level to all configured backends.
func Error(message string, keyvals ...any) {
	dispatch(LoggerInstance.Error, message, keyvals)
}

// Debug writes a message at DEBUG level to all configured backends.
func Debug(message string, keyvals ...any) {
	dispatch(LoggerInstance.Debug, message, keyvals)
}

// Fatal writes a message at FATAL level and terminates the program.
func Fatal(message string, keyvals ...any) {
	dispatch(LoggerInstance.Fatal, message, keyvals)
}
