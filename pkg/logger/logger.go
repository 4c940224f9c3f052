// Package logger defines the logging contract shared by every package of the bot.
package logger

type Level int8

const (
	Disabled   Level = -1   // Disabled turns logging off.
	TraceLevel Level = iota // TraceLevel is used for per tick details.
	DebugLevel              // DebugLevel is used for decision details.
	InfoLevel               // InfoLevel is used for chain lifecycle events.
	WarnLevel               // WarnLevel is used for skipped ticks and retries.
	ErrorLevel              // ErrorLevel is used for failed actions.
	FatalLevel              // FatalLevel is used at startup only.
	NoLevel                 // NoLevel is used for no logging level.
)

type Logger interface {
	WithField(key string, value any) Logger  // WithField returns a logger with the given key-value pair.
	WithFields(fields map[string]any) Logger // WithFields returns a logger with the given fields.
	WithError(err error) Logger              // WithError returns a logger with the given error.

	Trace(args ...any)
	Debug(args ...any)
	Info(args ...any)
	Warn(args ...any)
	Error(args ...any)
	Fatal(args ...any) // Fatal logs the message and then exits the program.

	Tracef(format string, args ...any)
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Fatalf(format string, args ...any)

	SetLevel(level Level)
	GetLevel() Level
}

// Nop returns a logger that discards everything
func Nop() Logger {
	return nop{}
}

type nop struct{}

func (n nop) WithField(string, any) Logger     { return n }
func (n nop) WithFields(map[string]any) Logger { return n }
func (n nop) WithError(error) Logger           { return n }
func (nop) Trace(...any)                       {}
func (nop) Debug(...any)                       {}
func (nop) Info(...any)                        {}
func (nop) Warn(...any)                        {}
func (nop) Error(...any)                       {}
func (nop) Fatal(...any)                       {}
func (nop) Tracef(string, ...any)              {}
func (nop) Debugf(string, ...any)              {}
func (nop) Infof(string, ...any)               {}
func (nop) Warnf(string, ...any)               {}
func (nop) Errorf(string, ...any)              {}
func (nop) Fatalf(string, ...any)              {}
func (nop) SetLevel(Level)                     {}
func (nop) GetLevel() Level                    { return Disabled }
