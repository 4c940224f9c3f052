// Package zerolog implements logger.Logger on top of rs/zerolog.
package zerolog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/goterm/term"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/pkgerrors"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config describes where and how log lines are written
type Config struct {
	Level      string
	TimeFormat string
	Colored    bool
	JSON       bool

	// Optional rotated file output, written as JSON next to the console output
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Logger wraps a configured zerolog logger
type Logger struct {
	*zerolog.Logger
}

// New builds a zerolog logger writing to stdout and, when configured, to a rotated file
func New(config Config) (*Logger, error) {
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack

	logLevel, err := zerolog.ParseLevel(config.Level)
	if err != nil {
		return nil, err
	}

	zerolog.SetGlobalLevel(logLevel)

	var console io.Writer = os.Stdout
	if !config.JSON {
		console = consoleWriter(config.TimeFormat, config.Colored)
	}

	output := console
	if config.File != "" {
		output = zerolog.MultiLevelWriter(console, &lumberjack.Logger{
			Filename:   config.File,
			MaxSize:    config.MaxSizeMB,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAgeDays,
			Compress:   true,
		})
	}

	logger := zerolog.New(output).
		With().
		Timestamp().
		CallerWithSkipFrameCount(3).
		Logger()

	return &Logger{&logger}, nil
}

func consoleWriter(timeLayout string, colored bool) zerolog.ConsoleWriter {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		NoColor:    !colored,
		TimeFormat: timeLayout,
	}

	output.FormatLevel = formatLevel
	output.FormatMessage = formatMessage
	output.FormatCaller = formatCaller
	output.FormatTimestamp = func(i any) string {
		return formatTimestamp(i, timeLayout)
	}

	return output
}

func formatLevel(i any) string {
	level, ok := i.(string)
	if !ok {
		return "[UNK]"
	}

	switch level {
	case zerolog.LevelTraceValue:
		return term.Cyanf("[TRC]")
	case zerolog.LevelDebugValue:
		return term.Cyanf("[DBG]")
	case zerolog.LevelInfoValue:
		return term.Greenf("[INF]")
	case zerolog.LevelWarnValue:
		return term.Yellowf("[WAR]")
	case zerolog.LevelErrorValue:
		return term.Redf("[ERR]")
	case zerolog.LevelFatalValue, zerolog.LevelPanicValue:
		return term.Redf("[FTL]")
	default:
		return term.Whitef("[UNK]")
	}
}

func formatMessage(i any) string {
	const width = 72

	msg, ok := i.(string)
	if !ok || msg == "" {
		return ">"
	}

	if len(msg) < width {
		msg += strings.Repeat(" ", width-len(msg))
	}

	return term.Whitef("> %s", msg)
}

func formatCaller(i any) string {
	const fileWidth = 16

	fname, ok := i.(string)
	if !ok || fname == "" {
		return ""
	}

	file, line, found := strings.Cut(filepath.Base(fname), ":")
	if !found {
		return term.Yellowf("[%s]", file)
	}

	if len(file) > fileWidth {
		file = file[:fileWidth]
	}

	return term.Yellowf("[%s]", fmt.Sprintf("%-*s:%4s", fileWidth, file, line))
}

func formatTimestamp(i any, timeLayout string) string {
	raw, ok := i.(string)
	if !ok {
		return term.Cyanf("[%v]", i)
	}

	ts, err := time.ParseInLocation(time.RFC3339, raw, time.Local)
	if err == nil {
		raw = ts.In(time.Local).Format(timeLayout)
	}

	return term.Cyanf("[%s]", raw)
}
