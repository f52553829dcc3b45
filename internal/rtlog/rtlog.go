// Package rtlog provides the structured logger cmd/stencil and the ult
// runtime's example applications use to narrate execution-stream and
// scheduler lifecycle events.
package rtlog

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
)

// Level represents a logging level.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a config/flag string onto a Level, defaulting to INFO.
func ParseLevel(s string) Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return DEBUG
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// Format represents the log output format.
type Format int

const (
	Text Format = iota
	JSON
)

// ParseFormat maps a config/flag string onto a Format, defaulting to Text.
func ParseFormat(s string) Format {
	if strings.EqualFold(s, "json") {
		return JSON
	}
	return Text
}

// Logger handles structured logging.
type Logger struct {
	out    io.Writer
	level  Level
	format Format
}

// Config contains logger configuration.
type Config struct {
	Level  Level
	Format Format
}

var (
	defaultLogger = &Logger{
		out:    os.Stdout,
		level:  INFO,
		format: Text,
	}

	debugColor = color.New(color.FgCyan)
	infoColor  = color.New(color.FgGreen)
	warnColor  = color.New(color.FgYellow)
	errorColor = color.New(color.FgRed)
)

// Configure sets up the default logger.
func Configure(cfg Config) {
	defaultLogger.level = cfg.Level
	defaultLogger.format = cfg.Format
}

type logEntry struct {
	Timestamp string      `json:"timestamp"`
	Level     string      `json:"level"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
}

func (l *Logger) log(level Level, msg string, data interface{}) {
	if level < l.level {
		return
	}

	timestamp := time.Now().Format("2006/01/02 15:04:05")

	if l.format == JSON {
		entry := logEntry{
			Timestamp: timestamp,
			Level:     level.String(),
			Message:   msg,
			Data:      data,
		}
		json.NewEncoder(l.out).Encode(entry)
		return
	}

	var levelColor *color.Color
	switch level {
	case DEBUG:
		levelColor = debugColor
	case INFO:
		levelColor = infoColor
	case WARN:
		levelColor = warnColor
	case ERROR:
		levelColor = errorColor
	}

	levelStr := levelColor.Sprintf("%-5s", level.String())
	fmt.Fprintf(l.out, "%s %s: %s", timestamp, levelStr, msg)
	if data != nil {
		fmt.Fprintf(l.out, " %+v", data)
	}
	fmt.Fprintln(l.out)
}

func (l *Logger) Debug(msg string, data ...interface{}) { l.log(DEBUG, msg, firstOrNil(data)) }
func (l *Logger) Info(msg string, data ...interface{})  { l.log(INFO, msg, firstOrNil(data)) }
func (l *Logger) Warn(msg string, data ...interface{})  { l.log(WARN, msg, firstOrNil(data)) }

func (l *Logger) Error(msg string, err error, data ...interface{}) {
	if err != nil {
		msg = fmt.Sprintf("%s: %v", msg, err)
	}
	l.log(ERROR, msg, firstOrNil(data))
}

func firstOrNil(data []interface{}) interface{} {
	if len(data) > 0 {
		return data[0]
	}
	return nil
}

// XStreamCreated logs a newly bootstrapped execution stream.
func (l *Logger) XStreamCreated(id string, primary bool) {
	l.Info("execution stream created", map[string]interface{}{"id": id, "primary": primary})
}

// SchedulerStarted logs a scheduler beginning its run loop, either as an
// ES's bottom scheduler or stacked via PushScheduler.
func (l *Logger) SchedulerStarted(id string, kind string, numPools int, stacked bool) {
	l.Info("scheduler started", map[string]interface{}{
		"id": id, "kind": kind, "pools": numPools, "stacked": stacked,
	})
}

// SchedulerStopped logs a scheduler's stop protocol completing.
func (l *Logger) SchedulerStopped(id string, reason string) {
	l.Info("scheduler stopped", map[string]interface{}{"id": id, "reason": reason})
}

// ThreadMigrated logs a ULT's completed cross-pool (and possibly cross-ES)
// migration.
func (l *Logger) ThreadMigrated(id, fromPool, toPool string) {
	l.Debug("thread migrated", map[string]interface{}{"id": id, "from": fromPool, "to": toPool})
}

// ThreadCanceled logs a ULT observing a cancel request at a suspension
// point.
func (l *Logger) ThreadCanceled(id string) {
	l.Debug("thread canceled", map[string]interface{}{"id": id})
}

// IterationComplete logs one round of an iterative example application
// (e.g. a stencil sweep) completing.
func (l *Logger) IterationComplete(n int, elapsed time.Duration) {
	l.Info("iteration complete", map[string]interface{}{
		"iteration": n, "elapsed": elapsed.String(),
	})
}

func Debug(msg string, data ...interface{}) { defaultLogger.Debug(msg, data...) }
func Info(msg string, data ...interface{})  { defaultLogger.Info(msg, data...) }
func Warn(msg string, data ...interface{})  { defaultLogger.Warn(msg, data...) }

func Error(msg string, err error, data ...interface{}) { defaultLogger.Error(msg, err, data...) }

func XStreamCreated(id string, primary bool) { defaultLogger.XStreamCreated(id, primary) }

func SchedulerStarted(id, kind string, numPools int, stacked bool) {
	defaultLogger.SchedulerStarted(id, kind, numPools, stacked)
}

func SchedulerStopped(id, reason string) { defaultLogger.SchedulerStopped(id, reason) }

func ThreadMigrated(id, fromPool, toPool string) { defaultLogger.ThreadMigrated(id, fromPool, toPool) }

func ThreadCanceled(id string) { defaultLogger.ThreadCanceled(id) }

func IterationComplete(n int, elapsed time.Duration) { defaultLogger.IterationComplete(n, elapsed) }
