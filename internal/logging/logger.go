// Package logging provides the ambient logging stack shared by every
// dkvbridge process (worker, manager, client), grounded on the teacher's
// rpc/common/logger.go: a logger.ILogger implementation registered
// through dragonboat's logger factory, reused here purely for its
// interface and factory hook — this system has no Raft/dragonboat runtime,
// but the logging idiom carries over regardless (spec's Non-goals scope
// out consensus, not observability).
//
// Unlike the teacher, every dkvbridge log call site has real request
// context to attach — a worker ID, a wire op, a cursor key — so Logger
// carries a chain of structured key=value fields instead of leaving
// callers to hand-format that context into a Printf string themselves.
package logging

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/lni/dragonboat/v4/logger"
)

// Logger implements logger.ILogger with the teacher's line convention
// (level | name | message) plus an optional chain of structured fields
// rendered before the message, e.g. "INFO  | worker | op=ReadBatch worker_id=3 | done".
type Logger struct {
	name   string
	level  logger.LogLevel
	logger *log.Logger
	fields []string
}

// WithFields returns a derived Logger that prefixes every message with the
// given key/value pairs, without disturbing the parent. kv must be an even
// number of arguments (key, value, key, value, ...); a value is rendered
// with fmt.Sprint. Callers build up context incrementally, e.g.
// log.WithFields("worker_id", id).WithFields("op", op).Warningf(...).
func (l *Logger) WithFields(kv ...interface{}) *Logger {
	if len(kv)%2 != 0 {
		kv = append(kv, "MISSING")
	}
	next := make([]string, 0, len(l.fields)+len(kv)/2)
	next = append(next, l.fields...)
	for i := 0; i < len(kv); i += 2 {
		next = append(next, fmt.Sprintf("%v=%v", kv[i], kv[i+1]))
	}
	return &Logger{name: l.name, level: l.level, logger: l.logger, fields: next}
}

func (l *Logger) SetLevel(level logger.LogLevel) {
	l.level = level
}

func (l *Logger) Debugf(format string, args ...interface{}) {
	if l.level >= logger.DEBUG {
		l.log("DEBUG", format, args...)
	}
}

func (l *Logger) Infof(format string, args ...interface{}) {
	if l.level >= logger.INFO {
		l.log("INFO", format, args...)
	}
}

func (l *Logger) Warningf(format string, args ...interface{}) {
	if l.level >= logger.WARNING {
		l.log("WARN", format, args...)
	}
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	if l.level >= logger.ERROR {
		l.log("ERROR", format, args...)
	}
}

func (l *Logger) Panicf(format string, args ...interface{}) {
	if l.level >= logger.CRITICAL {
		panic(fmt.Sprintf(format, args...))
	}
}

func (l *Logger) log(levelStr string, format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	if len(l.fields) == 0 {
		l.logger.Printf("%-5s | %-15s | %s", levelStr, l.name, message)
		return
	}
	l.logger.Printf("%-5s | %-15s | %s | %s", levelStr, l.name, strings.Join(l.fields, " "), message)
}

// CreateLogger is a logger.Factory: it names each logger.GetLogger caller
// by package.
func CreateLogger(pkgName string) logger.ILogger {
	stdLogger := log.New(os.Stdout, "", log.Ldate|log.Ltime)
	return &Logger{name: pkgName, level: logger.INFO, logger: stdLogger}
}

// ParseLevel converts a string level ("debug"/"info"/"warn"/"error") to a
// logger.LogLevel, panicking on an unrecognized value the same way the
// teacher's config validation does at startup.
func ParseLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return logger.DEBUG
	case "info":
		return logger.INFO
	case "warning", "warn":
		return logger.WARNING
	case "error":
		return logger.ERROR
	default:
		panic(fmt.Sprintf("invalid log level: %s. must be one of debug, info, warn, error", level))
	}
}

// componentLoggers are the named loggers dkvbridge processes use;
// spec's core components each get one so IPC errors, dispatch decisions,
// and manager lifecycle events are attributable at a glance.
var componentLoggers = []string{
	"shm", "ipc", "wire", "worker", "bulk", "manager", "engine", "client",
}

// initLevel is the level passed to the last Init call (INFO before any
// Init); Get applies it to the loggers it builds itself.
var initLevel = logger.INFO

// Init registers the factory and sets every component logger to level,
// mirroring the teacher's InitLoggers but scoped to this system's own
// components instead of dragonboat's raft/rsm/transport set.
func Init(level string) {
	logger.SetLoggerFactory(CreateLogger)
	lvl := ParseLevel(level)
	initLevel = lvl
	for _, name := range componentLoggers {
		logger.GetLogger(name).SetLevel(lvl)
	}
}

// Get returns the named component logger as a concrete *Logger so callers
// can attach structured fields with WithFields. logger.GetLogger may hand
// back dragonboat's own wrapper rather than the *Logger CreateLogger built;
// in that case Get builds a *Logger with CreateLogger and sets it to the
// level of the last Init call.
func Get(name string) *Logger {
	if l, ok := logger.GetLogger(name).(*Logger); ok {
		return l
	}
	l := CreateLogger(name).(*Logger)
	l.SetLevel(initLevel)
	return l
}
