package common

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/lni/dragonboat/v4/logger"
)

// --------------------------------------------------------------------------
// Custom Logger (implements dragonboats logger.ILogger)
// --------------------------------------------------------------------------

var levelLabels = map[logger.LogLevel]string{
	logger.CRITICAL: "CRIT",
	logger.ERROR:    "ERROR",
	logger.WARNING:  "WARN",
	logger.INFO:     "INFO",
	logger.DEBUG:    "DEBUG",
}

// treeLogger writes lines of the form
//
//	2025/01/02 15:04:05 INFO  [node] storage opened
type treeLogger struct {
	name  string
	level logger.LogLevel
	out   *log.Logger
}

func (l *treeLogger) SetLevel(level logger.LogLevel) { l.level = level }

func (l *treeLogger) Debugf(format string, args ...interface{}) {
	l.logf(logger.DEBUG, format, args...)
}

func (l *treeLogger) Infof(format string, args ...interface{}) {
	l.logf(logger.INFO, format, args...)
}

func (l *treeLogger) Warningf(format string, args ...interface{}) {
	l.logf(logger.WARNING, format, args...)
}

func (l *treeLogger) Errorf(format string, args ...interface{}) {
	l.logf(logger.ERROR, format, args...)
}

// Panicf logs the message and panics regardless of the level.
func (l *treeLogger) Panicf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	l.logf(logger.CRITICAL, "%s", msg)
	panic(msg)
}

func (l *treeLogger) logf(level logger.LogLevel, format string, args ...interface{}) {
	if level > l.level {
		return
	}
	l.out.Printf("%-5s [%s] %s", levelLabels[level], l.name, fmt.Sprintf(format, args...))
}

// --------------------------------------------------------------------------
// Logger Factory
// --------------------------------------------------------------------------

// logOutput is where all loggers created by CreateLogger write to.
var logOutput io.Writer = os.Stdout

// CreateLogger is the logger.Factory used for all dTree and dragonboat loggers.
func CreateLogger(pkgName string) logger.ILogger {
	return &treeLogger{
		name:  pkgName,
		level: logger.INFO,
		out:   log.New(logOutput, "", log.Ldate|log.Ltime),
	}
}

// --------------------------------------------------------------------------
// Level parsing
// --------------------------------------------------------------------------

// ParseLogLevel converts a string level to logger.LogLevel
func ParseLogLevel(level string) (logger.LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return logger.DEBUG, nil
	case "info", "":
		return logger.INFO, nil
	case "warning", "warn":
		return logger.WARNING, nil
	case "error":
		return logger.ERROR, nil
	default:
		return 0, fmt.Errorf("invalid log level: %s. must be one of debug, info, warn, error", level)
	}
}

// LogLevels is a default level plus per logger overrides.
type LogLevels struct {
	Default   logger.LogLevel
	Overrides map[string]logger.LogLevel
}

// ParseLogLevels parses "info" or "info,lockmgr=debug,raft=error". The entry
// without a logger name sets the default level.
func ParseLogLevels(s string) (LogLevels, error) {
	levels := LogLevels{Default: logger.INFO, Overrides: map[string]logger.LogLevel{}}
	for _, part := range strings.Split(s, ",") {
		name, value, named := strings.Cut(part, "=")
		if !named {
			lvl, err := ParseLogLevel(name)
			if err != nil {
				return LogLevels{}, err
			}
			levels.Default = lvl
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			return LogLevels{}, fmt.Errorf("missing logger name in %q", part)
		}
		lvl, err := ParseLogLevel(value)
		if err != nil {
			return LogLevels{}, err
		}
		levels.Overrides[name] = lvl
	}
	return levels, nil
}

// --------------------------------------------------------------------------
// Logger initialization
// --------------------------------------------------------------------------

// dragonboatLoggers are the loggers created by dragonboat itself.
var dragonboatLoggers = []string{"raft", "raftdb", "rsm", "transport", "dragonboat", "grpc", "util", "logdb"}

// treeLoggers are the loggers of the dTree packages.
var treeLoggers = []string{"node", "lockmgr", "backend", "api", "cmd"}

// InitLoggers installs the custom logger factory and sets the level of all
// loggers (see ParseLogLevels). Dragonboat's loggers stay at warning level while
// the default is info, unless they are overridden.
func InitLoggers(level string) error {
	levels, err := ParseLogLevels(level)
	if err != nil {
		return err
	}

	logger.SetLoggerFactory(CreateLogger)

	for _, name := range dragonboatLoggers {
		lvl := levels.Default
		if lvl == logger.INFO {
			lvl = logger.WARNING
		}
		if o, ok := levels.Overrides[name]; ok {
			lvl = o
		}
		logger.GetLogger(name).SetLevel(lvl)
	}
	for _, name := range treeLoggers {
		lvl := levels.Default
		if o, ok := levels.Overrides[name]; ok {
			lvl = o
		}
		logger.GetLogger(name).SetLevel(lvl)
	}
	return nil
}

// DebugEnabled reports whether the default level of a level string is debug.
func DebugEnabled(level string) bool {
	levels, err := ParseLogLevels(level)
	return err == nil && levels.Default == logger.DEBUG
}
