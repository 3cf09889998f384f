package log

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/op/go-logging"
)

// Level selects the verbosity of all loggers created by this package.
type Level uint8

// Supported verbosity levels ordered from the most to the least verbose.
const (
	Debug Level = iota
	Info
	Notice
	Warning
	Error
)

var levelNames = []string{"debug", "info", "notice", "warning", "error"}

// String returns the lower-case level name.
func (l Level) String() string {
	if int(l) < len(levelNames) {
		return levelNames[l]
	}
	return fmt.Sprintf("level(%d)", l)
}

// ParseLevel maps a level name to a Level.
func ParseLevel(name string) (Level, error) {
	for index, levelName := range levelNames {
		if strings.EqualFold(levelName, name) {
			return Level(index), nil
		}
	}
	return Notice, fmt.Errorf("log: unknown level %q", name)
}

var format = logging.MustStringFormatter(
	`%{color}[%{time:15:04:05.000}] [%{module}] [%{level:.4s}]%{color:reset} %{message}`,
)

var (
	leveledBackend logging.LeveledBackend
	activeLevel    = Notice
)

// Logger is implemented by the named loggers returned by New.
type Logger interface {
	Debug(v ...interface{})
	Debugf(format string, v ...interface{})

	Info(v ...interface{})
	Infof(format string, v ...interface{})

	Notice(v ...interface{})
	Noticef(format string, v ...interface{})

	Warning(v ...interface{})
	Warningf(format string, v ...interface{})

	Error(v ...interface{})
	Errorf(format string, v ...interface{})
}

// New returns a logger tagged with the given module name.
func New(name string) Logger {
	return logging.MustGetLogger(name)
}

// SetSink redirects all log output to sink. The active level is preserved.
func SetSink(sink io.Writer) {
	backend := logging.NewBackendFormatter(logging.NewLogBackend(sink, "", 0), format)
	leveledBackend = logging.AddModuleLevel(backend)
	logging.SetBackend(leveledBackend)
	SetLevel(activeLevel)
}

// SetLevel adjusts the verbosity for all modules.
func SetLevel(level Level) {
	activeLevel = level

	var backendLevel logging.Level
	switch level {
	case Debug:
		backendLevel = logging.DEBUG
	case Info:
		backendLevel = logging.INFO
	case Notice:
		backendLevel = logging.NOTICE
	case Warning:
		backendLevel = logging.WARNING
	default:
		backendLevel = logging.ERROR
	}

	leveledBackend.SetLevel(backendLevel, "")
}

func init() {
	SetSink(os.Stdout)
}
