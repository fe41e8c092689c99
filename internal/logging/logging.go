// Package logging provides the zerolog-based structured logger shared by the
// whole service. Init is called once at startup; the package-level helpers
// are safe for concurrent use.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logging configuration.
type Config struct {
	// Level is the minimum log level: debug, info, warn, error. Default: info.
	Level string `koanf:"level"`

	// Format is the output format: json or console. Default: json.
	Format string `koanf:"format"`
}

var (
	log zerolog.Logger

	mu sync.RWMutex
)

func init() {
	initLogger(Config{Level: "info", Format: "json"}, os.Stderr)
}

// Init configures the global logger. Output defaults to stderr.
func Init(cfg Config) {
	initLogger(cfg, os.Stderr)
}

// InitWithOutput is Init with an explicit output writer, used by tests.
func InitWithOutput(cfg Config, out io.Writer) {
	initLogger(cfg, out)
}

func initLogger(cfg Config, out io.Writer) {
	mu.Lock()
	defer mu.Unlock()

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	log = zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// Logger returns the configured global logger.
func Logger() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

func Debug() *zerolog.Event { return Logger().Debug() }
func Info() *zerolog.Event  { return Logger().Info() }
func Warn() *zerolog.Event  { return Logger().Warn() }
func Error() *zerolog.Event { return Logger().Error() }
func Fatal() *zerolog.Event { return Logger().Fatal() }
