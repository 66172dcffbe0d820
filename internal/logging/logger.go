// Package logging builds the zerolog logger used by handoffd and adapts it to
// the key/value logging surface of the registry service.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config selects level and output format.
type Config struct {
	Level  string `toml:"level" env:"LEVEL"`
	Format string `toml:"format" env:"FORMAT"` // console or json
}

// New returns a timestamped logger tagged with app. A nil writer means stdout.
func New(cfg Config, app string, w io.Writer) (zerolog.Logger, error) {
	if w == nil {
		w = os.Stdout
	}
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("parse log level: %w", err)
		}
		level = parsed
	}
	switch strings.ToLower(cfg.Format) {
	case "", "console":
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	case "json":
	default:
		return zerolog.Nop(), fmt.Errorf("unknown log format %q", cfg.Format)
	}
	return zerolog.New(w).Level(level).With().Timestamp().Str("app", app).Logger(), nil
}

// Adapter exposes a zerolog.Logger through Debug/Info/Warn/Error(msg, kv...).
type Adapter struct {
	log zerolog.Logger
}

// NewAdapter wraps log.
func NewAdapter(log zerolog.Logger) *Adapter { return &Adapter{log: log} }

func (a *Adapter) Debug(msg string, args ...any) { emit(a.log.Debug(), msg, args) }
func (a *Adapter) Info(msg string, args ...any)  { emit(a.log.Info(), msg, args) }
func (a *Adapter) Warn(msg string, args ...any)  { emit(a.log.Warn(), msg, args) }
func (a *Adapter) Error(msg string, args ...any) { emit(a.log.Error(), msg, args) }

// emit attaches alternating key/value args. A trailing key without a value is
// logged under "extra".
func emit(ev *zerolog.Event, msg string, args []any) {
	if ev == nil {
		return
	}
	for i := 0; i < len(args); i += 2 {
		if i+1 >= len(args) {
			ev = ev.Interface("extra", args[i])
			break
		}
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		switch v := args[i+1].(type) {
		case error:
			ev = ev.AnErr(key, v)
		case fmt.Stringer:
			ev = ev.Stringer(key, v)
		default:
			ev = ev.Interface(key, v)
		}
	}
	ev.Msg(msg)
}
