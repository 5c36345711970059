package logging

import "fmt"

// Config selects the structured log sink.
type Config struct {
	Format string // pretty|jsonl
	Level  string // debug|info|warn|error
	Output string // stderr|stdout|<file>
}

const (
	FormatPretty = "pretty"
	FormatJSONL  = "jsonl"
)

func DefaultConfig() Config {
	return Config{
		Format: FormatPretty,
		Level:  LevelInfo,
		Output: "stderr",
	}
}

const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Validate rejects unknown formats and levels.
func (c Config) Validate() error {
	switch c.Format {
	case "", FormatPretty, FormatJSONL:
	default:
		return fmt.Errorf("log format must be 'pretty' or 'jsonl', got %q", c.Format)
	}
	switch c.Level {
	case "", LevelDebug, LevelInfo, LevelWarn, LevelError:
	default:
		return fmt.Errorf("log level must be debug, info, warn or error, got %q", c.Level)
	}
	return nil
}

func levelPriority(level string) int {
	switch level {
	case LevelDebug:
		return 0
	case LevelWarn:
		return 2
	case LevelError:
		return 3
	default:
		return 1
	}
}
