package strategy

import (
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/lobsim/internal/domain"
	"github.com/alanyoungcy/lobsim/internal/marketdata"
)

// Strategy turns one bar into a trading proposal.
type Strategy interface {
	Name() string
	Analyze(state domain.MarketState) (domain.Proposal, error)
}

// Config holds what a builder needs to construct a strategy for one run.
type Config struct {
	Params map[string]any
	Series *marketdata.Series
	Logger *slog.Logger
}

func (c Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// paramInt reads an integer parameter. JSON numbers arrive as float64 and
// TOML integers as int64, so both are accepted.
func paramInt(params map[string]any, key string, def int) (int, error) {
	v, ok := params[key]
	if !ok {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("param %s: %v is not an integer", key, n)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("param %s: unsupported type %T", key, v)
	}
}

func paramFloat(params map[string]any, key string, def float64) (float64, error) {
	v, ok := params[key]
	if !ok {
		return def, nil
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("param %s: unsupported type %T", key, v)
	}
}
