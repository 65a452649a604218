// Package behaviours holds ready-made agents: donor game players and
// completion-driven chatters.
package behaviours

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/boristopalov/colony/pkg/agent"
	"github.com/boristopalov/colony/pkg/logging"
	"github.com/boristopalov/colony/pkg/providers"
)

var (
	ErrUnknownKind = errors.New("unknown behaviour kind")
	ErrBadParam    = errors.New("invalid behaviour parameter")
)

// Deps are shared by every agent built by New.
type Deps struct {
	Completer providers.Completer
	Model     string
	Logger    logging.Logger
}

// New builds an agent of the given kind. params override the kind's
// defaults; unknown keys are ignored.
//
// donor: initial, multiplier, generosity, history, strategy, advice.
// chatter: task, system, history, max_replies.
func New(kind string, params map[string]any, deps Deps) (agent.Agent, error) {
	switch kind {
	case KindDonor:
		cfg := DefaultDonorConfig()
		cfg.Completer, cfg.Model, cfg.Logger = deps.Completer, deps.Model, deps.Logger
		var err error
		if cfg.Initial, err = floatParam(params, "initial", cfg.Initial); err != nil {
			return nil, err
		}
		if cfg.Multiplier, err = floatParam(params, "multiplier", cfg.Multiplier); err != nil {
			return nil, err
		}
		if cfg.Generosity, err = floatParam(params, "generosity", cfg.Generosity); err != nil {
			return nil, err
		}
		if cfg.HistorySize, err = intParam(params, "history", cfg.HistorySize); err != nil {
			return nil, err
		}
		cfg.Strategy = stringParam(params, "strategy", cfg.Strategy)
		cfg.Advice = stringParam(params, "advice", cfg.Advice)
		if cfg.Generosity < 0 || cfg.Generosity > 1 {
			return nil, fmt.Errorf("%w: generosity %v not in [0, 1]", ErrBadParam, cfg.Generosity)
		}
		return NewDonor(cfg), nil

	case KindChatter:
		cfg := DefaultChatterConfig()
		cfg.Completer, cfg.Model, cfg.Logger = deps.Completer, deps.Model, deps.Logger
		var err error
		if cfg.HistorySize, err = intParam(params, "history", cfg.HistorySize); err != nil {
			return nil, err
		}
		if cfg.MaxReplies, err = intParam(params, "max_replies", cfg.MaxReplies); err != nil {
			return nil, err
		}
		cfg.Task = stringParam(params, "task", cfg.Task)
		cfg.System = stringParam(params, "system", cfg.System)
		return NewChatter(cfg), nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

func floatParam(params map[string]any, key string, def float64) (float64, error) {
	v, ok := params[key]
	if !ok {
		return def, nil
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %v", ErrBadParam, key, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%w: %s has type %T", ErrBadParam, key, v)
	}
}

func intParam(params map[string]any, key string, def int) (int, error) {
	v, ok := params[key]
	if !ok {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("%w: %s is not a whole number", ErrBadParam, key)
		}
		return int(n), nil
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %v", ErrBadParam, key, err)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("%w: %s has type %T", ErrBadParam, key, v)
	}
}

func stringParam(params map[string]any, key, def string) string {
	if v, ok := params[key]; ok {
		return fmt.Sprint(v)
	}
	return def
}
