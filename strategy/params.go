package strategy

import (
	"fmt"
	"time"

	"github.com/raykavin/intrabot/core"
)

// Params is the untyped parameter map a strategy receives from configuration.
// The typed getters apply defaults; Require* variants turn a missing key into
// a configuration error.
type Params map[string]any

func (p Params) Int(key string, def int) int {
	v, ok := p[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return def
}

func (p Params) Float(key string, def float64) float64 {
	v, ok := p[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return def
}

func (p Params) Bool(key string, def bool) bool {
	if v, ok := p[key].(bool); ok {
		return v
	}
	return def
}

func (p Params) String(key, def string) string {
	if v, ok := p[key].(string); ok && v != "" {
		return v
	}
	return def
}

func (p Params) Minutes(key string, def time.Duration) time.Duration {
	v, ok := p[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return time.Duration(n) * time.Minute
	case int64:
		return time.Duration(n) * time.Minute
	case float64:
		return time.Duration(n * float64(time.Minute))
	}
	return def
}

// RequireFloat fails when the key is absent or not numeric.
func (p Params) RequireFloat(key string) (float64, error) {
	v, ok := p[key]
	if !ok {
		return 0, fmt.Errorf("%w: %q", core.ErrMissingParameter, key)
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	}
	return 0, fmt.Errorf("%w: %q is not numeric", core.ErrMissingParameter, key)
}
