// Package envconfig reads BLOCKWISE_* environment variables.
package envconfig

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"k8s.io/klog/v2"

	"github.com/born-ml/blockwise/internal/parallel"
	"github.com/born-ml/blockwise/internal/remat"
)

// Var returns an environment variable stripped of spaces and quotes.
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}

// BoolWithDefault returns a getter for a boolean variable. Any value that
// does not parse as a bool counts as true.
func BoolWithDefault(k string) func(defaultValue bool) bool {
	return func(defaultValue bool) bool {
		if s := Var(k); s != "" {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return true
			}
			return b
		}
		return defaultValue
	}
}

// Bool returns a getter for a boolean variable that defaults to false.
func Bool(k string) func() bool {
	withDefault := BoolWithDefault(k)
	return func() bool {
		return withDefault(false)
	}
}

// String returns a getter for a string variable.
func String(s string) func() string {
	return func() string {
		return Var(s)
	}
}

// Uint returns a getter for an unsigned variable. Unparseable values log a
// warning and fall back to defaultValue.
func Uint(key string, defaultValue uint) func() uint {
	return func() uint {
		if s := Var(key); s != "" {
			if n, err := strconv.ParseUint(s, 10, 64); err != nil {
				klog.Warningf("invalid environment variable %s=%q, using default %d", key, s, defaultValue)
			} else {
				return uint(n)
			}
		}
		return defaultValue
	}
}

var (
	// QueryChunk is the attention query block size.
	QueryChunk = Uint("BLOCKWISE_QUERY_CHUNK", 512)
	// KeyChunk is the attention key/value block size.
	KeyChunk = Uint("BLOCKWISE_KEY_CHUNK", 1024)
	// LossChunk is the loss aggregator block size.
	LossChunk = Uint("BLOCKWISE_LOSS_CHUNK", 1024)
	// NumWorkers bounds the goroutines used across query blocks. 0 means one per CPU.
	NumWorkers = Uint("BLOCKWISE_NUM_WORKERS", 0)
	// Debug enables verbose logging.
	Debug = Bool("BLOCKWISE_DEBUG")

	policy = String("BLOCKWISE_POLICY")
)

// Policy returns the recompute policy named by BLOCKWISE_POLICY. Unknown
// names log a warning and yield NothingSaveable.
func Policy() remat.Policy {
	p, err := remat.ParsePolicy(policy())
	if err != nil {
		klog.Warningf("BLOCKWISE_POLICY: %v, using %s", err, remat.NothingSaveable)
		return remat.NothingSaveable
	}
	return p
}

// Parallel returns the fan-out configuration implied by BLOCKWISE_NUM_WORKERS.
func Parallel() parallel.Config {
	cfg := parallel.DefaultConfig()
	if n := NumWorkers(); n > 0 {
		cfg.NumWorkers = int(n) //nolint:gosec // G115: worker counts are small.
		cfg.Enabled = n > 1
	}
	return cfg
}

// EnvVar describes one variable for `blockwise env`.
type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// AsMap returns every variable with its current value.
func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"BLOCKWISE_QUERY_CHUNK": {"BLOCKWISE_QUERY_CHUNK", QueryChunk(), "Query positions per attention block (default 512)"},
		"BLOCKWISE_KEY_CHUNK":   {"BLOCKWISE_KEY_CHUNK", KeyChunk(), "Key positions per attention block (default 1024)"},
		"BLOCKWISE_LOSS_CHUNK":  {"BLOCKWISE_LOSS_CHUNK", LossChunk(), "Rows per loss block (default 1024)"},
		"BLOCKWISE_NUM_WORKERS": {"BLOCKWISE_NUM_WORKERS", NumWorkers(), fmt.Sprintf("Worker goroutines (default %d)", runtime.NumCPU())},
		"BLOCKWISE_POLICY":      {"BLOCKWISE_POLICY", Policy(), "Recompute policy passed to the chunk strategy"},
		"BLOCKWISE_DEBUG":       {"BLOCKWISE_DEBUG", Debug(), "Show additional debug information (e.g. BLOCKWISE_DEBUG=1)"},
	}
}

// Values returns every variable's current value as a string.
func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}
