// Package remat carries recompute (gradient checkpointing) policies through
// the blockwise kernels.
//
// The kernels never interpret a Policy. They only promise that every chunk
// step handed to a Strategy is a pure function of its declared inputs, which
// is what makes discarding and recomputing its intermediates valid under any
// policy an external differentiation engine chooses.
package remat

import (
	"strings"

	"github.com/pkg/errors"
)

// Policy names which intermediates of a chunk step may be kept for the
// reverse pass. It is an opaque token to this module.
type Policy string

// Known policies.
const (
	// EverythingSaveable keeps all intermediates (no recomputation).
	EverythingSaveable Policy = "everything_saveable"
	// NothingSaveable recomputes every intermediate.
	NothingSaveable Policy = "nothing_saveable"
	// DotsSaveable keeps only matrix-product results.
	DotsSaveable Policy = "checkpoint_dots"
	// DotsWithNoBatchDims keeps matrix products that have no batch dimensions.
	DotsWithNoBatchDims Policy = "checkpoint_dots_with_no_batch_dims"
)

// ParsePolicy validates a policy name. The empty string means NothingSaveable.
func ParsePolicy(name string) (Policy, error) {
	switch p := Policy(strings.TrimSpace(name)); p {
	case "":
		return NothingSaveable, nil
	case EverythingSaveable, NothingSaveable, DotsSaveable, DotsWithNoBatchDims:
		return p, nil
	default:
		return "", errors.Errorf("unknown recompute policy %q", name)
	}
}

// String implements fmt.Stringer.
func (p Policy) String() string {
	return string(p)
}

// Strategy evaluates chunk steps. An implementation may run a step once,
// several times, or record it for later replay; it must not change the
// step's inputs.
type Strategy interface {
	Run(policy Policy, step func())
}

// Direct runs each step exactly once.
type Direct struct{}

// Run calls step.
func (Direct) Run(_ Policy, step func()) {
	step()
}

// Replay runs each step Times+1 times, emulating a reverse pass that
// recomputes the forward intermediates. Results are unchanged only because
// steps are pure.
type Replay struct {
	Times int
}

// Run calls step 1+Times times.
func (r Replay) Run(_ Policy, step func()) {
	step()
	for i := 0; i < r.Times; i++ {
		step()
	}
}

// Apply evaluates step under s and returns its result. A nil strategy is
// treated as Direct.
func Apply[T any](s Strategy, policy Policy, step func() T) T {
	if s == nil {
		return step()
	}
	var out T
	s.Run(policy, func() { out = step() })
	return out
}
