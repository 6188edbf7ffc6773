// Package loss computes masked cross-entropy and top-1 accuracy over long
// token sequences without materializing a full (N × vocab) log-probability
// matrix.
package loss

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"k8s.io/klog/v2"

	"github.com/born-ml/blockwise/internal/chunk"
	"github.com/born-ml/blockwise/internal/remat"
	"github.com/born-ml/blockwise/internal/tensor"
)

// ErrConfig is returned (wrapped) for chunking, shape and target errors.
var ErrConfig = chunk.ErrConfig

// Epsilon floors the per-block valid count. A block with no valid positions
// therefore contributes (almost exactly) zero loss and accuracy but still
// counts as a block.
const Epsilon = 1e-10

// Result is the aggregated loss and accuracy.
type Result struct {
	Loss     float64
	Accuracy float64
}

// Contribution is what one block adds to the running sums.
type Contribution struct {
	LogProb  float64 // Σ_{valid>0} log p(target) / max(Σ valid, Epsilon)
	Accuracy float64 // Σ_{valid>0} [argmax == target] / max(Σ valid, Epsilon)
}

// Accumulator is the fold state across blocks. Fold returns a new value.
type Accumulator struct {
	LogProbSum  float64
	AccuracySum float64
	Blocks      int
}

// Fold adds one block contribution.
func (a Accumulator) Fold(c Contribution) Accumulator {
	return Accumulator{
		LogProbSum:  a.LogProbSum + c.LogProb,
		AccuracySum: a.AccuracySum + c.Accuracy,
		Blocks:      a.Blocks + 1,
	}
}

// Result returns -LogProbSum/Blocks and AccuracySum/Blocks.
func (a Accumulator) Result() Result {
	if a.Blocks == 0 {
		return Result{}
	}
	n := float64(a.Blocks)
	return Result{Loss: -a.LogProbSum / n, Accuracy: a.AccuracySum / n}
}

// Aggregator computes loss block by block.
type Aggregator struct {
	ChunkSize int
	Policy    remat.Policy
	Strategy  remat.Strategy
}

// Compute returns the blockwise loss and accuracy.
//
// logits is (N, vocab) or (batch, seq, vocab), flattened to N = batch·seq
// rows. targets holds one id in [0, vocab) per row. valid is nil (every row
// counts) or holds one weight per row, normally 0 or 1. A row enters the
// numerators only when its weight is positive; the weights themselves are
// summed into the denominator.
//
// The result is the mean over blocks of each block's masked mean, so it
// equals the full-batch masked mean only when every block has the same
// valid count.
func (g Aggregator) Compute(logits *tensor.Tensor, targets []int32, valid []float32) (Result, error) {
	rows, vocab, err := checkInputs(logits, targets, valid)
	if err != nil {
		return Result{}, err
	}
	plan, err := chunk.NewPlan(rows, g.ChunkSize)
	if err != nil {
		return Result{}, errors.WithMessage(err, "loss")
	}
	klog.V(2).Infof("chunked loss: %d rows, vocab %d, %d blocks", rows, vocab, plan.NumChunks())

	data := logits.Data()
	var acc Accumulator
	for _, r := range plan.Ranges() {
		c := remat.Apply(g.Strategy, g.Policy, func() Contribution {
			return blockContribution(data[r.Start*vocab:r.End*vocab], vocab, targets[r.Start:r.End], validRange(valid, r))
		})
		acc = acc.Fold(c)
	}
	return acc.Result(), nil
}

// Reference computes the full-batch masked mean cross-entropy and accuracy
// in one block.
func Reference(logits *tensor.Tensor, targets []int32, valid []float32) (Result, error) {
	_, vocab, err := checkInputs(logits, targets, valid)
	if err != nil {
		return Result{}, err
	}
	c := blockContribution(logits.Data(), vocab, targets, valid)
	return Accumulator{}.Fold(c).Result(), nil
}

// blockContribution is a pure function of one block of rows.
func blockContribution(logits []float32, vocab int, targets []int32, valid []float32) Contribution {
	row := make([]float64, vocab)
	var logProb, correct, count float64
	for i, target := range targets {
		w := 1.0
		if valid != nil {
			w = float64(valid[i])
		}
		for j, x := range logits[i*vocab : (i+1)*vocab] {
			row[j] = float64(x)
		}
		if w > 0 {
			logProb += row[target] - floats.LogSumExp(row)
			if floats.MaxIdx(row) == int(target) {
				correct++
			}
		}
		count += w
	}
	count = math.Max(count, Epsilon)
	return Contribution{LogProb: logProb / count, Accuracy: correct / count}
}

func validRange(valid []float32, r chunk.Range) []float32 {
	if valid == nil {
		return nil
	}
	return valid[r.Start:r.End]
}

func checkInputs(logits *tensor.Tensor, targets []int32, valid []float32) (rows, vocab int, err error) {
	if logits == nil {
		return 0, 0, errors.Wrap(ErrConfig, "logits are required")
	}
	s := logits.Shape()
	switch logits.Rank() {
	case 2:
		rows, vocab = s[0], s[1]
	case 3:
		rows, vocab = s[0]*s[1], s[2]
	default:
		return 0, 0, errors.Wrapf(ErrConfig, "logits must be (N, vocab) or (batch, seq, vocab), got %v", s)
	}
	if len(targets) != rows {
		return 0, 0, errors.Wrapf(ErrConfig, "got %d targets for %d logit rows", len(targets), rows)
	}
	if valid != nil && len(valid) != rows {
		return 0, 0, errors.Wrapf(ErrConfig, "got %d validity entries for %d logit rows", len(valid), rows)
	}
	for i, t := range targets {
		if t < 0 || int(t) >= vocab {
			return 0, 0, errors.Wrapf(ErrConfig, "target %d at row %d outside [0, %d)", t, i, vocab)
		}
	}
	return rows, vocab, nil
}
