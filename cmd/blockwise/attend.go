package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/born-ml/blockwise/internal/attention"
	"github.com/born-ml/blockwise/internal/envconfig"
	"github.com/born-ml/blockwise/internal/remat"
	"github.com/born-ml/blockwise/internal/rng"
	"github.com/born-ml/blockwise/internal/safetensors"
	"github.com/born-ml/blockwise/internal/tensor"
)

type attendOptions struct {
	input         string
	output        string
	shape         string
	dtype         string
	queryChunk    int
	keyChunk      int
	causal        bool
	dropout       float64
	seed          uint64
	float32Logits bool
	policy        string
	check         bool
}

func newAttendCmd() *cobra.Command {
	var opts attendOptions
	cmd := &cobra.Command{
		Use:   "attend",
		Short: "Run blockwise attention on tensors q, k, v (and optional bias)",
		Long: `Run blockwise attention.

Inputs are read from a safetensors file holding "q", "k", "v" and optionally
"bias", or generated from --shape when --input is not given. The result is
written as "out" to --output.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAttend(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.input, "input", "i", "", "safetensors file with q, k, v[, bias]")
	f.StringVarP(&opts.output, "output", "o", "", "safetensors file to write the output to")
	f.StringVar(&opts.shape, "shape", "1,1024,8,64", "batch,seq,heads,head_dim for generated inputs")
	f.StringVar(&opts.dtype, "dtype", "float32", "storage type for generated inputs (float32, float16, bfloat16)")
	f.IntVar(&opts.queryChunk, "query-chunk", int(envconfig.QueryChunk()), "query block size (BLOCKWISE_QUERY_CHUNK)") //nolint:gosec // G115
	f.IntVar(&opts.keyChunk, "key-chunk", int(envconfig.KeyChunk()), "key block size (BLOCKWISE_KEY_CHUNK)")           //nolint:gosec // G115
	f.BoolVar(&opts.causal, "causal", false, "apply a causal mask")
	f.Float64Var(&opts.dropout, "dropout", 0, "attention dropout probability")
	f.Uint64Var(&opts.seed, "seed", 0, "random seed for generated inputs and dropout")
	f.BoolVar(&opts.float32Logits, "float32-logits", false, "compute scores in float32 for 16-bit inputs")
	f.StringVar(&opts.policy, "policy", string(envconfig.Policy()), "recompute policy (BLOCKWISE_POLICY)")
	f.BoolVar(&opts.check, "check", false, "compare against the full-matrix reference")
	return cmd
}

func runAttend(cmd *cobra.Command, opts attendOptions) error {
	q, k, v, bias, err := attendInputs(opts)
	if err != nil {
		return err
	}
	policy, err := remat.ParsePolicy(opts.policy)
	if err != nil {
		return err
	}

	cfg := attention.DefaultConfig()
	cfg.QueryChunkSize = chunkFlag(cmd, "query-chunk", opts.queryChunk, q.Shape()[1])
	cfg.KeyChunkSize = chunkFlag(cmd, "key-chunk", opts.keyChunk, k.Shape()[1])
	cfg.Causal = opts.causal
	cfg.DropProbability = opts.dropout
	cfg.Deterministic = opts.dropout == 0
	cfg.Key = rng.NewKey(opts.seed)
	cfg.Float32Logits = opts.float32Logits
	cfg.Policy = policy
	cfg.Parallel = envconfig.Parallel()

	start := time.Now()
	out, err := attention.Blockwise(q, k, v, bias, cfg)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	s := q.Shape()
	tile := uint64(s[0]*s[2]*cfg.QueryChunkSize*cfg.KeyChunkSize) * 4 //nolint:gosec // G115
	full := uint64(s[0]*s[2]*s[1]*k.Shape()[1]) * 4                   //nolint:gosec // G115
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "output %v %s in %s\n", out.Shape(), out.DType(), elapsed.Round(time.Microsecond))
	fmt.Fprintf(w, "blocks %d×%d, score tile %s (full matrix %s)\n",
		cfg.QueryChunkSize, cfg.KeyChunkSize, humanize.IBytes(tile), humanize.IBytes(full))

	if opts.check {
		ref, err := attention.Reference(q, k, v, bias, cfg)
		if err != nil {
			return errors.Wrap(err, "reference")
		}
		diff, err := tensor.MaxAbsDiff(ref, out)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "max |blockwise - reference| = %.3g\n", diff)
	}

	if opts.output != "" {
		if err := safetensors.Write(opts.output, map[string]*tensor.Tensor{"out": out}, nil,
			map[string]string{"causal": strconv.FormatBool(opts.causal)}); err != nil {
			return err
		}
		klog.V(1).Infof("wrote %s", opts.output)
	}
	return nil
}

func attendInputs(opts attendOptions) (q, k, v, bias *tensor.Tensor, err error) {
	if opts.input == "" {
		shape, err := parseShape(opts.shape, 4)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		dtype, err := tensor.ParseDataType(opts.dtype)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		klog.V(1).Infof("generating random q, k, v of shape %v (%s)", shape, dtype)
		return tensor.Randn(shape, dtype, opts.seed+1),
			tensor.Randn(shape, dtype, opts.seed+2),
			tensor.Randn(shape, dtype, opts.seed+3), nil, nil
	}

	r, err := safetensors.Open(opts.input)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	defer r.Close()

	loaded := make([]*tensor.Tensor, 3)
	for i, name := range []string{"q", "k", "v"} {
		if loaded[i], err = r.Tensor(name); err != nil {
			return nil, nil, nil, nil, err
		}
	}
	if _, err := r.Info("bias"); err == nil {
		if bias, err = r.Tensor("bias"); err != nil {
			return nil, nil, nil, nil, err
		}
		if bias.DType() != loaded[0].DType() {
			bias = bias.AsType(loaded[0].DType())
		}
	}
	return loaded[0], loaded[1], loaded[2], bias, nil
}

// chunkFlag clamps a defaulted chunk size to the sequence length; an
// explicitly set flag is passed through for validation.
func chunkFlag(cmd *cobra.Command, name string, value, seqLen int) int {
	if !cmd.Flags().Changed(name) && value > seqLen {
		return seqLen
	}
	return value
}

func parseShape(s string, rank int) (tensor.Shape, error) {
	parts := strings.Split(s, ",")
	if len(parts) != rank {
		return nil, errors.Errorf("shape %q: want %d comma-separated sizes", s, rank)
	}
	shape := make(tensor.Shape, rank)
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, errors.Wrapf(err, "shape %q", s)
		}
		shape[i] = n
	}
	return shape, shape.Validate()
}
