package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/born-ml/blockwise/internal/envconfig"
	"github.com/born-ml/blockwise/internal/ffn"
	"github.com/born-ml/blockwise/internal/rng"
	"github.com/born-ml/blockwise/internal/safetensors"
	"github.com/born-ml/blockwise/internal/tensor"
)

type transformOptions struct {
	shape   string
	dtype   string
	hidden  int
	chunk   int
	dropout float64
	seed    uint64
	output  string
	check   bool
}

func newTransformCmd() *cobra.Command {
	var opts transformOptions
	cmd := &cobra.Command{
		Use:   "transform",
		Short: "Apply a feed-forward block to a random sequence, one chunk at a time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTransform(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.shape, "shape", "1,1024,256", "batch,seq,features")
	f.StringVar(&opts.dtype, "dtype", "float32", "storage type (float32, float16, bfloat16)")
	f.IntVar(&opts.hidden, "hidden", 1024, "hidden width of the feed-forward block")
	f.IntVar(&opts.chunk, "chunk", 128, "positions per block")
	f.Float64Var(&opts.dropout, "dropout", 0, "dropout probability inside the block")
	f.Uint64Var(&opts.seed, "seed", 0, "random seed")
	f.StringVarP(&opts.output, "output", "o", "", "safetensors file to write the output to")
	f.BoolVar(&opts.check, "check", false, "compare against running the whole sequence as one block")
	return cmd
}

func runTransform(cmd *cobra.Command, opts transformOptions) error {
	shape, err := parseShape(opts.shape, 3)
	if err != nil {
		return err
	}
	dtype, err := tensor.ParseDataType(opts.dtype)
	if err != nil {
		return err
	}

	mlp := ffn.NewMLP(shape[2], opts.hidden, dtype, opts.seed)
	mlp.DropProbability = opts.dropout
	x := tensor.Randn(shape, dtype, opts.seed+1)
	key := rng.NewKey(opts.seed)

	r := ffn.Runner{
		ChunkSize:     chunkFlag(cmd, "chunk", opts.chunk, shape[1]),
		Deterministic: opts.dropout == 0,
		Policy:        envconfig.Policy(),
		MaxWorkers:    envconfig.Parallel().NumWorkers,
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	out, err := r.Run(ctx, mlp, x, key)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "output %v %s in %s\n", out.Shape(), out.DType(), time.Since(start).Round(time.Microsecond))

	if opts.check {
		whole := r
		whole.ChunkSize = shape[1]
		ref, err := whole.Run(ctx, mlp, x, key)
		if err != nil {
			return err
		}
		diff, err := tensor.MaxAbsDiff(ref, out)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "max |chunked - whole| = %.3g\n", diff)
	}

	if opts.output != "" {
		return safetensors.Write(opts.output, map[string]*tensor.Tensor{"out": out}, nil, nil)
	}
	return nil
}
