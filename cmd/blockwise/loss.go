package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/born-ml/blockwise/internal/envconfig"
	"github.com/born-ml/blockwise/internal/loss"
	"github.com/born-ml/blockwise/internal/remat"
	"github.com/born-ml/blockwise/internal/safetensors"
	"github.com/born-ml/blockwise/internal/tensor"
	"github.com/born-ml/blockwise/internal/tokenizer"
)

type lossOptions struct {
	input    string
	text     string
	encoding string
	rows     int
	vocab    int
	chunk    int
	seed     uint64
	policy   string
	check    bool
}

func newLossCmd() *cobra.Command {
	var opts lossOptions
	cmd := &cobra.Command{
		Use:   "loss",
		Short: "Compute blockwise cross-entropy and accuracy",
		Long: `Compute masked cross-entropy and top-1 accuracy block by block.

Logits come from "logits" in --input, or are random. Targets come from
"targets" (and the optional "valid" mask) in --input, or from tokenizing
--text as next-token targets.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLoss(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.input, "input", "i", "", "safetensors file with logits, targets[, valid]")
	f.StringVar(&opts.text, "text", "", "text to tokenize into next-token targets")
	f.StringVar(&opts.encoding, "encoding", tokenizer.EncodingCL100kBase, "tiktoken encoding for --text")
	f.IntVar(&opts.rows, "rows", 0, "rows of random logits (default: token count of --text)")
	f.IntVar(&opts.vocab, "vocab", 0, "vocabulary size of random logits (default: encoding vocabulary)")
	f.IntVar(&opts.chunk, "chunk", int(envconfig.LossChunk()), "rows per block (BLOCKWISE_LOSS_CHUNK)") //nolint:gosec // G115
	f.Uint64Var(&opts.seed, "seed", 0, "random seed for generated logits")
	f.StringVar(&opts.policy, "policy", string(envconfig.Policy()), "recompute policy (BLOCKWISE_POLICY)")
	f.BoolVar(&opts.check, "check", false, "also print the full-batch reference")
	return cmd
}

func runLoss(cmd *cobra.Command, opts lossOptions) error {
	logits, targets, valid, err := lossInputs(opts)
	if err != nil {
		return err
	}
	policy, err := remat.ParsePolicy(opts.policy)
	if err != nil {
		return err
	}

	rows := len(targets)
	agg := loss.Aggregator{ChunkSize: chunkFlag(cmd, "chunk", opts.chunk, rows), Policy: policy}
	res, err := agg.Compute(logits, targets, valid)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "loss %.6f accuracy %.4f (%d rows, blocks of %d)\n", res.Loss, res.Accuracy, rows, agg.ChunkSize)
	if opts.check {
		ref, err := loss.Reference(logits, targets, valid)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "reference loss %.6f accuracy %.4f\n", ref.Loss, ref.Accuracy)
	}
	return nil
}

func lossInputs(opts lossOptions) (logits *tensor.Tensor, targets []int32, valid []float32, err error) {
	if opts.input != "" {
		r, err := safetensors.Open(opts.input)
		if err != nil {
			return nil, nil, nil, err
		}
		defer r.Close()

		if logits, err = r.Tensor("logits"); err != nil {
			return nil, nil, nil, err
		}
		if opts.text == "" {
			if targets, err = r.Int32s("targets"); err != nil {
				return nil, nil, nil, err
			}
			if _, err := r.Info("valid"); err == nil {
				mask, err := r.Tensor("valid")
				if err != nil {
					return nil, nil, nil, err
				}
				valid = mask.Data()
			}
			return logits, targets, valid, nil
		}
	}

	if opts.text == "" {
		return nil, nil, nil, errors.New("either --input with targets or --text is required")
	}
	tok, err := tokenizer.NewTikToken(opts.encoding)
	if err != nil {
		return nil, nil, nil, err
	}
	ids, err := tok.Encode(opts.text)
	if err != nil {
		return nil, nil, nil, err
	}
	klog.V(1).Infof("tokenized %d bytes into %d %s tokens", len(opts.text), len(ids), tok.Name())

	rows, vocab := opts.rows, opts.vocab
	if logits != nil {
		rows = len(logits.Data()) / logits.Shape()[logits.Rank()-1]
	} else {
		if rows == 0 {
			rows = max(len(ids)-1, 1)
		}
		if vocab == 0 {
			vocab = tok.VocabSize()
		}
		logits = tensor.Randn(tensor.Shape{rows, vocab}, tensor.Float32, opts.seed)
	}
	targets, valid, err = tokenizer.Targets(ids, rows, 0)
	if err != nil {
		return nil, nil, nil, err
	}
	return logits, targets, valid, nil
}
