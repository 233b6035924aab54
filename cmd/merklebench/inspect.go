package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/datatrails/go-datatrails-common/logger"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/forestrie/go-merklebench/bench"
	"github.com/forestrie/go-merklebench/checkpoint"
	"github.com/forestrie/go-merklebench/mmr"
	"github.com/forestrie/go-merklebench/nodehash"
)

var (
	ErrNoCheckpoint = errors.New("no checkpoint stored")
	ErrInconsistent = errors.New("checkpoint is not consistent with the store")
)

func newInspectCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <mmr|smt> <store_path>",
		Short: "Print an accumulator's state and verify its stored checkpoint",
		Long: `Reopens the accumulator in store_path and prints its size and root. If a
checkpoint was signed by a previous run, its root is recomputed at the signed
size and the signature verified, with the --checkpoint-key public key if given
and otherwise with the key embedded in the checkpoint.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadSettings(v)
			if err != nil {
				return err
			}
			kind, err := bench.ParseKind(args[0])
			if err != nil {
				return err
			}
			return inspect(cmd.OutOrStdout(), cfg, kind, args[1])
		},
	}
}

func inspect(out io.Writer, cfg settings, kind bench.Kind, path string) (err error) {
	log := logger.Sugar.WithServiceName("merklebench")

	store, err := openStore(path, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := store.Close(); err == nil {
			err = closeErr
		}
	}()

	acc, err := openEngine(kind, store, cfg, log)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "engine:   %s\n", acc.Kind())
	fmt.Fprintf(out, "size:     %s\n", humanize.Comma(int64(acc.Size())))
	fmt.Fprintf(out, "root:     %s\n", acc.Root())
	switch a := acc.(type) {
	case *bench.SMT:
		fmt.Fprintf(out, "depth:    %d\n", a.Tree().Depth())
	case *bench.MMR:
		if base, ok := a.Base(); ok {
			fmt.Fprintf(out, "base:     %d\n", base)
		}
	}

	msg, ok, err := checkpoint.Load(store, string(kind))
	if err != nil {
		return err
	}
	if !ok {
		if cfg.CheckpointKey != "" {
			return fmt.Errorf("%w for %s in %s", ErrNoCheckpoint, kind, path)
		}
		fmt.Fprintln(out, "checkpoint: none")
		return nil
	}

	state, err := verifyCheckpoint(cfg, acc, msg)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "checkpoint: verified, size %s, run %s, signed %s\n",
		humanize.Comma(int64(state.Size)), state.RunID, humanize.Time(time.UnixMilli(state.Timestamp)))

	if m, ok := acc.(*bench.MMR); ok {
		if err = checkConsistent(m.Accumulator(), state); err != nil {
			return err
		}
		fmt.Fprintf(out, "consistent: %s leaves appended since the checkpoint\n",
			humanize.Comma(int64(m.Size()-state.Size)))
	}
	return nil
}

// checkConsistent proves the current mmr only appended to the checkpointed
// one.
func checkConsistent(acc *mmr.Accumulator, state checkpoint.State) error {
	proof, err := acc.ProveConsistency(state.Size, acc.LeafCount())
	if err != nil {
		return err
	}
	peaks, err := acc.PeaksAt(state.Size)
	if err != nil {
		return err
	}
	rootA, err := nodehash.DigestFromBytes(state.Root)
	if err != nil {
		return err
	}
	if !mmr.VerifyConsistency(acc.Hasher(), proof, peaks, rootA, acc.Root()) {
		return fmt.Errorf("%w: mmr at %d leaves is not a prefix of the current mmr", ErrInconsistent, state.Size)
	}
	return nil
}

// verifyCheckpoint restores the detached root from the accumulator at the
// signed size and checks the signature.
func verifyCheckpoint(cfg settings, acc bench.Accumulator, msg []byte) (checkpoint.State, error) {
	codec, err := checkpoint.NewCodec()
	if err != nil {
		return checkpoint.State{}, err
	}
	signed, state, err := checkpoint.Decode(codec, msg)
	if err != nil {
		return checkpoint.State{}, err
	}
	root, err := rootAt(acc, state.Size)
	if err != nil {
		return checkpoint.State{}, err
	}
	state.Root = root[:]

	if cfg.CheckpointKey == "" {
		return state, checkpoint.VerifyEmbedded(codec, signed, state, nil)
	}
	key, err := checkpoint.LoadKey(cfg.CheckpointKey)
	if err != nil {
		return checkpoint.State{}, err
	}
	return state, checkpoint.VerifyWithKey(codec, msg, &key.PublicKey, state, nil)
}
