package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/datatrails/go-datatrails-common/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/forestrie/go-merklebench/bench"
	"github.com/forestrie/go-merklebench/nodehash"
	"github.com/forestrie/go-merklebench/nodestore"
	"github.com/forestrie/go-merklebench/smt"
)

const envPrefix = "MERKLEBENCH"

const (
	flagConfig        = "config"
	flagBackend       = "backend"
	flagHash          = "hash"
	flagDepth         = "depth"
	flagProve         = "prove"
	flagCommitEvery   = "commit-every"
	flagBatchSize     = "batch-size"
	flagSeed          = "seed"
	flagSyncWrites    = "sync-writes"
	flagLogLevel      = "log-level"
	flagMetricsAddr   = "metrics-addr"
	flagCheckpointKey = "checkpoint-key"
)

// settings is the resolved configuration: flags, then MERKLEBENCH_ prefixed
// environment variables, then the optional config file.
type settings struct {
	Backend       nodestore.Backend
	Hash          nodehash.Algorithm
	Depth         int
	DepthSet      bool
	Prove         bool
	CommitEvery   uint64
	BatchSize     uint64
	Seed          uint64
	SyncWrites    bool
	LogLevel      string
	MetricsAddr   string
	CheckpointKey string
}

func newRootCommand() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "merklebench <mmr|smt> <store_path> <start_index> <end_index>",
		Short: "Benchmark merkle mountain range and sparse merkle tree accumulators",
		Long: `Inserts the seeded outpoint for every index in [start_index, end_index) into
the chosen accumulator, timing each operation. The store at store_path is
created if needed; reopening it continues from the persisted state.`,
		Args:          cobra.ExactArgs(4),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(v)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadSettings(v)
			if err != nil {
				return err
			}
			req, err := parseRunArgs(args)
			if err != nil {
				return err
			}
			return runBench(cmd.Context(), cmd.OutOrStdout(), cfg, req)
		},
	}

	flags := cmd.PersistentFlags()
	flags.String(flagConfig, "", "Config file (yaml, json or toml) with the same keys as the flags")
	flags.String(flagBackend, string(nodestore.DefaultBackend), fmt.Sprintf("Node store backend, one of %v", nodestore.Backends))
	flags.String(flagHash, string(nodehash.Blake2b256), "Node hash, blake2b or sha256")
	flags.Int(flagDepth, smt.DefaultDepth, "Sparse merkle tree depth in bits, 1 to 256. An existing store keeps its own depth unless this is set")
	flags.String(flagLogLevel, "INFO", "Log level")
	flags.String(flagCheckpointKey, "", "PEM EC private key for signing (run) or verifying (inspect) checkpoints, created on first run if missing")

	local := cmd.Flags()
	local.Bool(flagProve, false, "Also generate and verify a proof after every insert")
	local.Uint64(flagCommitEvery, bench.DefaultCommitEvery, "Flush the store after this many inserts")
	local.Uint64(flagBatchSize, 0, "Also prove and verify every batch of this many inserted indices with one proof")
	local.Uint64(flagSeed, 0, "Workload seed")
	local.Bool(flagSyncWrites, true, "fsync every store flush (--sync-writes=false to skip)")
	local.String(flagMetricsAddr, "", "Serve prometheus metrics on this address while running, e.g. :9090")

	cobra.CheckErr(v.BindPFlags(flags))
	cobra.CheckErr(v.BindPFlags(local))

	cmd.AddCommand(newInspectCommand(v))
	return cmd
}

func initConfig(v *viper.Viper) error {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path := v.GetString(flagConfig); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	logger.New(v.GetString(flagLogLevel))
	return nil
}

func loadSettings(v *viper.Viper) (settings, error) {
	backend, err := nodestore.ParseBackend(v.GetString(flagBackend))
	if err != nil {
		return settings{}, err
	}
	alg, err := nodehash.ParseAlgorithm(v.GetString(flagHash))
	if err != nil {
		return settings{}, err
	}
	depth := v.GetInt(flagDepth)
	if depth < 1 || depth > smt.MaxDepth {
		return settings{}, fmt.Errorf("%w: %d", smt.ErrDepthRange, depth)
	}
	return settings{
		Backend:       backend,
		Hash:          alg,
		Depth:         depth,
		DepthSet:      v.IsSet(flagDepth),
		Prove:         v.GetBool(flagProve),
		CommitEvery:   v.GetUint64(flagCommitEvery),
		BatchSize:     v.GetUint64(flagBatchSize),
		Seed:          v.GetUint64(flagSeed),
		SyncWrites:    v.GetBool(flagSyncWrites),
		LogLevel:      v.GetString(flagLogLevel),
		MetricsAddr:   v.GetString(flagMetricsAddr),
		CheckpointKey: v.GetString(flagCheckpointKey),
	}, nil
}

type runRequest struct {
	Kind      bench.Kind
	StorePath string
	Start     uint64
	End       uint64
}

func parseRunArgs(args []string) (runRequest, error) {
	kind, err := bench.ParseKind(args[0])
	if err != nil {
		return runRequest{}, err
	}
	start, err := strconv.ParseUint(args[2], 10, 64)
	if err != nil {
		return runRequest{}, fmt.Errorf("start_index %q: %w", args[2], err)
	}
	end, err := strconv.ParseUint(args[3], 10, 64)
	if err != nil {
		return runRequest{}, fmt.Errorf("end_index %q: %w", args[3], err)
	}
	if end < start {
		return runRequest{}, fmt.Errorf("%w: [%d, %d)", bench.ErrIndexRange, start, end)
	}
	if end > bench.MaxIndex+1 {
		return runRequest{}, fmt.Errorf("%w: end_index %d exceeds %d", bench.ErrIndexRange, end, bench.MaxIndex+1)
	}
	return runRequest{Kind: kind, StorePath: args[1], Start: start, End: end}, nil
}
