package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/datatrails/go-datatrails-common/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forestrie/go-merklebench/bench"
	"github.com/forestrie/go-merklebench/mmr"
	"github.com/forestrie/go-merklebench/nodehash"
	"github.com/forestrie/go-merklebench/nodestore"
	"github.com/forestrie/go-merklebench/smt"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	logger.New("NOOP")
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--log-level", "NOOP"))
	err := cmd.Execute()
	return out.String(), err
}

func lineValue(t *testing.T, out, label string) string {
	t.Helper()
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, label+":") {
			return strings.TrimSpace(strings.TrimPrefix(line, label+":"))
		}
	}
	t.Fatalf("no %q line in output:\n%s", label, out)
	return ""
}

func TestRunMMRThenResume(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "store")

	out, err := execute(t, "mmr", dir, "0", "64", "--prove", "--commit-every", "16")
	require.NoError(t, err)
	assert.Contains(t, out, "insert")
	assert.Contains(t, out, "verify")
	assert.Equal(t, "64", lineValue(t, out, "size"))
	whole := lineValue(t, out, "root")

	resumeDir := filepath.Join(t.TempDir(), "resumed")
	_, err = execute(t, "mmr", resumeDir, "0", "20")
	require.NoError(t, err)
	out, err = execute(t, "mmr", resumeDir, "20", "64")
	require.NoError(t, err)
	assert.Equal(t, whole, lineValue(t, out, "root"))

	// the root reported matches appending the workload directly
	hasher := nodehash.Default()
	store, err := nodestore.Open("", nodestore.WithBackend(nodestore.BackendMemory))
	require.NoError(t, err)
	defer store.Close()
	acc, err := mmr.New(store, hasher)
	require.NoError(t, err)
	w := bench.NewWorkload(0)
	for i := uint64(0); i < 64; i++ {
		p, err := w.Payload(i)
		require.NoError(t, err)
		_, _, err = acc.Append(p)
		require.NoError(t, err)
	}
	assert.Equal(t, acc.Root().String(), whole)
}

func TestRunSMTEveryBackend(t *testing.T) {
	var roots []string
	for _, backend := range []nodestore.Backend{nodestore.BackendBolt, nodestore.BackendBadger, nodestore.BackendLevelDB} {
		dir := filepath.Join(t.TempDir(), string(backend))
		out, err := execute(t, "smt", dir, "100", "130", "--backend", string(backend), "--hash", "sha256")
		require.NoError(t, err, string(backend))
		assert.Equal(t, "30", lineValue(t, out, "size"))
		roots = append(roots, lineValue(t, out, "root"))
	}
	assert.Equal(t, roots[0], roots[1])
	assert.Equal(t, roots[0], roots[2])
}

func TestCheckpointSignAndInspect(t *testing.T) {
	tmp := t.TempDir()
	dir := filepath.Join(tmp, "store")
	key := filepath.Join(tmp, "bench.pem")

	out, err := execute(t, "smt", dir, "0", "10", "--depth", "32", "--checkpoint-key", key)
	require.NoError(t, err)
	assert.Contains(t, out, "checkpoint signed for smt size 10")
	_, err = os.Stat(key)
	require.NoError(t, err)

	// more updates move the root on, the checkpoint still verifies at its size
	_, err = execute(t, "smt", dir, "10", "15", "--depth", "32")
	require.NoError(t, err)

	out, err = execute(t, "inspect", "smt", dir, "--depth", "32", "--checkpoint-key", key)
	require.NoError(t, err)
	assert.Equal(t, "15", lineValue(t, out, "size"))
	assert.Contains(t, out, "checkpoint: verified, size 10")

	out, err = execute(t, "inspect", "smt", dir, "--depth", "32")
	require.NoError(t, err)
	assert.Contains(t, out, "checkpoint: verified, size 10")

	// a key that did not sign it is refused
	other := filepath.Join(tmp, "other.pem")
	_, err = execute(t, "mmr", filepath.Join(tmp, "other-store"), "0", "1", "--checkpoint-key", other)
	require.NoError(t, err)
	_, err = execute(t, "inspect", "smt", dir, "--depth", "32", "--checkpoint-key", other)
	assert.Error(t, err)

	out, err = execute(t, "inspect", "mmr", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "checkpoint: none")
}

func TestHashIsPinnedToStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "store")
	_, err := execute(t, "mmr", dir, "0", "3")
	require.NoError(t, err)
	_, err = execute(t, "mmr", dir, "3", "4", "--hash", "sha256")
	assert.ErrorIs(t, err, ErrHashMismatch)
}

func TestRunMMRFromNonZeroStart(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "store")

	out, err := execute(t, "mmr", dir, "100", "200", "--prove")
	require.NoError(t, err)
	assert.Equal(t, "100", lineValue(t, out, "size"))

	out, err = execute(t, "inspect", "mmr", dir)
	require.NoError(t, err)
	assert.Equal(t, "100", lineValue(t, out, "size"))
	assert.Equal(t, "100", lineValue(t, out, "base"))

	// a range that does not follow on still appends and proves
	out, err = execute(t, "mmr", dir, "150", "160", "--prove")
	require.NoError(t, err)
	assert.Equal(t, "110", lineValue(t, out, "size"))
}

func TestRunBatchSize(t *testing.T) {
	for _, engine := range []string{"mmr", "smt"} {
		t.Run(engine, func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "store")
			out, err := execute(t, engine, dir, "7", "40", "--batch-size", "10", "--depth", "64")
			require.NoError(t, err)
			assert.Equal(t, "33", lineValue(t, out, "size"))
			assert.Contains(t, out, "prove_batch")
			assert.Contains(t, out, "verify_batch")
			assert.NotEmpty(t, lineValue(t, out, "proofs"))
		})
	}
}

func TestStoredDepthIsAdopted(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "store")
	_, err := execute(t, "smt", dir, "0", "5", "--depth", "32")
	require.NoError(t, err)

	out, err := execute(t, "smt", dir, "5", "8", "--prove")
	require.NoError(t, err)
	assert.Equal(t, "8", lineValue(t, out, "size"))

	out, err = execute(t, "inspect", "smt", dir)
	require.NoError(t, err)
	assert.Equal(t, "32", lineValue(t, out, "depth"))

	// an explicit depth must still match the store
	_, err = execute(t, "inspect", "smt", dir, "--depth", "64")
	assert.ErrorIs(t, err, smt.ErrDepthMismatch)

	out, err = execute(t, "inspect", "smt", filepath.Join(t.TempDir(), "fresh"))
	require.NoError(t, err)
	assert.Equal(t, "256", lineValue(t, out, "depth"))
}

func TestConfigSources(t *testing.T) {
	tmp := t.TempDir()

	cfgFile := filepath.Join(tmp, "bench.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("backend: badger\ndepth: 8\n"), 0o600))

	out, err := execute(t, "smt", filepath.Join(tmp, "file"), "0", "2", "--config", cfgFile)
	require.NoError(t, err)
	assert.Contains(t, out, "store:    badger")

	t.Run("env beats config file", func(t *testing.T) {
		t.Setenv("MERKLEBENCH_BACKEND", "leveldb")
		out, err := execute(t, "mmr", filepath.Join(tmp, "env"), "0", "2", "--config", cfgFile)
		require.NoError(t, err)
		assert.Contains(t, out, "store:    leveldb")

		out, err = execute(t, "mmr", filepath.Join(tmp, "flag"), "0", "2", "--config", cfgFile, "--backend", "bolt")
		require.NoError(t, err)
		assert.Contains(t, out, "store:    bolt")
	})
}

func TestArgumentErrors(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "store")
	for _, tt := range []struct {
		name string
		args []string
		want error
	}{
		{name: "engine", args: []string{"smt_live", dir, "0", "1"}, want: bench.ErrUnknownEngine},
		{name: "range", args: []string{"mmr", dir, "5", "1"}, want: bench.ErrIndexRange},
		{name: "backend", args: []string{"mmr", dir, "0", "1", "--backend", "rocksdb"}, want: nodestore.ErrUnknownBackend},
		{name: "hash", args: []string{"mmr", dir, "0", "1", "--hash", "md5"}, want: nodehash.ErrUnknownAlgorithm},
	} {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := execute(t, "mmr", dir, "zero", "1")
	assert.Error(t, err)
	_, err = execute(t, "mmr", dir)
	assert.Error(t, err)
}

func TestExitCodes(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "store")
	assert.Equal(t, 0, run([]string{"mmr", dir, "0", "3", "--log-level", "NOOP"}))
	assert.Equal(t, 1, run([]string{"mmr", dir, "1", "0", "--log-level", "NOOP"}))

	// a store path that is a regular file fails to open
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
	assert.Equal(t, 1, run([]string{"mmr", file, "0", "1", "--log-level", "NOOP"}))
	_, err := execute(t, "mmr", file, "0", "1")
	assert.ErrorIs(t, err, nodestore.ErrIO)
}

func TestInspectMMRConsistency(t *testing.T) {
	tmp := t.TempDir()
	dir := filepath.Join(tmp, "store")
	key := filepath.Join(tmp, "bench.pem")

	_, err := execute(t, "mmr", dir, "0", "10", "--checkpoint-key", key)
	require.NoError(t, err)
	_, err = execute(t, "mmr", dir, "10", "25")
	require.NoError(t, err)

	out, err := execute(t, "inspect", "mmr", dir, "--checkpoint-key", key)
	require.NoError(t, err)
	assert.Equal(t, "25", lineValue(t, out, "size"))
	assert.Contains(t, out, "checkpoint: verified, size 10")
	assert.Contains(t, out, "consistent: 15 leaves appended since the checkpoint")
}
