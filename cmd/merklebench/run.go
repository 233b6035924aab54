package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/datatrails/go-datatrails-common/logger"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/forestrie/go-merklebench/bench"
	"github.com/forestrie/go-merklebench/checkpoint"
	"github.com/forestrie/go-merklebench/nodestore"
)

const (
	checkpointIssuer  = "merklebench"
	checkpointSubject = "merklebench-run"
)

func runBench(ctx context.Context, out io.Writer, cfg settings, req runRequest) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	runID := uuid.NewString()
	log := logger.Sugar.WithServiceName("merklebench")
	log.Infof("run %s: %s [%d, %d) on %s store %s", runID, req.Kind, req.Start, req.End, cfg.Backend, req.StorePath)

	store, err := openStore(req.StorePath, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := store.Close(); err == nil {
			err = closeErr
		}
	}()

	acc, err := openEngine(req.Kind, store, cfg, log)
	if err != nil {
		return err
	}

	var metrics *bench.Metrics
	if cfg.MetricsAddr != "" {
		var shutdown func()
		metrics, shutdown = serveMetrics(cfg.MetricsAddr, log)
		defer shutdown()
	}

	report, err := bench.Run(ctx, acc, bench.Config{
		Start:       req.Start,
		End:         req.End,
		Prove:       cfg.Prove,
		CommitEvery: cfg.CommitEvery,
		BatchSize:   cfg.BatchSize,
		Workload:    bench.NewWorkload(cfg.Seed),
		Flusher:     store,
		Log:         log,
		Metrics:     metrics,
	})
	if report != nil {
		printReport(out, report, store)
	}
	if err != nil {
		return err
	}

	if cfg.CheckpointKey != "" {
		if err = signCheckpoint(cfg, store, acc, runID); err != nil {
			return err
		}
		fmt.Fprintf(out, "checkpoint signed for %s size %d\n", acc.Kind(), acc.Size())
	}
	return nil
}

func serveMetrics(addr string, log logger.Logger) (*bench.Metrics, func()) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := bench.NewMetrics(reg)

	srv := &http.Server{
		Addr:              addr,
		Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("metrics server on %s: %v", addr, err)
		}
	}()
	log.Infof("serving metrics on %s", addr)

	return metrics, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func signCheckpoint(cfg settings, store *nodestore.Store, acc bench.Accumulator, runID string) error {
	key, err := checkpoint.LoadOrCreateKey(cfg.CheckpointKey)
	if err != nil {
		return err
	}
	coseSigner, err := checkpoint.NewCoseSigner(key)
	if err != nil {
		return err
	}
	codec, err := checkpoint.NewCodec()
	if err != nil {
		return err
	}
	root := acc.Root()
	state := checkpoint.State{
		Engine:        string(acc.Kind()),
		Size:          acc.Size(),
		Root:          root[:],
		Timestamp:     time.Now().UnixMilli(),
		RunID:         runID,
		HashAlgorithm: string(acc.Hasher().Algorithm()),
		Depth:         depthOf(acc),
	}
	msg, err := checkpoint.NewSigner(checkpointIssuer, codec).Sign1(
		coseSigner, filepath.Base(cfg.CheckpointKey), &key.PublicKey, checkpointSubject, state, nil)
	if err != nil {
		return err
	}
	return checkpoint.Save(store, string(acc.Kind()), msg)
}
