// Command blockcache-bench drives a random read/write workload
// through a block cache and verifies the device afterwards.
package main

import (
	"context"
	"encoding/binary"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rodaine/table"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/djdv/go-blockcache"
	"github.com/djdv/go-blockcache/device"
	"github.com/djdv/go-blockcache/metrics"
)

type config struct {
	blockSize  int
	capacity   int
	blocks     int64
	ops        int
	workers    int
	writeRatio float64
	rate       float64
	diskfile   string
	goose      bool
	metrics    string
	dumpStats  bool
	seed       int64
	debug      bool
}

// written tracks which blocks have been written and by which op,
// so the device can be checked after the final flush.
type written struct {
	mu     sync.Mutex
	blocks *roaring.Bitmap
	stamps map[uint32]uint64
}

func (w *written) record(id uint32, stamp uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.blocks.Add(id)
	w.stamps[id] = stamp
}

func main() {
	var cfg config
	flag.IntVar(&cfg.blockSize, "blocksize", 4096, "block size in bytes")
	flag.IntVar(&cfg.capacity, "capacity", 256, "cache capacity in blocks")
	flag.Int64Var(&cfg.blocks, "blocks", 4096, "device size in blocks")
	flag.IntVar(&cfg.ops, "ops", 100000, "total operations")
	flag.IntVar(&cfg.workers, "workers", 4, "concurrent workers")
	flag.Float64Var(&cfg.writeRatio, "writes", 0.3, "fraction of operations that are writes")
	flag.Float64Var(&cfg.rate, "rate", 0, "operations per second (0 for unlimited)")
	flag.StringVar(&cfg.diskfile, "disk", "", "disk image (empty for memory)")
	flag.BoolVar(&cfg.goose, "goose", false, "use a goose disk (block size is fixed)")
	flag.StringVar(&cfg.metrics, "metrics", "", "serve Prometheus metrics on this address")
	flag.BoolVar(&cfg.dumpStats, "stats", false, "dump device latency stats to stderr at end")
	flag.Int64Var(&cfg.seed, "seed", 1, "workload random seed")
	flag.BoolVar(&cfg.debug, "debug", false, "log every cache operation")
	flag.Parse()

	if err := run(cfg); err != nil {
		log.Fatal(err)
	}
}

func run(cfg config) error {
	if cfg.goose {
		cfg.blockSize = device.GooseBlockSize
	}
	if cfg.blocks > 1<<32 {
		return fmt.Errorf("-blocks must not exceed %d", int64(1)<<32)
	}
	if cfg.workers < 1 {
		return errors.New("-workers must be at least 1")
	}
	if cfg.blockSize < 8 {
		return errors.New("-blocksize must be at least 8 bytes")
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	dev, err := openDevice(cfg)
	if err != nil {
		return fmt.Errorf("could not create disk: %w", err)
	}
	timed := device.NewTimed(dev)

	level := slog.LevelInfo
	if cfg.debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	opts := []blockcache.Option{blockcache.WithLogger(logger)}
	if cfg.metrics != "" {
		observer, err := metrics.New(prometheus.DefaultRegisterer, "blockcache")
		if err != nil {
			return err
		}
		opts = append(opts, blockcache.WithObserver(observer))
		go serveMetrics(cfg.metrics, logger)
	}
	cache, err := blockcache.New(cfg.blockSize, cfg.capacity, timed, opts...)
	if err != nil {
		return err
	}
	defer cache.Close()

	record := &written{
		blocks: roaring.New(),
		stamps: make(map[uint32]uint64),
	}
	start := time.Now()
	if err := drive(ctx, cfg, cache, record); err != nil {
		return err
	}
	if err := cache.Flush(); err != nil {
		return err
	}
	elapsed := time.Since(start)
	logger.Info("workload complete",
		"elapsed", elapsed,
		"written", record.blocks.GetCardinality(),
	)
	writeCacheStats(os.Stdout, cache.Stats(), elapsed)
	if cfg.dumpStats {
		timed.WriteStats(os.Stderr)
	}
	return verify(timed, cfg.blockSize, record)
}

func openDevice(cfg config) (device.Device, error) {
	switch {
	case cfg.goose && cfg.diskfile == "":
		return device.NewGooseMem(cfg.blocks)
	case cfg.goose:
		return device.OpenGooseFile(cfg.diskfile, cfg.blocks)
	case cfg.diskfile == "":
		return device.NewMem(cfg.blockSize, cfg.blocks)
	default:
		return device.OpenFile(cfg.diskfile, cfg.blockSize, cfg.blocks)
	}
}

func serveMetrics(addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logger.Info("serving metrics", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server", "error", err)
	}
}

// drive splits cfg.ops between the workers.
// Every write stamps the block with its op number,
// which verify later compares against the device.
func drive(ctx context.Context, cfg config, cache *blockcache.Cache, record *written) error {
	var limiter *rate.Limiter
	if cfg.rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.rate), max(1, int(cfg.rate)))
	}
	var (
		group, groupCtx = errgroup.WithContext(ctx)
		perWorker       = cfg.ops / cfg.workers
		// Blocks are partitioned between workers, so the last
		// write to a block is also the last stamp recorded for it.
		span = cfg.blocks / int64(cfg.workers)
	)
	if span == 0 {
		return errors.New("-blocks must be at least -workers")
	}
	for worker := range cfg.workers {
		group.Go(func() error {
			var (
				rng   = rand.New(rand.NewSource(cfg.seed + int64(worker)))
				buf   = make([]byte, cfg.blockSize)
				first = int64(worker) * span
			)
			for op := range perWorker {
				if limiter != nil {
					if err := limiter.Wait(groupCtx); err != nil {
						return err
					}
				} else if err := groupCtx.Err(); err != nil {
					return err
				}
				id := first + rng.Int63n(span)
				if rng.Float64() >= cfg.writeRatio {
					if err := cache.Read(id, buf); err != nil {
						return err
					}
					continue
				}
				stamp := uint64(worker*perWorker+op) + 1
				binary.LittleEndian.PutUint64(buf, stamp)
				if err := cache.Write(id, buf); err != nil {
					return err
				}
				record.record(uint32(id), stamp)
			}
			return nil
		})
	}
	return group.Wait()
}

func verify(dev device.Device, blockSize int, record *written) error {
	var (
		buf      = make([]byte, blockSize)
		iterator = record.blocks.Iterator()
	)
	for iterator.HasNext() {
		id := iterator.Next()
		if err := dev.ReadBlock(int64(id), buf); err != nil {
			return err
		}
		got, want := binary.LittleEndian.Uint64(buf), record.stamps[id]
		if got != want {
			return fmt.Errorf("block %d: device has stamp %d, want %d", id, got, want)
		}
	}
	fmt.Printf("verified %d blocks\n", record.blocks.GetCardinality())
	return nil
}

func writeCacheStats(w io.Writer, stats blockcache.Stats, elapsed time.Duration) {
	tbl := table.New("stat", "value").WithWriter(w)
	tbl.AddRow("hits", stats.Hits)
	tbl.AddRow("misses", stats.Misses)
	tbl.AddRow("hit ratio", fmt.Sprintf("%0.3f", stats.HitRatio()))
	tbl.AddRow("evictions", stats.Evictions)
	tbl.AddRow("write-backs", stats.WriteBacks)
	tbl.AddRow("device reads", stats.DeviceReads)
	tbl.AddRow("syncs", stats.Syncs)
	tbl.AddRow("elapsed", elapsed.Round(time.Millisecond))
	tbl.Print()
}
