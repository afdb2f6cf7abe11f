// Command xv6 boots one xv6go kernel instance: load the boot configuration,
// open the disk image as a VirtIO-style block device, wire up the console
// and metrics, register the user programs in internal/userprog, spawn init,
// and run every configured hart's scheduler loop until one of them fails.
//
// There is no bare-metal entry point to jump to (see SPEC_FULL.md §0): this
// is the hosted stand-in for the boot ROM handing control to _entry.S.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/go-logr/stdr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/kazukousen/xv6go/internal/blockdev"
	"github.com/kazukousen/xv6go/internal/console"
	"github.com/kazukousen/xv6go/internal/kconfig"
	"github.com/kazukousen/xv6go/internal/kernel"
	"github.com/kazukousen/xv6go/internal/klog"
	"github.com/kazukousen/xv6go/internal/plic"
	"github.com/kazukousen/xv6go/internal/userprog"
)

func main() {
	configPath := flag.String("config", "", "boot configuration TOML (defaults if empty)")
	metricsAddr := flag.String("metrics-addr", "", "address to serve /metrics and /healthz on (disabled if empty)")
	flag.Parse()

	if err := run(*configPath, *metricsAddr); err != nil {
		log.Fatalf("xv6: %v", err)
	}
}

func run(configPath, metricsAddr string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, unix.SIGTERM)
	defer stop()

	logger := klog.New("xv6")

	cfg := kconfig.Default()
	if configPath != "" {
		loaded, err := kconfig.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading boot config: %w", err)
		}
		cfg = loaded
	}
	logger.Info("boot config", "ncpu", cfg.NCPU, "disk", cfg.DiskImagePath, "bufferCacheSize", cfg.BufferCacheSize)

	dev, err := blockdev.Open(cfg.DiskImagePath, kernel.RootDev, diskBlocks(cfg), kernel.PageSize)
	if err != nil {
		return fmt.Errorf("opening disk image: %w", err)
	}
	defer dev.Close()

	irqCtrl := plic.New(16)
	uart := console.New(os.Stdout, irqCtrl)
	reg := prometheus.NewRegistry()
	metrics := kernel.NewMetrics(reg)

	k, err := kernel.New(kernel.KernelConfig{
		NCPU:            cfg.NCPU,
		BufferCacheSize: cfg.BufferCacheSize,
		RootDev:         kernel.RootDev,
	}, dev, uart, logger, metrics)
	if err != nil {
		return fmt.Errorf("constructing kernel: %w", err)
	}

	userprog.Register(k.Programs())

	k.OnFirstSchedule(func(x *kernel.Ctx) {
		logger.Info("init scheduled for the first time")
	})

	if _, err := k.Spawn("init", []string{"init"}); err != nil {
		return fmt.Errorf("spawning init: %w", err)
	}

	eg, egCtx := errgroup.WithContext(ctx)

	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		server := &http.Server{
			Addr:              metricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		eg.Go(func() error {
			logger.Info("serving metrics", "addr", metricsAddr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		eg.Go(func() error {
			<-egCtx.Done()
			return server.Shutdown(context.Background())
		})
	}

	// The CLINT-forwarded timer tick and the PLIC's external-interrupt
	// claim/complete loop (spec.md §4.6's first two dispatch branches),
	// both host-side goroutines standing in for real trap entries.
	eg.Go(func() error {
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-egCtx.Done():
				return nil
			case <-ticker.C:
				k.TimerInterrupt()
			}
		}
	})
	eg.Go(func() error {
		for {
			select {
			case <-egCtx.Done():
				return nil
			default:
			}
			k.ExternalInterrupt(irqCtrl)
			time.Sleep(time.Millisecond)
		}
	})

	// One scheduler loop per hart, supervised together: if any hart's loop
	// ever returns (it shouldn't — Scheduler runs forever), boot fails
	// atomically instead of silently running with a dead cpu.
	for _, c := range k.Cpus() {
		c := c
		eg.Go(func() error {
			logger.Info("hart scheduler starting", "cpu", c.ID())
			c.Scheduler(k)
			return fmt.Errorf("cpu %d: scheduler loop returned", c.ID())
		})
	}

	eg.Go(func() error {
		<-egCtx.Done()
		return ctx.Err()
	})

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// diskBlocks sizes the backing file to whatever kconfig says the log region
// plus a generous data region needs, when the image doesn't already exist
// with its own size (blockdev.Open only grows a short file, never shrinks
// one an existing mkfs run already sized).
func diskBlocks(cfg kconfig.Config) int {
	const dataBlocks = 4096
	return 2 + cfg.LogSizeBlocks + dataBlocks
}
