package main

import (
	"encoding/binary"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"github.com/seelmesh/seel"
	"github.com/seelmesh/seel/internal/logging"
	"github.com/seelmesh/seel/internal/phy"
	"github.com/seelmesh/seel/internal/powerdown"
	"github.com/seelmesh/seel/internal/sched"
)

func main() {
	app := &cli.App{
		Name:  "seel-snode",
		Usage: "run a SEEL sensor node",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "path to a YAML/JSON config file, layered over built-in defaults"},
			&cli.IntFlag{Name: "tdma-slot", Value: 0, Usage: "this node's TDMA slot, consulted only when the configured gate mode is tdma"},
			&cli.StringFlag{Name: "metrics-addr", Value: ":9101", Usage: "address to serve /metrics on"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "debug-level logging"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := seel.LoadConfig(c.String("config"))
	if err != nil {
		return err
	}

	logConfig := logging.DefaultConfig()
	if c.Bool("verbose") {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	metrics := seel.NewMetrics()
	registry := prometheus.NewRegistry()
	registry.MustRegister(seel.NewPrometheusCollector(metrics))
	obs := seel.NewMetricsObserver(metrics)

	// See the corresponding comment in cmd/seel-gnode: this repo ships
	// only the loopback phy.Radio, so a standalone seel-snode process
	// has no peers. cmd/seel-sim exercises the full join/forward flow
	// against the same interface.
	net := phy.NewNetwork()
	radio := net.Register(0)
	clock := sched.NewMonotonicClock()
	sleeper := powerdown.NewReal()

	sn := seel.NewSNODE(cfg, radio, clock, c.Int("tdma-slot"), sleeper, obs, logger, nil)
	sn.OnLoad = uptimeSampleLoader()
	sn.Start()

	logger.Info("snode starting", "metrics_addr", c.String("metrics-addr"))

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		if err := http.ListenAndServe(c.String("metrics-addr"), mux); err != nil {
			logger.Error("metrics server stopped", "err", err)
		}
	}()

	stop := make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		close(stop)
	}()

	sn.Scheduler().Run(stop)
	logger.Info("snode stopped")
	return nil
}

// uptimeSampleLoader is a placeholder OnLoad that reports the process
// uptime in seconds as a 4-byte big-endian payload every cycle, so a
// fresh deployment has some real bytes moving upstream before a host
// application supplies its own sensor-reading callback.
func uptimeSampleLoader() seel.OnLoad {
	start := time.Now()
	return func(buf []byte, cb seel.CBInfo) bool {
		binary.BigEndian.PutUint32(buf, uint32(time.Since(start).Seconds()))
		return true
	}
}
