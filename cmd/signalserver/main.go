// signalserver runs the signal publish/subscribe server: the TCP protocol
// listener, optional demo and host-metrics producers, and the optional
// Prometheus and WebSocket relay HTTP endpoints.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/signal-pubsub/server/internal/config"
	"github.com/signal-pubsub/server/internal/feed"
	"github.com/signal-pubsub/server/internal/metrics"
	"github.com/signal-pubsub/server/internal/produce/demo"
	"github.com/signal-pubsub/server/internal/produce/hostmetrics"
	"github.com/signal-pubsub/server/internal/relay"
	"github.com/signal-pubsub/server/internal/server"
	sig "github.com/signal-pubsub/server/internal/signal"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	port := flag.Int("port", 0, "Override server port")
	demoMode := flag.Bool("demo", false, "Run the synthetic random-walk producer")
	flag.Parse()

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}
	if *demoMode {
		cfg.Demo.Enabled = true
	}

	metricsReg := metrics.NewRegistry()
	feedHub := feed.NewHub()

	srv := server.New(cfg.Queue.Capacity,
		server.WithMetrics(metricsReg),
		server.WithFeed(feedHub),
		server.WithAliveInterval(cfg.Dispatcher.AliveInterval),
	)

	seed := []sig.Signal{
		{ID: 1, Type: sig.Discrete, Value: 0},
		{ID: 2, Type: sig.Analog, Value: 0},
	}
	srv.Seed(seed)

	if err := srv.Start(cfg.Server.Addr()); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Demo.Enabled {
		log.Println("Starting synthetic producer")
		gen := demo.NewGenerator(srv, seed)
		go gen.Run(ctx, cfg.Demo.Interval)
	}

	if cfg.Hostmetrics.Enabled {
		log.Println("Starting host-metrics producer")
		prod := hostmetrics.NewProducer(srv)
		go prod.Run(ctx, cfg.Hostmetrics.Interval)
	}

	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metricsReg.Handler())
		go func() {
			log.Printf("Metrics listening on %s", cfg.Metrics.Addr)
			if err := http.ListenAndServe(cfg.Metrics.Addr, mux); err != nil {
				log.Printf("metrics server stopped: %v", err)
			}
		}()
	}

	if cfg.Relay.Enabled {
		rl := relay.NewRelay(srv, feedHub)
		mux := http.NewServeMux()
		mux.Handle("/relay", rl)
		go func() {
			log.Printf("Relay listening on %s", cfg.Relay.Addr)
			if err := http.ListenAndServe(cfg.Relay.Addr, mux); err != nil {
				log.Printf("relay server stopped: %v", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("Shutting down...")
	cancel()
	srv.Stop()
}
