// Package main implements fakerelay, a recording, fanning-out relay
// endpoint for exercising relay transport clients by hand. It accepts
// WebSocket connections, decodes every frame, tracks subscriptions, and
// fans publishes out to subscribed connections, including the publisher.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/relaywire/relay-client-go/internal/relaytest"
)

var (
	flagAddr        = flag.String("addr", "127.0.0.1:19800", "listen address")
	flagFanout      = flag.Bool("fanout", true, "fan out publishes to subscribed connections")
	flagDebug       = flag.Bool("debug", false, "log every frame at debug level")
	flagStats       = flag.Duration("stats-interval", 10*time.Second, "frame/connection stats logging interval (0 disables)")
	flagAnnounce    = flag.String("announce", "", "publish this payload on topic 'announce' to every connection on an interval")
	flagAnnounceIvl = flag.Duration("announce-interval", 5*time.Second, "interval for -announce broadcasts")
)

func newLogger(debug bool) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	if debug {
		config = zap.NewDevelopmentConfig()
	}
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.OutputPaths = []string{"stdout"}
	return config.Build()
}

func main() {
	flag.Parse()

	logger, err := newLogger(*flagDebug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fakerelay: logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	server := relaytest.NewServer().
		SetLogger(logger).
		SetFanout(*flagFanout)
	if err := server.StartAt(*flagAddr); err != nil {
		logger.Fatal("fakerelay: listen failed", zap.String("addr", *flagAddr), zap.Error(err))
	}

	logger.Info("fakerelay: listening",
		zap.String("addr", server.Address()),
		zap.String("url", server.URL()),
		zap.Bool("fanout", *flagFanout))

	done := make(chan struct{})

	if *flagStats > 0 {
		go func() {
			ticker := time.NewTicker(*flagStats)
			defer ticker.Stop()
			for {
				select {
				case <-done:
					return
				case <-ticker.C:
					logger.Info("fakerelay: stats",
						zap.Int("connections", server.ConnCount()),
						zap.Int("frames", len(server.Frames())),
						zap.Int("requests", len(server.Requests())))
				}
			}
		}()
	}

	if *flagAnnounce != "" {
		go func() {
			ticker := time.NewTicker(*flagAnnounceIvl)
			defer ticker.Stop()
			for {
				select {
				case <-done:
					return
				case <-ticker.C:
					server.Broadcast(relaytest.Frame{
						Topic:   "announce",
						Type:    relaytest.TypePublish,
						Payload: *flagAnnounce,
					})
				}
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("fakerelay: shutting down", zap.String("signal", sig.String()))
	close(done)
	server.Close()
}

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "fakerelay: a recording WebSocket relay endpoint for client testing\n\n")
		fmt.Fprintf(os.Stderr, "Usage: %s [flags]\n\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
}
