package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/nxcp/internal/observability"
	"github.com/danmuck/nxcp/internal/protocol"
	"github.com/danmuck/nxcp/internal/protocol/session"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML config file")
	in := flag.String("in", "-", "capture file to decode, - for stdin")
	listen := flag.String("listen", "", "accept one TCP connection on this address instead of reading -in")
	metricsAddr := flag.String("metrics", "", "serve prometheus metrics on this address")
	flag.Parse()

	logger := observability.InitLogger("nxcpdump")

	cfg := defaultDumpConfig()
	if *configPath != "" {
		var err error
		if cfg, err = loadDumpConfig(*configPath); err != nil {
			logger.Error().Err(err).Msg("config")
			os.Exit(1)
		}
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *in, *listen, logger); err != nil {
		logger.Error().Err(err).Msg("nxcpdump failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg dumpConfig, in, listen string, logger zerolog.Logger) error {
	src, err := openSource(ctx, in, listen, logger)
	if err != nil {
		return err
	}
	defer src.Close()

	ctx, cancel := context.WithCancel(ctx)
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		n, err := dump(src, cfg, os.Stdout, logger)
		logger.Info().Int("messages", n).Msg("stream finished")
		return err
	})
	g.Go(func() error {
		// Unblocks a pending read when interrupted.
		<-ctx.Done()
		return src.Close()
	})

	if cfg.MetricsAddr != "" {
		observability.RegisterMetrics()
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			logger.Info().Str("addr", cfg.MetricsAddr).Msg("serving metrics")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	if errors.Is(err, os.ErrClosed) || errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func openSource(ctx context.Context, in, listen string, logger zerolog.Logger) (io.ReadCloser, error) {
	if listen != "" {
		var lc net.ListenConfig
		ln, err := lc.Listen(ctx, "tcp", listen)
		if err != nil {
			return nil, fmt.Errorf("listen: %w", err)
		}
		defer ln.Close()
		logger.Info().Str("addr", ln.Addr().String()).Msg("waiting for connection")
		stop := context.AfterFunc(ctx, func() { ln.Close() })
		defer stop()
		conn, err := ln.Accept()
		if err != nil {
			return nil, fmt.Errorf("accept: %w", err)
		}
		logger.Info().Str("peer", conn.RemoteAddr().String()).Msg("connection accepted")
		return conn, nil
	}
	if in == "" || in == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(in)
	if err != nil {
		return nil, fmt.Errorf("open capture: %w", err)
	}
	return f, nil
}

// dump decodes messages from src and writes their text form to out until the
// stream ends. A stream ending on a message boundary is not an error.
func dump(src io.Reader, cfg dumpConfig, out io.Writer, logger zerolog.Logger) (int, error) {
	r, err := session.NewReceiver(src, cfg.Session, session.WithLogger(logger), session.WithMetrics())
	if err != nil {
		return 0, err
	}
	r.SetCipher(cfg.Cipher)

	n := 0
	for {
		msg, err := r.ReceiveMessage()
		if err != nil {
			if errors.Is(err, protocol.ErrSessionClosed) && errors.Is(err, io.EOF) && r.Buffered() == 0 {
				return n, nil
			}
			return n, err
		}
		n++
		if _, err := io.WriteString(out, msg.Dump()); err != nil {
			return n, err
		}
	}
}
