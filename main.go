// main.go
// Application entry point: loads configuration, initializes logging and runs
// the game server until interrupted.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/erilali/bombnet/internal/api"
	"github.com/erilali/bombnet/internal/conn"
	"github.com/erilali/bombnet/internal/events"
	"github.com/erilali/bombnet/internal/hub"
	"github.com/erilali/bombnet/internal/lobby"
	"github.com/erilali/bombnet/internal/logger"
	"github.com/erilali/bombnet/internal/transport"
	"github.com/erilali/bombnet/internal/util"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

var configPath = flag.String("config", "bombnet.yaml", "Configuration file (JSON or YAML, optional)")

func main() {
	flag.Parse()

	config, err := util.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	logger.InitLogger(config.Log)
	serverLogger := logger.NewLogger("server")
	serverLogger.WithFields(map[string]interface{}{
		"port":        config.Port,
		"http_addr":   config.HTTPAddr,
		"min_players": config.MinPlayers,
		"level":       config.Log.Level,
	}).Info("Configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, config, serverLogger); err != nil {
		serverLogger.Fatalf("Server stopped: %v", err)
	}
	serverLogger.Info("Server shut down gracefully")
}

func run(ctx context.Context, config *util.Config, serverLogger *logger.Logger) error {
	nc, js := events.Connect(config.NatsURL, logger.NewLogger("events"))
	if nc != nil {
		defer nc.Close()
	}

	tcp, err := net.Listen("tcp", fmt.Sprintf(":%d", config.Port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", config.Port, err)
	}
	var wsOpts []transport.ListenerOption
	if len(config.AllowedOrigins) > 0 {
		wsOpts = append(wsOpts, transport.WithAllowedOrigins(config.AllowedOrigins...))
	}
	wsl := transport.NewListener("/ws", wsOpts...)

	var connOpts []conn.Option
	if config.HeartbeatInterval > 0 {
		connOpts = append(connOpts, conn.WithHeartbeat(config.HeartbeatInterval))
	}
	h := hub.New(transport.Merge(tcp, wsl),
		hub.WithConnOptions(connOpts...),
		hub.WithMirror(events.NewPublisher(js, logger.NewLogger("events"))),
	)

	srv := &http.Server{
		Addr:              config.HTTPAddr,
		Handler:           api.NewServer(h, api.WithNATS(nc, js), api.WithWebSocket(wsl)).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	l := lobby.New(h, lobby.Config{
		MinPlayers:   config.MinPlayers,
		RoundSeconds: config.RoundSeconds,
		Tick:         time.Second,
	}, logger.NewLogger("lobby"))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		serverLogger.Infof("HTTP server started at %s", config.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := l.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		serverLogger.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := h.DisconnectAll(); err != nil {
			serverLogger.Warnf("Some peers did not disconnect cleanly: %v", err)
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}
