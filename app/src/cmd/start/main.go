package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	grpcapi "head-monitor/app/src/api/grpc"
	httpapi "head-monitor/app/src/api/http"
	"head-monitor/app/src/domain"
	"head-monitor/app/src/infra"

	"google.golang.org/grpc"
)

func main() {
	if err := newRootCommand(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func run(parent context.Context, cfg infra.Config, out io.Writer) error {
	ctx, stop := context.WithCancel(parent)
	defer stop()

	app, cleanup, err := initApplication(ctx, cfg, out)
	if err != nil {
		return fmt.Errorf("failed to initialise application: %w", err)
	}
	defer cleanup()

	logger := app.Logger

	infra.LogConfig(ctx, logger, cfg)
	if err := infra.StartMetricsServer(logger, cfg.MetricsPort); err != nil {
		return err
	}
	logger.Printf(ctx, "metrics server listening on :%s", cfg.MetricsPort)

	httpServer := newHTTPServer(cfg.HTTPPort, app.Status, app.Delays, logger)
	httpListener, err := net.Listen("tcp", httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on HTTP port %s: %w", cfg.HTTPPort, err)
	}

	grpcServer := grpcapi.NewServer(app.Health, logger)
	grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCPort))
	if err != nil {
		_ = httpListener.Close()
		return fmt.Errorf("failed to listen on gRPC port %s: %w", cfg.GRPCPort, err)
	}

	if err := app.Supervisor.Start(ctx); err != nil {
		_ = httpListener.Close()
		_ = grpcListener.Close()
		return err
	}
	logger.Printf(ctx, "started %d monitors", len(app.Supervisor.Monitors()))

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		app.Health.Shutdown()
		if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf(ctx, "HTTP server shutdown error: %v", err)
		}
		grpcServer.GracefulStop()
	}()

	serverErrs := make(chan error, 2)
	var serverGroup sync.WaitGroup

	serverGroup.Add(1)
	go func() {
		defer serverGroup.Done()
		logger.Printf(ctx, "HTTP server listening on %s", httpListener.Addr())
		if err := httpServer.Serve(httpListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrs <- fmt.Errorf("http server: %w", err)
		}
	}()

	serverGroup.Add(1)
	go func() {
		defer serverGroup.Done()
		logger.Printf(ctx, "gRPC server listening on %s", grpcListener.Addr())
		if err := grpcServer.Serve(grpcListener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			serverErrs <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-serverErrs:
	}

	stop()
	app.Supervisor.Wait()
	serverGroup.Wait()

	if serveErr != nil {
		logger.Errorf(ctx, "server error: %v", serveErr)
		return serveErr
	}

	logger.Println(ctx, "server stopped")
	return nil
}

func newHTTPServer(port string, status domain.StatusReader, delays domain.DelayArchive, logger *infra.Logger) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%s", port),
		Handler:           httpapi.NewServer(status, delays, logger),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
