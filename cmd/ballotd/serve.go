package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"blind-voting/api"
	"blind-voting/log"
	"blind-voting/service"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the election HTTP API",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := setup(cmd)
	if err != nil {
		return err
	}

	votingService, err := service.NewVotingService(cfg.serviceConfig())
	if err != nil {
		// A corrupt authority key ends the election here.
		return fmt.Errorf("failed to initialize voting service: %w", err)
	}
	defer votingService.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	queue := service.NewQueueProcessor(votingService, cfg.queueSize)
	queue.Start(ctx)

	srv := &http.Server{
		Addr:              net.JoinHostPort("", fmt.Sprintf("%d", cfg.port)),
		Handler:           api.NewServer(votingService, api.Options{Queue: queue, AdminToken: cfg.adminToken}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infof("election API listening on :%d (public key %s)", cfg.port, votingService.PublicKey().Fingerprint().Hex())
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Infof("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		if qerr := queue.Stop(); qerr != nil {
			log.Warnf("queue stopped with error: %v", qerr)
		}
		votingService.EndVotingSession()
		return err
	})
	return g.Wait()
}
