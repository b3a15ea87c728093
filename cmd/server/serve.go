package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	router "github.com/neutron420/bloom/internal/adapters/http"
	"github.com/neutron420/bloom/internal/app"
	"github.com/neutron420/bloom/internal/app/orch"
	"github.com/neutron420/bloom/internal/config"
	"github.com/neutron420/bloom/internal/sfu"
	"github.com/neutron420/bloom/internal/store"
	"github.com/neutron420/bloom/internal/store/memory"
	"github.com/neutron420/bloom/internal/store/sqlite"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the signaling server.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return serve(cmd.Context(), cfg)
	},
}

func openStore(ctx context.Context, cfg config.Store) (store.Store, error) {
	switch cfg.Driver {
	case "memory":
		return memory.New(), nil
	case "sqlite":
		return sqlite.Open(ctx, cfg.DSN)
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}

func serve(ctx context.Context, cfg *config.Config) error {
	st, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close()

	engine, err := sfu.NewEngine(sfu.Options{
		AnnouncedIP:      cfg.Media.AnnouncedIP,
		PortMin:          cfg.Media.PortMin,
		PortMax:          cfg.Media.PortMax,
		GatherCandidates: cfg.Media.GatherCandidates,
		GatherTimeout:    cfg.Media.GatherTimeout,
	})
	if err != nil {
		return err
	}
	defer engine.Close()

	policy, err := app.PolicyFromString(cfg.SlowConsumerPolicy)
	if err != nil {
		return err
	}
	limiter := app.NewRateLimiter(cfg.RateLimit.Limit, cfg.RateLimit.Window)

	o := orch.New(orch.Deps{
		Store:   st,
		Engine:  engine,
		Policy:  policy,
		Limiter: limiter,
		Shards:  cfg.Registry.Shards,
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router.SetupRouter(ctx, cfg, o),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("bloom server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return limiter.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Msg("Server exited gracefully")
	return nil
}
