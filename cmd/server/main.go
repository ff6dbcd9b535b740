package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/clinvia/teleconsulta/internal/adapters/http"
	"github.com/clinvia/teleconsulta/internal/adapters/storage/memory"
	"github.com/clinvia/teleconsulta/internal/adapters/storage/postgres"
	"github.com/clinvia/teleconsulta/internal/app"
	"github.com/clinvia/teleconsulta/internal/config"
	"github.com/clinvia/teleconsulta/internal/core"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	var (
		appointments app.AppointmentRepo
		sessionsRepo app.SessionRepo
		participants app.ParticipantRepo
		grants       app.GrantRepo
	)
	if cfg.DatabaseURL != "" {
		db, err := postgres.Open(cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open database")
		}
		defer db.Close()
		appointments = postgres.NewAppointmentRepo(db)
		sessionsRepo = postgres.NewSessionRepo(db)
		participants = postgres.NewParticipantRepo(db)
		grants = postgres.NewGrantRepo(db)
		log.Info().Msg("using postgres storage")
	} else {
		appointments = memory.NewAppointmentRepo()
		sessionsRepo = memory.NewSessionRepo()
		participants = memory.NewParticipantRepo()
		grants = memory.NewGrantRepo()
		log.Warn().Msg("no database_url configured, using in-memory storage")
	}

	rooms := core.NewRoomManager()
	hub := app.NewHub(rooms, sessionsRepo, participants, cfg.RoomCap)
	broker := app.NewAccessBroker(appointments, sessionsRepo, participants, grants, cfg.PublicBase, cfg.GrantTTL)
	lifecycle := app.NewLifecycle(appointments, sessionsRepo, rooms, cfg.RoomCap)
	sweeper := app.NewSweeper(sessionsRepo, hub, lifecycle, cfg.SweepEvery, cfg.WarnEarly, cfg.WarnFinal)
	go sweeper.Run(ctx)

	r := router.SetupRouter(ctx, cfg, hub, broker, lifecycle)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("teleconsulta server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
