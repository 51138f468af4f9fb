package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jrsteele09/go-verification-handoff/artifacts"
	"github.com/jrsteele09/go-verification-handoff/internal/config"
	"github.com/jrsteele09/go-verification-handoff/metrics"
	"github.com/jrsteele09/go-verification-handoff/server"
	"github.com/jrsteele09/go-verification-handoff/token"
	tokenjwt "github.com/jrsteele09/go-verification-handoff/token/jwt"
	tokenoidc "github.com/jrsteele09/go-verification-handoff/token/oidc"
	"github.com/jrsteele09/go-verification-handoff/users"
	"github.com/jrsteele09/go-verification-handoff/verification"
	"github.com/jrsteele09/go-verification-handoff/verification/sessions"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("error running server")
	}
	log.Info().Msg("server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	c, err := config.New()
	if err != nil {
		return err
	}
	setupLogging(c)
	displayAppname(c.GetAppName())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, cleanup, err := build(ctx, c)
	if err != nil {
		return err
	}
	defer cleanup()

	handler, err := server.New(c, deps.services)
	if err != nil {
		return err
	}
	httpServer := &http.Server{
		Addr:              c.GetPort(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return listenAndServe(httpServer)
	})
	g.Go(func() error {
		return deps.sweeper.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		return shutdown(httpServer)
	})
	return g.Wait()
}

type dependencies struct {
	services server.Services
	sweeper  *sessions.Sweeper
}

// build wires the configured backends. cleanup releases their connections.
func build(ctx context.Context, c config.Config) (*dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	verifier, err := newPrimaryVerifier(ctx, c)
	if err != nil {
		return nil, cleanup, err
	}

	store, err := newObjectStore(ctx, c)
	if err != nil {
		return nil, cleanup, err
	}

	record, closeRecord, err := newVerificationRecord(ctx, c)
	if err != nil {
		return nil, cleanup, err
	}
	closers = append(closers, closeRecord)

	repo := sessions.NewInMemoryRepo(
		sessions.WithShards(c.GetSessionShards()),
		sessions.WithMaxLive(c.GetMaxLiveSessions()),
		sessions.WithGrace(c.GetSweepGrace()),
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg, func() float64 { return float64(repo.Len()) })

	manager, err := verification.NewManager(repo, token.NewGenerator(c.GetTokenBytes()), record,
		verification.WithTTL(c.GetSessionTTL()),
		verification.WithMetrics(m),
		verification.WithFinalizeRetry(c.GetFinalizeMaxTries(), nil),
	)
	if err != nil {
		return nil, cleanup, err
	}

	uploader, err := verification.NewUploader(manager, artifacts.NewStoringProcessor(store),
		verification.WithMaxUploadBytes(c.GetMaxUploadBytes()),
		verification.WithUploadMetrics(m),
	)
	if err != nil {
		return nil, cleanup, err
	}

	qr, err := verification.NewQRCoder(c.GetMobileBaseURL(), c.GetQRSize())
	if err != nil {
		return nil, cleanup, err
	}

	return &dependencies{
		services: server.Services{
			Verifier:     verifier,
			Manager:      manager,
			Uploader:     uploader,
			QR:           qr,
			LiveSessions: repo.Len,
			Metrics:      promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		},
		sweeper: sessions.NewSweeper(repo, c.GetSweepInterval(), m.SessionsSwept),
	}, cleanup, nil
}

func newPrimaryVerifier(ctx context.Context, c config.Config) (server.PrimaryVerifier, error) {
	switch strings.ToLower(c.GetPrimaryAuthMode()) {
	case config.PrimaryAuthOIDC:
		log.Info().Str("issuer", c.GetOIDCIssuer()).Msg("primary auth: oidc")
		return tokenoidc.NewVerifier(ctx, c.GetOIDCIssuer(), c.GetOIDCClientID())
	default:
		log.Info().Msg("primary auth: jwt")
		return tokenjwt.NewVerifier([]byte(c.GetJWTSecret()), c.GetJWTIssuer(), c.GetJWTAudience()), nil
	}
}

func newObjectStore(ctx context.Context, c config.Config) (artifacts.ObjectStore, error) {
	switch c.GetArtifactStore() {
	case config.ArtifactStoreMinio:
		log.Info().Str("endpoint", c.GetMinioEndpoint()).Str("bucket", c.GetMinioBucket()).Msg("artifact store: minio")
		return artifacts.NewMinioStore(ctx, c.GetMinioEndpoint(), c.GetMinioAccessKey(), c.GetMinioSecretKey(), c.GetMinioBucket(), c.GetMinioUseSSL())
	default:
		log.Info().Str("folder", c.GetDataFolder()).Msg("artifact store: filesystem")
		return artifacts.NewFilesystemStore(c.GetDataFolder())
	}
}

func newVerificationRecord(ctx context.Context, c config.Config) (users.VerificationRecord, func(), error) {
	switch c.GetVerificationRecord() {
	case config.VerificationRecordPostgres:
		pool, err := pgxpool.New(ctx, c.GetDatabaseURL())
		if err != nil {
			return nil, func() {}, fmt.Errorf("pgxpool.New: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, func() {}, fmt.Errorf("postgres ping: %w", err)
		}
		log.Info().Msg("verification record: postgres")
		return users.NewPostgresRecord(pool), pool.Close, nil
	case config.VerificationRecordNATS:
		conn, err := nats.Connect(c.GetNatsURL(), nats.Name(c.GetAppName()))
		if err != nil {
			return nil, func() {}, fmt.Errorf("nats.Connect: %w", err)
		}
		log.Info().Str("subject", c.GetNatsSubject()).Msg("verification record: nats")
		return users.NewNATSRecord(conn, c.GetNatsSubject()), func() { _ = conn.Drain() }, nil
	default:
		log.Warn().Msg("verification record: log only, user accounts are not updated")
		return users.LogRecord{}, func() {}, nil
	}
}

func setupLogging(c config.Config) {
	level, err := zerolog.ParseLevel(strings.ToLower(c.GetLogLevel()))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	if c.GetEnv() == "DEV" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})
	}
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("server listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
