package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"realtycrm/api/internal/app"
	"realtycrm/api/internal/config"
	"realtycrm/api/internal/email"
	"realtycrm/api/internal/logging"
	"realtycrm/api/internal/messaging"
	"realtycrm/api/internal/metrics"
	"realtycrm/api/internal/objectstore"
	"realtycrm/api/internal/scoring"
	"realtycrm/api/internal/search"
	"realtycrm/api/internal/session"
	"realtycrm/api/internal/store"
)

func main() {
	cfg := config.Load()
	log := logging.New("realtycrm-api", cfg.LogLevel)
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("database connection failed")
	}
	defer db.Close()

	applied, err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir)
	if err != nil {
		log.WithError(err).Fatal("migrations failed")
	}
	if len(applied) > 0 {
		log.WithField("migrations", applied).Info("migrations applied")
	}

	dataStore := store.NewPostgresStore(db)
	deps := app.Dependencies{
		Log:     log,
		Metrics: metrics.New("realtycrm"),
		Mailer:  email.NewService(mailConfig(cfg), log.WithField("component", "email")),
	}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		cache, err := session.NewRedisStore(cfg.RedisURL, cfg.CallerCacheTTL)
		if err != nil {
			log.WithError(err).Fatal("redis connection failed")
		}
		defer cache.Close()
		deps.Cache = cache
		log.Info("caching callers in redis")
	}

	fallback := search.NewPostgres(db)
	var searchService *search.Service
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meili := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, log)
		defer meili.Close()
		searchService = search.NewService(meili, fallback, log)
	} else {
		searchService = search.NewService(nil, fallback, log)
	}
	defer searchService.Wait()
	deps.Search = searchService
	go searchService.ReindexAll(ctx, fallback)

	if cfg.S3Endpoint != "" {
		logos, err := objectstore.NewLogos(ctx, objectstore.Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			UseSSL:    cfg.S3UseSSL,
			PublicURL: cfg.S3PublicURL,
		})
		if err != nil {
			log.WithError(err).Fatal("object store unavailable")
		}
		deps.Logos = logos
	}

	if gateway := newGateway(cfg, log); gateway != nil {
		deps.Gateway = gateway
	}

	if cfg.AIAPIKey != "" {
		deps.Engine = scoring.NewOpenAIEngine(cfg.AIAPIKey, cfg.AIBaseURL, cfg.AIModel)
	} else {
		log.Warn("AI_API_KEY not set, lead scoring disabled")
	}

	service := app.New(cfg, dataStore, deps)
	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.WithField("addr", cfg.Addr).Info("realty CRM API listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("shutdown error")
	}
}

func mailConfig(cfg config.Config) email.Config {
	return email.Config{
		APIKey:   cfg.SendGridAPIKey,
		From:     cfg.MailFrom,
		FromName: cfg.MailFromName,
		Sandbox:  cfg.MailSandbox,
	}
}

// newGateway returns nil when no provider is configured; the caller must not
// store a typed nil in the Gateway interface.
func newGateway(cfg config.Config, log logrus.FieldLogger) messaging.Gateway {
	switch cfg.MessagingProvider {
	case "meta":
		if cfg.MetaPhoneNumberID == "" || cfg.MetaPermanentToken == "" {
			log.Warn("meta messaging selected but credentials are missing")
			return nil
		}
		return messaging.NewMetaGateway(cfg.MetaGraphURL, cfg.MetaPhoneNumberID, cfg.MetaPermanentToken)
	case "twilio":
		if cfg.TwilioAccountSID == "" || cfg.TwilioAuthToken == "" || cfg.TwilioWhatsAppFrom == "" {
			log.Warn("twilio messaging selected but credentials are missing")
			return nil
		}
		return messaging.NewTwilioGateway(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioWhatsAppFrom, cfg.TwilioStatusCallbackURL)
	case "":
		log.Info("no messaging provider configured, messages are stored only")
		return nil
	default:
		log.WithField("provider", cfg.MessagingProvider).Warn("unknown messaging provider")
		return nil
	}
}
