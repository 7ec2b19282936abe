// Command nopassword-server serves passwordless login over HTTP.
//
// Settings come from flags, environment variables and an optional config
// file; see internal/appconfig. Run with the in-memory store and the log
// sink:
//
//	SECRET=change-me go run ./cmd/nopassword-server --log.development
//
// Then request a code and follow the URL printed in the log:
//
//	curl -i -X POST localhost:8080/login-code \
//	  -H 'Content-Type: application/json' \
//	  -d '{"identifier":"alice@example.com","next":"/"}'
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	nopw "github.com/MrEthical07/goNoPassword"
	"github.com/MrEthical07/goNoPassword/directory"
	"github.com/MrEthical07/goNoPassword/httpapi"
	"github.com/MrEthical07/goNoPassword/internal/appconfig"
	"github.com/MrEthical07/goNoPassword/janitor"
	"github.com/MrEthical07/goNoPassword/metrics/export/prometheus"
	"github.com/MrEthical07/goNoPassword/notify"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	settings, err := appconfig.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	logger, err := makeLogger(settings.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(settings, logger); err != nil {
		logger.Error("server stopped", zap.Error(err))
		os.Exit(1)
	}
}

func run(settings *appconfig.Settings, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, appconfig.StartupTimeout)
	store, closeStore, err := openStore(startCtx, settings, logger)
	cancel()
	if err != nil {
		return fmt.Errorf("open %s store: %w", settings.Store.Driver, err)
	}
	defer closeStore()

	sinks, err := buildSinks(settings, logger)
	if err != nil {
		return err
	}

	dir := directory.NewStatic(settings.Principals...)
	if dir.Len() == 0 {
		logger.Warn("principal directory is empty; every login request will be refused")
	}

	engine, err := nopw.New().
		WithConfig(settings.Engine).
		WithStore(store).
		WithPrincipalDirectory(dir).
		WithSinks(sinks...).
		WithLogger(logger).
		WithAuditSink(auditSink(settings, logger)).
		Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	var jan *janitor.Janitor
	if settings.Janitor.Enabled {
		jan, err = janitor.New(engine,
			janitor.WithSchedule(settings.Janitor.Schedule),
			janitor.WithLogger(logger),
		)
		if err != nil {
			return err
		}
		jan.Start()
	}

	if !settings.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := httpapi.NewRouter(engine, httpapi.Config{
		LoginPath:    settings.Engine.Link.LoginPath,
		AllowOrigins: settings.HTTP.AllowOrigins,
		Logger:       logger,
		Metrics:      prometheus.NewExporter(engine).Handler(),
		MetricsPath:  settings.HTTP.MetricsPath,
	})

	srv := &http.Server{
		Addr:              settings.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening",
			zap.String("addr", settings.HTTP.Addr),
			zap.String("store", settings.Store.Driver),
			zap.Strings("sinks", settings.Sinks),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), appconfig.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if jan != nil {
		if err := jan.Stop(shutdownCtx); err != nil {
			logger.Warn("janitor shutdown", zap.Error(err))
		}
	}
	return nil
}

func buildSinks(settings *appconfig.Settings, logger *zap.Logger) ([]nopw.NotificationSink, error) {
	var sinks []nopw.NotificationSink
	for _, name := range settings.Sinks {
		switch name {
		case "log":
			sinks = append(sinks, notify.NewLogSink(logger))
		case "mail":
			mail, err := notify.NewMailSink(notify.MailConfig{
				Host:       settings.SMTP.Host,
				Port:       settings.SMTP.Port,
				Username:   settings.SMTP.Username,
				Password:   settings.SMTP.Password,
				From:       settings.SMTP.From,
				SenderName: settings.SMTP.SenderName,
				SiteName:   settings.SMTP.SiteName,
				Subject:    settings.SMTP.Subject,
			})
			if err != nil {
				return nil, fmt.Errorf("mail sink: %w", err)
			}
			sinks = append(sinks, mail)
		default:
			return nil, fmt.Errorf("unknown sink %q", name)
		}
	}
	return sinks, nil
}

func auditSink(settings *appconfig.Settings, logger *zap.Logger) nopw.AuditSink {
	if !settings.Engine.Audit.Enabled {
		return nil
	}
	return nopw.NewZapSink(logger)
}

func makeLogger(cfg appconfig.LogSettings) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zcfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		zcfg.DisableStacktrace = true
	}
	zcfg.Level = level

	return zcfg.Build()
}
