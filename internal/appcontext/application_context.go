package appcontext

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/BandwidthOnDemand/nsi-auth/internal/allowlist"
	"github.com/BandwidthOnDemand/nsi-auth/internal/api/handler"
	"github.com/BandwidthOnDemand/nsi-auth/internal/api/router"
	"github.com/BandwidthOnDemand/nsi-auth/internal/audit"
	"github.com/BandwidthOnDemand/nsi-auth/internal/config"
	"github.com/BandwidthOnDemand/nsi-auth/internal/constants"
	"github.com/BandwidthOnDemand/nsi-auth/internal/logger"
	"github.com/BandwidthOnDemand/nsi-auth/internal/ratelimit"
	"github.com/BandwidthOnDemand/nsi-auth/internal/service"
	"github.com/BandwidthOnDemand/nsi-auth/internal/watcher"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

type ApplicationContext struct {
	Cf           *config.Config
	Logger       zerolog.Logger
	Store        *allowlist.Store
	Loader       *allowlist.Loader
	Watcher      *watcher.FileWatcher
	AuditSink    audit.Sink
	RedisClient  *redis.Client
	Limiter      ratelimit.Limiter
	AuthzService service.IAuthzService
	Server       *http.Server
}

func NewApplicationContext(cf *config.Config, root zerolog.Logger) (*ApplicationContext, error) {
	app := ApplicationContext{
		Cf:     cf,
		Logger: logger.Module(root, constants.ModuleApp),
	}

	if err := app.Init(root); err != nil {
		app.closeResources()
		return nil, err
	}
	return &app, nil
}

func (app *ApplicationContext) Init(root zerolog.Logger) error {
	steps := []struct {
		name string
		fn   func(zerolog.Logger) error
	}{
		{"allow list", app.setUpAllowList},
		{"file watcher", app.setUpWatcher},
		{"audit sink", app.setUpAuditSink},
		{"rate limiter", app.setUpLimiter},
		{"authz service", app.setUpAuthzService},
		{"http server", app.setUpServer},
	}

	for _, step := range steps {
		app.Logger.Debug().Msgf("Start setup %s", step.name)
		if err := step.fn(root); err != nil {
			return fmt.Errorf("setup %s: %w", step.name, err)
		}
		app.Logger.Debug().Msgf("Finish setup %s", step.name)
	}
	return nil
}

// 初次載入失敗直接結束啟動, 保留舊清單只適用於之後的 reload
func (app *ApplicationContext) setUpAllowList(root zerolog.Logger) error {
	app.Store = allowlist.NewStore()
	app.Loader = allowlist.NewLoader(app.Cf.AllowedClientSubjectDNPath, app.Store, logger.Module(root, constants.ModuleAllowlist))
	return app.Loader.Reload()
}

func (app *ApplicationContext) setUpWatcher(root zerolog.Logger) error {
	w, err := watcher.NewFileWatcher(app.Loader.Path(), app.Loader.Reload, logger.Module(root, constants.ModuleWatcher))
	if err != nil {
		return err
	}
	app.Watcher = w
	return nil
}

func (app *ApplicationContext) setUpAuditSink(root zerolog.Logger) error {
	brokers := app.Cf.KafkaBrokerList()
	if len(brokers) == 0 {
		app.AuditSink = audit.NopSink{}
		return nil
	}

	l := logger.Module(root, constants.ModuleAudit)
	w := audit.NewKafkaWriter(brokers, app.Cf.KafkaAuditTopic, l)
	app.AuditSink = audit.NewKafkaSink(w, app.Cf.KafkaAuditTopic)
	l.Info().Strs("brokers", brokers).Str("topic", app.Cf.KafkaAuditTopic).Msg("publish decisions to kafka")
	return nil
}

func (app *ApplicationContext) setUpLimiter(root zerolog.Logger) error {
	var client ratelimit.RedisClient
	if app.Cf.RateLimitType == config.RateLimitRedisBucket {
		app.RedisClient = redis.NewClient(&redis.Options{
			Addr:     app.Cf.RedisAddr,
			Password: app.Cf.RedisPassword,
			DB:       app.Cf.RedisDB,
		})
		client = app.RedisClient
	}

	limiter, err := ratelimit.New(app.Cf, client, logger.Module(root, constants.ModuleRateLimit))
	if err != nil {
		return err
	}
	app.Limiter = limiter
	return nil
}

func (app *ApplicationContext) setUpAuthzService(root zerolog.Logger) error {
	app.AuthzService = service.NewAuthzService(app.Store, app.AuditSink, logger.Module(root, constants.ModuleAPI))
	return nil
}

func (app *ApplicationContext) setUpServer(root zerolog.Logger) error {
	apiLogger := logger.Module(root, constants.ModuleAPI)
	validateHandler := handler.NewValidateHandler(app.AuthzService, app.Cf.SSLClientSubjectDNHeader, apiLogger)

	app.Server = &http.Server{
		Addr:              app.Cf.ServerAddr,
		Handler:           router.SetupRouter(validateHandler, app.Limiter, apiLogger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

/*
Run 同時啟動 watcher 與 http server, ctx 結束時優雅關閉
任一方失敗都會結束另一方
*/
func (app *ApplicationContext) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return app.Watcher.Run(gctx)
	})

	g.Go(func() error {
		app.Logger.Info().Str("addr", app.Server.Addr).Msg("server starting")
		if err := app.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen %s: %w", app.Server.Addr, err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), app.Cf.ShutdownTimeout)
		defer cancel()
		return app.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Reload 由 SIGHUP 觸發
func (app *ApplicationContext) Reload() error {
	return app.Loader.Reload()
}

func (app *ApplicationContext) Shutdown(ctx context.Context) error {
	app.Logger.Info().Msg("Start application shutdown")

	done := make(chan error, 1)
	go func() {
		var errs []error
		if app.Server != nil {
			if err := app.Server.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("server shutdown: %w", err))
			}
		}
		errs = append(errs, app.closeResources())
		done <- errors.Join(errs...)
	}()

	select {
	case err := <-done:
		app.Logger.Info().Msg("Application shutdown complete")
		return err
	case <-ctx.Done():
		return fmt.Errorf("shutdown timeout: %w", ctx.Err())
	}
}

func (app *ApplicationContext) closeResources() error {
	var errs []error
	if app.Limiter != nil {
		app.Limiter.Stop()
	}
	if app.RedisClient != nil {
		if err := app.RedisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if app.AuditSink != nil {
		if err := app.AuditSink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close audit sink: %w", err))
		}
	}
	return errors.Join(errs...)
}
