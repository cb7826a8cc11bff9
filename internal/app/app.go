package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mdtodo/internal/cache"
	"mdtodo/internal/config"
	"mdtodo/internal/migrate"
	"mdtodo/internal/repo"
	"mdtodo/internal/service"
	"mdtodo/internal/telemetry"

	"github.com/cenkalti/backoff/v4"
	"github.com/charmbracelet/log"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/afero"
)

const redisConnectMaxElapsed = 5 * time.Second

type App struct {
	cfg      config.Config
	logger   *log.Logger
	redis    *redis.Client
	svc      *service.TodoService
	router   *gin.Engine
	shutdown telemetry.Shutdown
	stop     context.CancelFunc
	watchErr chan error
}

// New builds the store on the OS filesystem. Redis is optional: when it is not
// configured or stays unreachable, the service runs without a cache.
func New(cfg config.Config, logger *log.Logger) (*App, error) {
	return NewWithFs(cfg, logger, afero.NewOsFs())
}

func NewWithFs(cfg config.Config, logger *log.Logger, fsys afero.Fs) (*App, error) {
	a := &App{cfg: cfg, logger: logger}

	shutdown, err := telemetry.Init(context.Background(), cfg.Telemetry, cfg.App.Version)
	if err != nil {
		return nil, err
	}
	a.shutdown = shutdown

	fileRepo, err := repo.NewFileTodoRepo(fsys, cfg.Store.Dir, repo.WithLogger(logger.WithPrefix("store")))
	if err != nil {
		_ = shutdown(context.Background())
		return nil, fmt.Errorf("open store: %w", err)
	}

	var todoCache *cache.TodoCache
	if cfg.Redis.Enabled() {
		rdb, err := newRedis(cfg.Redis)
		if err != nil {
			logger.Warn("redis unavailable, running without cache", "addr", cfg.Redis.Addr, "err", err)
		} else {
			a.redis = rdb
			todoCache = cache.NewTodoCache(rdb, cfg.Redis.DefaultTTL.Duration())
		}
	}

	a.svc = service.NewTodoService(
		telemetry.WrapRepo(fileRepo, cfg.Telemetry.Enabled),
		todoCache,
		service.WithLogger(logger.WithPrefix("service")),
		service.WithMigrator(migrate.New(fsys, cfg.Store.Dir, migrate.WithLogger(logger.WithPrefix("migrate")))),
	)

	if cfg.Store.Watch {
		ctx, cancel := context.WithCancel(context.Background())
		a.stop = cancel
		a.watchErr = make(chan error, 1)
		go func() {
			a.watchErr <- fileRepo.Watch(ctx, func() { a.svc.Invalidate(ctx) })
		}()
	}

	a.router = newRouter(cfg, a.svc)
	return a, nil
}

func (a *App) Router() *gin.Engine {
	return a.router
}

func (a *App) Service() *service.TodoService {
	return a.svc
}

func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.stop != nil {
		a.stop()
		if err := <-a.watchErr; err != nil {
			errs = append(errs, err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.shutdown != nil {
		if err := a.shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func newRedis(cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = redisConnectMaxElapsed
	err := backoff.Retry(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return rdb.Ping(ctx).Err()
	}, bo)
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return rdb, nil
}

func newRouter(cfg config.Config, svc *service.TodoService) *gin.Engine {
	r := gin.Default()

	origins := cfg.HTTP.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.New(cors.Config{
		AllowOrigins:  origins,
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS", "HEAD"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length", "Content-Type"},
		MaxAge:        12 * time.Hour,
	}))

	Setup(r, cfg, svc)
	return r
}
