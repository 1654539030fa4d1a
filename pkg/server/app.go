package server

import (
	"context"
	"errors"
	"io"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"Kavach/internal/handler/api"
	"Kavach/internal/usecase"
	xhttp "Kavach/pkg/http"
	pkgkafka "Kavach/pkg/kafka"
	applogger "Kavach/pkg/logger"
	"Kavach/pkg/queue"
)

// Deps are the long-running parts of the application. Everything except
// Logger and HTTP is optional.
type Deps struct {
	Logger          *applogger.Logger
	HTTP            *xhttp.Server
	Hub             *api.DecisionHub
	Consumer        *pkgkafka.Consumer
	ConsumerHandler pkgkafka.MessageHandler
	Jobs            *queue.RedisQueue
	Scheduler       *usecase.EvaluationScheduler
	// Closers are closed last, in order.
	Closers []io.Closer
}

// App encapsulates the entire application lifecycle.
type App struct {
	deps Deps
	wg   sync.WaitGroup
}

// New creates a new App instance with all dependencies.
func New(deps Deps) *App {
	if deps.Logger == nil {
		deps.Logger = applogger.Nop()
	}
	return &App{deps: deps}
}

// Run starts every component and blocks until SIGINT/SIGTERM or ctx ends.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.start(ctx); err != nil {
		stop()
		_ = a.shutdown()
		return err
	}

	<-ctx.Done()
	a.deps.Logger.Info("shutdown signal received")
	return a.shutdown()
}

func (a *App) start(ctx context.Context) error {
	l := a.deps.Logger

	if a.deps.Consumer != nil && a.deps.ConsumerHandler != nil {
		a.deps.Consumer.RegisterHandler(a.deps.ConsumerHandler)
		if err := a.deps.Consumer.Start(); err != nil {
			return err
		}
		l.Info("decision consumer started", applogger.String("topic", a.deps.ConsumerHandler.Topic()))
	}

	if a.deps.Jobs != nil {
		if err := a.deps.Jobs.Start(ctx); err != nil {
			return err
		}
		if a.deps.Scheduler != nil {
			a.wg.Add(1)
			go func() {
				defer a.wg.Done()
				a.deps.Scheduler.Run(ctx)
			}()
		}
	}

	return a.deps.HTTP.Start()
}

// shutdown stops components in reverse dependency order.
func (a *App) shutdown() error {
	l := a.deps.Logger
	l.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), a.timeout())
	defer cancel()

	var errs []error
	if a.deps.HTTP != nil {
		if err := a.deps.HTTP.Stop(ctx); err != nil {
			l.Error("http shutdown error", applogger.Error(err))
			errs = append(errs, err)
		}
	}
	if a.deps.Hub != nil {
		a.deps.Hub.Close()
	}

	a.wg.Wait()
	if a.deps.Jobs != nil {
		if err := a.deps.Jobs.Stop(ctx); err != nil {
			l.Warn("job queue stop error", applogger.Error(err))
		}
	}
	if a.deps.Consumer != nil && a.deps.ConsumerHandler != nil {
		if err := a.deps.Consumer.Stop(ctx); err != nil {
			l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	// The collector publishes through a producer in Closers.
	l.RemoveCollector()
	for _, c := range a.deps.Closers {
		if err := c.Close(); err != nil {
			l.Warn("close error", applogger.Error(err))
		}
	}

	l.Info("shutdown complete")
	return errors.Join(errs...)
}

func (a *App) timeout() time.Duration {
	if a.deps.HTTP != nil {
		return a.deps.HTTP.ShutdownTimeout()
	}
	return 10 * time.Second
}
