// Package app assembles the service from configuration. Both the API server
// and the operator CLI build on it.
package app

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/deskflow/itsm-approvals/internal/api/http"
	"github.com/deskflow/itsm-approvals/internal/api/http/handlers"
	"github.com/deskflow/itsm-approvals/internal/auth"
	"github.com/deskflow/itsm-approvals/internal/config"
	"github.com/deskflow/itsm-approvals/internal/events"
	"github.com/deskflow/itsm-approvals/internal/notify"
	"github.com/deskflow/itsm-approvals/internal/observability"
	"github.com/deskflow/itsm-approvals/internal/persistence"
	"github.com/deskflow/itsm-approvals/internal/repository"
	"github.com/deskflow/itsm-approvals/internal/repository/memory"
	"github.com/deskflow/itsm-approvals/internal/service"
	"github.com/deskflow/itsm-approvals/internal/worker"
)

// Infrastructure holds connections and repositories.
type Infrastructure struct {
	Postgres *persistence.Postgres
	Redis    *persistence.Redis
	Tickets  repository.TicketRepository
	Users    repository.UserRepository
}

// NewInfrastructure connects to Postgres and Redis. Without a DSN it falls
// back to in-memory repositories.
func NewInfrastructure(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Infrastructure, error) {
	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	infra := &Infrastructure{Postgres: pg}
	if pool := pg.PoolHandle(); pool != nil {
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pool, logger); err != nil {
				pg.Close()
				return nil, fmt.Errorf("run migrations: %w", err)
			}
		}
		infra.Tickets = repository.NewTicketRepository(pool)
		infra.Users = repository.NewUserRepository(pool)
	} else {
		logger.Warn("using in-memory repositories")
		infra.Tickets = memory.NewTicketRepository()
		infra.Users = memory.NewUserRepository()
	}

	if cfg.Redis.Enabled {
		infra.Redis = persistence.NewRedis(cfg.Redis, logger)
	}
	return infra, nil
}

// Close releases connections.
func (i *Infrastructure) Close() {
	i.Redis.Close()
	i.Postgres.Close()
}

// SweepLock returns the Redis lease guarding escalation sweeps, or nil when
// Redis is disabled.
func (i *Infrastructure) SweepLock(cfg config.EscalationConfig) service.Locker {
	if i.Redis == nil || i.Redis.Client == nil {
		return nil
	}
	return persistence.NewLease(i.Redis.Client, cfg.LeaseKey, cfg.LeaseTTL)
}

// Services groups the application services sharing one dispatcher.
type Services struct {
	Worker        *worker.NotificationWorker
	Notifications *service.NotificationService
	Tickets       *service.TicketService
	Users         *service.UserService
	Approvals     *service.ApprovalService
	Escalation    *service.EscalationService
	Tokens        *auth.TokenManager
	Metrics       *observability.Metrics
}

// NewServices wires services over infra. Notifications are delivered by an
// async worker that Start launches.
func NewServices(cfg *config.Config, infra *Infrastructure, logger *zap.Logger) *Services {
	metrics := observability.NewMetrics()
	queue := worker.NewNotificationWorker(events.NewInMemoryDispatcher(), logger,
		cfg.Notification.QueueSize, cfg.Notification.Workers)

	notifications := service.NewNotificationService(service.NotificationDependencies{
		Dispatcher: queue,
		Users:      infra.Users,
		Email:      notify.NewMailer(cfg.Notification),
		Chat:       notify.NewSlackClient(cfg.Notification),
		Logger:     logger,
		Config:     cfg.App,
	})

	return &Services{
		Worker:        queue,
		Notifications: notifications,
		Tickets: service.NewTicketService(service.TicketDependencies{
			TicketRepo:          infra.Tickets,
			Dispatcher:          queue,
			Logger:              logger,
			DefaultTimeoutHours: cfg.Escalation.DefaultTimeoutHours,
		}),
		Users: service.NewUserService(service.UserDependencies{
			UserRepo:   infra.Users,
			TicketRepo: infra.Tickets,
			Logger:     logger,
		}),
		Approvals: service.NewApprovalService(service.ApprovalDependencies{
			TicketRepo: infra.Tickets,
			Dispatcher: queue,
			Metrics:    metrics,
			Logger:     logger,
		}),
		Escalation: service.NewEscalationService(service.EscalationDependencies{
			TicketRepo: infra.Tickets,
			UserRepo:   infra.Users,
			Dispatcher: queue,
			Lock:       infra.SweepLock(cfg.Escalation),
			Metrics:    metrics,
			Logger:     logger,
			Config:     cfg.Escalation,
		}),
		Tokens:  auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes),
		Metrics: metrics,
	}
}

// Start registers notification handlers and starts delivery goroutines.
func (s *Services) Start(ctx context.Context) {
	worker.StartNotificationWorker(ctx, s.Worker, s.Notifications)
}

// Stop drains queued notifications.
func (s *Services) Stop(ctx context.Context) error {
	return s.Worker.Stop(ctx)
}

// NewHTTPApp builds the fiber application with middleware and routes.
func NewHTTPApp(cfg *config.Config, infra *Infrastructure, svc *Services, logger *zap.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ErrorHandler: httptransport.ErrorHandler(logger, svc.Metrics),
	})
	httptransport.RegisterMiddlewares(app, logger, svc.Metrics, cfg)

	var checks []handlers.DependencyCheck
	if infra.Postgres.PoolHandle() != nil {
		checks = append(checks, handlers.DependencyCheck{Name: "postgres", Pinger: infra.Postgres})
	}
	if infra.Redis != nil {
		checks = append(checks, handlers.DependencyCheck{Name: "redis", Pinger: infra.Redis})
	}

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, checks...),
		Tickets:        handlers.NewTicketsHandler(svc.Tickets),
		Approvals:      handlers.NewApprovalsHandler(svc.Approvals),
		Admin:          handlers.NewAdminHandler(svc.Metrics),
		Users:          handlers.NewUsersHandler(svc.Users),
		AuthMiddleware: auth.NewAuthMiddleware(svc.Tokens, infra.Users),
	})
	return app
}
