// Package server is the composition root: it turns Deps into services,
// services into handlers, and handlers into the chi route tree, then runs
// the HTTP server and the maintenance scheduler until a shutdown signal.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/robfig/cron/v3"

	"github.com/sakif/smartbin/internal/auth"
	"github.com/sakif/smartbin/internal/config"
	"github.com/sakif/smartbin/internal/handler"
	"github.com/sakif/smartbin/internal/middleware"
	"github.com/sakif/smartbin/internal/model"
	"github.com/sakif/smartbin/internal/service"
)

// Server owns the router, the scheduler and the dependencies.
type Server struct {
	router *chi.Mux
	config *config.Config
	deps   *Deps
	logger *slog.Logger
	cron   *cron.Cron
}

// New builds the route tree and schedules the maintenance job. It does not
// start anything.
func New(cfg *config.Config, deps *Deps, logger *slog.Logger) (*Server, error) {
	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		deps:   deps,
		logger: logger,
		cron:   cron.New(),
	}
	if err := s.setupRoutes(); err != nil {
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() error {
	d := s.deps
	store := d.Store

	authSvc := service.NewAuthService(service.AuthDeps{
		Users:            store.Users(),
		Identity:         d.Identity,
		Tokens:           d.Tokens,
		Passwords:        d.Passwords,
		RegisterThrottle: d.RegisterThrottle,
		ResendThrottle:   d.ResendThrottle,
		RedirectTo:       s.config.Supabase.EmailConfirmRedirect,
		Metrics:          d.Metrics,
		Logger:           s.logger,
	})
	notifySvc := service.NewNotificationService(store.Notifications(), store.Bins(), d.Events, d.Metrics, s.logger)
	binSvc := service.NewBinService(store.Bins(), store.Users(), store.Notifications(), s.logger)
	actionSvc := service.NewActionService(store.Actions(), store.Users(), d.Events, s.logger)
	sensorSvc := service.NewSensorService(store.Bins(), notifySvc, d.Events, d.Metrics, s.logger)
	maintenance := service.NewMaintenanceService(store.Bins(), notifySvc, s.config.Scheduler.StaleAfter, s.logger)

	health := service.NewHealthService(store, s.logger)
	if d.Redis != nil {
		health.WithDependency("redis", service.PingFunc(func(ctx context.Context) error {
			return d.Redis.Ping(ctx).Err()
		}))
	}

	if spec := s.config.Scheduler.MaintenanceSchedule; spec != "" {
		if _, err := maintenance.Schedule(s.cron, spec); err != nil {
			return err
		}
	}

	authH := handler.NewAuthHandler(authSvc, s.logger)
	binH := handler.NewBinHandler(binSvc, s.logger)
	notifyH := handler.NewNotificationHandler(notifySvc, s.logger)
	actionH := handler.NewActionHandler(actionSvc, s.logger)
	sensorH := handler.NewSensorHandler(sensorSvc, s.logger)
	healthH := handler.NewHealthHandler(health)

	requireAuth := auth.RequireAuth(d.Tokens)
	staffOnly := auth.RequireRole(model.RoleOfficer, model.RoleAdmin)
	staffToken := func(next http.Handler) http.Handler { return requireAuth(staffOnly(next)) }

	r := s.router
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS())
	r.Use(middleware.Metrics(d.Metrics))

	r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", healthH.HandleHealth)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authH.HandleRegister)
			r.Post("/resend-confirmation", authH.HandleResendConfirmation)
			r.Post("/login", authH.HandleLogin)
			r.Post("/logout", authH.HandleLogout)
			r.With(requireAuth).Get("/me", authH.HandleMe)
			r.With(requireAuth).Put("/me", authH.HandleUpdateMe)
		})

		r.Route("/bins", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(auth.OptionalAuth(d.Tokens))
				r.Get("/", binH.HandleList)
				r.Get("/stats", binH.HandleStats)
				r.Get("/search/nearby", binH.HandleNearby)
				r.Get("/{id}", binH.HandleGet)
			})
			r.Group(func(r chi.Router) {
				r.Use(staffToken)
				r.Post("/", binH.HandleCreate)
				r.Put("/{id}", binH.HandleUpdate)
				r.Delete("/{id}", binH.HandleDelete)
			})
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/", notifyH.HandleList)
			r.Get("/unread-count", notifyH.HandleUnreadCount)
			r.Patch("/read-all", notifyH.HandleMarkAllRead)
			r.Patch("/{id}/read", notifyH.HandleMarkRead)
			r.Delete("/{id}", notifyH.HandleDelete)
			r.With(staffOnly).Post("/", notifyH.HandleCreate)
		})

		r.Route("/actions", func(r chi.Router) {
			r.Use(requireAuth)
			r.Post("/empty", actionH.HandleEmpty)
			r.Get("/history", actionH.HandleHistory)
		})

		r.Route("/sensor", func(r chi.Router) {
			r.With(auth.RequireAPIKeyOr(s.config.Sensor.APIKey, staffToken)).Post("/data", sensorH.HandleData)
			r.With(requireAuth).Get("/{binId}/readings", sensorH.HandleReadings)
		})
	})

	if s.config.StaticDir != "" {
		spa, err := handler.NewSPAHandler(s.config.StaticDir, s.logger)
		if err != nil {
			return fmt.Errorf("static dir %s: %w", s.config.StaticDir, err)
		}
		r.NotFound(spa.ServeHTTP)
	}
	return nil
}

// Start serves HTTP and runs the scheduler until SIGINT/SIGTERM, then
// drains in-flight requests, stops the scheduler and closes Deps.
func (s *Server) Start() error {
	defer func() {
		if err := s.deps.Close(); err != nil {
			s.logger.Warn("closing dependencies", slog.String("error", err.Error()))
		}
	}()

	hs := s.config.HTTPServer
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  hs.ReadTimeout,
		WriteTimeout: hs.WriteTimeout,
		IdleTimeout:  hs.IdleTimeout,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	s.cron.Start()
	defer func() {
		<-s.cron.Stop().Done()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), hs.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}
	return nil
}
