package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/pkg/errors"

	"github.com/learnwise/backend/core"
	"github.com/learnwise/backend/core/advisor"
	"github.com/learnwise/backend/core/lesson"
	"github.com/learnwise/backend/core/quiz"
	"github.com/learnwise/backend/core/tutor"
	"github.com/learnwise/backend/core/user"
)

type ServerDeps struct {
	Conf           *core.Config
	Logger         core.Logger
	UserSvc        *user.Service
	LessonSvc      *lesson.Service
	QuizSvc        *quiz.Service
	AdvisorSvc     *advisor.Service
	TutorSvc       *tutor.Service
	Validate       *validator.Validate
	Translator     ut.Translator
	DisableReqLogs bool
}

type Server struct {
	deps     ServerDeps
	app      *echo.Echo
	jwt      echo.MiddlewareFunc
	limiter  *rateLimiter // nil when disabled
	metrics  *metrics
	errors   chan error
	shutdown chan os.Signal
}

func NewServer(deps ServerDeps) *Server {
	s := &Server{
		deps:     deps,
		app:      echo.New(),
		metrics:  newMetrics(),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.deps.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: conf.Server.CORSOrigins,
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	s.app.Use(s.metrics.middleware())

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.SignalShutdown)
	s.app.Debug = conf.Debug

	s.jwt = middleware.JWTWithConfig(newJWTConfig(conf))
	if conf.Server.AuthRateInterval > 0 {
		s.limiter = newRateLimiter(conf.Server.AuthRateInterval, conf.Server.AuthRateBurst)
	}

	s.app.GET("/", home)
	s.app.GET("/metrics", echo.WrapHandler(s.metrics.handler()))

	api := s.app.Group("/api")
	registerAccountAPI(api, s.authed, s.limited, s.deps)
	registerUserAPI(api, s.authed, s.deps)
	registerLessonAPI(api, s.authed, s.deps)
	registerQuizAPI(api, s.authed, s.deps)
	registerAdvisorAPI(api, s.authed, s.deps)
	registerParentAPI(api, s.authed, s.parentOnly, s.limited, s.deps)
	registerChatAPI(api, s.authed, s.deps)
}

// authed returns the middlewares of a route open to authenticated users holding one of roles.
// No roles means any role.
func (s *Server) authed(roles ...user.Role) []echo.MiddlewareFunc {
	mws := []echo.MiddlewareFunc{s.jwt, scopeMiddleware(scopeUser)}
	if len(roles) > 0 {
		mws = append(mws, roleMiddleware(roles...))
	}
	return mws
}

// parentOnly returns the middlewares of a route open to parent tokens only.
func (s *Server) parentOnly() []echo.MiddlewareFunc {
	return []echo.MiddlewareFunc{s.jwt, scopeMiddleware(scopeParent)}
}

// limited returns the middlewares of a route checking credentials.
// Every such route draws from the same per-client budget.
func (s *Server) limited() []echo.MiddlewareFunc {
	if s.limiter == nil {
		return nil
	}
	return []echo.MiddlewareFunc{s.limiter.middleware()}
}

func (s *Server) Start() {
	if err := s.app.Start(s.deps.Conf.Server.Address()); err != nil && err != http.ErrServerClosed {
		s.errors <- errors.Wrap(err, "starting server")
	}
}

// Errors receives the error that stopped the server from listening.
func (s *Server) Errors() <-chan error { return s.errors }

// ShutdownSignal receives SIGINT, SIGTERM and the shutdown requests of SignalShutdown.
func (s *Server) ShutdownSignal() <-chan os.Signal { return s.shutdown }

// SignalShutdown asks the application to shut down gracefully.
func (s *Server) SignalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default: // already signaled
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	signal.Stop(s.shutdown)
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to LearnWise API!")
}
