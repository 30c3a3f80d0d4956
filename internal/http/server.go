package http

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"profitdash/internal/amqp"
	"profitdash/internal/analytics"
	"profitdash/internal/auth"
	"profitdash/internal/chatbot"
	"profitdash/internal/ingest"
	"profitdash/internal/integrations"
	"profitdash/internal/log"
	"profitdash/internal/metrics"
	"profitdash/internal/middleware/ratelimit"
	"profitdash/internal/middleware/security"
	"profitdash/internal/middleware/trace"
	"profitdash/internal/products"
	appweb "profitdash/web"
)

const (
	defaultUploadMaxBytes = 10 << 20
	staticMaxAge          = 3600
	readyTimeout          = 2 * time.Second
	publishTimeout        = 5 * time.Second
)

// Pinger reports whether the storage behind the server is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// EventPublisher announces successful uploads. Publishing is best effort.
type EventPublisher interface {
	PublishProductsUploaded(ctx context.Context, msg *amqp.ProductsUploadedMessage) error
}

// Deps are the services behind the handlers. Products and Auth are required;
// Ready and Events may be nil, the rest get defaults.
type Deps struct {
	Products     products.Store
	Ready        Pinger
	Auth         *auth.Service
	Reporter     *analytics.Reporter
	Integrations *integrations.Registry
	Bot          *chatbot.Bot
	Events       EventPublisher
	Metrics      *metrics.Metrics
	Logger       *log.Logger
}

// Options tunes limits of the HTTP surface.
type Options struct {
	UploadMaxBytes int64
	UploadMaxRows  int
	RateLimit      ratelimit.Config
	// TrustedProxies are extra CIDRs whose forwarding headers are believed.
	TrustedProxies []string
}

type Server struct {
	http.Server
	templates *template.Template

	products     products.Store
	ready        Pinger
	auth         *auth.Service
	reporter     *analytics.Reporter
	integrations *integrations.Registry
	bot          *chatbot.Bot
	events       EventPublisher
	metrics      *metrics.Metrics
	logger       *log.Logger

	limiter  *ratelimit.Limiter
	detector *security.Detector
	opts     Options

	// cancelBase ends hijacked connections such as chat websockets, which
	// http.Server.Shutdown does not wait for.
	cancelBase   context.CancelFunc
	shutdownOnce sync.Once
}

// NewServer parses the embedded templates and builds the router.
func NewServer(addr string, deps Deps, opts Options) (*Server, error) {
	if deps.Products == nil || deps.Auth == nil {
		return nil, errors.New("http server needs a product store and an auth service")
	}
	if deps.Logger == nil {
		deps.Logger = log.Discard()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	if deps.Reporter == nil {
		deps.Reporter = analytics.NewReporter(256, 10*time.Minute)
	}
	if deps.Integrations == nil {
		deps.Integrations = integrations.NewRegistry(deps.Logger)
	}
	if deps.Bot == nil {
		deps.Bot = chatbot.NewBot(-1, deps.Logger, deps.Metrics)
	}
	if opts.UploadMaxBytes <= 0 {
		opts.UploadMaxBytes = defaultUploadMaxBytes
	}
	if opts.UploadMaxRows <= 0 {
		opts.UploadMaxRows = ingest.DefaultMaxRows
	}

	t, err := template.New("").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	static, err := fs.Sub(appweb.StaticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("mount static files: %w", err)
	}

	detector := security.NewDetector()
	for _, cidr := range opts.TrustedProxies {
		if err := detector.AddTrustedProxy(cidr); err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", cidr, err)
		}
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       60 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
			BaseContext:       func(net.Listener) context.Context { return baseCtx },
		},
		templates:    t,
		products:     deps.Products,
		ready:        deps.Ready,
		auth:         deps.Auth,
		reporter:     deps.Reporter,
		integrations: deps.Integrations,
		bot:          deps.Bot,
		events:       deps.Events,
		metrics:      deps.Metrics,
		logger:       deps.Logger.WithComponent(log.ComponentHTTP),
		limiter:      ratelimit.NewLimiter(opts.RateLimit),
		detector:     detector,
		opts:         opts,
		cancelBase:   cancel,
	}
	s.Handler = s.routes(static)
	return s, nil
}

func (s *Server) routes(static fs.FS) http.Handler {
	r := chi.NewRouter()
	tracer := trace.NewMiddleware(s.detector.ExtractClientIP, s.logger, s.metrics)
	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	limit := s.limiter.Middleware(s.detector.ExtractClientIP, s.handleRateLimited)

	r.Use(middleware.Recoverer)
	r.Use(log.Middleware(s.logger))
	r.Use(tracer.Middleware)
	r.Use(log.RequestIDMiddleware(trace.GetRequestID))
	r.Use(s.detector.Middleware(s.logger, s.metrics))
	r.Use(headers.Middleware)

	r.NotFound(s.handleNotFound)
	r.MethodNotAllowed(s.handleMethodNotAllowed)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	r.With(security.StaticAssetMiddleware(staticMaxAge)).
		Handle("/static/*", http.StripPrefix("/static/", http.FileServerFS(static)))

	r.Group(func(r chi.Router) {
		r.Use(limit)
		r.Get("/login", s.handleLoginPage)
		r.Get("/auth/login", s.handleGoogleLogin)
		r.Get("/auth/callback", s.handleGoogleCallback)
		r.Post("/auth/dev", s.handleDevLogin)
		r.Post("/auth/logout", s.handleLogout)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.auth.RequireUser)

		r.Get("/", s.handleIndex)
		r.Get("/ui/{tab}", s.handleTab)
		r.Get("/products/{id}", s.handleProductPage)
		r.With(limit).Post("/uploads", s.handleUpload)

		r.Route("/api", func(r chi.Router) {
			r.Get("/products", s.handleAPIProducts)
			r.Get("/products/{id}", s.handleAPIProduct)
			r.Get("/summary", s.handleAPISummary)
			r.Get("/charts/profit", s.handleAPIProfitChart)
			r.Get("/charts/breakdown/{id}", s.handleAPIBreakdown)
			r.Get("/integrations/{provider}", s.handleAPIIntegration)
		})

		r.With(limit).Post("/integrations/{provider}", s.handleConnect)
		r.Delete("/integrations/{provider}", s.handleDisconnect)

		r.With(limit).Post("/chatbot/messages", s.handleChatMessage)
		r.Handle("/ws/chat", chatbot.NewWSHandler(s.bot, func(r *http.Request) (string, bool) {
			u, ok := auth.UserFromContext(r.Context())
			return u.ID, ok
		}))
	})

	return r
}

// Shutdown stops accepting requests, waits for in-flight ones and then
// closes websockets and the rate limiter.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		shutdownErr = s.Server.Shutdown(ctx)
		s.cancelBase()
		s.limiter.Stop()
	})
	return shutdownErr
}
