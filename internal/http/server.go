package http

import (
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"time"

	applog "walletwise/internal/log"
	"walletwise/internal/metrics"
	"walletwise/internal/middleware/ratelimit"
	"walletwise/internal/middleware/security"
	"walletwise/internal/middleware/trace"
	"walletwise/internal/services"
	"walletwise/internal/session"
	appweb "walletwise/web"
)

const (
	loginPath      = "/login"
	activityLimit  = 10
	staticMaxAge   = 3600
	requestTimeout = 15 * time.Second
)

// ReadinessCheck is one dependency probed by /readyz.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Deps are the collaborators of the web server. Metrics, Limiter, Detector,
// Checks and Now are optional.
type Deps struct {
	Bills    *services.BillService
	Sessions *session.Manager
	Metrics  *metrics.Metrics
	Limiter  *ratelimit.Limiter
	Detector *security.Detector
	Checks   []ReadinessCheck
	Logger   *applog.Logger
	Now      func() time.Time
}

type Server struct {
	http.Server
	templates *template.Template
	bills     *services.BillService
	sessions  *session.Manager
	checks    []ReadinessCheck
	logger    *applog.Logger
	now       func() time.Time
}

// NewServer configures routes and templates, returning a ready-to-run http.Server.
func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = applog.Default(applog.ComponentHTTP)
	}
	logger = logger.WithComponent(applog.ComponentHTTP)

	s := &Server{
		bills:    deps.Bills,
		sessions: deps.Sessions,
		checks:   deps.Checks,
		logger:   logger,
		now:      deps.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}

	t, err := template.ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		logger.Error("Failed parsing templates", applog.FieldError, err)
	}
	s.templates = t

	detector := deps.Detector
	if detector == nil {
		// the default proxy list always parses
		detector, _ = security.NewDetector(nil, logger, deps.Metrics)
	}
	limiter := deps.Limiter
	if limiter == nil {
		limiter = ratelimit.NewLimiter(ratelimit.DefaultConfig(),
			ratelimit.WithLogger(logger), ratelimit.WithObserver(deps.Metrics))
	}

	mux := http.NewServeMux()
	s.routes(mux, deps.Metrics)

	var handler http.Handler = mux
	handler = limiter.Middleware(detector.ClientIP)(handler)
	handler = detector.Middleware(handler)
	handler = security.Headers(security.DefaultHeadersConfig())(handler)
	handler = trace.NewMiddleware(detector.ClientIP, logger, deps.Metrics).Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      requestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux, m *metrics.Metrics) {
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssets(staticMaxAge)(static))
	} else {
		s.logger.Warn("Failed to mount embedded static FS", applog.FieldError, err)
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	if m != nil {
		mux.Handle("GET /metrics", m.Handler())
	}

	mux.HandleFunc("GET /login", s.handleLoginPage)
	mux.HandleFunc("POST /login", s.handleLogin)
	mux.HandleFunc("POST /logout", s.handleLogout)

	auth := s.sessions.Require(loginPath)
	protected := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, auth(withTimeout(h)))
	}

	protected("GET /{$}", s.handleDashboard)
	protected("GET /ui/board", s.handleBoard)
	protected("GET /ui/dia", s.handleDay)
	protected("GET /ui/atividades", s.handleActivity)
	protected("GET /ui/contas/nova", s.handleRegisterForm)
	protected("POST /contas", s.handleRegister)
	protected("GET /contas", s.handlePeriod)
	protected("GET /contas/export.xlsx", s.handleExport)
	protected("POST /contas/{id}/assumir", s.handleClaim)
	protected("POST /contas/{id}/pagar", s.handleMarkPaid)
}

// withTimeout bounds every call a handler makes to the bill store.
func withTimeout(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()
		next(w, r.WithContext(ctx))
	})
}
