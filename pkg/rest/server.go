package rest

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/chrisberkhout/restful-geof/pkg/httputil"
	"github.com/chrisberkhout/restful-geof/pkg/metrics"
	"github.com/chrisberkhout/restful-geof/pkg/pgx/schema"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// invalid_catalog_name: the database in the path does not exist
const pgInvalidCatalogName = "3D000"

// Server routes lookup requests to a Finder.
//
//	GET <prefix>/<database>/<table>[/<field>/is|matches/<value>]...[/limit/<n>]
//	GET /healthz
//
// Anything else is answered with 400 and an empty body. Lookups bypass the
// mux so that paths are never cleaned or redirected before parsing.
type Server struct {
	finder Finder
	router *httputil.Router
	prefix string
	logger *zap.Logger
}

type ServerOption func(*serverConfig)

type serverConfig struct {
	prefix     string
	logger     *zap.Logger
	routerOpts []httputil.RouterOptions
}

// WithPrefix sets the path prefix of lookup routes (DefaultPrefix if unset).
func WithPrefix(prefix string) ServerOption {
	return func(c *serverConfig) { c.prefix = prefix }
}

func WithLogger(logger *zap.Logger) ServerOption {
	return func(c *serverConfig) { c.logger = logger }
}

// WithRouterOptions passes options such as TLS to the underlying router.
func WithRouterOptions(opts ...httputil.RouterOptions) ServerOption {
	return func(c *serverConfig) { c.routerOpts = append(c.routerOpts, opts...) }
}

func NewServer(finder Finder, opts ...ServerOption) *Server {
	cfg := serverConfig{prefix: DefaultPrefix}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}

	s := &Server{
		finder: finder,
		router: httputil.NewRouter(append([]httputil.RouterOptions{httputil.WithLogger(cfg.logger)}, cfg.routerOpts...)...),
		prefix: cfg.prefix,
		logger: cfg.logger,
	}
	s.registerHandlers()
	return s
}

func (s *Server) registerHandlers() {
	s.router.HandleFunc("GET /healthz", s.handleHealth)
	s.router.Fallback(http.HandlerFunc(s.handleLookup))
}

// AddMiddleware wraps every request in mw, outermost first.
func (s *Server) AddMiddleware(mw ...httputil.Middleware) {
	for _, m := range mw {
		s.router.Use(m)
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Start serves on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	err := s.router.ListenAndServe(addr)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.router.Shutdown(ctx)
}

// handleHealth answers with the request ID, or "ok" without the request ID
// middleware.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if reqID, ok := httputil.RequestID(r); ok {
		httputil.Text(w, http.StatusOK, reqID)
		return
	}
	httputil.Text(w, http.StatusOK, "ok")
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	logger := httputil.Logger(r, s.logger)

	lookup, err := ParseRequest(r, s.prefix)
	if err != nil {
		metrics.RouteMismatches.WithLabelValues(metrics.MethodLabel(r.Method)).Inc()
		logger.Debug("route mismatch", zap.String("method", r.Method), zap.String("path", r.URL.EscapedPath()), zap.Error(err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	start := time.Now()
	body, err := s.finder.Find(r.Context(), lookup.Database, lookup.Table, lookup.Options)
	outcome := metrics.OutcomeOK
	if err != nil {
		outcome = s.writeError(w, logger, lookup, err)
	} else {
		httputil.Blob(w, http.StatusOK, body, "application/json")
	}
	metrics.LookupDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	metrics.Lookups.WithLabelValues(outcome).Inc()
}

// writeError answers a failed lookup and returns its metrics outcome.
func (s *Server) writeError(w http.ResponseWriter, logger *zap.Logger, lookup Lookup, err error) string {
	var pgErr *pgconn.PgError
	switch {
	case errors.Is(err, ErrInvalidValue), errors.Is(err, ErrUnknownColumn):
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return metrics.OutcomeInvalidValue
	case errors.Is(err, schema.ErrTableNotFound):
		httputil.Error(w, http.StatusNotFound, err.Error())
		return metrics.OutcomeNotFound
	case errors.As(err, &pgErr) && pgErr.Code == pgInvalidCatalogName:
		httputil.Error(w, http.StatusNotFound, "database "+lookup.Database+" not found")
		return metrics.OutcomeNotFound
	default:
		logger.Error("lookup failed",
			zap.String("database", lookup.Database),
			zap.String("table", lookup.Table),
			zap.Error(err))
		httputil.Error(w, http.StatusInternalServerError, "internal server error")
		return metrics.OutcomeError
	}
}
