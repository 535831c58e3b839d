package geof

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/chrisberkhout/restful-geof/pkg/config"
	"github.com/chrisberkhout/restful-geof/pkg/httputil"
	mw "github.com/chrisberkhout/restful-geof/pkg/httputil/middleware"
	"github.com/chrisberkhout/restful-geof/pkg/metrics"
	pg "github.com/chrisberkhout/restful-geof/pkg/pgx"
	"github.com/chrisberkhout/restful-geof/pkg/pgx/schema"
	"github.com/chrisberkhout/restful-geof/pkg/rest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the GeoJSON API server",
	Long: `Starts an HTTP server answering GET <prefix>/<database>/<table>/... lookups
against any database on the configured PostgreSQL server`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig()
	},
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringP("rest.listenAddr", "l", ":8080", "listen address")
	f.String("rest.prefix", "/api", "path prefix of lookup routes")
	f.Bool("rest.tls.enabled", false, "serve HTTPS; a self-signed certificate is generated if none exists")
	f.String("rest.tls.certFile", "", "TLS certificate file")
	f.String("rest.tls.keyFile", "", "TLS key file")
	f.Duration("rest.readTimeout", 30*time.Second, "maximum duration for reading a request")
	f.Duration("rest.writeTimeout", 60*time.Second, "maximum duration for writing a response")
	f.Duration("rest.idleTimeout", 120*time.Second, "keep-alive idle timeout")
	f.String("pg.host", "localhost", "PostgreSQL host")
	f.Int("pg.port", 5432, "PostgreSQL port")
	f.String("pg.user", "", "PostgreSQL user")
	f.String("pg.sslmode", "prefer", "PostgreSQL sslmode")
	f.Int32("pg.maxConns", 4, "maximum connections per database")
	f.Int("schemaCache.size", schema.DefaultCacheSize, "maximum number of tables with cached columns")
	f.String("schemaCache.reloadDatabase", "", "database to LISTEN in for schema reload notifications")
	f.Bool("metrics.enabled", true, "serve Prometheus metrics")
	f.String("metrics.addr", ":9100", "metrics listen address")

	viper.BindPFlags(f)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.ConfigFile != "" {
		logger.Info("using config file", zap.String("path", cfg.ConfigFile))
	}

	poolCfg, err := cfg.PG.PoolConfig()
	if err != nil {
		return err
	}
	pools := pg.NewPoolManager(poolCfg)
	defer pools.Close()

	schemas, err := schema.NewCache(cfg.SchemaCache.Size)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup

	if cfg.Metrics.Enabled {
		if err := prometheus.Register(metrics.NewOpenPoolsGauge(pools.List)); err != nil {
			return err
		}
		metrics.StartPrometheusServer(ctx, &wg, &metrics.PromServerOpts{
			Addr:   cfg.Metrics.Addr,
			Path:   cfg.Metrics.Path,
			Logger: logger,
		})
	}

	if db := cfg.SchemaCache.ReloadDatabase; db != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := schemas.Watch(ctx, pools, db, logger); err != nil {
				logger.Error("schema listener", zap.Error(err))
			}
		}()
	}

	opts := []rest.ServerOption{
		rest.WithPrefix(cfg.REST.Prefix),
		rest.WithLogger(logger),
		rest.WithRouterOptions(httputil.WithServerOptions(serverTimeouts(cfg.REST))),
	}
	if cfg.REST.TLS.Enabled {
		opts = append(opts, rest.WithRouterOptions(httputil.WithTLS(cfg.REST.TLS.CertFile, cfg.REST.TLS.KeyFile)))
	}
	server := rest.NewServer(rest.NewStore(pools, schemas), opts...)

	server.AddMiddleware(
		mw.RequestID,
		mw.Metrics,
		mw.CORSWithOptions(nil),
	)
	if cfg.LogLevel != "none" {
		server.AddMiddleware(mw.LoggerWithOptions(&mw.LoggerOptions{Logger: logger}))
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start(cfg.REST.ListenAddr)
	}()

	select {
	case err = <-serverErr:
		stop()
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err = server.Shutdown(shutdownCtx)
	}

	wg.Wait()
	if err == nil {
		logger.Info("server gracefully stopped")
	}
	return err
}

func serverTimeouts(c config.RESTConfig) func(*http.Server) {
	return func(srv *http.Server) {
		srv.ReadTimeout = c.ReadTimeout
		srv.WriteTimeout = c.WriteTimeout
		srv.IdleTimeout = c.IdleTimeout
	}
}
