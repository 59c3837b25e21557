// Package gateway serves the memory facade over HTTP.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/recall/internal/core"
	"github.com/flemzord/recall/internal/memory"
	"github.com/flemzord/recall/internal/provider"
	"github.com/flemzord/recall/internal/security"
	"github.com/flemzord/recall/internal/telemetry"
)

func init() {
	core.RegisterModule(&Gateway{})
}

// Gateway is the HTTP gateway module. It is a leaf module: nothing
// imports it.
type Gateway struct {
	config    Config
	appCtx    *core.AppContext
	logger    *slog.Logger
	server    *http.Server
	addr      net.Addr
	startedAt time.Time

	audit *security.AuditLogger
	live  atomic.Pointer[settings]

	// Resolved at Start from the service registry.
	memory   Memory
	chain    *provider.Chain
	gatherer prometheus.Gatherer
	metrics  *httpMetrics
}

// ModuleInfo implements core.Module.
func (g *Gateway) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "gateway.http",
		New: func() core.Module { return &Gateway{} },
	}
}

// Configure implements core.Configurable.
func (g *Gateway) Configure(node *yaml.Node) error {
	if err := node.Decode(&g.config); err != nil {
		return err
	}
	g.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (g *Gateway) Provision(ctx *core.AppContext) error {
	g.config.defaults()
	g.appCtx = ctx
	g.logger = ctx.Logger
	g.live.Store(newSettings(g.config))
	if svc, ok := ctx.GetService(security.ServiceAuditLogger); ok {
		g.audit, _ = svc.(*security.AuditLogger)
	}
	return nil
}

// Validate implements core.Validator.
func (g *Gateway) Validate() error {
	return g.config.validate()
}

// Start implements core.Starter. It resolves the facade, which is
// registered after modules are provisioned, and starts the HTTP server.
func (g *Gateway) Start() error {
	if err := g.resolve(); err != nil {
		return err
	}
	if !g.config.Auth.IsConfigured() && !isLoopback(g.config.Bind) {
		g.logger.Warn("gateway API is unauthenticated on a non-loopback address", "addr", g.config.Bind)
	}

	g.startedAt = time.Now()
	g.server = &http.Server{
		Addr:         g.config.Bind,
		Handler:      g.buildRouter(),
		ReadTimeout:  g.config.ReadTimeout,
		WriteTimeout: g.config.WriteTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.config.Bind)
	if err != nil {
		return fmt.Errorf("gateway: listen: %w", err)
	}
	g.addr = ln.Addr()

	go func() {
		g.logger.Info("gateway listening", "addr", g.addr.String())
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()
	return nil
}

// Stop implements core.Stopper. Graceful shutdown with configured timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	return g.server.Shutdown(shutdownCtx)
}

// Reload implements core.Reloader. Auth, rate limits and the body size
// limit apply from the next request. The listener keeps its bind address
// and timeouts until restart.
func (g *Gateway) Reload(ctx *core.AppContext) error {
	var next Config
	if node, ok := ctx.ModuleConfig(); ok {
		if err := node.Decode(&next); err != nil {
			return fmt.Errorf("gateway: %w", err)
		}
	}
	next.defaults()
	if err := next.validate(); err != nil {
		return err
	}

	if next.Bind != g.config.Bind || next.ReadTimeout != g.config.ReadTimeout ||
		next.WriteTimeout != g.config.WriteTimeout || next.ShutdownTimeout != g.config.ShutdownTimeout {
		g.logger.Warn("gateway listener settings changed, restart to apply", "bind", next.Bind)
	}
	if !next.Auth.IsConfigured() && !isLoopback(g.config.Bind) {
		g.logger.Warn("gateway API is unauthenticated on a non-loopback address", "addr", g.config.Bind)
	}
	g.live.Store(newSettings(next))
	return nil
}

// Addr returns the listening address once started.
func (g *Gateway) Addr() net.Addr {
	return g.addr
}

func (g *Gateway) resolve() error {
	svc, ok := g.appCtx.GetService(memory.ServiceFacade)
	if !ok {
		return errors.New("gateway: memory facade is not registered")
	}
	mem, ok := svc.(Memory)
	if !ok {
		return fmt.Errorf("gateway: service %s has type %T", memory.ServiceFacade, svc)
	}
	g.memory = mem

	if svc, ok := g.appCtx.GetService(provider.ServiceChain); ok {
		g.chain, _ = svc.(*provider.Chain)
	}

	reg := prometheus.NewRegistry()
	if svc, ok := g.appCtx.GetService(telemetry.ServiceRegistry); ok {
		if r, ok := svc.(*prometheus.Registry); ok {
			reg = r
		}
	}
	metrics, err := newHTTPMetrics(reg)
	if err != nil {
		return fmt.Errorf("gateway: registering metrics: %w", err)
	}
	g.metrics = metrics
	g.gatherer = reg
	return nil
}

func isLoopback(bind string) bool {
	host, _, err := net.SplitHostPort(bind)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// settings are the parts of Config that Reload can change.
type settings struct {
	auth        AuthConfig
	limiter     *security.RateLimiter
	maxBodySize int
}

func newSettings(c Config) *settings {
	return &settings{
		auth:        c.Auth,
		limiter:     security.NewRateLimiter(c.RateLimit),
		maxBodySize: c.MaxBodySize,
	}
}
