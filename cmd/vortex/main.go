// Vortex Gateway Server
//
// Standalone HTTP ingress for the vortex multi-protocol API gateway, with
// the admin gRPC surface (pool/cache stats, tag cancellation, config
// reload) served out of the same process on a second listener. Running
// both from one binary avoids inventing a side-channel between an admin
// sidecar and the gateway's live Reloader; DESIGN.md records this as the
// resolution to that open question.
//
// Usage:
//
//	go run ./cmd/vortex                       # config.yaml in cwd, or defaults
//	go run ./cmd/vortex -config gateway.yaml
//	go build -o vortex ./cmd/vortex && ./vortex -config gateway.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/vortex-gateway/vortex/internal/adminrpc"
	"github.com/vortex-gateway/vortex/internal/backend"
	"github.com/vortex-gateway/vortex/internal/diskcache"
	"github.com/vortex-gateway/vortex/internal/gateway"
	"github.com/vortex-gateway/vortex/internal/gwconfig"
	"github.com/vortex-gateway/vortex/internal/httpexec"
	"github.com/vortex-gateway/vortex/internal/pool"
	"github.com/vortex-gateway/vortex/internal/preprocess"
	"github.com/vortex-gateway/vortex/internal/router"
	"github.com/vortex-gateway/vortex/internal/tagcancel"
	"github.com/vortex-gateway/vortex/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "", "path to the gateway YAML config file (defaults seed any field left unset)")
	redisAddr := flag.String("redis-addr", "", "Redis address backing tag-cancel fan-out and the MQ broker; in-process-only when empty")
	flag.Parse()

	logger := telemetry.NewStdLogger()

	cfg := gwconfig.DefaultConfig()
	if *configPath != "" {
		loaded, err := gwconfig.Load(*configPath)
		if err != nil {
			log.Fatalf("vortex: loading config: %v", err)
		}
		cfg = loaded
	}
	gwconfig.Set(cfg)
	logger.Info("config_loaded", "listen_addr", cfg.Server.ListenAddr, "admin_addr", cfg.Server.AdminGRPCAddr)

	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)

	dispatcher := pool.New(cfg.Pool.MaxRequests, cfg.Pool.MaxRequestsPerHost, cfg.Pool.KeepAlive, metrics)

	cache, err := diskcache.Open(cfg.Cache.Directory, cfg.Cache.MaxSizeBytes)
	if err != nil {
		log.Fatalf("vortex: opening disk cache: %v", err)
	}
	defer cache.Close()

	var redisClient *redis.Client
	if *redisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: *redisAddr})
		defer redisClient.Close()
	}

	tags := newTagRegistry(redisClient, logger)

	table := buildTable(cfg)
	chain := buildChain(cfg, logger)
	routers := buildRouters(cfg, dispatcher, redisClient)
	trustedProxies := toSet(cfg.Server.TrustedProxies)

	gw := &gateway.Gateway{
		Table:          table,
		Chain:          chain,
		Cache:          cache,
		Routers:        routers,
		WS:             backend.NewWSRouter(logger),
		Logger:         logger,
		Metrics:        metrics,
		TrustedProxies: trustedProxies,
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.Handle("/", gw)

	httpServer := &http.Server{Addr: cfg.Server.ListenAddr, Handler: mux}

	adminSvc := &adminrpc.Service{Dispatcher: dispatcher, Tags: tags, Cache: cache, Reloader: reloaderFunc(func(ctx context.Context) error {
		if *configPath == "" {
			return fmt.Errorf("vortex: no -config path to reload from")
		}
		reloaded, err := gwconfig.Load(*configPath)
		if err != nil {
			return err
		}
		gwconfig.Set(reloaded)
		return nil
	})}
	adminServer := adminrpc.NewServer(adminSvc, cfg.Server.AdminGRPCAddr, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if redisClient != nil {
		if rr, ok := tags.(*tagcancel.RedisRegistry); ok {
			go func() {
				if err := rr.Listen(ctx); err != nil && ctx.Err() == nil {
					logger.Warn("tag_cancel_listen_stopped", "error", err.Error())
				}
			}()
		}
	}

	go func() {
		if err := adminServer.Start(ctx); err != nil {
			logger.Error("admin_server_failed", "error", err.Error())
		}
	}()

	go func() {
		logger.Info("gateway_listening", "addr", cfg.Server.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("gateway_server_failed", "error", err.Error())
		}
	}()

	fmt.Printf("\nvortex gateway running on %s (admin on %s)\n", cfg.Server.ListenAddr, cfg.Server.AdminGRPCAddr)
	fmt.Println("Press Ctrl+C to stop")

	sig := <-sigCh
	logger.Info("shutdown_signal_received", "signal", sig.String())
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("gateway_shutdown_error", "error", err.Error())
	}
	adminServer.ShutdownWithTimeout(10 * time.Second)
	logger.Info("vortex_stopped")
}

type reloaderFunc func(ctx context.Context) error

func (f reloaderFunc) Reload(ctx context.Context) error { return f(ctx) }

func newTagRegistry(client *redis.Client, logger telemetry.Logger) tagcancel.TagRegistry {
	if client == nil {
		return tagcancel.NewRegistry()
	}
	logger.Info("tag_cancel_backend", "backend", "redis")
	return tagcancel.NewRedisRegistry(client, "vortex:tagcancel")
}

func buildTable(cfg *gwconfig.Config) *router.Table {
	table := router.NewTable()
	for _, rc := range cfg.Routes {
		asset := router.FromRouteConfig(rc)
		method := rc.Method
		if method == "" {
			method = http.MethodGet
		}
		table.Register(method, rc.Path, asset)
	}
	return table
}

func buildChain(cfg *gwconfig.Config, logger telemetry.Logger) *preprocess.Chain {
	chain := preprocess.NewChain(cfg.Server.PreprocTimeout, logger)
	for _, name := range cfg.Preprocessors {
		switch name {
		case "rate_limit":
			if cfg.RateLimit.Enabled {
				chain.RegisterSerial(preprocess.NewRateLimitPreprocessor(preprocess.NewRateLimiter(&preprocess.RateLimitConfig{
					RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
					RequestsPerHour:   cfg.RateLimit.RequestsPerHour,
					RequestsPerDay:    cfg.RateLimit.RequestsPerDay,
					BurstSize:         cfg.RateLimit.BurstSize,
				})))
			}
		case "auth":
			chain.RegisterSerial(preprocess.NewAuthPreprocessor(apiKeysFromEnv()))
		default:
			logger.Warn("unknown_preprocessor_configured", "name", name)
		}
	}
	return chain
}

func apiKeysFromEnv() []string {
	keys := os.Getenv("VORTEX_API_KEYS")
	if keys == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(keys); i++ {
		if i == len(keys) || keys[i] == ',' {
			if i > start {
				out = append(out, keys[start:i])
			}
			start = i + 1
		}
	}
	return out
}

func buildRouters(cfg *gwconfig.Config, dispatcher *pool.Dispatcher, redisClient *redis.Client) map[router.Kind]backend.Router {
	executor := httpexec.New(nil)
	routers := map[router.Kind]backend.Router{
		router.KindREST: backend.NewRESTRouterWithDispatcher(executor, dispatcher),
	}

	if redisClient != nil {
		broker := backend.NewRedisBroker(redisClient, "vortex:mq:")
		routers[router.KindMQ] = backend.NewMQRouter(broker)
	}

	providers := map[string]backend.Provider{}
	for _, rc := range cfg.Routes {
		if rc.Kind != "LLM" {
			continue
		}
		model := rc.Metadata["model"]
		if model == "" {
			model = rc.Host
		}
		providers[model] = backend.NewHTTPProvider(rc.URL)
	}
	if len(providers) > 0 {
		routers[router.KindLLM] = backend.NewLLMRouter(func(model string) (backend.Provider, bool) {
			p, ok := providers[model]
			return p, ok
		})
	}

	// MCP ToolRegistry implementations are service-specific RPC clients the
	// operator supplies; none are wired here since this generic binary has
	// no MCP-capable service baked in. A deployment that needs one builds
	// its own main package importing internal/backend and internal/gateway
	// directly, registering routers[router.KindMCP] before serving.

	return routers
}

func toSet(values []string) map[string]bool {
	out := make(map[string]bool, len(values))
	for _, v := range values {
		out[v] = true
	}
	return out
}
