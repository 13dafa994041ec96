package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"l2resolver/ens"
	"l2resolver/gateway"
	"l2resolver/gateway/config"
	"l2resolver/gateway/middleware"
	"l2resolver/gateway/routes"
	"l2resolver/l2"
	"l2resolver/observability"
	"l2resolver/observability/logging"
	telemetry "l2resolver/observability/otel"
	"l2resolver/oracle"
)

func main() {
	var cfgPath string
	var allowInsecureFlag bool
	flag.StringVar(&cfgPath, "config", "", "path to gateway configuration")
	flag.BoolVar(&allowInsecureFlag, "allow-insecure", false, "DEV ONLY: permit plaintext listeners on loopback interfaces")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("L2R_ENV"))
	logger := logging.Setup("gateway", env)
	fatal := func(msg string, err error) {
		logger.Error(msg, "error", err)
		os.Exit(1)
	}

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.ConfigFromEnv("gateway", env))
	if err != nil {
		fatal("failed to initialise telemetry", err)
	}
	defer func() { _ = shutdownTelemetry(context.Background()) }()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fatal("load config", err)
	}
	configDir := ""
	if strings.TrimSpace(cfgPath) != "" {
		configDir = filepath.Dir(cfgPath)
	}

	for name, endpoint := range map[string]string{"l1_rpc": cfg.Chain.L1RPC, "l2_rpc": cfg.Chain.L2RPC} {
		parsed, err := url.Parse(endpoint)
		if err != nil {
			fatal("parse "+name, err)
		}
		if err := config.EnforceSecureScheme(env, parsed); err != nil {
			fatal("enforce secure scheme for "+name, err)
		}
	}

	dialCtx, cancelDial := context.WithTimeout(context.Background(), 15*time.Second)
	l1, err := ethclient.DialContext(dialCtx, cfg.Chain.L1RPC)
	if err != nil {
		cancelDial()
		fatal("dial l1 rpc", err)
	}
	defer l1.Close()
	l2State, err := l2.DialRPC(dialCtx, cfg.Chain.L2RPC)
	cancelDial()
	if err != nil {
		fatal("dial l2 rpc", err)
	}
	defer l2State.Close()
	logger.Info("connected to chains",
		logging.Endpoint("l1_rpc", cfg.Chain.L1RPC),
		logging.Endpoint("l2_rpc", cfg.Chain.L2RPC),
		slog.String("record_store", cfg.Chain.RecordStore),
	)

	registry, err := ens.NewRPCRegistry(l1, cfg.Chain.Address(cfg.Chain.ENSRegistry))
	if err != nil {
		fatal("bind ens registry", err)
	}
	outputs, err := oracle.NewRPCReader(l1, cfg.Chain.Address(cfg.Chain.OutputOracle))
	if err != nil {
		fatal("bind output oracle", err)
	}
	var checkpoints oracle.Reader = outputs
	if cfg.CheckpointCacheTTL > 0 {
		checkpoints = oracle.NewCached(outputs, cfg.CheckpointCacheTTL)
	}

	prover := gateway.NewProver(l2State, cfg.Chain.Address(cfg.Chain.RecordStore), nil)
	service, err := gateway.NewService(registry, checkpoints, prover,
		gateway.WithLogger(logger.With("component", "lookup")),
		gateway.WithMetrics(observability.Gateway()),
	)
	if err != nil {
		fatal("configure gateway service", err)
	}

	obs := middleware.NewObservability(middleware.ObservabilityConfig{
		ServiceName:   cfg.Observability.ServiceName,
		MetricsPrefix: cfg.Observability.MetricsPrefix,
		LogRequests:   cfg.Observability.LogRequests,
		Enabled:       cfg.Observability.Metrics || cfg.Observability.Tracing,
	}, logger.With("component", "http"))

	router := routes.New(routes.Config{
		Lookup: gateway.NewHandler(service, cfg.LookupTimeout, cfg.RetryAfter),
		Ready: func(r *http.Request) error {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if _, err := l2State.BlockNumber(ctx); err != nil {
				return fmt.Errorf("l2 rpc: %w", err)
			}
			if _, err := l1.BlockNumber(ctx); err != nil {
				return fmt.Errorf("l1 rpc: %w", err)
			}
			return nil
		},
		RateLimiter: middleware.NewRateLimiter(map[string]middleware.RateLimit{
			routes.LookupRateLimitKey: {RatePerSecond: cfg.RateLimit.PerSecond(), Burst: cfg.RateLimit.Burst},
		}, logger),
		Observability: obs,
		CORS:          middleware.CORSConfig{AllowedOrigins: cfg.AllowedOrigins},
	})

	handler := http.Handler(router)
	if cfg.Observability.Tracing {
		handler = otelhttp.NewHandler(router, "gateway")
	}

	tlsConfig, err := buildTLSConfig(configDir, cfg.Security)
	if err != nil {
		fatal("configure TLS", err)
	}

	allowInsecure := cfg.Security.AllowInsecure || allowInsecureFlag
	if tlsConfig == nil {
		if !allowInsecure {
			fatal("gateway TLS certificate and key are required", fmt.Errorf("provide security.tlsCertFile/tlsKeyFile or start with --allow-insecure in dev"))
		}
		if !strings.EqualFold(env, "dev") && !isLoopbackAddress(cfg.ListenAddress) {
			fatal("plaintext gateway mode is restricted", fmt.Errorf("listener %s is not loopback", cfg.ListenAddress))
		}
	}

	server := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		ErrorLog:     logging.StdLogger(logger, "http"),
	}
	if tlsConfig != nil {
		server.TLSConfig = tlsConfig
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	listener, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		fatal("listen", err)
	}
	go func() {
		scheme := "http"
		if tlsConfig != nil {
			scheme = "https"
		}
		logger.Info("gateway listening", "address", fmt.Sprintf("%s://%s", scheme, listener.Addr()))
		var serveErr error
		if tlsConfig != nil {
			serveErr = server.Serve(tls.NewListener(listener, tlsConfig))
		} else {
			serveErr = server.Serve(listener)
		}
		if serveErr != nil && serveErr != http.ErrServerClosed {
			fatal("listen and serve", serveErr)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", "error", err)
	}
}

func buildTLSConfig(baseDir string, sec config.SecurityConfig) (*tls.Config, error) {
	certPath := resolveTLSPath(baseDir, sec.TLSCertFile)
	keyPath := resolveTLSPath(baseDir, sec.TLSKeyFile)
	caPath := resolveTLSPath(baseDir, sec.TLSClientCAFile)
	if certPath == "" && keyPath == "" && caPath == "" {
		return nil, nil
	}
	if certPath == "" || keyPath == "" {
		return nil, fmt.Errorf("security.tlsCertFile and security.tlsKeyFile must both be provided when enabling TLS")
	}
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("load TLS key pair: %w", err)
	}
	tlsCfg := &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}
	if caPath != "" {
		data, err := os.ReadFile(caPath)
		if err != nil {
			return nil, fmt.Errorf("read client CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(data) {
			return nil, fmt.Errorf("parse client CA file %s", caPath)
		}
		tlsCfg.ClientCAs = pool
		tlsCfg.ClientAuth = tls.RequireAndVerifyClientCert
	}
	return tlsCfg, nil
}

func resolveTLSPath(baseDir, path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return ""
	}
	if baseDir == "" || filepath.IsAbs(trimmed) {
		return trimmed
	}
	return filepath.Join(baseDir, trimmed)
}

func isLoopbackAddress(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	host = strings.TrimSpace(host)
	if host == "" {
		return false
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
