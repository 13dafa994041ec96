package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"l2resolver/client"
	"l2resolver/config"
	"l2resolver/ens"
	"l2resolver/gateway"
	"l2resolver/gateway/middleware"
	"l2resolver/gateway/routes"
	"l2resolver/indexer"
	"l2resolver/l2"
	"l2resolver/observability"
	"l2resolver/observability/logging"
	telemetry "l2resolver/observability/otel"
	"l2resolver/oracle"
	"l2resolver/recordstore"
	"l2resolver/resolver"
	"l2resolver/storage"
	"l2resolver/verifier"
)

func main() {
	var cfgPath string
	var selfCheck bool
	flag.StringVar(&cfgPath, "config", "./devnet/config.toml", "path to devnet configuration")
	flag.BoolVar(&selfCheck, "self-check", true, "resolve every seeded name through the gateway once the first checkpoint lands")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("L2R_ENV"))
	if env == "" {
		env = "dev"
	}
	logger := logging.Setup("devnet", env)
	if err := run(cfgPath, env, selfCheck, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("devnet stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfgPath, env string, selfCheck bool, logger *slog.Logger) error {
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.ConfigFromEnv("devnet", env))
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() { _ = shutdownTelemetry(context.Background()) }()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	node, err := newDevnet(cfg, logger)
	if err != nil {
		return err
	}
	defer node.Close()
	if err := node.Seed(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	listener, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	server := &http.Server{
		Handler:           node.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ErrorLog:          logging.StdLogger(logger, "http"),
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return node.proposer.Run(ctx) })
	group.Go(func() error {
		logger.Info("devnet gateway listening",
			"address", listener.Addr().String(),
			"resolver", cfg.Resolver().Hex(),
			"record_store", cfg.RecordStore().Hex(),
			"urls", cfg.GatewayURLs,
		)
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if selfCheck {
		group.Go(func() error {
			node.SelfCheck(ctx, cfg.GatewayURLs)
			return nil
		})
	}
	return group.Wait()
}

// devnet runs the L2 ledger, the output oracle and the gateway in one process.
type devnet struct {
	cfg      *config.Config
	logger   *slog.Logger
	db       storage.Database
	index    *indexer.Indexer
	chain    *l2.Chain
	ledger   *oracle.Ledger
	registry *ens.StaticRegistry
	proposer *oracle.Proposer
	service  *gateway.Service
	rpc      *rpc.Server
}

func newDevnet(cfg *config.Config, logger *slog.Logger) (*devnet, error) {
	var db storage.Database
	if cfg.DataDir == "" {
		db = storage.NewMemDB()
	} else {
		leveldb, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "chain"))
		if err != nil {
			return nil, err
		}
		db = leveldb
	}
	index, err := indexer.Open(cfg.IndexPath, logger.With("component", "indexer"))
	if err != nil {
		db.Close()
		return nil, err
	}
	n := &devnet{cfg: cfg, logger: logger, db: db, index: index, ledger: oracle.NewLedger(), registry: ens.NewStaticRegistry()}

	n.chain, err = l2.NewChain(db, cfg.RecordStore(), l2.WithEmitter(index), l2.WithLogger(logger.With("component", "l2")))
	if err != nil {
		n.Close()
		return nil, fmt.Errorf("open l2 chain: %w", err)
	}
	n.rpc, err = l2.NewRPCServer(n.chain)
	if err != nil {
		n.Close()
		return nil, fmt.Errorf("l2 rpc server: %w", err)
	}
	n.proposer, err = oracle.NewProposer(n.chain, n.ledger, cfg.ProposeInterval(),
		oracle.WithProposerLogger(logging.StdLogger(logger, "proposer")))
	if err != nil {
		n.Close()
		return nil, err
	}
	prover := gateway.NewProver(n.chain, cfg.RecordStore(), nil)
	n.service, err = gateway.NewService(n.registry, n.ledger, prover,
		gateway.WithLogger(logger.With("component", "lookup")),
		gateway.WithMetrics(observability.Gateway()),
	)
	if err != nil {
		n.Close()
		return nil, err
	}
	return n, nil
}

// Seed registers the configured owners and, on a fresh chain, writes their
// records in a single block.
func (n *devnet) Seed() error {
	seeds := make([]config.SeedRecords, 0, len(n.cfg.Seeds))
	for _, raw := range n.cfg.Seeds {
		seed, err := raw.Decode()
		if err != nil {
			return err
		}
		if err := n.registry.SetOwner(seed.Name, seed.Owner); err != nil {
			return err
		}
		seeds = append(seeds, seed)
	}
	if len(seeds) == 0 || n.chain.Head().Number.Uint64() > 0 {
		return nil
	}
	header, err := n.chain.Transact(func(store *recordstore.Store) error {
		for _, seed := range seeds {
			for key, value := range seed.Text {
				if err := store.SetText(seed.Owner, seed.Wire, key, value); err != nil {
					return err
				}
			}
			if seed.Addr != nil {
				if err := store.SetAddr(seed.Owner, seed.Wire, *seed.Addr); err != nil {
					return err
				}
			}
			if seed.Contenthash != nil {
				if err := store.SetContenthash(seed.Owner, seed.Wire, seed.Contenthash); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("seed records: %w", err)
	}
	n.logger.Info("seeded records", "names", len(seeds), "block", header.Number.Uint64())
	return nil
}

// Handler serves the gateway routes, the L2 JSON-RPC endpoint at /rpc and
// the devnet history endpoint.
func (n *devnet) Handler() http.Handler {
	r := chi.NewRouter()
	r.Handle("/rpc", n.rpc)
	r.Get("/devnet/history/{name}", n.history)
	r.Mount("/", routes.New(routes.Config{
		Lookup: gateway.NewHandler(n.service, n.cfg.LookupTimeout(), n.cfg.RetryAfter()),
		Ready: func(*http.Request) error {
			if n.ledger.Len() == 0 {
				return errors.New("no checkpoint published yet")
			}
			return nil
		},
		Observability: middleware.NewObservability(middleware.ObservabilityConfig{
			ServiceName: "l2resolver-devnet",
			LogRequests: true,
			Enabled:     true,
		}, n.logger.With("component", "http")),
	}))
	return r
}

type historyEntry struct {
	ID         uint64            `json:"id"`
	Block      uint64            `json:"block"`
	Type       string            `json:"type"`
	Version    uint64            `json:"version"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

func (n *devnet) history(w http.ResponseWriter, r *http.Request) {
	name, err := ens.Normalize(chi.URLParam(r, "name"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	node := ens.NameHash(name)
	owner, err := n.registry.Owner(r.Context(), node)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	changes, err := n.index.History(r.Context(), owner, node)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	out := make([]historyEntry, 0, len(changes))
	for _, change := range changes {
		attrs, err := change.Attrs()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		out = append(out, historyEntry{ID: change.ID, Block: change.Block, Type: change.Type, Version: change.Version, Attributes: attrs})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

// Resolver returns the entry contract view clients resolve against.
func (n *devnet) Resolver(urls []string) (*resolver.Resolver, error) {
	v := verifier.New(n.ledger, n.cfg.RecordStore(), nil)
	return resolver.New(n.cfg.Resolver(), urls, n.registry, v, resolver.WithMetrics(observability.Resolver()))
}

// SelfCheck waits for the first checkpoint and resolves the seeded text
// records through the gateway, logging the verified values.
func (n *devnet) SelfCheck(ctx context.Context, urls []string) {
	entry, err := n.Resolver(urls)
	if err != nil {
		n.logger.Error("self-check resolver", "error", err)
		return
	}
	c := client.New(entry, client.WithLogger(n.logger.With("component", "client")))
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for n.ledger.Len() == 0 {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
	for _, raw := range n.cfg.Seeds {
		for key := range raw.Text {
			value, err := c.Text(ctx, raw.Name, key)
			if err != nil {
				n.logger.Warn("self-check failed", "name", raw.Name, "key", key, "error", err)
				continue
			}
			n.logger.Info("self-check resolved", "name", raw.Name, "key", key, "value", value)
		}
	}
}

func (n *devnet) Close() {
	if n.rpc != nil {
		n.rpc.Stop()
	}
	if n.index != nil {
		if err := n.index.Close(); err != nil {
			n.logger.Warn("close index", "error", err)
		}
	}
	n.db.Close()
}
