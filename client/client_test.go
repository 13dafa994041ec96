package client_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"l2resolver/client"
	"l2resolver/ens"
	"l2resolver/gateway"
	"l2resolver/l2"
	"l2resolver/oracle"
	"l2resolver/recordstore"
	"l2resolver/resolver"
	"l2resolver/storage"
	"l2resolver/verifier"
)

var (
	storeAddr    = common.HexToAddress("0x39Dc8A3A607970FA9F417D284E958D4cA69296C8")
	resolverAddr = common.HexToAddress("0x00000000000000000000000000000000000e0501")
	alice        = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
)

type stack struct {
	chain    *l2.Chain
	ledger   *oracle.Ledger
	registry *ens.StaticRegistry
	gateway  *httptest.Server
}

func newStack(t *testing.T) *stack {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	chain, err := l2.NewChain(db, storeAddr)
	require.NoError(t, err)
	ledger := oracle.NewLedger()
	registry := ens.NewStaticRegistry()
	require.NoError(t, registry.SetOwner("alice.eth", alice))

	svc, err := gateway.NewService(registry, ledger, gateway.NewProver(chain, storeAddr, nil), gateway.WithMetrics(nil))
	require.NoError(t, err)
	r := chi.NewRouter()
	gateway.NewHandler(svc, time.Second, time.Second).Mount(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &stack{chain: chain, ledger: ledger, registry: registry, gateway: srv}
}

func (s *stack) seed(t *testing.T) {
	t.Helper()
	wire, err := ens.DNSEncode("alice.eth")
	require.NoError(t, err)
	_, err = s.chain.Transact(func(st *recordstore.Store) error {
		if err := st.SetText(alice, wire, "network.profile", `{"a":1}`); err != nil {
			return err
		}
		if err := st.SetAddr(alice, wire, common.HexToAddress("0xf00d")); err != nil {
			return err
		}
		return st.SetContenthash(alice, wire, []byte{0xe3, 0x01})
	})
	require.NoError(t, err)
	head := s.chain.Head()
	proof, err := oracle.BuildOutputRootProof(context.Background(), s.chain, oracle.OutputV0{}, head.Number.Uint64())
	require.NoError(t, err)
	_, err = s.ledger.Append(oracle.OutputV0{}.OutputRoot(proof), head.Number.Uint64(), head.Time)
	require.NoError(t, err)
}

func (s *stack) client(t *testing.T, urls ...string) *client.Client {
	t.Helper()
	r, err := resolver.New(resolverAddr, urls, s.registry, verifier.New(s.ledger, storeAddr, nil), resolver.WithMetrics(nil))
	require.NoError(t, err)
	return client.New(r, client.WithMetrics(nil))
}

func TestClientResolvesAllRecordKinds(t *testing.T) {
	s := newStack(t)
	s.seed(t)
	c := s.client(t, s.gateway.URL+"/{sender}/{data}.json")
	ctx := context.Background()

	text, err := c.Text(ctx, "Alice.eth", "network.profile")
	require.NoError(t, err)
	require.Equal(t, `{"a":1}`, text)

	missing, err := c.Text(ctx, "alice.eth", "never.set")
	require.NoError(t, err)
	require.Equal(t, "", missing)

	addr, err := c.Addr(ctx, "alice.eth")
	require.NoError(t, err)
	require.Equal(t, common.HexToAddress("0xf00d"), addr)

	hash, err := c.Contenthash(ctx, "alice.eth")
	require.NoError(t, err)
	require.Equal(t, []byte{0xe3, 0x01}, hash)

	coin, err := c.AddrCoin(ctx, "alice.eth", 0)
	require.NoError(t, err)
	require.Empty(t, coin)
}

func TestClientUsesPostTemplates(t *testing.T) {
	s := newStack(t)
	s.seed(t)
	c := s.client(t, s.gateway.URL+"/")

	text, err := c.Text(context.Background(), "alice.eth", "network.profile")
	require.NoError(t, err)
	require.Equal(t, `{"a":1}`, text)
}

func TestClientFallsBackOnServerErrors(t *testing.T) {
	s := newStack(t)
	s.seed(t)
	var hits atomic.Int32
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(broken.Close)

	c := s.client(t, broken.URL+"/{sender}/{data}", s.gateway.URL+"/{sender}/{data}")
	text, err := c.Text(context.Background(), "alice.eth", "network.profile")
	require.NoError(t, err)
	require.Equal(t, `{"a":1}`, text)
	require.Equal(t, int32(1), hits.Load())
}

func TestClientStopsOnClientErrors(t *testing.T) {
	s := newStack(t)
	s.seed(t)
	var hits atomic.Int32
	counting := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(counting.Close)

	c := s.client(t, s.gateway.URL+"/not-an-address-{sender}/{data}", counting.URL+"/{sender}/{data}")
	_, err := c.Text(context.Background(), "alice.eth", "network.profile")
	var gwErr *client.GatewayError
	require.True(t, errors.As(err, &gwErr))
	require.Equal(t, http.StatusBadRequest, gwErr.Status)
	require.Zero(t, hits.Load())
}

func TestClientReportsExhaustedGateways(t *testing.T) {
	s := newStack(t)
	// Nothing published: the gateway answers 503.
	c := s.client(t, s.gateway.URL+"/{sender}/{data}")

	_, err := c.Text(context.Background(), "alice.eth", "network.profile")
	require.ErrorIs(t, err, client.ErrGatewaysExhausted)
	var gwErr *client.GatewayError
	require.True(t, errors.As(err, &gwErr))
	require.Equal(t, http.StatusServiceUnavailable, gwErr.Status)
}

func TestClientDoesNotAcceptUnverifiedAnswers(t *testing.T) {
	s := newStack(t)
	s.seed(t)
	liar := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":"0x"}`))
	}))
	t.Cleanup(liar.Close)

	c := s.client(t, liar.URL+"/{sender}/{data}", s.gateway.URL+"/{sender}/{data}")
	_, err := c.Text(context.Background(), "alice.eth", "network.profile")
	require.Error(t, err)
	require.NotErrorIs(t, err, client.ErrGatewaysExhausted)
}
