package l2

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethstate "github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"l2resolver/events"
	"l2resolver/recordstore"
	"l2resolver/storage"
	"l2resolver/storage/trie"
)

var (
	headKey      = []byte("l2/head")
	headerPrefix = []byte("l2/header/")
)

// Chain is a single-sequencer ledger that executes record store calls, one
// block per call, over go-ethereum's state database. Reads at any produced
// block are served with Merkle proofs.
type Chain struct {
	mu      sync.RWMutex
	db      storage.Database
	stateDB *gethstate.CachingDB
	store   common.Address
	headers []*types.Header

	emitter events.Emitter
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Chain.
type Option func(*Chain)

// WithEmitter forwards committed record store events, stamped with their
// block number.
func WithEmitter(emitter events.Emitter) Option {
	return func(c *Chain) {
		if emitter != nil {
			c.emitter = emitter
		}
	}
}

// WithLogger sets the chain logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Chain) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock overrides the block timestamp source.
func WithClock(now func() time.Time) Option {
	return func(c *Chain) {
		if now != nil {
			c.now = now
		}
	}
}

// NewChain opens the ledger stored in db, creating the genesis block when the
// database is empty. storeAddress is the account hosting the record store.
func NewChain(db storage.Database, storeAddress common.Address, opts ...Option) (*Chain, error) {
	c := &Chain{
		db:      db,
		stateDB: gethstate.NewDatabase(db.TrieDB(), nil),
		store:   storeAddress,
		emitter: events.NoopEmitter{},
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.load(); err != nil {
		return nil, err
	}
	if len(c.headers) == 0 {
		root, err := c.genesisRoot()
		if err != nil {
			return nil, fmt.Errorf("genesis state: %w", err)
		}
		genesis := &types.Header{
			Number:     new(big.Int),
			Difficulty: new(big.Int),
			Root:       root,
			Time:       uint64(c.now().Unix()),
		}
		if err := c.persist(genesis); err != nil {
			return nil, err
		}
		c.headers = append(c.headers, genesis)
	}
	return c, nil
}

// genesisRoot commits the initial account trie. The record store account
// exists from block 0 with nonce 1 and empty storage, as a deployed contract
// would, so unset records are proven absent rather than the account missing.
func (c *Chain) genesisRoot() (common.Hash, error) {
	accounts, err := trie.NewTrie(c.db, nil)
	if err != nil {
		return common.Hash{}, err
	}
	enc, err := rlp.EncodeToBytes(&types.StateAccount{
		Nonce:    1,
		Balance:  new(uint256.Int),
		Root:     types.EmptyRootHash,
		CodeHash: types.EmptyCodeHash.Bytes(),
	})
	if err != nil {
		return common.Hash{}, err
	}
	if err := accounts.Update(crypto.Keccak256(c.store.Bytes()), enc); err != nil {
		return common.Hash{}, err
	}
	return accounts.Commit(types.EmptyRootHash, 0)
}

func (c *Chain) load() error {
	raw, err := c.db.Get(headKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load head: %w", err)
	}
	head := binary.BigEndian.Uint64(raw)
	c.headers = make([]*types.Header, 0, head+1)
	for n := uint64(0); n <= head; n++ {
		enc, err := c.db.Get(headerKey(n))
		if err != nil {
			return fmt.Errorf("load header %d: %w", n, err)
		}
		header := new(types.Header)
		if err := rlp.DecodeBytes(enc, header); err != nil {
			return fmt.Errorf("decode header %d: %w", n, err)
		}
		c.headers = append(c.headers, header)
	}
	return nil
}

func (c *Chain) persist(header *types.Header) error {
	enc, err := rlp.EncodeToBytes(header)
	if err != nil {
		return err
	}
	number := header.Number.Uint64()
	if err := c.db.Put(headerKey(number), enc); err != nil {
		return err
	}
	return c.db.Put(headKey, binary.BigEndian.AppendUint64(nil, number))
}

func headerKey(number uint64) []byte {
	return binary.BigEndian.AppendUint64(append([]byte(nil), headerPrefix...), number)
}

// StoreAddress returns the account hosting the record store.
func (c *Chain) StoreAddress() common.Address { return c.store }

// Head returns the newest block header.
func (c *Chain) Head() *types.Header {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return types.CopyHeader(c.headers[len(c.headers)-1])
}

// BlockNumber implements HeadReader.
func (c *Chain) BlockNumber(context.Context) (uint64, error) {
	return c.Head().Number.Uint64(), nil
}

// Transact runs fn against the record store at the head state. When fn
// succeeds its writes are committed as a new block and its events are emitted;
// when it fails every write is discarded.
func (c *Chain) Transact(fn func(*recordstore.Store) error) (*types.Header, error) {
	c.mu.Lock()
	parent := c.headers[len(c.headers)-1]
	statedb, err := gethstate.New(parent.Root, c.stateDB)
	if err != nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("open state %s: %w", parent.Root, err)
	}
	var pending events.Recorder
	if err := fn(recordstore.New(accountStorage{state: statedb, account: c.store}, &pending)); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	number := parent.Number.Uint64() + 1
	root, err := statedb.Commit(number, false, false)
	if err != nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("commit state: %w", err)
	}
	if err := c.db.TrieDB().Commit(root, false); err != nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("flush state: %w", err)
	}
	header := &types.Header{
		ParentHash: parent.Hash(),
		Number:     new(big.Int).SetUint64(number),
		Difficulty: new(big.Int),
		Root:       root,
		Time:       uint64(c.now().Unix()),
	}
	if err := c.persist(header); err != nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("persist header: %w", err)
	}
	c.headers = append(c.headers, header)
	c.mu.Unlock()

	for _, evt := range pending.Drain() {
		c.emitter.Emit(events.Stamped{Block: number, Event: evt})
	}
	c.logger.Debug("l2 block sealed", "number", number, "root", root.Hex())
	return types.CopyHeader(header), nil
}

// View runs fn against the record store at block number. Writes made by fn
// are discarded.
func (c *Chain) View(number uint64, fn func(*recordstore.Store) error) error {
	header, err := c.header(number)
	if err != nil {
		return err
	}
	statedb, err := gethstate.New(header.Root, c.stateDB)
	if err != nil {
		return fmt.Errorf("open state %s: %w", header.Root, err)
	}
	return fn(recordstore.New(accountStorage{state: statedb, account: c.store}, nil))
}

func (c *Chain) header(number uint64) (*types.Header, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if number >= uint64(len(c.headers)) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownBlock, number)
	}
	return c.headers[number], nil
}

// HeaderByNumber implements StateReader.
func (c *Chain) HeaderByNumber(_ context.Context, number uint64) (*types.Header, error) {
	header, err := c.header(number)
	if err != nil {
		return nil, err
	}
	return types.CopyHeader(header), nil
}

// StorageAt implements StateReader.
func (c *Chain) StorageAt(_ context.Context, account common.Address, slot common.Hash, number uint64) (common.Hash, error) {
	header, err := c.header(number)
	if err != nil {
		return common.Hash{}, err
	}
	statedb, err := gethstate.New(header.Root, c.stateDB)
	if err != nil {
		return common.Hash{}, fmt.Errorf("open state %s: %w", header.Root, err)
	}
	return statedb.GetState(account, slot), nil
}

// GetProof implements StateReader.
func (c *Chain) GetProof(_ context.Context, account common.Address, slots []common.Hash, number uint64) (*AccountProof, error) {
	header, err := c.header(number)
	if err != nil {
		return nil, err
	}
	stateTrie, err := trie.OpenStateTrie(c.db, header.Root)
	if err != nil {
		return nil, fmt.Errorf("open state trie: %w", err)
	}
	accountKey := crypto.Keccak256(account.Bytes())
	accountProof, err := stateTrie.Prove(accountKey)
	if err != nil {
		return nil, fmt.Errorf("prove account %s: %w", account, err)
	}
	result := &AccountProof{
		Address:      account,
		AccountProof: accountProof,
		StorageHash:  types.EmptyRootHash,
		CodeHash:     types.EmptyCodeHash,
		StorageProof: make([]StorageResult, 0, len(slots)),
	}
	enc, err := stateTrie.Get(accountKey)
	if err != nil {
		return nil, fmt.Errorf("read account %s: %w", account, err)
	}
	if len(enc) > 0 {
		var acc types.StateAccount
		if err := rlp.DecodeBytes(enc, &acc); err != nil {
			return nil, fmt.Errorf("decode account %s: %w", account, err)
		}
		result.Nonce = acc.Nonce
		result.StorageHash = acc.Root
		result.CodeHash = common.BytesToHash(acc.CodeHash)
	}
	storageTrie, err := trie.OpenStorageTrie(c.db, header.Root, account, result.StorageHash)
	if err != nil {
		return nil, fmt.Errorf("open storage trie: %w", err)
	}
	for _, slot := range slots {
		key := crypto.Keccak256(slot.Bytes())
		proof, err := storageTrie.Prove(key)
		if err != nil {
			return nil, fmt.Errorf("prove slot %s: %w", slot, err)
		}
		raw, err := storageTrie.Get(key)
		if err != nil {
			return nil, fmt.Errorf("read slot %s: %w", slot, err)
		}
		value, err := DecodeStorageValue(raw)
		if err != nil {
			return nil, fmt.Errorf("slot %s: %w", slot, err)
		}
		result.StorageProof = append(result.StorageProof, StorageResult{Key: slot, Value: value, Proof: proof})
	}
	return result, nil
}

// DecodeStorageValue decodes an RLP storage trie leaf into a 32-byte word. An
// empty leaf is the zero word.
func DecodeStorageValue(raw []byte) (common.Hash, error) {
	if len(raw) == 0 {
		return common.Hash{}, nil
	}
	_, content, _, err := rlp.Split(raw)
	if err != nil {
		return common.Hash{}, fmt.Errorf("decode storage value: %w", err)
	}
	if len(content) > common.HashLength {
		return common.Hash{}, fmt.Errorf("storage value of %d bytes", len(content))
	}
	return common.BytesToHash(content), nil
}

// accountStorage binds record store slots to one account of a StateDB.
type accountStorage struct {
	state   *gethstate.StateDB
	account common.Address
}

func (s accountStorage) GetState(slot common.Hash) common.Hash {
	return s.state.GetState(s.account, slot)
}

func (s accountStorage) SetState(slot, value common.Hash) {
	s.state.SetState(s.account, slot, value)
}
