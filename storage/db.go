package storage

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/ethdb/leveldb"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
	"github.com/ethereum/go-ethereum/triedb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("storage: key not found")

// Database is a generic interface for a key-value store that also hosts the
// Merkle trie nodes of the L2 state. This allows the ledger to use any
// database backend (in-memory or persistent).
type Database interface {
	Put(key []byte, value []byte) error
	Get(key []byte) ([]byte, error)
	// TrieDB returns the trie node database layered over the store. All state
	// tries and proofs share it.
	TrieDB() *triedb.Database
	Close() // A way to gracefully shut down the database connection.
}

type kvDatabase struct {
	disk      ethdb.Database
	trieDB    *triedb.Database
	closeOnce sync.Once
}

func newKVDatabase(kv ethdb.KeyValueStore) *kvDatabase {
	disk := rawdb.NewDatabase(kv)
	return &kvDatabase{
		disk:   disk,
		trieDB: triedb.NewDatabase(disk, triedb.HashDefaults),
	}
}

func (db *kvDatabase) Put(key []byte, value []byte) error {
	return db.disk.Put(key, value)
}

func (db *kvDatabase) Get(key []byte) ([]byte, error) {
	ok, err := db.disk.Has(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return db.disk.Get(key)
}

func (db *kvDatabase) TrieDB() *triedb.Database {
	return db.trieDB
}

func (db *kvDatabase) Close() {
	db.closeOnce.Do(func() {
		_ = db.trieDB.Close()
		_ = db.disk.Close()
	})
}

// --- In-Memory DB (for testing and ephemeral devnets) ---

type MemDB struct {
	*kvDatabase
}

func NewMemDB() *MemDB {
	return &MemDB{kvDatabase: newKVDatabase(memorydb.New())}
}

// --- Persistent DB ---

// LevelDB is a persistent key-value store using LevelDB.
type LevelDB struct {
	*kvDatabase
}

// NewLevelDB creates or opens a LevelDB database at the specified path.
func NewLevelDB(path string) (*LevelDB, error) {
	kv, err := leveldb.NewCustom(path, "l2resolver/db/", func(options *opt.Options) {
		options.OpenFilesCacheCapacity = 64
		options.BlockCacheCapacity = 16 * opt.MiB
		options.WriteBuffer = 8 * opt.MiB
	})
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", path, err)
	}
	return &LevelDB{kvDatabase: newKVDatabase(kv)}, nil
}
