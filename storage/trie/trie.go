package trie

import (
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
	gethtrie "github.com/ethereum/go-ethereum/trie"
	"github.com/ethereum/go-ethereum/trie/trienode"
	"github.com/ethereum/go-ethereum/triedb"

	"l2resolver/storage"
)

// Trie wraps go-ethereum's trie implementation to expose a simplified API for
// seeding state and producing Merkle proofs.
//
// The keys passed into Get/Update/Prove are expected to be fully hashed
// (keccak256) before insertion, matching the secure trie layout of the L2
// state.
//
// Trie is not safe for concurrent use.
type Trie struct {
	trieDB *triedb.Database
	trie   *gethtrie.Trie
}

// NewTrie opens a plain trie backed by the provided storage at an optional
// root. A nil or empty root denotes the empty trie.
func NewTrie(store storage.Database, root []byte) (*Trie, error) {
	rootHash := gethtypes.EmptyRootHash
	if len(root) > 0 {
		rootHash = common.BytesToHash(root)
	}
	return open(store, gethtrie.TrieID(rootHash))
}

// OpenStateTrie opens the account trie committed under stateRoot.
func OpenStateTrie(store storage.Database, stateRoot common.Hash) (*Trie, error) {
	return open(store, gethtrie.StateTrieID(stateRoot))
}

// OpenStorageTrie opens the storage trie of account as of stateRoot.
func OpenStorageTrie(store storage.Database, stateRoot common.Hash, account common.Address, storageRoot common.Hash) (*Trie, error) {
	return open(store, gethtrie.StorageTrieID(stateRoot, crypto.Keccak256Hash(account.Bytes()), storageRoot))
}

func open(store storage.Database, id *gethtrie.ID) (*Trie, error) {
	trieDB := store.TrieDB()
	underlying, err := gethtrie.New(id, trieDB)
	if err != nil {
		return nil, err
	}
	return &Trie{trieDB: trieDB, trie: underlying}, nil
}

// Get retrieves a value from the trie for the provided key.
func (t *Trie) Get(key []byte) ([]byte, error) {
	return t.trie.Get(key)
}

// Update inserts or updates a value in the trie for the provided key.
func (t *Trie) Update(key, value []byte) error {
	return t.trie.Update(key, value)
}

// Prove returns the RLP encoded nodes on the path to key, root first. The
// proof shows absence when the key is not in the trie.
func (t *Trie) Prove(key []byte) ([][]byte, error) {
	var proof proofList
	if err := t.trie.Prove(key, &proof); err != nil {
		return nil, err
	}
	return proof, nil
}

// Commit persists the trie changes to the backing database and returns the new
// root hash. After committing the wrapper recreates the underlying trie so it
// can be reused for subsequent transitions.
func (t *Trie) Commit(parent common.Hash, blockNumber uint64) (common.Hash, error) {
	newRoot, nodes := t.trie.Commit(false)
	if nodes != nil {
		merged := trienode.NewMergedNodeSet()
		if err := merged.Merge(nodes); err != nil {
			return common.Hash{}, err
		}
		if err := t.trieDB.Update(newRoot, parent, blockNumber, merged, nil); err != nil {
			return common.Hash{}, err
		}
		if err := t.trieDB.Commit(newRoot, false); err != nil {
			return common.Hash{}, err
		}
	}
	underlying, err := gethtrie.New(gethtrie.TrieID(newRoot), t.trieDB)
	if err != nil {
		return common.Hash{}, err
	}
	t.trie = underlying
	return newRoot, nil
}

// proofList collects proof nodes in the order the trie emits them.
type proofList [][]byte

func (p *proofList) Put(_ []byte, value []byte) error {
	*p = append(*p, common.CopyBytes(value))
	return nil
}

func (p *proofList) Delete([]byte) error {
	return nil
}

// NewProofSet indexes proof nodes by their hash so they can be walked with
// go-ethereum's trie.VerifyProof.
func NewProofSet(nodes [][]byte) *memorydb.Database {
	set := memorydb.New()
	for _, node := range nodes {
		_ = set.Put(crypto.Keccak256(node), node)
	}
	return set
}
