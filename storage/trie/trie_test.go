package trie

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	gethtrie "github.com/ethereum/go-ethereum/trie"
	"github.com/stretchr/testify/require"

	"l2resolver/storage"
)

func TestTrieCommitFlushPersistsData(t *testing.T) {
	dir := t.TempDir()

	db1, err := storage.NewLevelDB(dir)
	require.NoError(t, err)

	tr, err := NewTrie(db1, nil)
	require.NoError(t, err)

	key := crypto.Keccak256Hash([]byte("key"))
	value := []byte("value")

	require.NoError(t, tr.Update(key.Bytes(), value))
	root, err := tr.Commit(common.Hash{}, 0)
	require.NoError(t, err)

	db1.Close()

	db2, err := storage.NewLevelDB(dir)
	require.NoError(t, err)
	defer db2.Close()

	restored, err := NewTrie(db2, root.Bytes())
	require.NoError(t, err)

	got, err := restored.Get(key.Bytes())
	require.NoError(t, err)
	require.Equal(t, value, got)
}

func TestProveInclusionAndAbsence(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()

	tr, err := NewTrie(db, nil)
	require.NoError(t, err)
	for i := 0; i < 32; i++ {
		key := crypto.Keccak256([]byte{byte(i)})
		require.NoError(t, tr.Update(key, []byte{byte(i), 0xff}))
	}
	root, err := tr.Commit(common.Hash{}, 1)
	require.NoError(t, err)

	present := crypto.Keccak256([]byte{7})
	proof, err := tr.Prove(present)
	require.NoError(t, err)
	require.NotEmpty(t, proof)
	require.Equal(t, root, crypto.Keccak256Hash(proof[0]))

	value, err := gethtrie.VerifyProof(root, present, NewProofSet(proof))
	require.NoError(t, err)
	require.Equal(t, []byte{7, 0xff}, value)

	absent := crypto.Keccak256([]byte("missing"))
	proof, err = tr.Prove(absent)
	require.NoError(t, err)
	value, err = gethtrie.VerifyProof(root, absent, NewProofSet(proof))
	require.NoError(t, err)
	require.Nil(t, value)
}
