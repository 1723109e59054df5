package core

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/longbridgeapp/assert"

	"perfstore/internal/sentinel"
)

type countingLedger struct {
	writes atomic.Int32
	fail   error
}

func (l *countingLedger) Write(_ context.Context, hash string, _ string) (string, error) {
	l.writes.Add(1)

	if l.fail != nil {
		return "", l.fail
	}

	return "tx-" + hash[:8], nil
}

func leaf(i int) []byte {
	sum := sha256.Sum256([]byte{byte(i)})

	return sum[:]
}

func TestMerkleProofsVerify(t *testing.T) {
	for n := 1; n <= 7; n++ {
		leaves := make([][]byte, n)
		for i := range leaves {
			leaves[i] = leaf(i)
		}

		tree, err := buildMerkleTree(leaves)
		assert.NoError(t, err)

		rootHex := hex.EncodeToString(tree.root())

		for i := range leaves {
			proof, err := tree.proof(i)
			assert.NoError(t, err)

			ok, err := VerifyProof(leaves[i], proof, rootHex)
			assert.NoError(t, err)
			assert.True(t, ok)
		}

		ok, err := VerifyProof(leaf(100), mustProof(t, tree, 0), rootHex)
		assert.NoError(t, err)
		assert.False(t, ok)
	}
}

func mustProof(t *testing.T, tree merkleTree, i int) []ProofStep {
	t.Helper()

	proof, err := tree.proof(i)
	assert.NoError(t, err)

	return proof
}

func TestMerkleRejectsBadInput(t *testing.T) {
	_, err := buildMerkleTree(nil)
	assert.True(t, errors.Is(err, sentinel.ErrInvalidArgument))

	_, err = RootFromProof(leaf(0), []ProofStep{{Hash: "zz", Side: SideLeft}})
	assert.True(t, errors.Is(err, sentinel.ErrInvalidArgument))

	_, err = RootFromProof(leaf(0), []ProofStep{{Hash: hex.EncodeToString(leaf(1)), Side: "X"}})
	assert.True(t, errors.Is(err, sentinel.ErrInvalidArgument))
}

func TestBatcherGroupsConcurrentAdds(t *testing.T) {
	l := &countingLedger{}
	b := NewMerkleBatcher(l, 4, time.Second, nil)
	defer b.Close()

	results := make([]AnchorResult, 4)

	var wg sync.WaitGroup

	for i := range results {
		wg.Add(1)

		go func() {
			defer wg.Done()

			res, err := b.Add(context.Background(), leaf(i))
			assert.NoError(t, err)

			results[i] = res
		}()
	}

	wg.Wait()

	assert.Equal(t, int32(1), l.writes.Load())

	for i, res := range results {
		assert.Equal(t, 4, res.BatchSize)
		assert.Equal(t, results[0].Root, res.Root)

		ok, err := VerifyProof(leaf(i), res.Proof, res.Root)
		assert.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestBatcherFlushesOnTimeout(t *testing.T) {
	l := &countingLedger{}
	b := NewMerkleBatcher(l, 100, 5*time.Millisecond, nil)
	defer b.Close()

	res, err := b.Add(context.Background(), leaf(1))
	assert.NoError(t, err)
	assert.Equal(t, 1, res.BatchSize)
	assert.Equal(t, hex.EncodeToString(leaf(1)), res.Root)
}

func TestBatcherReportsLedgerFailure(t *testing.T) {
	b := NewMerkleBatcher(&countingLedger{fail: errors.New("peer down")}, 1, 0, nil)
	defer b.Close()

	_, err := b.Add(context.Background(), leaf(1))
	assert.Error(t, err)
}

func TestBatcherClosed(t *testing.T) {
	b := NewMerkleBatcher(&countingLedger{}, 1, 0, nil)
	b.Close()
	b.Close()

	_, err := b.Add(context.Background(), leaf(1))
	assert.True(t, errors.Is(err, sentinel.ErrAnchorStopped))

	_, err = b.Add(context.Background(), []byte("short"))
	assert.True(t, errors.Is(err, sentinel.ErrInvalidArgument))
}
