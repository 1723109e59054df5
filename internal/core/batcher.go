package core

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/hyp3rd/ewrap"
	"go.uber.org/zap"

	"perfstore/internal/sentinel"
)

const (
	defaultMaxWait       = 25 * time.Millisecond
	defaultLedgerTimeout = 30 * time.Second
	leafSize             = 32
)

type batchItem struct {
	leaf     []byte
	enqueued time.Time
	resp     chan anchorResponse
}

type anchorResponse struct {
	result AnchorResult
	err    error
}

// AnchorResult is returned to each Add caller once its batch root is on the ledger.
type AnchorResult struct {
	Root      string
	TxID      string
	Index     int
	BatchSize int
	Proof     []ProofStep
	// Waited is the time from enqueue to flush start.
	Waited time.Duration
	// LedgerLatency is the duration of the ledger write of the batch.
	LedgerLatency time.Duration
}

// MerkleBatcher groups payload digests into Merkle trees and writes one
// root per batch to the ledger. A batch is flushed when it is full or when
// its first item has waited maxWait.
type MerkleBatcher struct {
	ledger    Ledger
	batchSize int
	maxWait   time.Duration
	log       *zap.Logger

	in   chan *batchItem
	stop chan struct{}
	done chan struct{}
}

// NewMerkleBatcher starts the flush loop. Close stops it.
func NewMerkleBatcher(ledger Ledger, batchSize int, maxWait time.Duration, log *zap.Logger) *MerkleBatcher {
	if batchSize < 1 {
		batchSize = 1
	}

	if maxWait <= 0 {
		maxWait = defaultMaxWait
	}

	if log == nil {
		log = zap.NewNop()
	}

	b := &MerkleBatcher{
		ledger:    ledger,
		batchSize: batchSize,
		maxWait:   maxWait,
		log:       log,
		in:        make(chan *batchItem, batchSize*4),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go b.loop()

	return b
}

// Close flushes the pending batch and stops the loop. It is idempotent.
func (b *MerkleBatcher) Close() {
	select {
	case <-b.stop:
	default:
		close(b.stop)
	}

	<-b.done
}

// Add enqueues a raw sha256 digest and blocks until its batch is anchored or ctx ends.
func (b *MerkleBatcher) Add(ctx context.Context, leaf []byte) (AnchorResult, error) {
	if len(leaf) != leafSize {
		return AnchorResult{}, ewrap.Wrapf(sentinel.ErrInvalidArgument, "leaf must be a %d byte sha256 digest, got %d", leafSize, len(leaf))
	}

	it := &batchItem{leaf: leaf, enqueued: time.Now(), resp: make(chan anchorResponse, 1)}

	select {
	case b.in <- it:
	case <-b.stop:
		return AnchorResult{}, sentinel.ErrAnchorStopped
	case <-ctx.Done():
		return AnchorResult{}, ctx.Err()
	}

	select {
	case r := <-it.resp:
		return r.result, r.err
	case <-b.done:
		// the loop answers every item it drained before exiting
		select {
		case r := <-it.resp:
			return r.result, r.err
		default:
			return AnchorResult{}, sentinel.ErrAnchorStopped
		}
	case <-ctx.Done():
		return AnchorResult{}, ctx.Err()
	}
}

func (b *MerkleBatcher) loop() {
	defer close(b.done)

	var (
		batch  []*batchItem
		timer  *time.Timer
		timerC <-chan time.Time
	)

	reset := func() {
		if timer != nil {
			timer.Stop()
		}

		batch, timer, timerC = nil, nil, nil
	}

	for {
		select {
		case it := <-b.in:
			batch = append(batch, it)
			if len(batch) == 1 {
				timer = time.NewTimer(b.maxWait)
				timerC = timer.C
			}

			if len(batch) >= b.batchSize {
				b.flush(batch)
				reset()
			}

		case <-timerC:
			b.flush(batch)
			reset()

		case <-b.stop:
			// drain what was enqueued before the stop
			for {
				select {
				case it := <-b.in:
					batch = append(batch, it)
				default:
					b.flush(batch)
					reset()

					return
				}
			}
		}
	}
}

func (b *MerkleBatcher) flush(items []*batchItem) {
	if len(items) == 0 {
		return
	}

	flushStart := time.Now()

	leaves := make([][]byte, 0, len(items))
	for _, it := range items {
		leaves = append(leaves, it.leaf)
	}

	tree, err := buildMerkleTree(leaves)
	if err != nil {
		b.fail(items, err)

		return
	}

	rootHex := hex.EncodeToString(tree.root())
	meta := fmt.Sprintf("type=merkle_batch; root=%s; leaves=%d; leaf_algo=sha256(decoded_log); node_algo=sha256(l||r); created_at=%s",
		rootHex, len(leaves), time.Now().UTC().Format(time.RFC3339Nano))

	ctx, cancel := context.WithTimeout(context.Background(), defaultLedgerTimeout)
	defer cancel()

	ledgerStart := time.Now()
	txID, err := b.ledger.Write(ctx, rootHex, meta)
	ledgerLatency := time.Since(ledgerStart)

	if err != nil {
		b.log.Error("anchor batch", zap.String("root", rootHex), zap.Int("leaves", len(leaves)), zap.Error(err))
		b.fail(items, ewrap.Wrap(err, "ledger write"))

		return
	}

	b.log.Debug("batch anchored",
		zap.String("root", rootHex),
		zap.String("tx", txID),
		zap.Int("leaves", len(leaves)),
		zap.Duration("ledger", ledgerLatency))

	for i, it := range items {
		proof, perr := tree.proof(i)
		it.resp <- anchorResponse{
			result: AnchorResult{
				Root:          rootHex,
				TxID:          txID,
				Index:         i,
				BatchSize:     len(items),
				Proof:         proof,
				Waited:        flushStart.Sub(it.enqueued),
				LedgerLatency: ledgerLatency,
			},
			err: perr,
		}
	}
}

func (b *MerkleBatcher) fail(items []*batchItem, err error) {
	for _, it := range items {
		it.resp <- anchorResponse{err: err}
	}
}
