package ledger

import (
	"sync"

	"github.com/gagliardetto/solana-go"
)

// Dedup remembers processed transaction signatures, bucketed by the recent
// hash each transaction referenced. A bucket is dropped once its hash leaves
// the HashChain window: from then on the transaction is rejected by the hash
// check instead. It is safe for concurrent use.
type Dedup struct {
	buckets map[solana.Hash]map[solana.Signature]struct{}
	mu      sync.Mutex
}

// NewDedup creates an empty Dedup.
func NewDedup() *Dedup {
	return &Dedup{
		buckets: make(map[solana.Hash]map[solana.Signature]struct{}),
	}
}

// IsDuplicate reports whether sig was already recorded under hash.
func (d *Dedup) IsDuplicate(hash solana.Hash, sig solana.Signature) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, ok := d.buckets[hash][sig]
	return ok
}

// Record marks sig as processed.
func (d *Dedup) Record(hash solana.Hash, sig solana.Signature) {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, ok := d.buckets[hash]
	if !ok {
		b = make(map[solana.Signature]struct{})
		d.buckets[hash] = b
	}
	b[sig] = struct{}{}
}

// Evict forgets every signature recorded under the given hashes.
func (d *Dedup) Evict(hashes ...solana.Hash) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, h := range hashes {
		delete(d.buckets, h)
	}
}
