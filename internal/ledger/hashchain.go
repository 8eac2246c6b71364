package ledger

import (
	"sync"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gagliardetto/solana-go"
)

// HashChain is the window of recent hashes a transaction may reference. Each
// committed transaction extends the chain with keccak256(latest || signature);
// hashes older than the window are no longer accepted, which bounds how long a
// signed transaction stays replayable.
type HashChain struct {
	mu     sync.RWMutex
	window int
	ring   []solana.Hash
	valid  map[solana.Hash]struct{}
}

// NewHashChain seeds a chain. Distinct seeds give disjoint chains, so a
// transaction built against one host cannot be replayed on another.
func NewHashChain(seed []byte, window int) *HashChain {
	if window < 1 {
		window = 1
	}
	genesis := solana.Hash(crypto.Keccak256Hash([]byte("binary-options:genesis"), seed))
	return &HashChain{
		window: window,
		ring:   []solana.Hash{genesis},
		valid:  map[solana.Hash]struct{}{genesis: {}},
	}
}

// Latest returns the newest hash.
func (c *HashChain) Latest() solana.Hash {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ring[len(c.ring)-1]
}

// Contains reports whether h is inside the window.
func (c *HashChain) Contains(h solana.Hash) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.valid[h]
	return ok
}

// Advance appends a new hash derived from entropy and returns it together with
// the hashes that fell out of the window.
func (c *HashChain) Advance(entropy []byte) (solana.Hash, []solana.Hash) {
	c.mu.Lock()
	defer c.mu.Unlock()

	latest := c.ring[len(c.ring)-1]
	next := solana.Hash(crypto.Keccak256Hash(latest[:], entropy))
	c.ring = append(c.ring, next)
	c.valid[next] = struct{}{}

	var evicted []solana.Hash
	for len(c.ring) > c.window {
		old := c.ring[0]
		c.ring = c.ring[1:]
		delete(c.valid, old)
		evicted = append(evicted, old)
	}
	return next, evicted
}
