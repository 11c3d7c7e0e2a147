package store

import (
	"fmt"
	"sync"
	"time"
)

const (
	nodeBits     = 10
	sequenceBits = 12
	maxNode      = -1 ^ (-1 << nodeBits)
	maxSequence  = -1 ^ (-1 << sequenceBits)
)

// epoch is 2024-01-01T00:00:00Z in milliseconds
const epoch int64 = 1704067200000

// IDGenerator hands out snowflake ids: 41 bits of milliseconds since epoch,
// 10 bits of node, 12 bits of sequence.
type IDGenerator struct {
	mu       sync.Mutex
	node     int64
	lastMs   int64
	sequence int64
	now      func() time.Time
}

// NewIDGenerator returns a generator for the given node (0..1023)
func NewIDGenerator(node int64) (*IDGenerator, error) {
	if node < 0 || node > maxNode {
		return nil, fmt.Errorf("node id %d out of range 0..%d", node, maxNode)
	}
	return &IDGenerator{node: node, now: time.Now}, nil
}

// Next returns a new id, strictly greater than the previous one
func (g *IDGenerator) Next() ID {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := g.now().UnixMilli() - epoch
	if ms < g.lastMs {
		// clock went backwards, keep counting on the last timestamp
		ms = g.lastMs
	}
	if ms == g.lastMs {
		g.sequence = (g.sequence + 1) & maxSequence
		if g.sequence == 0 {
			ms++
		}
	} else {
		g.sequence = 0
	}
	g.lastMs = ms

	return ID(ms<<(nodeBits+sequenceBits) | g.node<<sequenceBits | g.sequence)
}
