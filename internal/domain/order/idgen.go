package order

import (
	"context"
	"math/rand/v2"
	"strconv"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
)

const (
	minCustomID = 100000
	maxCustomID = 999999

	idAttempts = 32
	// Sized for the whole six-digit space.
	idFilterCapacity = maxCustomID - minCustomID + 1
	idFilterFPR      = 0.001
)

// IDGenerator draws random six-digit customOrderIds and asks the store
// whether each candidate is free. The bloom filter only remembers ids this
// process has handed out, so a repeat draw skips the store round-trip; it
// never decides uniqueness. That is the store check plus the unique
// constraint on Create.
type IDGenerator struct {
	exists func(ctx context.Context, id int) (bool, error)
	intn   func(n int) int

	mu     sync.Mutex
	issued *bloom.BloomFilter
}

func NewIDGenerator(exists func(ctx context.Context, id int) (bool, error)) *IDGenerator {
	return &IDGenerator{
		exists: exists,
		intn:   rand.IntN,
		issued: bloom.NewWithEstimates(idFilterCapacity, idFilterFPR),
	}
}

func (g *IDGenerator) Next(ctx context.Context) (int, error) {
	for range idAttempts {
		id := minCustomID + g.intn(maxCustomID-minCustomID+1)
		key := strconv.Itoa(id)

		g.mu.Lock()
		seen := g.issued.TestOrAddString(key)
		g.mu.Unlock()
		if seen {
			continue
		}

		taken, err := g.exists(ctx, id)
		if err != nil {
			return 0, errors.Wrap(err, "check custom order id")
		}
		if !taken {
			return id, nil
		}
	}
	return 0, ErrIDSpaceExhausted
}

// ParseCustomID parses a customOrderId from a path or body.
func ParseCustomID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil || id < minCustomID || id > maxCustomID {
		return 0, ErrInvalidCustomID
	}
	return id, nil
}
