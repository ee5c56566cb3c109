// Package feeds implements price sources for the solvency engine.
package feeds

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var ErrUnknownFeed = errors.New("feeds: unknown price feed")

// Static serves operator-set quotes. Quotes can be replaced at any time and
// every read returns the latest value.
type Static struct {
	mu     sync.RWMutex
	quotes map[common.Address]*big.Int
}

func NewStatic() *Static {
	return &Static{quotes: make(map[common.Address]*big.Int)}
}

// Set publishes an 8-decimal price for feed.
func (s *Static) Set(feed common.Address, price *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if price == nil {
		delete(s.quotes, feed)
		return
	}
	s.quotes[feed] = new(big.Int).Set(price)
}

func (s *Static) LatestQuote(_ context.Context, feed common.Address) (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	price, ok := s.quotes[feed]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFeed, feed.Hex())
	}
	return new(big.Int).Set(price), nil
}
