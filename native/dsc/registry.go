package dsc

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Registry is the immutable set of allowed collateral assets, each bound to
// exactly one price feed. Order is preserved from construction.
type Registry struct {
	assets []common.Address
	feeds  map[common.Address]common.Address
}

// NewRegistry pairs assets with feeds one-to-one.
func NewRegistry(assets, feeds []common.Address) (*Registry, error) {
	if len(assets) != len(feeds) {
		return nil, fmt.Errorf("%w: %d assets, %d feeds", ErrRegistryLengthMismatch, len(assets), len(feeds))
	}
	r := &Registry{
		assets: make([]common.Address, 0, len(assets)),
		feeds:  make(map[common.Address]common.Address, len(assets)),
	}
	for i, asset := range assets {
		feed := feeds[i]
		if asset == (common.Address{}) || feed == (common.Address{}) {
			return nil, fmt.Errorf("%w: registry entry %d", ErrZeroAddress, i)
		}
		if _, exists := r.feeds[asset]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateAsset, asset.Hex())
		}
		r.assets = append(r.assets, asset)
		r.feeds[asset] = feed
	}
	return r, nil
}

// Assets returns the registered collateral assets in registration order.
func (r *Registry) Assets() []common.Address {
	if r == nil {
		return nil
	}
	out := make([]common.Address, len(r.assets))
	copy(out, r.assets)
	return out
}

// Feed returns the price feed registered for asset.
func (r *Registry) Feed(asset common.Address) (common.Address, bool) {
	if r == nil {
		return common.Address{}, false
	}
	feed, ok := r.feeds[asset]
	return feed, ok
}

// Allowed reports whether asset is registered.
func (r *Registry) Allowed(asset common.Address) bool {
	_, ok := r.Feed(asset)
	return ok
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.assets)
}
