package volume

import (
	"github.com/ethereum/go-ethereum/common"

	"evm-volbot/internal/wallet"
)

// selectActive draws a fresh active subset: a uniform shuffle of the pool,
// truncated to floor(len × fraction). Sampling is independent of any prior
// membership. A pool small enough that the floor collapses to zero yields an
// empty set, which simply idles that cycle.
func selectActive(rng Rand, pool []wallet.Record, fraction float64) map[common.Address]struct{} {
	n := int(float64(len(pool)) * fraction)
	active := make(map[common.Address]struct{}, n)
	if n == 0 {
		return active
	}

	order := make([]common.Address, len(pool))
	for i, w := range pool {
		order[i] = w.Address
	}
	rng.Shuffle(len(order), func(i, j int) {
		order[i], order[j] = order[j], order[i]
	})
	for _, addr := range order[:n] {
		active[addr] = struct{}{}
	}
	return active
}
