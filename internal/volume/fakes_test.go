package volume

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"math/rand/v2"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// scriptRand feeds predetermined values; missing entries fall back to fixed
// midpoints so tests only script the draws they care about. Shuffle is a
// no-op, keeping pool order stable.
type scriptRand struct {
	floats []float64
	ints   []int
}

func (r *scriptRand) Float64() float64 {
	if len(r.floats) == 0 {
		return 0.5
	}
	v := r.floats[0]
	r.floats = r.floats[1:]
	return v
}

func (r *scriptRand) IntN(n int) int {
	if len(r.ints) == 0 {
		return 0
	}
	v := r.ints[0]
	r.ints = r.ints[1:]
	return v % n
}

func (r *scriptRand) Shuffle(n int, swap func(i, j int)) {}

func seededRand(seed uint64) Rand {
	return &lockedRand{rng: rand.New(rand.NewPCG(seed, seed+1))}
}

// fakeClient is a scripted in-memory chain. It records every mutating call in
// order so tests can assert on the exact sequence the engine produced.
type fakeClient struct {
	mu sync.Mutex

	native  map[common.Address]*big.Int
	token   map[common.Address]*big.Int
	wnative common.Address

	gasPrice    *big.Int
	gasPriceErr error

	quoteOut *big.Int
	quoteErr error

	swapErr     error
	transferErr error

	onSwap func()

	calls []string
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		native:   make(map[common.Address]*big.Int),
		token:    make(map[common.Address]*big.Int),
		wnative:  common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"),
		gasPrice: big.NewInt(5_000_000_000),
		quoteOut: big.NewInt(1_000_000),
	}
}

func (f *fakeClient) record(format string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeClient) callsSnapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeClient) setNative(addr common.Address, wei *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.native[addr] = wei
}

func (f *fakeClient) setToken(addr common.Address, units *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token[addr] = units
}

func (f *fakeClient) NativeBalance(ctx context.Context, addr common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if bal, ok := f.native[addr]; ok {
		return new(big.Int).Set(bal), nil
	}
	return new(big.Int), nil
}

func (f *fakeClient) TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if bal, ok := f.token[owner]; ok {
		return new(big.Int).Set(bal), nil
	}
	return new(big.Int), nil
}

func (f *fakeClient) GasPrice(ctx context.Context) (*big.Int, error) {
	if f.gasPriceErr != nil {
		return nil, f.gasPriceErr
	}
	return new(big.Int).Set(f.gasPrice), nil
}

func (f *fakeClient) AmountsOut(ctx context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
	if f.quoteErr != nil {
		return nil, f.quoteErr
	}
	return []*big.Int{new(big.Int).Set(amountIn), new(big.Int).Set(f.quoteOut)}, nil
}

func (f *fakeClient) SwapNativeForTokens(ctx context.Context, key *ecdsa.PrivateKey, amountInWei, minOut *big.Int, token common.Address, gasPrice *big.Int) (common.Hash, error) {
	f.record("buy from=%s amount=%s minOut=%s", addrOf(key).Hex(), amountInWei, minOut)
	if f.onSwap != nil {
		f.onSwap()
	}
	if f.swapErr != nil {
		return common.Hash{}, f.swapErr
	}
	return common.HexToHash("0xb1"), nil
}

func (f *fakeClient) SwapTokensForNative(ctx context.Context, key *ecdsa.PrivateKey, token common.Address, amountIn, minOut *big.Int, gasPrice *big.Int) (common.Hash, error) {
	f.record("sell from=%s amount=%s minOut=%s", addrOf(key).Hex(), amountIn, minOut)
	if f.onSwap != nil {
		f.onSwap()
	}
	if f.swapErr != nil {
		return common.Hash{}, f.swapErr
	}
	return common.HexToHash("0x5e"), nil
}

func (f *fakeClient) ApproveRouter(ctx context.Context, key *ecdsa.PrivateKey, token common.Address, amount, gasPrice *big.Int) (common.Hash, error) {
	f.record("approve from=%s amount=%s", addrOf(key).Hex(), amount)
	return common.HexToHash("0xa9"), nil
}

func (f *fakeClient) TransferNative(ctx context.Context, key *ecdsa.PrivateKey, to common.Address, amountWei, gasPrice *big.Int) (common.Hash, error) {
	f.record("transfer from=%s to=%s amount=%s", addrOf(key).Hex(), to.Hex(), amountWei)
	if f.transferErr != nil {
		return common.Hash{}, f.transferErr
	}
	return common.HexToHash("0x77"), nil
}

func (f *fakeClient) WaitConfirmed(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: txHash}, nil
}

func (f *fakeClient) WrappedNative() common.Address { return f.wnative }

func addrOf(key *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(key.PublicKey)
}
