package volume

import (
	"context"
	"crypto/ecdsa"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ChainClient is the narrow chain surface the engine consumes. *chain.Client
// implements it; tests substitute a scripted fake. Every call may fail and the
// engine treats each failure at the smallest enclosing scope.
type ChainClient interface {
	NativeBalance(ctx context.Context, addr common.Address) (*big.Int, error)
	TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error)
	GasPrice(ctx context.Context) (*big.Int, error)
	AmountsOut(ctx context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error)

	SwapNativeForTokens(ctx context.Context, key *ecdsa.PrivateKey, amountInWei, minOut *big.Int, token common.Address, gasPrice *big.Int) (common.Hash, error)
	SwapTokensForNative(ctx context.Context, key *ecdsa.PrivateKey, token common.Address, amountIn, minOut *big.Int, gasPrice *big.Int) (common.Hash, error)
	ApproveRouter(ctx context.Context, key *ecdsa.PrivateKey, token common.Address, amount, gasPrice *big.Int) (common.Hash, error)
	TransferNative(ctx context.Context, key *ecdsa.PrivateKey, to common.Address, amountWei, gasPrice *big.Int) (common.Hash, error)

	WaitConfirmed(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	WrappedNative() common.Address
}
