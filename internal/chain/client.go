package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Gas limits are fixed rather than estimated: the bot only ever sends three
// shapes of transaction and estimation is one more RPC that can fail.
const (
	gasLimitTransfer = 21_000
	gasLimitApprove  = 80_000
	gasLimitSwap     = 400_000
)

const receiptPollInterval = 2 * time.Second

// Client wraps a single chain's RPC endpoint together with the router and
// wrapped-native addresses every call needs. All methods are safe for
// sequential use from one scheduling loop; nothing here is rate-limited or
// retried, callers own that policy.
type Client struct {
	ec      *ethclient.Client
	chainID *big.Int
	router  common.Address
	wnative common.Address
}

// Dial connects to rpcURL and caches the chain ID. router is the V2-style
// swap router, wnative the wrapped native token used as the swap path anchor.
func Dial(ctx context.Context, rpcURL string, router, wnative common.Address) (*Client, error) {
	if rpcURL == "" {
		return nil, fmt.Errorf("rpc url required")
	}
	ec, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	chainID, err := ec.ChainID(ctx)
	if err != nil {
		ec.Close()
		return nil, fmt.Errorf("chain id: %w", err)
	}
	return &Client{ec: ec, chainID: chainID, router: router, wnative: wnative}, nil
}

func (c *Client) Close() { c.ec.Close() }

func (c *Client) ChainID() *big.Int { return new(big.Int).Set(c.chainID) }

func (c *Client) Router() common.Address { return c.router }

func (c *Client) WrappedNative() common.Address { return c.wnative }

// NativeBalance returns addr's native-currency balance in wei.
func (c *Client) NativeBalance(ctx context.Context, addr common.Address) (*big.Int, error) {
	bal, err := c.ec.BalanceAt(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("balance %s: %w", addr.Hex(), err)
	}
	return bal, nil
}

// GasPrice returns the node's suggested gas price in wei.
func (c *Client) GasPrice(ctx context.Context) (*big.Int, error) {
	price, err := c.ec.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("gas price: %w", err)
	}
	return price, nil
}

// ScaleGasPrice multiplies price by pct percent using integer arithmetic, so
// a 110% multiplier never drifts through float rounding.
func ScaleGasPrice(price *big.Int, pct int64) *big.Int {
	if price == nil || pct <= 0 {
		return price
	}
	scaled := new(big.Int).Mul(price, big.NewInt(pct))
	return scaled.Div(scaled, big.NewInt(100))
}

// TransferNative sends amountWei from key's account to `to` as a plain
// transfer at the given gas price and returns the tx hash.
func (c *Client) TransferNative(ctx context.Context, key *ecdsa.PrivateKey, to common.Address, amountWei, gasPrice *big.Int) (common.Hash, error) {
	return c.send(ctx, key, &to, amountWei, gasPrice, gasLimitTransfer, nil)
}

// WaitConfirmed blocks until txHash has a receipt or ctx expires. A mined but
// reverted transaction is an error.
func (c *Client) WaitConfirmed(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.ec.TransactionReceipt(ctx, txHash)
		if err == nil {
			if receipt.Status != types.ReceiptStatusSuccessful {
				return receipt, fmt.Errorf("tx %s reverted", txHash.Hex())
			}
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("confirm %s: %w", txHash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// send builds, signs and broadcasts a legacy transaction. Nonce is fetched
// fresh per send; the scheduling loop is strictly sequential so this is a
// best-effort discipline, not a nonce manager.
func (c *Client) send(ctx context.Context, key *ecdsa.PrivateKey, to *common.Address, value, gasPrice *big.Int, gasLimit uint64, data []byte) (common.Hash, error) {
	from := crypto.PubkeyToAddress(key.PublicKey)
	nonce, err := c.ec.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("nonce %s: %w", from.Hex(), err)
	}
	if gasPrice == nil {
		gasPrice, err = c.GasPrice(ctx)
		if err != nil {
			return common.Hash{}, err
		}
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       to,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign tx: %w", err)
	}
	if err := c.ec.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("send tx from %s: %w", from.Hex(), err)
	}
	return signed.Hash(), nil
}

func (c *Client) call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	return c.ec.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
}
