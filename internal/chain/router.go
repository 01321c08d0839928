package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Minimal V2-style router surface. Pancake/Uniswap V2 forks all share these
// signatures, which is the only reason a single ABI covers "the" router.
const routerABIJSON = `[
  {"type":"function","name":"getAmountsOut","stateMutability":"view",
   "inputs":[{"name":"amountIn","type":"uint256"},{"name":"path","type":"address[]"}],
   "outputs":[{"name":"amounts","type":"uint256[]"}]},
  {"type":"function","name":"swapExactETHForTokens","stateMutability":"payable",
   "inputs":[{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},
             {"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],
   "outputs":[{"name":"amounts","type":"uint256[]"}]},
  {"type":"function","name":"swapExactTokensForETH","stateMutability":"nonpayable",
   "inputs":[{"name":"amountIn","type":"uint256"},{"name":"amountOutMin","type":"uint256"},
             {"name":"path","type":"address[]"},{"name":"to","type":"address"},
             {"name":"deadline","type":"uint256"}],
   "outputs":[{"name":"amounts","type":"uint256[]"}]}
]`

const swapDeadlineWindow = 2 * time.Minute

var routerABI = mustParseABI(routerABIJSON)

func mustParseABI(src string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(src))
	if err != nil {
		panic(fmt.Sprintf("router abi: %v", err))
	}
	return parsed
}

func swapDeadline(now time.Time) *big.Int {
	return big.NewInt(now.Add(swapDeadlineWindow).Unix())
}

func packAmountsOut(amountIn *big.Int, path []common.Address) ([]byte, error) {
	return routerABI.Pack("getAmountsOut", amountIn, path)
}

func unpackAmountsOut(ret []byte) ([]*big.Int, error) {
	out, err := routerABI.Unpack("getAmountsOut", ret)
	if err != nil {
		return nil, fmt.Errorf("unpack getAmountsOut: %w", err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("getAmountsOut: unexpected return arity %d", len(out))
	}
	amounts, ok := out[0].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("getAmountsOut: unexpected return type %T", out[0])
	}
	return amounts, nil
}

// AmountsOut quotes the router for amountIn along path. amounts[len-1] is the
// expected output for the final hop.
func (c *Client) AmountsOut(ctx context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
	data, err := packAmountsOut(amountIn, path)
	if err != nil {
		return nil, fmt.Errorf("pack getAmountsOut: %w", err)
	}
	ret, err := c.call(ctx, c.router, data)
	if err != nil {
		return nil, fmt.Errorf("getAmountsOut: %w", err)
	}
	amounts, err := unpackAmountsOut(ret)
	if err != nil {
		return nil, err
	}
	if len(amounts) != len(path) {
		return nil, fmt.Errorf("getAmountsOut: got %d amounts for %d-hop path", len(amounts), len(path))
	}
	return amounts, nil
}

// SwapNativeForTokens buys token with amountInWei of native currency along
// [wnative, token], sending output to the signer's own address.
func (c *Client) SwapNativeForTokens(ctx context.Context, key *ecdsa.PrivateKey, amountInWei, minOut *big.Int, token common.Address, gasPrice *big.Int) (common.Hash, error) {
	recipient := addressOf(key)
	path := []common.Address{c.wnative, token}
	data, err := routerABI.Pack("swapExactETHForTokens", orZero(minOut), path, recipient, swapDeadline(time.Now()))
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack swapExactETHForTokens: %w", err)
	}
	return c.send(ctx, key, &c.router, amountInWei, gasPrice, gasLimitSwap, data)
}

// SwapTokensForNative sells amountIn of token back to native currency along
// [token, wnative]. The router must already be approved for amountIn.
func (c *Client) SwapTokensForNative(ctx context.Context, key *ecdsa.PrivateKey, token common.Address, amountIn, minOut *big.Int, gasPrice *big.Int) (common.Hash, error) {
	recipient := addressOf(key)
	path := []common.Address{token, c.wnative}
	data, err := routerABI.Pack("swapExactTokensForETH", amountIn, orZero(minOut), path, recipient, swapDeadline(time.Now()))
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack swapExactTokensForETH: %w", err)
	}
	return c.send(ctx, key, &c.router, nil, gasPrice, gasLimitSwap, data)
}

func orZero(x *big.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return x
}
