package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Raw 4-byte selectors instead of a full ERC-20 ABI: the bot only ever reads
// balances and grants the router an allowance.
var (
	erc20BalanceOfSelector = crypto.Keccak256([]byte("balanceOf(address)"))[:4]
	erc20ApproveSelector   = crypto.Keccak256([]byte("approve(address,uint256)"))[:4]
)

func packBalanceOf(owner common.Address) []byte {
	data := make([]byte, 0, 4+32)
	data = append(data, erc20BalanceOfSelector...)
	return append(data, common.LeftPadBytes(owner.Bytes(), 32)...)
}

func packApprove(spender common.Address, amount *big.Int) []byte {
	data := make([]byte, 0, 4+32+32)
	data = append(data, erc20ApproveSelector...)
	data = append(data, common.LeftPadBytes(spender.Bytes(), 32)...)
	return append(data, common.LeftPadBytes(amount.Bytes(), 32)...)
}

// TokenBalance returns owner's balance of the ERC-20 at token, in the token's
// smallest unit.
func (c *Client) TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	out, err := c.call(ctx, token, packBalanceOf(owner))
	if err != nil {
		return nil, fmt.Errorf("balanceOf(%s): %w", owner.Hex(), err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("balanceOf(%s): empty result", owner.Hex())
	}
	return new(big.Int).SetBytes(out), nil
}

// ApproveRouter grants the router an allowance of amount over token for key's
// account and returns the tx hash.
func (c *Client) ApproveRouter(ctx context.Context, key *ecdsa.PrivateKey, token common.Address, amount, gasPrice *big.Int) (common.Hash, error) {
	return c.send(ctx, key, &token, nil, gasPrice, gasLimitApprove, packApprove(c.router, amount))
}

func addressOf(key *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(key.PublicKey)
}
