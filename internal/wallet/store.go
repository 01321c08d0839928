package wallet

import (
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrCorruptState marks a wallet file that exists but cannot be parsed.
// Callers treat it as fatal at startup: regenerating keys over a half-readable
// pool would strand whatever funds the old wallets still hold.
var ErrCorruptState = errors.New("wallet state corrupt")

// Record is one disposable trading wallet. The secret is the hex-encoded
// secp256k1 private key; the address is derived from it and kept alongside so
// the file is greppable by explorer address.
type Record struct {
	Address common.Address `json:"address"`
	Secret  string         `json:"secret"`

	// LastTradeTime is unix seconds of the last trade attempt (success or
	// failure alike). Zero means the wallet has never been scheduled.
	LastTradeTime int64 `json:"last_trade_time"`
}

// Key parses the record's secret into a signing key.
func (r Record) Key() (*ecdsa.PrivateKey, error) {
	return crypto.HexToECDSA(strings.TrimPrefix(r.Secret, "0x"))
}

// Load returns the wallet pool persisted at path. If the file does not exist,
// it generates desiredCount fresh wallets, persists them, and returns those.
// An existing file is returned verbatim: its count is authoritative even when
// it differs from desiredCount.
func Load(path string, desiredCount int) ([]Record, error) {
	if path == "" {
		return nil, fmt.Errorf("wallet file path required")
	}

	b, err := os.ReadFile(path)
	if err == nil {
		var records []Record
		if err := json.Unmarshal(b, &records); err != nil {
			return nil, fmt.Errorf("%w: parse %s: %v", ErrCorruptState, path, err)
		}
		for i, r := range records {
			key, err := r.Key()
			if err != nil {
				return nil, fmt.Errorf("%w: record %d: bad secret: %v", ErrCorruptState, i, err)
			}
			if got := crypto.PubkeyToAddress(key.PublicKey); got != r.Address {
				return nil, fmt.Errorf("%w: record %d: address %s does not match secret (derived %s)",
					ErrCorruptState, i, r.Address.Hex(), got.Hex())
			}
		}
		return records, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read wallet file %s: %w", path, err)
	}

	if desiredCount <= 0 {
		return nil, fmt.Errorf("wallet count must be positive, got %d", desiredCount)
	}
	records, err := generate(desiredCount)
	if err != nil {
		return nil, err
	}
	if err := Save(path, records); err != nil {
		return nil, err
	}
	return records, nil
}

func generate(n int) ([]Record, error) {
	records := make([]Record, 0, n)
	for i := 0; i < n; i++ {
		key, err := crypto.GenerateKey()
		if err != nil {
			return nil, fmt.Errorf("generate wallet key: %w", err)
		}
		records = append(records, Record{
			Address: crypto.PubkeyToAddress(key.PublicKey),
			Secret:  hex.EncodeToString(crypto.FromECDSA(key)),
		})
	}
	return records, nil
}

// Save overwrites the wallet file. It writes to a temp file in the same
// directory and renames it into place so a crash mid-write leaves either the
// old pool or the new one, never a truncated file.
func Save(path string, records []Record) error {
	if path == "" {
		return fmt.Errorf("wallet file path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	b, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
