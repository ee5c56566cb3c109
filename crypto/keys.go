package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// AddressPrefix is the human-readable part of a bech32 encoded account.
const AddressPrefix = "dsc"

// FormatAddress renders addr in bech32 form with the dsc prefix.
func FormatAddress(addr common.Address) string {
	conv, err := bech32.ConvertBits(addr.Bytes(), 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(AddressPrefix, conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

// ParseAddress accepts either a 0x-prefixed hex address or a bech32 address
// carrying the dsc prefix.
func ParseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return common.Address{}, fmt.Errorf("crypto: empty address")
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		if !common.IsHexAddress(s) {
			return common.Address{}, fmt.Errorf("crypto: invalid hex address %q", s)
		}
		return common.HexToAddress(s), nil
	}
	prefix, decoded, err := bech32.Decode(s)
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	if prefix != AddressPrefix {
		return common.Address{}, fmt.Errorf("crypto: unexpected address prefix %q", prefix)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return common.Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	if len(conv) != common.AddressLength {
		return common.Address{}, fmt.Errorf("crypto: address must be %d bytes, got %d", common.AddressLength, len(conv))
	}
	return common.BytesToAddress(conv), nil
}

// --- Key Management ---

type PrivateKey struct {
	*ecdsa.PrivateKey
}

type PublicKey struct {
	*ecdsa.PublicKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Bytes returns the byte representation of the private key.
func (k *PrivateKey) Bytes() []byte {
	return crypto.FromECDSA(k.PrivateKey)
}

func (k *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{&k.PrivateKey.PublicKey}
}

// Address derives the account controlled by the key.
func (k *PublicKey) Address() common.Address {
	return crypto.PubkeyToAddress(*k.PublicKey)
}

func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	key, err := crypto.ToECDSA(b)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}
