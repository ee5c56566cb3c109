package crypto

import "github.com/btcsuite/btcutil/bech32"

func convertForTest(b []byte) (string, error) {
	conv, err := bech32.ConvertBits(b, 8, 5, true)
	if err != nil {
		return "", err
	}
	return bech32.Encode("cosmos", conv)
}
