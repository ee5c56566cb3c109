package crypto

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestAddressRoundTrip(t *testing.T) {
	addr := common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	encoded := FormatAddress(addr)
	require.True(t, strings.HasPrefix(encoded, AddressPrefix+"1"))

	parsed, err := ParseAddress(encoded)
	require.NoError(t, err)
	require.Equal(t, addr, parsed)

	parsed, err = ParseAddress(addr.Hex())
	require.NoError(t, err)
	require.Equal(t, addr, parsed)
}

func TestParseAddressRejectsInvalidInput(t *testing.T) {
	for _, input := range []string{"", "0x1234", "not-an-address"} {
		_, err := ParseAddress(input)
		require.Error(t, err, input)
	}

	key, err := GeneratePrivateKey()
	require.NoError(t, err)
	conv, err := convertForTest(key.PubKey().Address().Bytes())
	require.NoError(t, err)
	_, err = ParseAddress(conv)
	require.ErrorContains(t, err, "unexpected address prefix")
}

func TestKeystoreLoadOrCreate(t *testing.T) {
	scryptN, scryptP = keystore.LightScryptN, keystore.LightScryptP
	t.Cleanup(func() {
		scryptN, scryptP = keystore.StandardScryptN, keystore.StandardScryptP
	})
	path := filepath.Join(t.TempDir(), "keys", "custody.json")

	key, created, err := LoadOrCreateKeystore(path, "secret")
	require.NoError(t, err)
	require.True(t, created)

	loaded, created, err := LoadOrCreateKeystore(path, "secret")
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, key.PubKey().Address(), loaded.PubKey().Address())

	_, _, err = LoadOrCreateKeystore(path, "wrong")
	require.Error(t, err)
}
