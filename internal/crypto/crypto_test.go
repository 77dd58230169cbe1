package crypto

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testKey         = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	testExchange    = "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E"
	testNegRiskExch = "0xC5d563A36AE78145C45a50134d48A1215220f80a"
)

func TestSignOrderRecoversToWallet(t *testing.T) {
	s, err := NewSigner(testKey, 137, testExchange, testNegRiskExch)
	require.NoError(t, err)

	order := OrderPayload{
		Salt:        "12345",
		Maker:       s.Address().Hex(),
		Signer:      s.Address().Hex(),
		Taker:       "0x0000000000000000000000000000000000000000",
		TokenID:     "71321045679252212594626385532706912750332728571942532289631379312455583992563",
		MakerAmount: "2000000",
		TakerAmount: "5000000",
		Expiration:  "0",
		Nonce:       "0",
		FeeRateBps:  "0",
	}
	sig, err := s.SignOrder(order, false)
	require.NoError(t, err)

	digest, err := s.OrderDigest(order, false)
	require.NoError(t, err)
	addr, err := RecoverAddress(digest, sig)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), addr)

	negDigest, err := s.OrderDigest(order, true)
	require.NoError(t, err)
	assert.NotEqual(t, digest, negDigest, "neg-risk orders sign for a different exchange")
	negSig, err := s.SignOrder(order, true)
	require.NoError(t, err)
	addr, err = RecoverAddress(negDigest, negSig)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), addr)
}

func TestSignOrderRejectsBadIntegers(t *testing.T) {
	s, err := NewSigner(testKey, 137, testExchange, testNegRiskExch)
	require.NoError(t, err)
	_, err = s.SignOrder(OrderPayload{Salt: "x"}, false)
	assert.Error(t, err)
}

func TestNewSignerValidatesExchange(t *testing.T) {
	_, err := NewSigner(testKey, 137, "not-an-address", testNegRiskExch)
	assert.Error(t, err)
	_, err = NewSigner(testKey, 137, testExchange, "")
	assert.Error(t, err)
}

func TestL2HeadersSignature(t *testing.T) {
	secret := []byte("super-secret")
	h := &HMACAuth{Key: "k", Secret: base64.URLEncoding.EncodeToString(secret), Passphrase: "p"}

	got := h.L2HeadersAt("0xabc", "POST", "/order", `{"a":1}`, 1700000000)

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte("1700000000POST/order{\"a\":1}"))
	assert.Equal(t, base64.URLEncoding.EncodeToString(mac.Sum(nil)), got["POLY_SIGNATURE"])
	assert.Equal(t, "1700000000", got["POLY_TIMESTAMP"])
	assert.Equal(t, "0xabc", got["POLY_ADDRESS"])
	assert.NotContains(t, h.String(), "super")
}

func TestLoadWalletKeyPrefersRaw(t *testing.T) {
	k, err := LoadWalletKey(WalletKeySource{RawPrivateKey: "0x" + testKey})
	require.NoError(t, err)
	assert.Equal(t, testKey, k)

	_, err = LoadWalletKey(WalletKeySource{})
	assert.Error(t, err)
}

func TestSealedWalletKeyOpensWithPassword(t *testing.T) {
	sealed, err := SealWalletKey(testKey, "pw")
	require.NoError(t, err)

	k, err := OpenWalletKey(sealed, "pw")
	require.NoError(t, err)
	assert.Equal(t, testKey, k)

	_, err = OpenWalletKey(sealed, "wrong")
	assert.Error(t, err)
}

func TestParseRSAKeyAcceptsPKCS1AndPKCS8(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	pkcs1 := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	got, err := ParseRSAKey(pkcs1)
	require.NoError(t, err)
	assert.True(t, key.Equal(got))

	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	got, err = ParseRSAKey(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
	require.NoError(t, err)
	assert.True(t, key.Equal(got))

	_, err = ParseRSAKey([]byte("garbage"))
	assert.Error(t, err)
}
