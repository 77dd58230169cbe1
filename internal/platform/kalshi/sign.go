package kalshi

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// AuthHeaders signs method+path for the key pair. path is the full URL path
// without query (the WebSocket handshake signs "/trade-api/ws/v2").
//
// The signature is RSA-PSS over SHA-256 of timestamp_ms + method + path.
func (c *Client) AuthHeaders(method, path string) (http.Header, error) {
	if c.privateKey == nil {
		return nil, fmt.Errorf("kalshi: RSA private key not configured: %w", domain.ErrUnauthorized)
	}
	return signHeaders(c.privateKey, c.apiKeyID, method, path, time.Now())
}

func signHeaders(key *rsa.PrivateKey, keyID, method, path string, now time.Time) (http.Header, error) {
	ts := strconv.FormatInt(now.UnixMilli(), 10)
	digest := sha256.Sum256([]byte(ts + method + path))
	sig, err := rsa.SignPSS(rand.Reader, key, crypto.SHA256, digest[:],
		&rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash})
	if err != nil {
		return nil, fmt.Errorf("kalshi: RSA sign: %w", err)
	}

	h := make(http.Header, 3)
	h.Set("KALSHI-ACCESS-KEY", keyID)
	h.Set("KALSHI-ACCESS-SIGNATURE", base64.StdEncoding.EncodeToString(sig))
	h.Set("KALSHI-ACCESS-TIMESTAMP", ts)
	return h, nil
}
