package httpapi

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// Device-signature headers.
const (
	HeaderSignature = "X-Device-Signature"
	HeaderPublicKey = "X-Device-Key"
	HeaderTimestamp = "X-Timestamp"
)

// signingTransport is an http.RoundTripper that signs each request with the
// device key.
type signingTransport struct {
	base    http.RoundTripper
	key     *secp256k1.PrivateKey
	pubHex  string
	nowFunc func() time.Time
}

func newSigningTransport(base http.RoundTripper, key *secp256k1.PrivateKey) *signingTransport {
	return &signingTransport{
		base:   base,
		key:    key,
		pubHex: hex.EncodeToString(key.PubKey().SerializeCompressed()),
	}
}

func (t *signingTransport) now() time.Time {
	if t.nowFunc != nil {
		return t.nowFunc()
	}
	return time.Now()
}

// RoundTrip implements http.RoundTripper.
func (t *signingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		var err error
		body, err = io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("creditsync/httpapi: read request body: %w", err)
		}
	}

	tsNanos := t.now().UnixNano()
	signature := signRequest(t.key, body, tsNanos, req.URL.Path)

	clone := req.Clone(req.Context())
	clone.Header.Set(HeaderSignature, signature)
	clone.Header.Set(HeaderPublicKey, t.pubHex)
	clone.Header.Set(HeaderTimestamp, strconv.FormatInt(tsNanos, 10))

	if body != nil {
		clone.Body = io.NopCloser(bytes.NewReader(body))
		clone.ContentLength = int64(len(body))
	}

	return t.base.RoundTrip(clone)
}

// parsePrivateKey decodes a hex string into a secp256k1 private key.
func parsePrivateKey(hexKey string) (*secp256k1.PrivateKey, error) {
	hexKey = strings.TrimPrefix(hexKey, "0x")
	hexKey = strings.TrimPrefix(hexKey, "0X")

	keyBytes, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("creditsync/httpapi: invalid device key hex: %w", err)
	}
	if len(keyBytes) != 32 {
		return nil, fmt.Errorf("creditsync/httpapi: device key must be 32 bytes, got %d", len(keyBytes))
	}

	key := secp256k1.PrivKeyFromBytes(keyBytes)
	if key.Key.IsZero() {
		return nil, fmt.Errorf("creditsync/httpapi: device key is zero")
	}
	return key, nil
}

// signingDigest is SHA256(hex(SHA256(body)) + timestamp + path).
func signingDigest(body []byte, tsNanos int64, path string) [32]byte {
	bodyHash := sha256.Sum256(body)
	message := hex.EncodeToString(bodyHash[:]) + strconv.FormatInt(tsNanos, 10) + path
	return sha256.Sum256([]byte(message))
}

// signRequest returns the base64 raw signature (r || s, 64 bytes). RFC6979
// deterministic, low-S.
func signRequest(key *secp256k1.PrivateKey, body []byte, tsNanos int64, path string) string {
	digest := signingDigest(body, tsNanos, path)

	// compact: [recovery flag, r(32), s(32)]
	compact := ecdsa.SignCompact(key, digest[:], false)
	return base64.StdEncoding.EncodeToString(compact[1:65])
}

// VerifySignature checks a device signature as the server would. pubHex is the
// compressed public key sent in HeaderPublicKey.
func VerifySignature(pubHex, signature string, body []byte, tsNanos int64, path string) (bool, error) {
	pubBytes, err := hex.DecodeString(pubHex)
	if err != nil {
		return false, fmt.Errorf("creditsync/httpapi: invalid public key hex: %w", err)
	}
	pub, err := secp256k1.ParsePubKey(pubBytes)
	if err != nil {
		return false, fmt.Errorf("creditsync/httpapi: parse public key: %w", err)
	}

	raw, err := base64.StdEncoding.DecodeString(signature)
	if err != nil || len(raw) != 64 {
		return false, fmt.Errorf("creditsync/httpapi: malformed signature")
	}

	var r, s secp256k1.ModNScalar
	if overflow := r.SetByteSlice(raw[:32]); overflow {
		return false, fmt.Errorf("creditsync/httpapi: signature r overflows")
	}
	if overflow := s.SetByteSlice(raw[32:]); overflow {
		return false, fmt.Errorf("creditsync/httpapi: signature s overflows")
	}

	digest := signingDigest(body, tsNanos, path)
	return ecdsa.NewSignature(&r, &s).Verify(digest[:], pub), nil
}
