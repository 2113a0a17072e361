package httpapi

import (
	"encoding/base64"
	"io"
	"math/big"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePrivateKey(t *testing.T) {
	key, err := parsePrivateKey(validKeyHex)
	require.NoError(t, err)
	assert.NotNil(t, key)

	_, err = parsePrivateKey("0X" + validKeyHex)
	assert.NoError(t, err)

	_, err = parsePrivateKey("0123456789abcdef")
	assert.ErrorContains(t, err, "must be 32 bytes")

	_, err = parsePrivateKey(strings.Repeat("00", 32))
	assert.ErrorContains(t, err, "zero")
}

func TestSignRequest_DeterministicAndVerifiable(t *testing.T) {
	key, err := parsePrivateKey(validKeyHex)
	require.NoError(t, err)

	ts := int64(1700000000000000000)
	sig1 := signRequest(key, []byte("body"), ts, "/credits/balance")
	sig2 := signRequest(key, []byte("body"), ts, "/credits/balance")
	// RFC6979 is deterministic.
	assert.Equal(t, sig1, sig2)

	pub := newSigningTransport(http.DefaultTransport, key).pubHex
	ok, err := VerifySignature(pub, sig1, []byte("body"), ts, "/credits/balance")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifySignature(pub, sig1, []byte("body"), ts+1, "/credits/balance")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = VerifySignature(pub, sig1, []byte("body"), ts, "/other")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSignRequest_LowS(t *testing.T) {
	key, err := parsePrivateKey(validKeyHex)
	require.NoError(t, err)

	halfOrder := new(big.Int).Rsh(secp256k1.S256().Params().N, 1)
	for i := int64(0); i < 20; i++ {
		sig := signRequest(key, []byte("x"), i, "/p")
		raw := mustDecodeBase64(t, sig)
		s := new(big.Int).SetBytes(raw[32:])
		assert.True(t, s.Cmp(halfOrder) <= 0, "s must be in the lower half of the curve order")
	}
}

func TestVerifySignature_Malformed(t *testing.T) {
	_, err := VerifySignature("zz", "", nil, 0, "/")
	assert.Error(t, err)

	key, err := parsePrivateKey(validKeyHex)
	require.NoError(t, err)
	pub := newSigningTransport(http.DefaultTransport, key).pubHex

	_, err = VerifySignature(pub, "c2hvcnQ=", nil, 0, "/")
	assert.ErrorContains(t, err, "malformed")
}

type captureTransport struct {
	req  *http.Request
	body []byte
}

func (c *captureTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	c.req = r
	if r.Body != nil {
		c.body, _ = io.ReadAll(r.Body)
	}
	return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader("{}")), Request: r}, nil
}

func TestSigningTransport_SetsHeadersAndRestoresBody(t *testing.T) {
	key, err := parsePrivateKey(validKeyHex)
	require.NoError(t, err)

	capture := &captureTransport{}
	tr := newSigningTransport(capture, key)
	fixed := time.Unix(0, 1700000000000000000)
	tr.nowFunc = func() time.Time { return fixed }

	req, err := http.NewRequest(http.MethodPost, "https://api.example.com/credits/balance", strings.NewReader(`{"a":1}`))
	require.NoError(t, err)

	resp, err := tr.RoundTrip(req)
	require.NoError(t, err)
	resp.Body.Close()

	got := capture.req
	assert.Equal(t, "1700000000000000000", got.Header.Get(HeaderTimestamp))
	assert.Equal(t, tr.pubHex, got.Header.Get(HeaderPublicKey))
	assert.Equal(t, `{"a":1}`, string(capture.body))

	ok, err := VerifySignature(tr.pubHex, got.Header.Get(HeaderSignature), []byte(`{"a":1}`), fixed.UnixNano(), "/credits/balance")
	require.NoError(t, err)
	assert.True(t, ok)
}

func mustDecodeBase64(t *testing.T, s string) []byte {
	t.Helper()
	raw, err := base64.StdEncoding.DecodeString(s)
	require.NoError(t, err)
	require.Len(t, raw, 64)
	return raw
}
