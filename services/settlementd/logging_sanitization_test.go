package main

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"harvestpay/observability/logging"
)

// A forged signature is an HMAC over the shared secret's message space and
// must never land in the logs verbatim.
func TestAuthFailureLogRedactsSignature(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))

	now := time.Unix(1_700_000_000, 0).UTC()
	nowFn := func() time.Time { return now }
	auth := NewAuthenticator([]APIKeyConfig{{Key: testAPIKey, Secret: testAPISecret}}, 2*time.Minute, 4*time.Minute, nowFn)
	core := &stubCore{}
	server := NewServer(auth, core, core, core, log)
	server.nowFn = nowFn
	ts := httptest.NewServer(server)
	t.Cleanup(ts.Close)

	const forgedSignature = "f00df00df00df00df00df00df00df00df00df00df00df00df00df00df00df00d"
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/v1/escrows", bytes.NewReader([]byte(`{}`)))
	require.NoError(t, err)
	req.Header.Set(headerAPIKey, testAPIKey)
	req.Header.Set(headerTimestamp, strconv.FormatInt(now.Unix(), 10))
	req.Header.Set(headerNonce, "nonce-forged")
	req.Header.Set(headerSignature, forgedSignature)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	logged := buf.String()
	require.Contains(t, logged, "authentication failed")
	require.Contains(t, logged, testAPIKey, "the key id is not secret and stays readable")
	require.Contains(t, logged, logging.RedactedValue)
	require.NotContains(t, logged, forgedSignature)
}
