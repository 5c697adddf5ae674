package verify

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestVerifySlack(t *testing.T) {
	secret := "shh"
	body := []byte(`{"hello":"world"}`)
	ts := fmt.Sprintf("%d", time.Now().Unix())
	base := fmt.Sprintf("v0:%s:%s", ts, body)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(base))
	sig := "v0=" + hex.EncodeToString(mac.Sum(nil))

	headers := http.Header{}
	headers.Set("x-slack-signature", sig)
	headers.Set("x-slack-request-timestamp", ts)

	result := Verify(SchemeSlack, Request{Body: body, Headers: headers}, secret, 300)
	require.True(t, result.Verified)
}

func TestVerifySlackRejectsStaleTimestamp(t *testing.T) {
	secret := "shh"
	body := []byte(`{}`)
	ts := fmt.Sprintf("%d", time.Now().Add(-301*time.Second).Unix())
	base := fmt.Sprintf("v0:%s:%s", ts, body)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(base))
	sig := "v0=" + hex.EncodeToString(mac.Sum(nil))

	headers := http.Header{}
	headers.Set("x-slack-signature", sig)
	headers.Set("x-slack-request-timestamp", ts)

	result := Verify(SchemeSlack, Request{Body: body, Headers: headers}, secret, 300)
	require.False(t, result.Verified)
}

func TestVerifyStripeRejectsOldTimestamp(t *testing.T) {
	headers := http.Header{}
	headers.Set("stripe-signature", "t=1,v1=deadbeef")

	result := Verify(SchemeStripe, Request{Body: []byte(`{}`), Headers: headers}, "secret", 300)
	require.False(t, result.Verified)
}

func TestVerifyStripeAccepts(t *testing.T) {
	secret := "whsec_test"
	body := []byte(`{"id":"evt_1"}`)
	ts := fmt.Sprintf("%d", time.Now().Unix())
	base := fmt.Sprintf("%s.%s", ts, body)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(base))
	v1 := hex.EncodeToString(mac.Sum(nil))

	headers := http.Header{}
	headers.Set("stripe-signature", fmt.Sprintf("t=%s,v1=%s", ts, v1))

	result := Verify(SchemeStripe, Request{Body: body, Headers: headers}, secret, 300)
	require.True(t, result.Verified)
}

func TestVerifyGitLabIsPlainEquality(t *testing.T) {
	headers := http.Header{}
	headers.Set("x-gitlab-token", "expected-token")

	result := Verify(SchemeGitLab, Request{Body: []byte(`{}`), Headers: headers}, "expected-token", 300)
	require.True(t, result.Verified)

	headers.Set("x-gitlab-token", "wrong-token")
	result = Verify(SchemeGitLab, Request{Body: []byte(`{}`), Headers: headers}, "expected-token", 300)
	require.False(t, result.Verified)
}

func TestVerifyGitHubPrefixedHex(t *testing.T) {
	secret := "ghsecret"
	body := []byte(`{"ref":"refs/heads/main"}`)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	sig := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	headers := http.Header{}
	headers.Set("x-hub-signature-256", sig)

	result := Verify(SchemeGitHub, Request{Body: body, Headers: headers}, secret, 300)
	require.True(t, result.Verified)
}

func TestVerifyIgnoresReserializedBody(t *testing.T) {
	// Verification must operate on the exact raw bytes: a body with
	// different whitespace but the same logical JSON must not verify
	// against a signature computed over the original bytes.
	secret := "ghsecret"
	original := []byte(`{"a":1,"b":2}`)
	reserialized := []byte(`{"a": 1, "b": 2}`)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(original)
	sig := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	headers := http.Header{}
	headers.Set("x-hub-signature-256", sig)

	result := Verify(SchemeGitHub, Request{Body: reserialized, Headers: headers}, secret, 300)
	require.False(t, result.Verified)
}

func TestVerifyUnknownScheme(t *testing.T) {
	result := Verify(Scheme("unknown"), Request{}, "secret", 300)
	require.False(t, result.Verified)
}
