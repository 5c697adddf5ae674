// Package verify implements the per-vendor webhook signature schemes.
// Every scheme operates on raw request bytes, never on a re-serialized
// payload, since re-serialization changes whitespace and key order and
// breaks HMAC comparison for providers like Stripe, Shopify, and GitHub.
package verify

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"hash"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Scheme identifies a vendor's signature verification method.
type Scheme string

const (
	SchemeSlack     Scheme = "slack"
	SchemeStripe    Scheme = "stripe"
	SchemeShopify   Scheme = "shopify"
	SchemeGitHub    Scheme = "github"
	SchemeGitLab    Scheme = "gitlab"
	SchemeBitbucket Scheme = "bitbucket"
	SchemeIntercom  Scheme = "intercom"
	SchemeZendesk   Scheme = "zendesk"
	SchemeHubSpot   Scheme = "hubspot"
)

// Request is the minimal shape of an inbound webhook delivery the
// verifier needs. Body must be the exact bytes received on the wire.
type Request struct {
	Method  string
	Host    string
	Path    string
	Headers http.Header
	Body    []byte
}

// Result reports whether a signature verified, and why not if it didn't.
type Result struct {
	Verified bool
	Reason   string
}

func rejected(reason string) Result {
	return Result{Verified: false, Reason: reason}
}

func accepted() Result {
	return Result{Verified: true}
}

// Verify checks req against the vendor scheme for appID using secret.
// timestampToleranceSec bounds clock skew for schemes that sign a timestamp.
func Verify(scheme Scheme, req Request, secret string, timestampToleranceSec int) Result {
	switch scheme {
	case SchemeSlack:
		return verifySlack(req, secret, timestampToleranceSec)
	case SchemeStripe:
		return verifyStripe(req, secret, timestampToleranceSec)
	case SchemeShopify:
		return verifyShopify(req, secret)
	case SchemeGitHub:
		return verifyGitHub(req, secret)
	case SchemeGitLab:
		return verifyGitLab(req, secret)
	case SchemeBitbucket, SchemeIntercom:
		return verifyHMACSHA1Prefixed(req, secret)
	case SchemeZendesk:
		return verifyZendesk(req, secret, timestampToleranceSec)
	case SchemeHubSpot:
		return verifyHubSpot(req, secret, timestampToleranceSec)
	default:
		return rejected(fmt.Sprintf("unknown signature scheme %q", scheme))
	}
}

func verifySlack(req Request, secret string, toleranceSec int) Result {
	sig := req.Headers.Get("x-slack-signature")
	ts := req.Headers.Get("x-slack-request-timestamp")
	if sig == "" || ts == "" {
		return rejected("missing slack signature headers")
	}
	if err := checkTimestamp(ts, toleranceSec); err != nil {
		return rejected(err.Error())
	}

	base := fmt.Sprintf("v0:%s:%s", ts, req.Body)
	expected := "v0=" + hexHMAC(sha256.New, secret, []byte(base))
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return rejected("signature mismatch")
	}
	return accepted()
}

func verifyStripe(req Request, secret string, toleranceSec int) Result {
	header := req.Headers.Get("stripe-signature")
	if header == "" {
		return rejected("missing stripe-signature header")
	}

	ts, v1, err := parseStripeHeader(header)
	if err != nil {
		return rejected(err.Error())
	}
	if err := checkTimestamp(ts, toleranceSec); err != nil {
		return rejected(err.Error())
	}

	base := fmt.Sprintf("%s.%s", ts, req.Body)
	expected := hexHMAC(sha256.New, secret, []byte(base))
	if !hmac.Equal([]byte(expected), []byte(v1)) {
		return rejected("signature mismatch")
	}
	return accepted()
}

func parseStripeHeader(header string) (ts, v1 string, err error) {
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			ts = kv[1]
		case "v1":
			v1 = kv[1]
		}
	}
	if ts == "" || v1 == "" {
		return "", "", fmt.Errorf("malformed stripe-signature header")
	}
	return ts, v1, nil
}

func verifyShopify(req Request, secret string) Result {
	sig := req.Headers.Get("x-shopify-hmac-sha256")
	if sig == "" {
		return rejected("missing x-shopify-hmac-sha256 header")
	}
	expected := base64HMAC(sha256.New, secret, req.Body)
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return rejected("signature mismatch")
	}
	return accepted()
}

func verifyGitHub(req Request, secret string) Result {
	sig := req.Headers.Get("x-hub-signature-256")
	if sig == "" {
		return rejected("missing x-hub-signature-256 header")
	}
	const prefix = "sha256="
	if !strings.HasPrefix(sig, prefix) {
		return rejected("malformed x-hub-signature-256 header")
	}
	expected := prefix + hexHMAC(sha256.New, secret, req.Body)
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return rejected("signature mismatch")
	}
	return accepted()
}

func verifyGitLab(req Request, secret string) Result {
	token := req.Headers.Get("x-gitlab-token")
	if token == "" {
		return rejected("missing x-gitlab-token header")
	}
	if !hmac.Equal([]byte(token), []byte(secret)) {
		return rejected("token mismatch")
	}
	return accepted()
}

func verifyHMACSHA1Prefixed(req Request, secret string) Result {
	sig := req.Headers.Get("x-hub-signature")
	if sig == "" {
		return rejected("missing x-hub-signature header")
	}
	const prefix = "sha1="
	if !strings.HasPrefix(sig, prefix) {
		return rejected("malformed x-hub-signature header")
	}
	expected := prefix + hexHMAC(sha1.New, secret, req.Body)
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return rejected("signature mismatch")
	}
	return accepted()
}

func verifyZendesk(req Request, secret string, toleranceSec int) Result {
	sig := req.Headers.Get("x-zendesk-webhook-signature")
	ts := req.Headers.Get("x-zendesk-webhook-signature-timestamp")
	if sig == "" || ts == "" {
		return rejected("missing zendesk signature headers")
	}
	if err := checkTimestamp(ts, toleranceSec); err != nil {
		return rejected(err.Error())
	}

	base := append(append(append([]byte{}, req.Body...), []byte(secret)...), []byte(ts)...)
	expected := base64HMAC(sha256.New, secret, base)
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return rejected("signature mismatch")
	}
	return accepted()
}

func verifyHubSpot(req Request, secret string, toleranceSec int) Result {
	sig := req.Headers.Get("x-hubspot-signature-v3")
	ts := req.Headers.Get("x-hubspot-request-timestamp")
	if sig == "" {
		sig = req.Headers.Get("x-hubspot-signature")
	}
	if sig == "" || ts == "" {
		return rejected("missing hubspot signature headers")
	}
	if err := checkTimestamp(ts, toleranceSec); err != nil {
		return rejected(err.Error())
	}

	base := req.Method + req.Host + req.Path + string(req.Body) + ts
	expected := base64HMAC(sha256.New, secret, []byte(base))
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return rejected("signature mismatch")
	}
	return accepted()
}

func checkTimestamp(raw string, toleranceSec int) error {
	sec, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("malformed timestamp %q", raw)
	}
	ts := time.Unix(sec, 0)
	if diff := time.Since(ts); diff > time.Duration(toleranceSec)*time.Second || diff < -time.Duration(toleranceSec)*time.Second {
		return fmt.Errorf("timestamp outside tolerance window")
	}
	return nil
}

func hexHMAC(newHash func() hash.Hash, secret string, body []byte) string {
	mac := hmac.New(newHash, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func base64HMAC(newHash func() hash.Hash, secret string, body []byte) string {
	mac := hmac.New(newHash, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
