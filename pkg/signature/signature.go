// Package signature implements signing and verification of webhook payloads.
//
// Every delivery carries an X-Webhook-Signature header of the form
//
//	t=<unix_ts>,v1=<base64 hmac>
//
// where the HMAC-SHA256 is computed over "<unix_ts>.<body>" with the
// subscription secret as the key. Receivers should verify with
// VerifyWithTolerance to reject replayed deliveries.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Header is the canonical name of the signature header.
const Header = "X-Webhook-Signature"

// Sign computes the signature header value for a payload at the given
// unix timestamp.
func Sign(secret string, timestamp int64, payload []byte) string {
	return fmt.Sprintf("t=%d,v1=%s", timestamp, compute(secret, timestamp, payload))
}

// Verify checks a signature header against the payload. It performs a
// constant-time comparison and fails closed on any parse error. Verify does
// not enforce a maximum timestamp skew; callers that need replay protection
// should use VerifyWithTolerance.
func Verify(secret, header string, payload []byte) bool {
	ts, sig, err := parseHeader(header)
	if err != nil {
		return false
	}
	expected := compute(secret, ts, payload)
	return hmac.Equal([]byte(expected), []byte(sig))
}

// VerifyWithTolerance verifies the signature and additionally rejects
// headers whose timestamp is further than tolerance from now.
func VerifyWithTolerance(secret, header string, payload []byte, tolerance time.Duration) bool {
	ts, _, err := parseHeader(header)
	if err != nil {
		return false
	}
	skew := time.Since(time.Unix(ts, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > tolerance {
		return false
	}
	return Verify(secret, header, payload)
}

// Timestamp extracts the t= component of a signature header.
func Timestamp(header string) (int64, error) {
	ts, _, err := parseHeader(header)
	return ts, err
}

func compute(secret string, timestamp int64, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(payload)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func parseHeader(header string) (ts int64, sig string, err error) {
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			return 0, "", fmt.Errorf("malformed signature element %q", part)
		}
		switch k {
		case "t":
			ts, err = strconv.ParseInt(v, 10, 64)
			if err != nil {
				return 0, "", fmt.Errorf("parse timestamp: %w", err)
			}
		case "v1":
			sig = v
		}
	}
	if ts == 0 || sig == "" {
		return 0, "", fmt.Errorf("signature header missing t= or v1=")
	}
	return ts, sig, nil
}
