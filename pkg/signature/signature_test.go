package signature_test

import (
	"strings"
	"testing"
	"time"

	"github.com/carebridge/enrollhooks/pkg/signature"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	secret := "whsec_0123456789abcdef0123456789abcdef"
	payload := []byte(`{"event":"enrollment.created","data":{"id":"abc"}}`)
	ts := time.Now().Unix()

	header := signature.Sign(secret, ts, payload)

	if !strings.HasPrefix(header, "t=") || !strings.Contains(header, ",v1=") {
		t.Fatalf("unexpected header format: %q", header)
	}
	if !signature.Verify(secret, header, payload) {
		t.Fatal("valid signature did not verify")
	}
}

func TestVerifyRejectsMutatedPayload(t *testing.T) {
	secret := "secret"
	payload := []byte(`{"event":"document.uploaded","data":{"id":"doc-1"}}`)
	header := signature.Sign(secret, time.Now().Unix(), payload)

	for i := range payload {
		mutated := append([]byte(nil), payload...)
		mutated[i] ^= 0x01
		if signature.Verify(secret, header, mutated) {
			t.Fatalf("signature verified after mutating byte %d", i)
		}
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	payload := []byte(`{}`)
	header := signature.Sign("secret-a", time.Now().Unix(), payload)
	if signature.Verify("secret-b", header, payload) {
		t.Fatal("signature verified with wrong secret")
	}
}

func TestVerifyFailsClosedOnGarbage(t *testing.T) {
	cases := []string{
		"",
		"t=,v1=",
		"t=abc,v1=zzzz",
		"v1=onlysig",
		"t=12345",
		"no separators at all",
	}
	for _, header := range cases {
		if signature.Verify("secret", header, []byte(`{}`)) {
			t.Errorf("garbage header %q verified", header)
		}
	}
}

func TestVerifyWithTolerance(t *testing.T) {
	secret := "secret"
	payload := []byte(`{"event":"interview.scheduled"}`)

	stale := signature.Sign(secret, time.Now().Add(-10*time.Minute).Unix(), payload)
	if signature.VerifyWithTolerance(secret, stale, payload, 5*time.Minute) {
		t.Fatal("stale signature accepted within 5m tolerance")
	}
	if !signature.Verify(secret, stale, payload) {
		t.Fatal("Verify should not enforce skew")
	}

	fresh := signature.Sign(secret, time.Now().Unix(), payload)
	if !signature.VerifyWithTolerance(secret, fresh, payload, 5*time.Minute) {
		t.Fatal("fresh signature rejected")
	}
}

func TestTimestamp(t *testing.T) {
	header := signature.Sign("secret", 1700000000, []byte(`{}`))
	ts, err := signature.Timestamp(header)
	if err != nil {
		t.Fatalf("Timestamp: %v", err)
	}
	if ts != 1700000000 {
		t.Fatalf("timestamp = %d, want 1700000000", ts)
	}
}
