package stripe

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"
)

func signPayload(payload []byte, secret string, ts int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyWebhookSignature(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)
	secret := "whsec_test"
	now := time.Unix(1700000000, 0)

	header := fmt.Sprintf("t=%d,v1=%s", now.Unix(), signPayload(payload, secret, now.Unix()))
	if !verifyWebhookSignatureAt(payload, header, secret, now, DefaultSignatureTolerance) {
		t.Fatalf("expected valid signature to verify")
	}

	if verifyWebhookSignatureAt(payload, header, "whsec_other", now, DefaultSignatureTolerance) {
		t.Fatalf("expected wrong secret to fail")
	}
	if verifyWebhookSignatureAt([]byte(`{"tampered":true}`), header, secret, now, DefaultSignatureTolerance) {
		t.Fatalf("expected tampered payload to fail")
	}
}

func TestVerifyWebhookSignature_Tolerance(t *testing.T) {
	payload := []byte(`{"id":"evt_2"}`)
	secret := "whsec_test"
	signedAt := time.Unix(1700000000, 0)
	header := fmt.Sprintf("t=%d,v1=%s", signedAt.Unix(), signPayload(payload, secret, signedAt.Unix()))

	if !verifyWebhookSignatureAt(payload, header, secret, signedAt.Add(4*time.Minute), DefaultSignatureTolerance) {
		t.Fatalf("expected signature within tolerance to verify")
	}
	if verifyWebhookSignatureAt(payload, header, secret, signedAt.Add(6*time.Minute), DefaultSignatureTolerance) {
		t.Fatalf("expected stale signature to fail")
	}
}

func TestVerifyWebhookSignature_MultipleV1(t *testing.T) {
	payload := []byte(`{"id":"evt_3"}`)
	secret := "whsec_test"
	now := time.Unix(1700000000, 0)

	// Secret rotation sends the old and the new signature; one match suffices.
	header := fmt.Sprintf("t=%d,v1=%s,v1=%s", now.Unix(), "00aabb", signPayload(payload, secret, now.Unix()))
	if !verifyWebhookSignatureAt(payload, header, secret, now, DefaultSignatureTolerance) {
		t.Fatalf("expected one matching v1 entry to verify")
	}
}

func TestVerifyWebhookSignature_Malformed(t *testing.T) {
	payload := []byte(`{}`)
	now := time.Unix(1700000000, 0)

	cases := []string{
		"",
		"t=abc,v1=00",
		"v1=00aabb",
		fmt.Sprintf("t=%d", now.Unix()),
	}
	for _, header := range cases {
		if verifyWebhookSignatureAt(payload, header, "whsec_test", now, DefaultSignatureTolerance) {
			t.Fatalf("expected malformed header %q to fail", header)
		}
	}

	if VerifyWebhookSignature(payload, "t=1,v1=00", "") {
		t.Fatalf("expected empty secret to fail")
	}
}
