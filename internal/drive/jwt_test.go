package drive

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestSignAssertionVerifies(t *testing.T) {
	creds, key := testCredentials(t)

	assertion, err := SignAssertion(creds, FileScope, TokenURL)
	if err != nil {
		t.Fatalf("SignAssertion: %v", err)
	}

	parts := strings.Split(assertion, ".")
	if len(parts) != 3 {
		t.Fatalf("assertion has %d parts, want 3", len(parts))
	}

	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		t.Fatalf("decode signature: %v", err)
	}
	digest := sha256.Sum256([]byte(parts[0] + "." + parts[1]))
	if err := rsa.VerifyPKCS1v15(&key.PublicKey, crypto.SHA256, digest[:], sig); err != nil {
		t.Fatalf("signature does not verify: %v", err)
	}
}

func TestSignAssertionClaims(t *testing.T) {
	creds, _ := testCredentials(t)
	now := time.Unix(1700000000, 0)

	assertion, err := signAssertionAt(creds, FileScope, TokenURL, now)
	if err != nil {
		t.Fatalf("signAssertionAt: %v", err)
	}
	parts := strings.Split(assertion, ".")

	headerJSON, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		t.Fatalf("decode header: %v", err)
	}
	var header jwtHeader
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		t.Fatalf("unmarshal header: %v", err)
	}
	if header.Alg != "RS256" || header.Typ != "JWT" {
		t.Fatalf("header = %+v, want RS256/JWT", header)
	}

	claimsJSON, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		t.Fatalf("decode claims: %v", err)
	}
	var claims jwtClaims
	if err := json.Unmarshal(claimsJSON, &claims); err != nil {
		t.Fatalf("unmarshal claims: %v", err)
	}

	if claims.Iss != creds.ClientEmail {
		t.Errorf("iss = %q, want %q", claims.Iss, creds.ClientEmail)
	}
	if claims.Scope != FileScope {
		t.Errorf("scope = %q", claims.Scope)
	}
	if claims.Aud != TokenURL {
		t.Errorf("aud = %q", claims.Aud)
	}
	if claims.Iat != now.Unix() {
		t.Errorf("iat = %d, want %d", claims.Iat, now.Unix())
	}
	if claims.Exp != claims.Iat+3600 {
		t.Errorf("exp = %d, want iat+3600 = %d", claims.Exp, claims.Iat+3600)
	}
}

func TestSignAssertionBadKey(t *testing.T) {
	creds := Credentials{ClientEmail: "a@b.c", PrivateKey: "garbage"}
	if _, err := SignAssertion(creds, FileScope, TokenURL); err == nil {
		t.Fatal("expected error for malformed key")
	}
}
