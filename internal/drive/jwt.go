package drive

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

const (
	// TokenURL is the OAuth2 token endpoint the assertion is exchanged at;
	// it doubles as the assertion audience.
	TokenURL = "https://oauth2.googleapis.com/token"

	// FileScope limits the token to files the service account created.
	FileScope = "https://www.googleapis.com/auth/drive.file"

	// assertionLifetime is fixed: every assertion expires one hour after
	// it is minted, and a fresh one is minted per token exchange.
	assertionLifetime = time.Hour
)

type jwtHeader struct {
	Alg string `json:"alg"`
	Typ string `json:"typ"`
}

type jwtClaims struct {
	Iss   string `json:"iss"`
	Scope string `json:"scope"`
	Aud   string `json:"aud"`
	Iat   int64  `json:"iat"`
	Exp   int64  `json:"exp"`
}

// SignAssertion builds and signs the service-account assertion for one
// OAuth2 token exchange: RS256 over base64url(header).base64url(claims),
// with exp pinned to iat plus one hour.
func SignAssertion(creds Credentials, scope, audience string) (string, error) {
	return signAssertionAt(creds, scope, audience, time.Now())
}

func signAssertionAt(creds Credentials, scope, audience string, now time.Time) (string, error) {
	key, err := creds.rsaKey()
	if err != nil {
		return "", err
	}

	header, err := json.Marshal(jwtHeader{Alg: "RS256", Typ: "JWT"})
	if err != nil {
		return "", fmt.Errorf("drive: marshal jwt header: %w", err)
	}
	iat := now.Unix()
	claims, err := json.Marshal(jwtClaims{
		Iss:   creds.ClientEmail,
		Scope: scope,
		Aud:   audience,
		Iat:   iat,
		Exp:   iat + int64(assertionLifetime/time.Second),
	})
	if err != nil {
		return "", fmt.Errorf("drive: marshal jwt claims: %w", err)
	}

	enc := base64.RawURLEncoding
	signingInput := enc.EncodeToString(header) + "." + enc.EncodeToString(claims)

	digest := sha256.Sum256([]byte(signingInput))
	signature, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	if err != nil {
		return "", fmt.Errorf("drive: sign assertion: %w", err)
	}

	return signingInput + "." + enc.EncodeToString(signature), nil
}
