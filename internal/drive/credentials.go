// Package drive talks to the Google Drive API surface the relay needs:
// service-account authentication (hand-signed RS256 assertion exchanged for
// a bearer token), multipart file upload, and folder listing.
package drive

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
)

// ErrCredentials marks malformed or incomplete service-account
// configuration. Raised before any network call is attempted.
var ErrCredentials = errors.New("drive: invalid service account credentials")

// Credentials are the two fields of a service-account key the relay uses.
type Credentials struct {
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
}

// ParseCredentials decodes a service-account JSON document and verifies the
// required fields are present.
func ParseCredentials(raw string) (Credentials, error) {
	var c Credentials
	if strings.TrimSpace(raw) == "" {
		return Credentials{}, fmt.Errorf("%w: empty document", ErrCredentials)
	}
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return Credentials{}, fmt.Errorf("%w: %v", ErrCredentials, err)
	}
	if c.ClientEmail == "" {
		return Credentials{}, fmt.Errorf("%w: missing client_email", ErrCredentials)
	}
	if c.PrivateKey == "" {
		return Credentials{}, fmt.Errorf("%w: missing private_key", ErrCredentials)
	}
	return c, nil
}

// rsaKey parses the PKCS#8 PEM private key. Keys arriving through
// environment variables often carry literal \n escapes; normalize first.
func (c Credentials) rsaKey() (*rsa.PrivateKey, error) {
	pemData := strings.ReplaceAll(c.PrivateKey, `\n`, "\n")
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, fmt.Errorf("%w: private_key is not PEM encoded", ErrCredentials)
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: parse PKCS#8 key: %v", ErrCredentials, err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: private_key is not an RSA key", ErrCredentials)
	}
	return key, nil
}
