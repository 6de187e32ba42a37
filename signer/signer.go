// Package signer builds and signs the redeploy requests sent to repls.
//
// A request body is signed with RSA PKCS#1 v1.5 over its SHA-256 digest and the
// signature travels base64 encoded in the Signature header. Verifiers must hash
// the body bytes exactly as received.
package signer

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

const SignatureHeader = "Signature"

// Request is the payload delivered to a repl's redeploy endpoint. Endpoint is
// carried through verbatim from the repository config.
type Request struct {
	Timestamp int64 `json:"timestamp"`
	Endpoint  any   `json:"endpoint"`
}

func NewRequest(now time.Time, endpoint any) Request {
	return Request{
		Timestamp: now.UnixMilli(),
		Endpoint:  endpoint,
	}
}

// Encode serializes the request in its canonical form: timestamp then
// endpoint, no HTML escaping, no trailing newline. U+2028 and U+2029 are
// still written as \u2028 and \u2029, so a verifier that rebuilds the body
// with an encoder emitting them raw gets different bytes.
func (r Request) Encode() ([]byte, error) {
	var buf bytes.Buffer

	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(r); err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

type Signer struct {
	key *rsa.PrivateKey
}

func New(key *rsa.PrivateKey) (*Signer, error) {
	if key == nil {
		return nil, fmt.Errorf("signing key is nil")
	}

	return &Signer{key: key}, nil
}

// NewFromPEM parses a (possibly passphrase protected) PEM key and returns a
// signer for it.
func NewFromPEM(pemBytes []byte, passphrase string) (*Signer, error) {
	key, err := ParsePrivateKey(pemBytes, passphrase)

	if err != nil {
		return nil, err
	}

	return New(key)
}

func (s *Signer) Sign(body []byte) (string, error) {
	digest := sha256.Sum256(body)

	signature, err := rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA256, digest[:])

	if err != nil {
		return "", fmt.Errorf("failed to sign request: %w", err)
	}

	return base64.StdEncoding.EncodeToString(signature), nil
}

func (s *Signer) PublicKey() *rsa.PublicKey {
	return &s.key.PublicKey
}

// Verify checks a base64 signature produced by Sign against body.
func Verify(key *rsa.PublicKey, body []byte, signature string) error {
	decoded, err := base64.StdEncoding.DecodeString(signature)

	if err != nil {
		return fmt.Errorf("failed to decode signature: %w", err)
	}

	digest := sha256.Sum256(body)

	if err := rsa.VerifyPKCS1v15(key, crypto.SHA256, digest[:], decoded); err != nil {
		return fmt.Errorf("invalid signature: %w", err)
	}

	return nil
}
