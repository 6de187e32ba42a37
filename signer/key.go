package signer

import (
	"crypto/rsa"
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/youmark/pkcs8"
	"golang.org/x/crypto/ssh"
)

const encryptedPKCS8BlockType = "ENCRYPTED PRIVATE KEY"

// ParsePrivateKey decodes an RSA private key. Encrypted PKCS#8 blocks and
// legacy encrypted PEM blocks are decrypted with passphrase; unencrypted keys
// ignore it.
func ParsePrivateKey(pemBytes []byte, passphrase string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)

	if block == nil {
		return nil, fmt.Errorf("no PEM block found in signing key")
	}

	var (
		key any
		err error
	)

	if block.Type == encryptedPKCS8BlockType {
		key, err = pkcs8.ParsePKCS8PrivateKey(block.Bytes, []byte(passphrase))
	} else {
		key, err = ssh.ParseRawPrivateKey(pemBytes)

		var missing *ssh.PassphraseMissingError
		if errors.As(err, &missing) {
			key, err = ssh.ParseRawPrivateKeyWithPassphrase(pemBytes, []byte(passphrase))
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to parse signing key: %w", err)
	}

	rsaKey, ok := key.(*rsa.PrivateKey)

	if !ok {
		return nil, fmt.Errorf("signing key is %T, expected an RSA key", key)
	}

	return rsaKey, nil
}
