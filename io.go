package main

import (
	"crypto"
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
)

// LoadAuthPrivateKey 從PEM檔載入簽發JWT用的Ed25519私鑰
func LoadAuthPrivateKey(path string) (crypto.Signer, error) {
	const op = "LoadAuthPrivateKey"
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to read private key file, err=%w", op, err)
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("[%s] No PEM block in private key file", op)
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to parse private key, err=%w", op, err)
	}
	key, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("[%s] Private key is not an Ed25519 key", op)
	}
	return key, nil
}
