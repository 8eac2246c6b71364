// Package crypto manages the operator's ed25519 key and signs ledger
// transactions with it.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/gagliardetto/solana-go"
	"golang.org/x/crypto/pbkdf2"
)

const (
	pbkdf2Iterations = 480_000
	saltLen          = 16
	aesKeyLen        = 32
	keyFileVersion   = 1
)

// keyFile is the on-disk format of an encrypted key. The public key is
// sealed in as additional data, so editing it breaks decryption.
type keyFile struct {
	Version    int    `json:"version"`
	PublicKey  string `json:"public_key"`
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// KeyConfig lists the places LoadKey may find the admin key. A raw key wins
// over a key file.
type KeyConfig struct {
	RawPrivateKey    string // base58, 64 bytes
	EncryptedKeyPath string
	KeyPassword      string
}

// LoadKey resolves the private key described by cfg.
func LoadKey(cfg KeyConfig) (solana.PrivateKey, error) {
	switch {
	case cfg.RawPrivateKey != "":
		return parsePrivateKey(cfg.RawPrivateKey)
	case cfg.EncryptedKeyPath != "":
		data, err := os.ReadFile(cfg.EncryptedKeyPath)
		if err != nil {
			return nil, fmt.Errorf("crypto: read key file: %w", err)
		}
		return DecryptKey(data, cfg.KeyPassword)
	default:
		return nil, errors.New("crypto: no private key source configured")
	}
}

// WriteKeyFile encrypts key with password and writes it to path, readable by
// the owner only. It refuses to overwrite an existing file.
func WriteKeyFile(path string, key solana.PrivateKey, password string) error {
	blob, err := EncryptKey(key.String(), password)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("crypto: create key file: %w", err)
	}
	if _, err := f.Write(blob); err != nil {
		f.Close()
		return fmt.Errorf("crypto: write key file: %w", err)
	}
	return f.Close()
}

// EncryptKey seals a base58 private key with AES-256-GCM under a
// PBKDF2-HMAC-SHA256 key derived from password, and returns the JSON file
// contents.
func EncryptKey(privateKey string, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("crypto: password must not be empty")
	}
	key, err := parsePrivateKey(privateKey)
	if err != nil {
		return nil, err
	}

	kf := keyFile{
		Version:   keyFileVersion,
		PublicKey: key.PublicKey().String(),
		Salt:      make([]byte, saltLen),
	}
	if _, err := rand.Read(kf.Salt); err != nil {
		return nil, fmt.Errorf("crypto: generate salt: %w", err)
	}
	gcm, err := deriveCipher(password, kf.Salt)
	if err != nil {
		return nil, err
	}
	kf.Nonce = make([]byte, gcm.NonceSize())
	if _, err := rand.Read(kf.Nonce); err != nil {
		return nil, fmt.Errorf("crypto: generate nonce: %w", err)
	}
	kf.Ciphertext = gcm.Seal(nil, kf.Nonce, key, []byte(kf.PublicKey))
	return json.MarshalIndent(kf, "", "  ")
}

// DecryptKey opens a file produced by EncryptKey and checks that the key
// matches the public key recorded beside it.
func DecryptKey(data []byte, password string) (solana.PrivateKey, error) {
	if password == "" {
		return nil, errors.New("crypto: password must not be empty")
	}
	var kf keyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("crypto: parse key file: %w", err)
	}
	if kf.Version != keyFileVersion {
		return nil, fmt.Errorf("crypto: unsupported key file version %d", kf.Version)
	}

	gcm, err := deriveCipher(password, kf.Salt)
	if err != nil {
		return nil, err
	}
	if len(kf.Nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("crypto: bad nonce length %d", len(kf.Nonce))
	}
	plain, err := gcm.Open(nil, kf.Nonce, kf.Ciphertext, []byte(kf.PublicKey))
	if err != nil {
		return nil, errors.New("crypto: decryption failed (wrong password?)")
	}
	if len(plain) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("crypto: decrypted key has %d bytes", len(plain))
	}
	key := solana.PrivateKey(plain)
	if key.PublicKey().String() != kf.PublicKey {
		return nil, errors.New("crypto: key file public key does not match the key")
	}
	return key, nil
}

func parsePrivateKey(s string) (solana.PrivateKey, error) {
	key, err := solana.PrivateKeyFromBase58(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid private key: %w", err)
	}
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("crypto: expected %d-byte key, got %d bytes", ed25519.PrivateKeySize, len(key))
	}
	return key, nil
}

func deriveCipher(password string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, aesKeyLen, sha256.New))
	if err != nil {
		return nil, fmt.Errorf("crypto: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: create gcm: %w", err)
	}
	return gcm, nil
}
