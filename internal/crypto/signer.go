package crypto

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Signer builds and signs ledger transactions with a fee-payer key.
type Signer struct {
	key solana.PrivateKey
}

// NewSigner wraps an ed25519 private key.
func NewSigner(key solana.PrivateKey) *Signer {
	return &Signer{key: key}
}

// PublicKey returns the signer's address.
func (s *Signer) PublicKey() solana.PublicKey {
	return s.key.PublicKey()
}

// PrivateKey exposes the underlying key.
func (s *Signer) PrivateKey() solana.PrivateKey {
	return s.key
}

// SignTransaction builds a transaction paid for by s and signs it with s and
// any co-signers the instructions require.
func (s *Signer) SignTransaction(recent solana.Hash, instructions []solana.Instruction, cosigners ...solana.PrivateKey) (*solana.Transaction, error) {
	return BuildTransaction(recent, s.key, instructions, cosigners...)
}

// BuildTransaction assembles instructions into a transaction with payer as the
// fee payer and signs it with every key that the message marks as a signer.
func BuildTransaction(recent solana.Hash, payer solana.PrivateKey, instructions []solana.Instruction, cosigners ...solana.PrivateKey) (*solana.Transaction, error) {
	tx, err := solana.NewTransaction(instructions, recent, solana.TransactionPayer(payer.PublicKey()))
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: build transaction: %w", err)
	}

	keys := make(map[solana.PublicKey]solana.PrivateKey, len(cosigners)+1)
	keys[payer.PublicKey()] = payer
	for _, k := range cosigners {
		keys[k.PublicKey()] = k
	}

	if _, err := tx.Sign(func(pub solana.PublicKey) *solana.PrivateKey {
		if k, ok := keys[pub]; ok {
			return &k
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("crypto/signer: sign transaction: %w", err)
	}
	return tx, nil
}
