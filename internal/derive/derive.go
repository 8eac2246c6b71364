// Package derive computes program-derived addresses.
//
// A derived address is a pure function of a program id, a namespace and a list
// of seed components. It is searched from bump 255 downward until the result
// falls off the ed25519 curve, so no private key can ever sign for it. The
// owning program proves authority over a derived address by presenting the
// same seeds plus the bump, which Verify recomputes.
package derive

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Seeds prepends the namespace to the seed components.
func Seeds(namespace string, components ...[]byte) [][]byte {
	out := make([][]byte, 0, len(components)+1)
	out = append(out, []byte(namespace))
	return append(out, components...)
}

// WithBump appends the bump byte to a seed list.
func WithBump(seeds [][]byte, bump uint8) [][]byte {
	out := make([][]byte, 0, len(seeds)+1)
	out = append(out, seeds...)
	return append(out, []byte{bump})
}

// Find returns the canonical derived address and its bump.
func Find(programID solana.PublicKey, namespace string, components ...[]byte) (solana.PublicKey, uint8, error) {
	addr, bump, err := solana.FindProgramAddress(Seeds(namespace, components...), programID)
	if err != nil {
		return solana.PublicKey{}, 0, fmt.Errorf("derive: find %q: %w", namespace, err)
	}
	return addr, bump, nil
}

// Verify recomputes an address from a known bump.
func Verify(programID solana.PublicKey, namespace string, bump uint8, components ...[]byte) (solana.PublicKey, error) {
	addr, err := solana.CreateProgramAddress(WithBump(Seeds(namespace, components...), bump), programID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive: verify %q: %w", namespace, err)
	}
	return addr, nil
}

// U64 encodes v as eight little-endian bytes.
func U64(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

// AssociatedTokenSeeds returns the seeds of the canonical token account for an
// owner and mint.
func AssociatedTokenSeeds(owner, mint, tokenProgram solana.PublicKey) [][]byte {
	return [][]byte{owner.Bytes(), tokenProgram.Bytes(), mint.Bytes()}
}

// AssociatedTokenAddress derives the canonical token account of owner for
// mint. The address is derived under the token program itself.
func AssociatedTokenAddress(owner, mint, tokenProgram solana.PublicKey) (solana.PublicKey, uint8, error) {
	addr, bump, err := solana.FindProgramAddress(AssociatedTokenSeeds(owner, mint, tokenProgram), tokenProgram)
	if err != nil {
		return solana.PublicKey{}, 0, fmt.Errorf("derive: associated token address: %w", err)
	}
	return addr, bump, nil
}

// NamedID returns a stable 32-byte identifier for a program name.
func NamedID(name string) solana.PublicKey {
	sum := sha256.Sum256([]byte("program:" + name))
	return solana.PublicKeyFromBytes(sum[:])
}
