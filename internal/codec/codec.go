// Package codec encodes account and instruction payloads as Borsh prefixed with
// an 8-byte discriminator, the layout Anchor programs use.
package codec

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
)

// DiscriminatorSize is the length of the payload prefix.
const DiscriminatorSize = 8

var (
	ErrShortData             = errors.New("codec: payload shorter than discriminator")
	ErrDiscriminatorMismatch = errors.New("codec: discriminator mismatch")
)

// Discriminator is the 8-byte type tag of a payload.
type Discriminator [DiscriminatorSize]byte

// Bytes returns a fresh slice holding the tag.
func (d Discriminator) Bytes() []byte {
	return append([]byte(nil), d[:]...)
}

func discriminator(namespace, name string) Discriminator {
	sum := sha256.Sum256([]byte(namespace + ":" + name))
	var d Discriminator
	copy(d[:], sum[:DiscriminatorSize])
	return d
}

// AccountDiscriminator tags an account record type.
func AccountDiscriminator(name string) Discriminator {
	return discriminator("account", name)
}

// InstructionDiscriminator tags an instruction.
func InstructionDiscriminator(name string) Discriminator {
	return discriminator("global", name)
}

// Encode writes d followed by the Borsh encoding of v. A nil v yields the bare
// discriminator.
func Encode(d Discriminator, v any) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(d[:])
	if v != nil {
		if err := bin.NewBorshEncoder(&buf).Encode(v); err != nil {
			return nil, fmt.Errorf("codec: encode: %w", err)
		}
	}
	return buf.Bytes(), nil
}

// Decode checks the discriminator and Borsh-decodes the remainder into v.
func Decode(d Discriminator, data []byte, v any) error {
	if len(data) < DiscriminatorSize {
		return ErrShortData
	}
	if !bytes.Equal(data[:DiscriminatorSize], d[:]) {
		return ErrDiscriminatorMismatch
	}
	if v == nil {
		return nil
	}
	if err := bin.NewBorshDecoder(data[DiscriminatorSize:]).Decode(v); err != nil {
		return fmt.Errorf("codec: decode: %w", err)
	}
	return nil
}

// DecodeArgs Borsh-decodes instruction arguments that follow a discriminator.
func DecodeArgs(args []byte, v any) error {
	if err := bin.NewBorshDecoder(args).Decode(v); err != nil {
		return fmt.Errorf("codec: decode args: %w", err)
	}
	return nil
}

// Split separates the discriminator from the argument bytes.
func Split(data []byte) (Discriminator, []byte, error) {
	var d Discriminator
	if len(data) < DiscriminatorSize {
		return d, nil, ErrShortData
	}
	copy(d[:], data[:DiscriminatorSize])
	return d, data[DiscriminatorSize:], nil
}
