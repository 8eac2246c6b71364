package ledger

import (
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// DecodeTransaction parses a wire-format transaction.
func DecodeTransaction(raw []byte) (*solana.Transaction, error) {
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalidTransaction, err)
	}
	return tx, nil
}

// EncodeTransaction serializes tx to wire format.
func EncodeTransaction(tx *solana.Transaction) ([]byte, error) {
	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("ledger: encode transaction: %w", err)
	}
	return raw, nil
}

// accountFlags derives per-key signer and writable privileges from the
// message header. Keys are ordered: writable signers, read-only signers,
// writable non-signers, read-only non-signers.
func accountFlags(msg *solana.Message) (signers, writable map[solana.PublicKey]bool) {
	n := len(msg.AccountKeys)
	reqSig := int(msg.Header.NumRequiredSignatures)
	roSigned := int(msg.Header.NumReadonlySignedAccounts)
	roUnsigned := int(msg.Header.NumReadonlyUnsignedAccounts)

	signers = make(map[solana.PublicKey]bool, reqSig)
	writable = make(map[solana.PublicKey]bool, n)
	for i, key := range msg.AccountKeys {
		if i < reqSig {
			signers[key] = true
			writable[key] = i < reqSig-roSigned
			continue
		}
		writable[key] = i < n-roUnsigned
	}
	return signers, writable
}

// verifyTransaction checks message structure and every signature.
func verifyTransaction(tx *solana.Transaction) error {
	msg := &tx.Message
	if msg.IsVersioned() {
		return fmt.Errorf("%w: versioned messages are not supported", ErrInvalidTransaction)
	}

	n := len(msg.AccountKeys)
	h := msg.Header
	reqSig := int(h.NumRequiredSignatures)
	switch {
	case reqSig == 0 || reqSig > n:
		return fmt.Errorf("%w: bad signer count %d", ErrInvalidTransaction, reqSig)
	case int(h.NumReadonlySignedAccounts) >= reqSig:
		return fmt.Errorf("%w: fee payer must be writable", ErrInvalidTransaction)
	case reqSig+int(h.NumReadonlyUnsignedAccounts) > n:
		return fmt.Errorf("%w: bad read-only count", ErrInvalidTransaction)
	case len(tx.Signatures) != reqSig:
		return fmt.Errorf("%w: expected %d signatures, got %d", ErrInvalidTransaction, reqSig, len(tx.Signatures))
	case len(msg.Instructions) == 0:
		return fmt.Errorf("%w: no instructions", ErrInvalidTransaction)
	}

	seen := make(map[solana.PublicKey]struct{}, n)
	for _, key := range msg.AccountKeys {
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: duplicate account key %s", ErrInvalidTransaction, key)
		}
		seen[key] = struct{}{}
	}

	for i, ci := range msg.Instructions {
		if int(ci.ProgramIDIndex) >= n {
			return fmt.Errorf("%w: instruction %d: program index out of range", ErrInvalidTransaction, i)
		}
		for _, idx := range ci.Accounts {
			if int(idx) >= n {
				return fmt.Errorf("%w: instruction %d: account index out of range", ErrInvalidTransaction, i)
			}
		}
	}

	payload, err := msg.MarshalBinary()
	if err != nil {
		return fmt.Errorf("%w: encode message: %v", ErrInvalidTransaction, err)
	}
	for i, sig := range tx.Signatures {
		if !sig.Verify(msg.AccountKeys[i], payload) {
			return fmt.Errorf("%w: signer %s", ErrInvalidSignature, msg.AccountKeys[i])
		}
	}
	return nil
}
