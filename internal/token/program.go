package token

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/alanyoungcy/binaryoptions/internal/codec"
	"github.com/alanyoungcy/binaryoptions/internal/derive"
	"github.com/alanyoungcy/binaryoptions/internal/ledger"
)

// Program processes token instructions.
type Program struct{}

// NewProgram returns the token program.
func NewProgram() *Program { return &Program{} }

var _ ledger.Program = (*Program)(nil)

// ID implements ledger.Program.
func (p *Program) ID() solana.PublicKey { return ProgramID }

// Process implements ledger.Program.
func (p *Program) Process(ic *ledger.InvokeContext, accounts []*solana.AccountMeta, data []byte) error {
	d, args, err := codec.Split(data)
	if err != nil {
		return ErrInvalidInstruction
	}
	switch d {
	case ixInitializeMint:
		return p.initializeMint(ic, accounts, args)
	case ixInitializeAccount:
		return p.initializeAccount(ic, accounts)
	case ixMintTo:
		return p.mintTo(ic, accounts, args)
	case ixTransfer:
		return p.transfer(ic, accounts, args)
	default:
		return ErrInvalidInstruction
	}
}

func decodeArgs(data []byte, v any) error {
	if err := codec.DecodeArgs(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInstruction, err)
	}
	return nil
}

func requireAccounts(accounts []*solana.AccountMeta, n int) error {
	if len(accounts) < n {
		return fmt.Errorf("%w: expected %d accounts, got %d", ErrInvalidInstruction, n, len(accounts))
	}
	return nil
}

func (p *Program) initializeMint(ic *ledger.InvokeContext, accounts []*solana.AccountMeta, data []byte) error {
	if err := requireAccounts(accounts, 1); err != nil {
		return err
	}
	var args initializeMintArgs
	if err := decodeArgs(data, &args); err != nil {
		return err
	}
	mint := accounts[0].PublicKey
	rec, err := codec.Encode(mintTag, Mint{Authority: args.Authority, Decimals: args.Decimals})
	if err != nil {
		return err
	}
	if err := ic.Create(mint, rec, nil); err != nil {
		return err
	}
	ic.Log("initialized mint %s", mint)
	return nil
}

func (p *Program) initializeAccount(ic *ledger.InvokeContext, accounts []*solana.AccountMeta) error {
	if err := requireAccounts(accounts, 4); err != nil {
		return err
	}
	payer, account, owner, mint := accounts[0].PublicKey, accounts[1].PublicKey, accounts[2].PublicKey, accounts[3].PublicKey
	if !ic.IsSigner(payer) {
		return ErrMissingSignature
	}
	mintAcct, err := ic.Load(mint)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAccount, err)
	}
	if _, err := DecodeMint(mintAcct); err != nil {
		return err
	}

	seeds := derive.AssociatedTokenSeeds(owner, mint, ProgramID)
	expected, bump, err := derive.AssociatedTokenAddress(owner, mint, ProgramID)
	if err != nil {
		return err
	}
	if !expected.Equals(account) {
		return fmt.Errorf("%w: %s is not the associated account of %s", ErrInvalidAccount, account, owner)
	}

	rec, err := codec.Encode(accountTag, Account{Mint: mint, Owner: owner})
	if err != nil {
		return err
	}
	return ic.Create(account, rec, derive.WithBump(seeds, bump))
}

func (p *Program) mintTo(ic *ledger.InvokeContext, accounts []*solana.AccountMeta, data []byte) error {
	if err := requireAccounts(accounts, 3); err != nil {
		return err
	}
	var args amountArgs
	if err := decodeArgs(data, &args); err != nil {
		return err
	}
	mintAddr, destAddr, authority := accounts[0].PublicKey, accounts[1].PublicKey, accounts[2].PublicKey

	mintAcct, err := ic.Load(mintAddr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAccount, err)
	}
	mint, err := DecodeMint(mintAcct)
	if err != nil {
		return err
	}
	if !mint.Authority.Equals(authority) || !ic.IsSigner(authority) {
		return ErrMissingSignature
	}
	destAcct, err := ic.Load(destAddr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAccount, err)
	}
	dest, err := DecodeAccount(destAcct)
	if err != nil {
		return err
	}
	if !dest.Mint.Equals(mintAddr) {
		return ErrMintMismatch
	}

	if mint.Supply, err = checkedAdd(mint.Supply, args.Amount); err != nil {
		return err
	}
	if dest.Amount, err = checkedAdd(dest.Amount, args.Amount); err != nil {
		return err
	}
	if err := p.storeMint(ic, mintAddr, mint); err != nil {
		return err
	}
	return p.storeAccount(ic, destAddr, dest)
}

func (p *Program) transfer(ic *ledger.InvokeContext, accounts []*solana.AccountMeta, data []byte) error {
	if err := requireAccounts(accounts, 3); err != nil {
		return err
	}
	var args amountArgs
	if err := decodeArgs(data, &args); err != nil {
		return err
	}
	srcAddr, dstAddr, authority := accounts[0].PublicKey, accounts[1].PublicKey, accounts[2].PublicKey

	src, err := p.loadAccount(ic, srcAddr)
	if err != nil {
		return err
	}
	dst, err := p.loadAccount(ic, dstAddr)
	if err != nil {
		return err
	}
	if !src.Mint.Equals(dst.Mint) {
		return ErrMintMismatch
	}
	if !src.Owner.Equals(authority) {
		return ErrOwnerMismatch
	}
	if !ic.IsSigner(authority) {
		return ErrMissingSignature
	}
	if src.Amount < args.Amount {
		return ErrInsufficientFunds
	}
	if srcAddr.Equals(dstAddr) {
		return nil
	}

	src.Amount -= args.Amount
	if dst.Amount, err = checkedAdd(dst.Amount, args.Amount); err != nil {
		return err
	}
	if err := p.storeAccount(ic, srcAddr, src); err != nil {
		return err
	}
	if err := p.storeAccount(ic, dstAddr, dst); err != nil {
		return err
	}
	ic.Log("transfer %d from %s to %s", args.Amount, srcAddr, dstAddr)
	return nil
}

func (p *Program) loadAccount(ic *ledger.InvokeContext, addr solana.PublicKey) (Account, error) {
	acct, err := ic.Load(addr)
	if err != nil {
		if errors.Is(err, ledger.ErrAccountNotFound) {
			return Account{}, fmt.Errorf("%w: %s", ErrInvalidAccount, addr)
		}
		return Account{}, err
	}
	return DecodeAccount(acct)
}

func (p *Program) storeAccount(ic *ledger.InvokeContext, addr solana.PublicKey, a Account) error {
	rec, err := codec.Encode(accountTag, a)
	if err != nil {
		return err
	}
	return ic.Store(addr, rec)
}

func (p *Program) storeMint(ic *ledger.InvokeContext, addr solana.PublicKey, m Mint) error {
	rec, err := codec.Encode(mintTag, m)
	if err != nil {
		return err
	}
	return ic.Store(addr, rec)
}

func checkedAdd(a, b uint64) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, ErrOverflow
	}
	return sum, nil
}
