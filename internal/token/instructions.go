package token

import (
	"github.com/gagliardetto/solana-go"

	"github.com/alanyoungcy/binaryoptions/internal/codec"
)

var (
	ixInitializeMint    = codec.InstructionDiscriminator("initialize_mint")
	ixInitializeAccount = codec.InstructionDiscriminator("initialize_account")
	ixMintTo            = codec.InstructionDiscriminator("mint_to")
	ixTransfer          = codec.InstructionDiscriminator("transfer")
)

type initializeMintArgs struct {
	Decimals  uint8
	Authority solana.PublicKey
}

type amountArgs struct {
	Amount uint64
}

func mustEncode(d codec.Discriminator, args any) []byte {
	data, err := codec.Encode(d, args)
	if err != nil {
		// Only fixed-size structs are encoded here.
		panic(err)
	}
	return data
}

// NewInitializeMintInstruction creates a mint at the mint keypair's address.
// Accounts: [mint (writable, signer)].
func NewInitializeMintInstruction(mint, authority solana.PublicKey, decimals uint8) solana.Instruction {
	return solana.NewInstruction(ProgramID, solana.AccountMetaSlice{
		solana.NewAccountMeta(mint, true, true),
	}, mustEncode(ixInitializeMint, initializeMintArgs{Decimals: decimals, Authority: authority}))
}

// NewInitializeAccountInstruction creates owner's associated token account for
// mint. Accounts: [payer (signer), account (writable), owner, mint].
func NewInitializeAccountInstruction(payer, account, owner, mint solana.PublicKey) solana.Instruction {
	return solana.NewInstruction(ProgramID, initializeAccountMetas(payer, account, owner, mint), mustEncode(ixInitializeAccount, nil))
}

func initializeAccountMetas(payer, account, owner, mint solana.PublicKey) solana.AccountMetaSlice {
	return solana.AccountMetaSlice{
		solana.NewAccountMeta(payer, true, true),
		solana.NewAccountMeta(account, true, false),
		solana.NewAccountMeta(owner, false, false),
		solana.NewAccountMeta(mint, false, false),
	}
}

// InitializeAccountData returns the instruction data of initialize_account.
func InitializeAccountData() []byte { return mustEncode(ixInitializeAccount, nil) }

// InitializeAccountMetas returns the account list of initialize_account for
// cross-program callers.
func InitializeAccountMetas(payer, account, owner, mint solana.PublicKey) []*solana.AccountMeta {
	return initializeAccountMetas(payer, account, owner, mint)
}

// NewMintToInstruction issues new tokens. Accounts: [mint (writable),
// destination (writable), authority (signer)].
func NewMintToInstruction(mint, destination, authority solana.PublicKey, amount uint64) solana.Instruction {
	return solana.NewInstruction(ProgramID, solana.AccountMetaSlice{
		solana.NewAccountMeta(mint, true, false),
		solana.NewAccountMeta(destination, true, false),
		solana.NewAccountMeta(authority, false, true),
	}, mustEncode(ixMintTo, amountArgs{Amount: amount}))
}

// NewTransferInstruction moves amount between two accounts of the same mint.
// Accounts: [source (writable), destination (writable), authority (signer)].
func NewTransferInstruction(source, destination, authority solana.PublicKey, amount uint64) solana.Instruction {
	return solana.NewInstruction(ProgramID, TransferMetas(source, destination, authority), TransferData(amount))
}

// TransferMetas returns the account list of transfer for cross-program
// callers.
func TransferMetas(source, destination, authority solana.PublicKey) []*solana.AccountMeta {
	return solana.AccountMetaSlice{
		solana.NewAccountMeta(source, true, false),
		solana.NewAccountMeta(destination, true, false),
		solana.NewAccountMeta(authority, false, true),
	}
}

// TransferData returns the instruction data of transfer.
func TransferData(amount uint64) []byte { return mustEncode(ixTransfer, amountArgs{Amount: amount}) }
