package codec_test

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/binaryoptions/internal/codec"
)

type sample struct {
	Owner   solana.PublicKey
	Amount  uint64
	Expiry  int64
	Kind    uint8
	Settled bool
}

func TestEncodeLayout(t *testing.T) {
	d := codec.AccountDiscriminator("Sample")
	owner := solana.NewWallet().PublicKey()

	data, err := codec.Encode(d, sample{Owner: owner, Amount: 7, Expiry: -1, Kind: 1, Settled: true})
	require.NoError(t, err)

	// 8 discriminator + 32 key + 8 + 8 + 1 + 1
	require.Len(t, data, 58)
	assert.Equal(t, d[:], data[:8])
	assert.Equal(t, owner.Bytes(), data[8:40])
	assert.Equal(t, byte(7), data[40])

	var got sample
	require.NoError(t, codec.Decode(d, data, &got))
	assert.Equal(t, owner, got.Owner)
	assert.Equal(t, int64(-1), got.Expiry)
	assert.True(t, got.Settled)
}

func TestDecodeRejectsForeignRecord(t *testing.T) {
	data, err := codec.Encode(codec.AccountDiscriminator("Other"), sample{})
	require.NoError(t, err)

	var got sample
	assert.ErrorIs(t, codec.Decode(codec.AccountDiscriminator("Sample"), data, &got), codec.ErrDiscriminatorMismatch)
	assert.ErrorIs(t, codec.Decode(codec.AccountDiscriminator("Sample"), data[:3], &got), codec.ErrShortData)
}

func TestDiscriminatorsAreNamespaced(t *testing.T) {
	assert.NotEqual(t, codec.AccountDiscriminator("initialize"), codec.InstructionDiscriminator("initialize"))

	d, args, err := codec.Split(append(codec.InstructionDiscriminator("settle_prediction").Bytes(), 1, 2))
	require.NoError(t, err)
	assert.Equal(t, codec.InstructionDiscriminator("settle_prediction"), d)
	assert.Equal(t, []byte{1, 2}, args)
}
