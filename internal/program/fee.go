package program

import "math/bits"

// MaxFeeRatePercent is the largest accepted fee rate.
const MaxFeeRatePercent = 100

// Fee returns amount * feeRatePercent / 100, rounded down. It fails with
// ErrArithmeticOverflow instead of wrapping.
func Fee(amount, feeRatePercent uint64) (uint64, error) {
	hi, lo := bits.Mul64(amount, feeRatePercent)
	if hi != 0 {
		return 0, ErrArithmeticOverflow
	}
	return lo / 100, nil
}

// Payout returns what a settled prediction pays its trader and the fee the
// vault keeps. A losing prediction pays nothing and its whole stake stays in
// the vault.
func Payout(amount, feeRatePercent uint64, winning bool) (payout, fee uint64, err error) {
	if !winning {
		return 0, 0, nil
	}
	fee, err = Fee(amount, feeRatePercent)
	if err != nil {
		return 0, 0, err
	}
	payout, err = checkedSub(amount, fee)
	if err != nil {
		return 0, 0, err
	}
	return payout, fee, nil
}

func checkedAdd(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrArithmeticOverflow
	}
	return sum, nil
}

func checkedSub(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, ErrArithmeticUnderflow
	}
	return diff, nil
}
