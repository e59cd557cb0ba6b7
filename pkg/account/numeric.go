package account

import "math/big"

// sameSign reports whether a and b share a sign. Both operands must be
// non-zero; callers only invoke this where a non-zero size delta is already
// guaranteed, so a zero operand is a programming error and panics.
func sameSign(a, b *big.Int) bool {
	if a.Sign() == 0 || b.Sign() == 0 {
		panic("sameSign: zero operand")
	}
	return a.Sign() == b.Sign()
}

func absBig(x *big.Int) *big.Int {
	return new(big.Int).Abs(x)
}
