package command

import (
	"fmt"
	"math/big"
)

// BigInt is a signed big integer that travels as a decimal string in JSON,
// so command payloads never lose precision in transit. All margin/size/price
// fields are 18-decimal fixed point.
type BigInt big.Int

func NewBigInt(x *big.Int) *BigInt {
	if x == nil {
		return nil
	}
	return (*BigInt)(new(big.Int).Set(x))
}

// Int returns the wrapped value. The returned pointer aliases the wrapper;
// callers that mutate must copy first.
func (b *BigInt) Int() *big.Int {
	if b == nil {
		return nil
	}
	return (*big.Int)(b)
}

func (b *BigInt) String() string {
	if b == nil {
		return "<nil>"
	}
	return (*big.Int)(b).String()
}

func (b *BigInt) MarshalJSON() ([]byte, error) {
	if b == nil {
		return []byte("null"), nil
	}
	return []byte(`"` + (*big.Int)(b).String() + `"`), nil
}

func (b *BigInt) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("big int must be a decimal string, got %s", data)
	}
	s := string(data[1 : len(data)-1])
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return fmt.Errorf("invalid big int: %q", s)
	}
	*b = BigInt(*v)
	return nil
}
