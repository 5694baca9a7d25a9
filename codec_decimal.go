package colstore

import (
	"encoding/binary"
	"math/big"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// encodeDecimal writes the scale as a big-endian int32 followed by the
// minimal two's complement bytes of the unscaled value, the same layout
// HBase uses for BigDecimal cells.
func encodeDecimal(d decimal.Decimal) []byte {
	unscaled := twosComplement(d.Coefficient())
	b := make([]byte, 4, 4+len(unscaled))
	binary.BigEndian.PutUint32(b, uint32(-d.Exponent()))
	return append(b, unscaled...)
}

func decodeDecimal(b []byte) (decimal.Decimal, error) {
	if len(b) < 5 {
		return decimal.Decimal{}, errors.Errorf("decimal needs at least 5 bytes, got %d", len(b))
	}

	scale := int32(binary.BigEndian.Uint32(b))
	return decimal.NewFromBigInt(fromTwosComplement(b[4:]), -scale), nil
}

func twosComplement(x *big.Int) []byte {
	n := x
	if x.Sign() < 0 {
		n = new(big.Int).Not(x)
	}

	size := n.BitLen()/8 + 1
	if x.Sign() >= 0 {
		return x.FillBytes(make([]byte, size))
	}

	mod := new(big.Int).Lsh(big.NewInt(1), uint(8*size))
	return mod.Add(mod, x).FillBytes(make([]byte, size))
}

func fromTwosComplement(b []byte) *big.Int {
	x := new(big.Int).SetBytes(b)
	if len(b) > 0 && b[0]&0x80 != 0 {
		x.Sub(x, new(big.Int).Lsh(big.NewInt(1), uint(8*len(b))))
	}
	return x
}
