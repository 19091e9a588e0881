// Package leb128 implements the variable-length integer encoding used by
// the Candid wire format, over arbitrary-precision values.
package leb128

import (
	"bytes"
	"fmt"
	"io"
	"math/big"
)

// MaxBytes bounds a single encoded integer. Large enough for any value the
// codec legitimately produces, small enough to stop a malicious stream from
// allocating without limit.
const MaxBytes = 4096

var (
	big128   = big.NewInt(128)
	bigNeg1  = big.NewInt(-1)
	errRange = fmt.Errorf("leb128: value out of range")
)

// AppendUnsigned writes n in unsigned LEB128. n must be non-negative.
func AppendUnsigned(buf *bytes.Buffer, n *big.Int) error {
	if n.Sign() < 0 {
		return errRange
	}
	v := new(big.Int).Set(n)
	for {
		m := new(big.Int)
		v.DivMod(v, big128, m)
		b := byte(m.Int64())
		if v.Sign() == 0 {
			buf.WriteByte(b)
			return nil
		}
		buf.WriteByte(b | 0x80)
	}
}

// AppendUint writes a native unsigned value in unsigned LEB128.
func AppendUint(buf *bytes.Buffer, n uint64) {
	for {
		b := byte(n & 0x7f)
		n >>= 7
		if n == 0 {
			buf.WriteByte(b)
			return
		}
		buf.WriteByte(b | 0x80)
	}
}

// AppendSigned writes n in signed LEB128.
func AppendSigned(buf *bytes.Buffer, n *big.Int) {
	v := new(big.Int).Set(n)
	for {
		m := new(big.Int).Mod(v, big128) // Euclidean: always 0..127
		b := byte(m.Int64())
		v.Sub(v, m).Div(v, big128) // arithmetic shift right by 7
		if (v.Sign() == 0 && b&0x40 == 0) || (v.Cmp(bigNeg1) == 0 && b&0x40 != 0) {
			buf.WriteByte(b)
			return
		}
		buf.WriteByte(b | 0x80)
	}
}

// AppendInt writes a native signed value in signed LEB128.
func AppendInt(buf *bytes.Buffer, n int64) {
	AppendSigned(buf, big.NewInt(n))
}

// ReadUnsigned reads an unsigned LEB128 value.
func ReadUnsigned(r io.ByteReader) (*big.Int, error) {
	result := new(big.Int)
	shift := uint(0)
	for i := 0; i < MaxBytes; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("leb128: truncated unsigned value: %w", err)
		}
		chunk := new(big.Int).Lsh(big.NewInt(int64(b&0x7f)), shift)
		result.Or(result, chunk)
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
	}
	return nil, errRange
}

// ReadSigned reads a signed LEB128 value.
func ReadSigned(r io.ByteReader) (*big.Int, error) {
	result := new(big.Int)
	shift := uint(0)
	for i := 0; i < MaxBytes; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("leb128: truncated signed value: %w", err)
		}
		chunk := new(big.Int).Lsh(big.NewInt(int64(b&0x7f)), shift)
		result.Or(result, chunk)
		shift += 7
		if b&0x80 == 0 {
			if b&0x40 != 0 {
				result.Sub(result, new(big.Int).Lsh(big.NewInt(1), shift))
			}
			return result, nil
		}
	}
	return nil, errRange
}

// ReadUint reads an unsigned LEB128 value that must fit in a uint64.
func ReadUint(r io.ByteReader) (uint64, error) {
	n, err := ReadUnsigned(r)
	if err != nil {
		return 0, err
	}
	if !n.IsUint64() {
		return 0, errRange
	}
	return n.Uint64(), nil
}

// ReadInt reads a signed LEB128 value that must fit in an int64.
func ReadInt(r io.ByteReader) (int64, error) {
	n, err := ReadSigned(r)
	if err != nil {
		return 0, err
	}
	if !n.IsInt64() {
		return 0, errRange
	}
	return n.Int64(), nil
}
