package leb128

import (
	"bytes"
	"math/big"
	"testing"
)

func TestUnsignedRoundTrip(t *testing.T) {
	tests := []string{
		"0", "1", "127", "128", "300", "624485",
		"18446744073709551615",                    // u64 max
		"340282366920938463463374607431768211456", // 2^128
	}

	for _, s := range tests {
		t.Run(s, func(t *testing.T) {
			n, _ := new(big.Int).SetString(s, 10)
			var buf bytes.Buffer
			if err := AppendUnsigned(&buf, n); err != nil {
				t.Fatalf("AppendUnsigned: %v", err)
			}
			got, err := ReadUnsigned(bytes.NewReader(buf.Bytes()))
			if err != nil {
				t.Fatalf("ReadUnsigned: %v", err)
			}
			if got.Cmp(n) != 0 {
				t.Errorf("round trip = %s, want %s", got, s)
			}
		})
	}
}

func TestUnsignedRejectsNegative(t *testing.T) {
	var buf bytes.Buffer
	if err := AppendUnsigned(&buf, big.NewInt(-1)); err == nil {
		t.Error("expected error for negative value")
	}
}

func TestSignedRoundTrip(t *testing.T) {
	tests := []string{
		"0", "1", "-1", "63", "-64", "64", "-65", "-123456",
		"9223372036854775807", "-9223372036854775808",
		"-340282366920938463463374607431768211456",
	}

	for _, s := range tests {
		t.Run(s, func(t *testing.T) {
			n, _ := new(big.Int).SetString(s, 10)
			var buf bytes.Buffer
			AppendSigned(&buf, n)
			got, err := ReadSigned(bytes.NewReader(buf.Bytes()))
			if err != nil {
				t.Fatalf("ReadSigned: %v", err)
			}
			if got.Cmp(n) != 0 {
				t.Errorf("round trip = %s, want %s", got, s)
			}
		})
	}
}

func TestKnownEncodings(t *testing.T) {
	// 624485 is the canonical multi-byte example: 0xE5 0x8E 0x26.
	var buf bytes.Buffer
	AppendUint(&buf, 624485)
	if !bytes.Equal(buf.Bytes(), []byte{0xe5, 0x8e, 0x26}) {
		t.Errorf("AppendUint(624485) = %x, want e58e26", buf.Bytes())
	}

	buf.Reset()
	AppendInt(&buf, -64)
	if !bytes.Equal(buf.Bytes(), []byte{0x40}) {
		t.Errorf("AppendInt(-64) = %x, want 40", buf.Bytes())
	}

	buf.Reset()
	AppendInt(&buf, -123456)
	if !bytes.Equal(buf.Bytes(), []byte{0xc0, 0xbb, 0x78}) {
		t.Errorf("AppendInt(-123456) = %x, want c0bb78", buf.Bytes())
	}
}

func TestTruncatedInput(t *testing.T) {
	// Continuation bit set with no following byte.
	if _, err := ReadUnsigned(bytes.NewReader([]byte{0x80})); err == nil {
		t.Error("expected error for truncated unsigned value")
	}
	if _, err := ReadSigned(bytes.NewReader([]byte{0xff})); err == nil {
		t.Error("expected error for truncated signed value")
	}
}

func TestReadUintBounds(t *testing.T) {
	var buf bytes.Buffer
	n, _ := new(big.Int).SetString("36893488147419103232", 10) // 2^65
	if err := AppendUnsigned(&buf, n); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadUint(bytes.NewReader(buf.Bytes())); err == nil {
		t.Error("expected range error for value above uint64")
	}
}
