package device

import (
	"errors"
	"testing"

	"github.com/fxamacker/cbor/v2"
)

func TestThermometer(t *testing.T) {
	t.Run("quarter degree rounding", func(t *testing.T) {
		tests := []struct {
			celsius  float64
			quarters int64
		}{
			{0, 0},
			{21.5, 86},
			{21.6, 86},
			{21.9, 88},
			{-5.25, -21},
		}
		for _, tt := range tests {
			th := NewThermometer(tt.celsius)
			if got := th.Quarters(); got != tt.quarters {
				t.Errorf("Quarters(%v) = %d, want %d", tt.celsius, got, tt.quarters)
			}
		}
	})

	t.Run("cbor bigfloat", func(t *testing.T) {
		th := NewThermometer(21.5)
		payload, err := th.ReadCBOR()
		if err != nil {
			t.Fatalf("ReadCBOR() error = %v", err)
		}

		var tag cbor.Tag
		if err := cbor.Unmarshal(payload, &tag); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if tag.Number != tagBigfloat {
			t.Errorf("tag = %d, want %d", tag.Number, tagBigfloat)
		}
		parts, ok := tag.Content.([]interface{})
		if !ok || len(parts) != 2 {
			t.Fatalf("content = %#v", tag.Content)
		}
		if exp, ok := parts[0].(int64); !ok || exp != -2 {
			t.Errorf("exponent = %#v, want -2", parts[0])
		}
		if mant, ok := parts[1].(uint64); !ok || mant != 86 {
			t.Errorf("mantissa = %#v, want 86", parts[1])
		}
	})
}

func TestLEDBank(t *testing.T) {
	bank := NewLEDBank(3)
	if bank.Size() != 3 {
		t.Errorf("Size() = %d", bank.Size())
	}
	if bank.Lit() != 0 {
		t.Errorf("initial Lit() = %d", bank.Lit())
	}

	if err := bank.SetLit(3); err != nil {
		t.Fatalf("SetLit(3) error = %v", err)
	}
	if bank.Lit() != 3 {
		t.Errorf("Lit() = %d, want 3", bank.Lit())
	}

	if err := bank.SetLit(4); !errors.Is(err, ErrLEDOutOfRange) {
		t.Errorf("SetLit(4) error = %v, want ErrLEDOutOfRange", err)
	}
	if err := bank.SetLit(-1); !errors.Is(err, ErrLEDOutOfRange) {
		t.Errorf("SetLit(-1) error = %v, want ErrLEDOutOfRange", err)
	}

	bank.Identify()
	bank.Identify()
	if bank.Identifications() != 2 {
		t.Errorf("Identifications() = %d, want 2", bank.Identifications())
	}

	if NewLEDBank(0).Size() != DefaultLEDCount {
		t.Error("zero size did not default")
	}
}
