package device

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// ErrLEDOutOfRange is returned when a requested LED count exceeds the
// bank.
var ErrLEDOutOfRange = errors.New("device: led count out of range")

// tagBigfloat is the CBOR tag for bigfloat (RFC 8949 section 3.4.4).
const tagBigfloat = 5

// Thermometer simulates a temperature sensor with quarter-degree
// resolution. Readings are reported as a CBOR bigfloat with exponent
// -2, mantissa in quarter degrees.
type Thermometer struct {
	mu       sync.Mutex
	quarters int64
}

// NewThermometer creates a thermometer reading the given temperature.
func NewThermometer(celsius float64) *Thermometer {
	t := &Thermometer{}
	t.SetCelsius(celsius)
	return t
}

// SetCelsius updates the simulated reading, rounded to a quarter
// degree.
func (t *Thermometer) SetCelsius(celsius float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.quarters = int64(math.Round(celsius * 4))
}

// Quarters returns the reading in quarter degrees.
func (t *Thermometer) Quarters() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.quarters
}

// ReadCBOR encodes the current reading as a tagged bigfloat.
func (t *Thermometer) ReadCBOR() ([]byte, error) {
	return cbor.Marshal(cbor.Tag{
		Number:  tagBigfloat,
		Content: []interface{}{-2, t.Quarters()},
	})
}

// LEDBank simulates a row of LEDs. The device lights the first n of
// them; identify requests are counted so an operator can observe them.
type LEDBank struct {
	size int

	mu         sync.Mutex
	lit        int
	identifies int
}

// DefaultLEDCount is the size of the simulated bank.
const DefaultLEDCount = 4

// NewLEDBank creates a bank of the given size (default when <= 0).
func NewLEDBank(size int) *LEDBank {
	if size <= 0 {
		size = DefaultLEDCount
	}
	return &LEDBank{size: size}
}

// Size returns the number of LEDs in the bank.
func (b *LEDBank) Size() int {
	return b.size
}

// Lit returns how many LEDs are currently on.
func (b *LEDBank) Lit() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lit
}

// SetLit lights the first n LEDs.
func (b *LEDBank) SetLit(n int) error {
	if n < 0 || n > b.size {
		return fmt.Errorf("%w: %d of %d", ErrLEDOutOfRange, n, b.size)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.lit = n
	return nil
}

// Identify registers one identify request.
func (b *LEDBank) Identify() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.identifies++
}

// Identifications returns how many identify requests have been served.
func (b *LEDBank) Identifications() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.identifies
}
