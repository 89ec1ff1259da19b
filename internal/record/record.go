// Package record defines the three normalized shapes the service persists:
// illuminance readings, colour readings and actuator (LED) events.
package record

import (
	"encoding/json"
	"time"
)

// Kind identifies one of the three record collections.
// The string value doubles as the URL segment (/api/lux) and the topic suffix (/lux).
type Kind string

const (
	KindIlluminance Kind = "lux"
	KindColor       Kind = "color"
	KindActuator    Kind = "led"
)

// Kinds lists every record kind in dispatch priority order.
var Kinds = []Kind{KindIlluminance, KindColor, KindActuator}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindIlluminance, KindColor, KindActuator:
		return true
	}
	return false
}

// UnknownColorName is stored when the device did not classify the colour.
const UnknownColorName = "unknown"

// MaxNameLength is the column width for Color.Name.
const MaxNameLength = 32

// Meta holds the fields shared by every record.
type Meta struct {
	// ID is assigned by the store on insert, per kind, strictly increasing.
	ID int64 `json:"id"`

	// Timestamp is the UTC ingestion time, assigned by the caller of Insert.
	Timestamp time.Time `json:"ts"`

	// Raw is the exact payload that produced the record.
	Raw json.RawMessage `json:"raw"`
}

// Record is implemented by *Illuminance, *Color and *Actuator.
type Record interface {
	Kind() Kind
	Base() *Meta
}

// RGB is a colour triple. Components are not range checked here.
type RGB [3]int

// HSV is the device-reported hue/saturation/value, never re-derived from RGB.
type HSV struct {
	H float64 `json:"h"`
	S float64 `json:"s"`
	V float64 `json:"v"`
}

// Illuminance is one ambient light reading.
type Illuminance struct {
	Meta
	Lux float64 `json:"lux"`
}

// Color is one colour sensor reading.
type Color struct {
	Meta
	RGB  RGB    `json:"rgb"`
	HSV  HSV    `json:"hsv"`
	Name string `json:"name"`
}

// Actuator is one LED state event echoed by the device.
type Actuator struct {
	Meta
	RGB RGB `json:"rgb"`
}

func (r *Illuminance) Kind() Kind  { return KindIlluminance }
func (r *Illuminance) Base() *Meta { return &r.Meta }

func (r *Color) Kind() Kind  { return KindColor }
func (r *Color) Base() *Meta { return &r.Meta }

func (r *Actuator) Kind() Kind  { return KindActuator }
func (r *Actuator) Base() *Meta { return &r.Meta }

// TruncateName cuts a colour label to MaxNameLength runes.
func TruncateName(name string) string {
	runes := []rune(name)
	if len(runes) <= MaxNameLength {
		return name
	}
	return string(runes[:MaxNameLength])
}

// Clone returns a deep copy so stored records cannot be mutated by callers.
func Clone(rec Record) Record {
	switch r := rec.(type) {
	case *Illuminance:
		c := *r
		c.Raw = cloneRaw(r.Raw)
		return &c
	case *Color:
		c := *r
		c.Raw = cloneRaw(r.Raw)
		return &c
	case *Actuator:
		c := *r
		c.Raw = cloneRaw(r.Raw)
		return &c
	}
	return nil
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	out := make(json.RawMessage, len(raw))
	copy(out, raw)
	return out
}

// New returns an empty record of the given kind, used by store decoders.
func New(k Kind) Record {
	switch k {
	case KindIlluminance:
		return &Illuminance{}
	case KindColor:
		return &Color{}
	case KindActuator:
		return &Actuator{}
	}
	return nil
}
