// Package normalize turns a raw MQTT message into exactly one typed record.
//
// Dispatch is by topic suffix (/lux, /color, /led). Every field default lives
// in this package so the rules can be tested field by field.
package normalize

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lazarolorenzi/Colorsensor-G1-IOT/internal/record"
)

var (
	// ErrMalformedPayload means the payload is not a JSON object.
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrUnrecognizedTopic means the topic matches no known suffix.
	ErrUnrecognizedTopic = errors.New("unrecognized topic")
)

// KindForTopic resolves the record kind from the topic suffix.
func KindForTopic(topic string) (record.Kind, bool) {
	for _, k := range record.Kinds {
		if strings.HasSuffix(topic, "/"+string(k)) {
			return k, true
		}
	}
	return "", false
}

// Payload is a decoded JSON object. Numbers stay as json.Number.
type Payload map[string]any

// Decode parses raw bytes into a Payload.
func Decode(raw []byte) (Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var p Payload
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	// "null" decodes into a nil map without error.
	if p == nil {
		return nil, fmt.Errorf("%w: not a JSON object", ErrMalformedPayload)
	}
	// Trailing garbage after the object is a decode failure too.
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after object", ErrMalformedPayload)
	}
	return p, nil
}

// Normalize decodes raw and builds the record for topic, stamped with ts (converted to UTC).
// The returned record has no ID yet; the store assigns it.
func Normalize(topic string, raw []byte, ts time.Time) (record.Record, error) {
	p, err := Decode(raw)
	if err != nil {
		return nil, err
	}

	kind, ok := KindForTopic(topic)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnrecognizedTopic, topic)
	}

	meta := record.Meta{
		Timestamp: ts.UTC(),
		Raw:       append(json.RawMessage(nil), raw...),
	}

	switch kind {
	case record.KindIlluminance:
		return &record.Illuminance{Meta: meta, Lux: p.Lux()}, nil
	case record.KindColor:
		return &record.Color{Meta: meta, RGB: p.ColorRGB(), HSV: p.HSV(), Name: p.ColorName()}, nil
	default:
		return &record.Actuator{Meta: meta, RGB: p.LEDRGB()}, nil
	}
}

// Lux reads "lux", defaulting to 0.0 when absent or not numeric.
func (p Payload) Lux() float64 {
	f, ok := Float(p["lux"])
	if !ok {
		return 0
	}
	return f
}

// ColorRGB reads "rgb", defaulting to [0,0,0]. Components are not clamped.
func (p Payload) ColorRGB() record.RGB {
	rgb, _ := rgbFrom(p["rgb"])
	return rgb
}

// HSV reads "hsv"; each of h, s and v defaults to 0 on its own.
func (p Payload) HSV() record.HSV {
	var out record.HSV
	m, ok := p["hsv"].(map[string]any)
	if !ok {
		return out
	}
	out.H, _ = Float(m["h"])
	out.S, _ = Float(m["s"])
	out.V, _ = Float(m["v"])
	return out
}

// ColorName reads "color", defaulting to record.UnknownColorName.
func (p Payload) ColorName() string {
	switch v := p["color"].(type) {
	case nil:
		return record.UnknownColorName
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// LEDRGB tries "led_rgb", then "rgb", then [0,0,0]. Components are not clamped.
func (p Payload) LEDRGB() record.RGB {
	for _, key := range []string{"led_rgb", "rgb"} {
		v := p[key]
		if !truthy(v) {
			continue
		}
		if rgb, ok := rgbFrom(v); ok {
			return rgb
		}
	}
	return record.RGB{}
}
