package store

import (
	"encoding/json"
	"strings"

	"github.com/lazarolorenzi/Colorsensor-G1-IOT/internal/record"
)

// sqlTable describes how one record kind maps onto its table.
// Column order is: id, ts, kind-specific fields, raw.
type sqlTable struct {
	name   string
	fields []string
}

var sqlTables = map[record.Kind]sqlTable{
	record.KindIlluminance: {name: "lux_readings", fields: []string{"lux"}},
	record.KindColor:       {name: "color_readings", fields: []string{"r", "g", "b", "h", "s", "v", "name"}},
	record.KindActuator:    {name: "led_events", fields: []string{"r", "g", "b"}},
}

// selectColumns lists every column in scan order.
func (t sqlTable) selectColumns() string {
	cols := append([]string{"id", "ts"}, t.fields...)
	return strings.Join(append(cols, "raw"), ", ")
}

// insertColumns lists the columns written on insert (id is generated).
func (t sqlTable) insertColumns() []string {
	return append(append([]string{"ts"}, t.fields...), "raw")
}

// placeholders renders n bind parameters using fn for the i-th (1-based) one.
func placeholders(n int, fn func(i int) string) string {
	ps := make([]string, n)
	for i := range ps {
		ps[i] = fn(i + 1)
	}
	return strings.Join(ps, ", ")
}

// scanDests returns pointers into rec matching selectColumns.
// ts is the backend-specific destination for the timestamp column.
func scanDests(rec record.Record, ts any, raw *[]byte) []any {
	m := rec.Base()
	switch r := rec.(type) {
	case *record.Illuminance:
		return []any{&m.ID, ts, &r.Lux, raw}
	case *record.Color:
		return []any{&m.ID, ts, &r.RGB[0], &r.RGB[1], &r.RGB[2], &r.HSV.H, &r.HSV.S, &r.HSV.V, &r.Name, raw}
	case *record.Actuator:
		return []any{&m.ID, ts, &r.RGB[0], &r.RGB[1], &r.RGB[2], raw}
	}
	return nil
}

// insertArgs returns the values matching insertColumns.
func insertArgs(rec record.Record, ts any) []any {
	raw := string(rec.Base().Raw)
	if raw == "" {
		raw = "null"
	}
	switch r := rec.(type) {
	case *record.Illuminance:
		return []any{ts, r.Lux, raw}
	case *record.Color:
		return []any{ts, r.RGB[0], r.RGB[1], r.RGB[2], r.HSV.H, r.HSV.S, r.HSV.V, r.Name, raw}
	case *record.Actuator:
		return []any{ts, r.RGB[0], r.RGB[1], r.RGB[2], raw}
	}
	return nil
}

func setRaw(rec record.Record, raw []byte) {
	rec.Base().Raw = json.RawMessage(raw)
}

func joinColumns(cols []string) string {
	return strings.Join(cols, ", ")
}
