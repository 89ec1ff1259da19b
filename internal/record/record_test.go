package record

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTruncateNameCountsRunes(t *testing.T) {
	assert.Equal(t, "red", TruncateName("red"))

	long := strings.Repeat("é", MaxNameLength+5)
	got := TruncateName(long)
	assert.Equal(t, MaxNameLength, len([]rune(got)))
	assert.Equal(t, strings.Repeat("é", MaxNameLength), got)
}

func TestKindValid(t *testing.T) {
	for _, k := range Kinds {
		assert.True(t, k.Valid(), k)
		assert.Equal(t, k, New(k).Kind())
	}
	assert.False(t, Kind("temp").Valid())
	assert.Nil(t, New("temp"))
}

func TestCloneIsDeep(t *testing.T) {
	orig := &Color{
		Meta: Meta{ID: 7, Raw: json.RawMessage(`{"r":1}`)},
		RGB:  RGB{1, 2, 3},
		Name: "red",
	}
	c := Clone(orig).(*Color)
	require.Equal(t, orig, c)

	c.Raw[2] = 'x'
	c.RGB[0] = 99
	assert.Equal(t, `{"r":1}`, string(orig.Raw))
	assert.Equal(t, RGB{1, 2, 3}, orig.RGB)

	assert.Nil(t, Clone(&Actuator{}).Base().Raw)
}

func TestJSONShape(t *testing.T) {
	rec := &Illuminance{
		Meta: Meta{
			ID:        3,
			Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
			Raw:       json.RawMessage(`{"lux":12.5}`),
		},
		Lux: 12.5,
	}
	data, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":3,"ts":"2025-06-01T12:00:00Z","raw":{"lux":12.5},"lux":12.5}`, string(data))
}
