// Package normalize turns collector payloads and stored snapshots into the
// standardized currency and commodity records.
package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tropicaldog17/audtracker/internal/models"
)

// Sections of a payload.
const (
	SectionCurrencies  = "currencies"
	SectionCommodities = "commodities"
)

// AssetMap maps an asset code to its raw entry (usually a JSON object).
type AssetMap map[string]any

// RawPayload is the asset section of a payload. Collectors wrap the section
// twice ({"commodities": {"commodities": {...}}}) while standardized records
// wrap it once; both resolve to the same AssetMap.
type RawPayload interface {
	Assets() AssetMap
	payload()
}

// Unnested is a single-wrapped asset section.
type Unnested struct{ Map AssetMap }

// Nested is a double-wrapped asset section.
type Nested struct{ Map AssetMap }

func (u Unnested) Assets() AssetMap { return u.Map }
func (n Nested) Assets() AssetMap   { return n.Map }
func (Unnested) payload()           {}
func (Nested) payload()             {}

// ParsePayload resolves the nesting of raw[section] once.
func ParsePayload(raw map[string]any, section string) RawPayload {
	outer, ok := asMap(raw[section])
	if !ok {
		return Unnested{}
	}
	if inner, ok := asMap(outer[section]); ok {
		return Nested{Map: inner}
	}
	return Unnested{Map: outer}
}

// Codes returns the asset codes in sorted order.
func (m AssetMap) Codes() []string {
	codes := make([]string, 0, len(m))
	for k := range m {
		codes = append(codes, k)
	}
	sort.Strings(codes)
	return codes
}

// ResolveDate picks the record date: a top-level date, else the date of the
// first asset entry carrying one, else collection_date, else now. Decoded JSON
// objects lose their key order, so "first" means first by sorted asset code.
func ResolveDate(raw map[string]any, section string, now time.Time) string {
	if d := str(raw["date"]); d != "" {
		return d
	}

	assets := ParsePayload(raw, section).Assets()
	for _, code := range assets.Codes() {
		entry, ok := asMap(assets[code])
		if !ok {
			continue
		}
		if v, has := entry["date"]; has {
			if d := str(v); d != "" {
				return d
			}
			// the first dated entry decides, even when its date is empty
			break
		}
	}

	if cd := str(raw["collection_date"]); cd != "" {
		if t, ok := parseISO(cd); ok {
			return t.Format(models.DateLayout)
		}
	}
	return now.Format(models.DateLayout)
}

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	models.DateLayout,
}

func parseISO(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Decode parses JSON keeping numbers exact.
func Decode(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

// ToMap converts a record back into its generic payload form.
func ToMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	return Decode(data)
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case AssetMap:
		return m, true
	default:
		return nil, false
	}
}

func str(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func strOr(v any, def string) string {
	if s := str(v); s != "" {
		return s
	}
	return def
}

// Number accepts the numeric shapes found in payloads. Anything else is null.
func Number(v any) decimal.NullDecimal {
	switch n := v.(type) {
	case nil:
		return decimal.NullDecimal{}
	case decimal.Decimal:
		return models.NullDecimal(n)
	case decimal.NullDecimal:
		return n
	case json.Number:
		return parseNumber(n.String())
	case float64:
		return models.NullDecimal(decimal.NewFromFloat(n))
	case float32:
		return models.NullDecimal(decimal.NewFromFloat32(n))
	case int:
		return models.NullDecimal(decimal.NewFromInt(int64(n)))
	case int64:
		return models.NullDecimal(decimal.NewFromInt(n))
	case string:
		return parseNumber(n)
	default:
		return decimal.NullDecimal{}
	}
}

func parseNumber(s string) decimal.NullDecimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.NullDecimal{}
	}
	return models.NullDecimal(d)
}
