package models

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"
)

// TimestampLayout matches the ISO-8601 strings the portals write (millisecond precision, UTC).
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

type Fields map[string]interface{}

type Record struct {
	ID         string     `json:"id"`
	Collection string     `json:"collection"`
	Fields     Fields     `json:"fields"`
	CreatedAt  *time.Time `json:"createdAt,omitempty"`
	UpdatedAt  *time.Time `json:"updatedAt,omitempty"`
}

type Condition struct {
	Field string
	Value interface{}
}

// Query is an equality filter plus an optional single-field order.
type Query struct {
	Filters    []Condition
	OrderBy    string
	Descending bool
	Limit      int
}

func Where(field string, value interface{}) Query {
	return Query{Filters: []Condition{{Field: field, Value: value}}}
}

func (q Query) And(field string, value interface{}) Query {
	q.Filters = append(append([]Condition(nil), q.Filters...), Condition{Field: field, Value: value})
	return q
}

func (q Query) Order(field string, descending bool) Query {
	q.OrderBy = field
	q.Descending = descending
	return q
}

// FilterDocument returns the filters as a JSON object suitable for jsonb containment.
func (q Query) FilterDocument() (Fields, error) {
	doc := make(Fields, len(q.Filters))
	for _, c := range q.Filters {
		doc[c.Field] = c.Value
	}
	return NormalizeFields(doc)
}

func (q Query) Matches(r Record) bool {
	for _, c := range q.Filters {
		want, err := normalizeValue(c.Value)
		if err != nil {
			return false
		}
		got, ok := r.Fields[c.Field]
		if !ok || !valuesEqual(got, want) {
			return false
		}
	}
	return true
}

// Apply filters, orders and limits an in-memory record set the way the primary store would. Ties on
// the order field fall back to creation time, then id, in the same direction.
func (q Query) Apply(records []Record) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if q.Matches(r) {
			out = append(out, r)
		}
	}
	if q.OrderBy != "" {
		sort.SliceStable(out, func(i, j int) bool {
			c := compareField(out[i], out[j], q.OrderBy)
			if c == 0 {
				c = compareTimes(out[i].CreatedAt, out[j].CreatedAt)
			}
			if c == 0 {
				c = strings.Compare(out[i].ID, out[j].ID)
			}
			if q.Descending {
				return c > 0
			}
			return c < 0
		})
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

func (r Record) Text(field string) string {
	if s, ok := r.Fields[field].(string); ok {
		return s
	}
	return ""
}

func (r Record) Bool(field string) bool {
	b, _ := r.Fields[field].(bool)
	return b
}

func (r Record) Int(field string) int {
	switch v := r.Fields[field].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	}
	return 0
}

// Decode copies the record into a typed struct through its JSON form; "id" is set from the record identity.
func (r Record) Decode(dst interface{}) error {
	doc := make(Fields, len(r.Fields)+1)
	for k, v := range r.Fields {
		doc[k] = v
	}
	doc["id"] = r.ID
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode record %s/%s: %w", r.Collection, r.ID, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("failed to decode record %s/%s: %w", r.Collection, r.ID, err)
	}
	return nil
}

// EncodeFields converts a typed value into record fields, dropping the identity key.
func EncodeFields(v interface{}) (Fields, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode fields: %w", err)
	}
	var fields Fields
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("failed to decode fields: %w", err)
	}
	delete(fields, "id")
	return fields, nil
}

// NormalizeFields rewrites values into their JSON representation (float64, string, bool, nil, []interface{},
// map[string]interface{}) so records compare equal after a round trip through any tier.
func NormalizeFields(f Fields) (Fields, error) {
	if f == nil {
		return Fields{}, nil
	}
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("fields are not JSON-serializable: %w", err)
	}
	var out Fields
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

func ParseTimestamp(s string) (time.Time, bool) {
	for _, layout := range []string{TimestampLayout, time.RFC3339Nano, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func normalizeValue(v interface{}) (interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out interface{}
	err = json.Unmarshal(data, &out)
	return out, err
}

func valuesEqual(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return reflect.DeepEqual(a, b)
}

func compareField(a, b Record, field string) int {
	switch field {
	case "createdAt":
		return compareTimes(a.CreatedAt, b.CreatedAt)
	case "updatedAt":
		return compareTimes(a.UpdatedAt, b.UpdatedAt)
	}
	return compareValues(a.Fields[field], b.Fields[field])
}

func compareTimes(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	case a.Before(*b):
		return -1
	case a.After(*b):
		return 1
	}
	return 0
}

// compareValues follows jsonb ordering: null < string < number < boolean, values of one type compare naturally.
func compareValues(a, b interface{}) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch av := a.(type) {
	case string:
		return strings.Compare(av, b.(string))
	case float64:
		bv := b.(float64)
		if av < bv {
			return -1
		}
		if av > bv {
			return 1
		}
	case bool:
		bv := b.(bool)
		if av == bv {
			return 0
		}
		if !av {
			return -1
		}
		return 1
	}
	return 0
}

func typeRank(v interface{}) int {
	switch v.(type) {
	case nil:
		return 0
	case string:
		return 1
	case float64:
		return 2
	case bool:
		return 3
	}
	return 4
}
