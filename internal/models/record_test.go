package models

import (
	"testing"
	"time"
)

func TestQueryApply(t *testing.T) {
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)
	records := []Record{
		{ID: "a", Fields: Fields{"userId": "u1", "score": 3.0, "title": "b"}, CreatedAt: &t2},
		{ID: "b", Fields: Fields{"userId": "u2", "score": 10.0, "title": "a"}, CreatedAt: &t1},
		{ID: "c", Fields: Fields{"userId": "u1", "score": 7.0, "title": "c"}, CreatedAt: &t1},
	}

	tests := []struct {
		name  string
		query Query
		want  []string
	}{
		{name: "no filter keeps order", query: Query{}, want: []string{"a", "b", "c"}},
		{name: "equality filter", query: Where("userId", "u1"), want: []string{"a", "c"}},
		{name: "numeric filter normalizes ints", query: Where("score", 10), want: []string{"b"}},
		{name: "numeric order", query: Query{}.Order("score", false), want: []string{"a", "c", "b"}},
		{name: "descending string order", query: Query{}.Order("title", true), want: []string{"c", "a", "b"}},
		{name: "createdAt order breaks ties by id", query: Query{}.Order("createdAt", true), want: []string{"a", "c", "b"}},
		{name: "limit", query: Query{Limit: 2}.Order("score", true), want: []string{"b", "c"}},
		{name: "and", query: Where("userId", "u1").And("title", "c"), want: []string{"c"}},
		{name: "missing field", query: Where("nope", "x"), want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.query.Apply(records)
			if len(got) != len(tt.want) {
				t.Fatalf("Apply() returned %d records, want %d", len(got), len(tt.want))
			}
			for i, id := range tt.want {
				if got[i].ID != id {
					t.Errorf("Apply()[%d] = %s, want %s", i, got[i].ID, id)
				}
			}
		})
	}
}

func TestNormalizeFields(t *testing.T) {
	got, err := NormalizeFields(Fields{"n": 8, "flag": true, "tags": []string{"x"}})
	if err != nil {
		t.Fatalf("NormalizeFields() error: %v", err)
	}
	if v, ok := got["n"].(float64); !ok || v != 8 {
		t.Errorf("n = %#v, want float64 8", got["n"])
	}
	if _, ok := got["tags"].([]interface{}); !ok {
		t.Errorf("tags = %#v, want []interface{}", got["tags"])
	}

	if _, err := NormalizeFields(Fields{"ch": make(chan int)}); err == nil {
		t.Error("expected error for non-serializable value")
	}
}

func TestRecordDecode(t *testing.T) {
	rec := Record{ID: "s1", Collection: ScoresCollection, Fields: Fields{
		"assignmentId": "a1", "userId": "u1", "generalScore": "Good", "scoreValue": 8.0, "scoreOutOf": 10.0,
	}}
	var score Score
	if err := rec.Decode(&score); err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if score.ID != "s1" || score.AssignmentID != "a1" || *score.ScoreValue != 8 || *score.ScoreOutOf != 10 {
		t.Errorf("Decode() = %+v", score)
	}

	fields, err := EncodeFields(score)
	if err != nil {
		t.Fatalf("EncodeFields() error: %v", err)
	}
	if _, ok := fields["id"]; ok {
		t.Error("EncodeFields() should drop id")
	}
}

func TestTimestampLayout(t *testing.T) {
	ts := time.Date(2024, 3, 5, 10, 4, 5, 123456789, time.UTC)
	s := FormatTimestamp(ts)
	if s != "2024-03-05T10:04:05.123Z" {
		t.Errorf("FormatTimestamp() = %s", s)
	}
	parsed, ok := ParseTimestamp(s)
	if !ok || !parsed.Equal(ts.Truncate(time.Millisecond)) {
		t.Errorf("ParseTimestamp(%s) = %v, %v", s, parsed, ok)
	}
}
