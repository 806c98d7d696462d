package repository

import (
	"testing"

	"github.com/RubachokBoss/learning-platform/internal/models"
)

func TestBuildListQuery(t *testing.T) {
	tests := []struct {
		name     string
		query    models.Query
		wantSQL  string
		wantArgs []interface{}
	}{
		{
			name:     "unfiltered",
			query:    models.Query{},
			wantSQL:  "SELECT id, fields, created_at, updated_at FROM records WHERE collection = $1 ORDER BY created_at ASC, id ASC",
			wantArgs: []interface{}{"assignments"},
		},
		{
			name:     "filter and field order",
			query:    models.Where("userId", "u1").Order("lastTimestamp", true),
			wantSQL:  "SELECT id, fields, created_at, updated_at FROM records WHERE collection = $1 AND fields @> $2::jsonb ORDER BY fields -> $3::text DESC, created_at DESC, id DESC",
			wantArgs: []interface{}{"assignments", `{"userId":"u1"}`, "lastTimestamp"},
		},
		{
			name:     "createdAt column with limit",
			query:    models.Query{OrderBy: "createdAt", Limit: 10},
			wantSQL:  "SELECT id, fields, created_at, updated_at FROM records WHERE collection = $1 ORDER BY created_at ASC, id ASC LIMIT $2",
			wantArgs: []interface{}{"assignments", 10},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := buildListQuery("assignments", tt.query)
			if err != nil {
				t.Fatalf("buildListQuery: %v", err)
			}
			if sql != tt.wantSQL {
				t.Errorf("sql =\n%s\nwant\n%s", sql, tt.wantSQL)
			}
			if len(args) != len(tt.wantArgs) {
				t.Fatalf("args = %v, want %v", args, tt.wantArgs)
			}
			for i := range args {
				if args[i] != tt.wantArgs[i] {
					t.Errorf("args[%d] = %#v, want %#v", i, args[i], tt.wantArgs[i])
				}
			}
		})
	}
}
