package repository

import (
	"context"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	"github.com/RubachokBoss/learning-platform/internal/models"
)

func newTestCache(t *testing.T) (*cacheRepository, *badger.DB) {
	t.Helper()
	db, err := OpenBadger("", true)
	if err != nil {
		t.Fatalf("OpenBadger: %v", err)
	}
	repo := NewCacheRepository(db, zerolog.Nop()).(*cacheRepository)
	t.Cleanup(func() { _ = repo.Close() })
	return repo, db
}

func TestCachePutGetList(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestCache(t)

	for _, rec := range []models.Record{
		{ID: "a1", Collection: "assignments", Fields: models.Fields{"title": "Essay 1", "module": "W"}},
		{ID: "a2", Collection: "assignments", Fields: models.Fields{"title": "Essay 2", "module": "W", "status": "achieved"}},
	} {
		rec := rec
		if err := repo.Put(ctx, &rec); err != nil {
			t.Fatalf("Put(%s): %v", rec.ID, err)
		}
		if rec.CreatedAt == nil || rec.UpdatedAt == nil {
			t.Fatalf("Put(%s) did not fill timestamps", rec.ID)
		}
	}

	got, err := repo.Get(ctx, "assignments", "a1")
	if err != nil || got == nil {
		t.Fatalf("Get() = %v, %v", got, err)
	}
	if got.Text("title") != "Essay 1" || got.Collection != "assignments" {
		t.Errorf("Get() = %+v", got)
	}

	missing, err := repo.Get(ctx, "assignments", "nope")
	if err != nil || missing != nil {
		t.Errorf("Get(missing) = %v, %v; want nil, nil", missing, err)
	}

	list, err := repo.List(ctx, "assignments", models.Where("status", "achieved"))
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].ID != "a2" {
		t.Errorf("List(status=achieved) = %+v", list)
	}
}

func TestCacheCollectionKeys(t *testing.T) {
	ctx := context.Background()
	repo, db := newTestCache(t)

	note := models.Record{ID: "n1", Collection: models.NotesCollection, Fields: models.Fields{"title": "Intro", "url": "x"}}
	if err := repo.Put(ctx, &note); err != nil {
		t.Fatalf("Put note: %v", err)
	}
	current := models.Record{ID: "current", Collection: models.SessionsCollection, Fields: models.Fields{"title": "Live", "active": true}}
	if err := repo.Put(ctx, &current); err != nil {
		t.Fatalf("Put session: %v", err)
	}

	err := db.View(func(txn *badger.Txn) error {
		for _, key := range []string{"courseNotes", "session_current"} {
			if _, err := txn.Get([]byte(key)); err != nil {
				t.Errorf("key %s: %v", key, err)
			}
		}
		if _, err := txn.Get([]byte("notes")); err != badger.ErrKeyNotFound {
			t.Errorf("notes key should not exist, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	sessions, err := repo.List(ctx, models.SessionsCollection, models.Query{})
	if err != nil || len(sessions) != 1 || sessions[0].ID != "current" || !sessions[0].Bool("active") {
		t.Errorf("List(sessions) = %+v, %v", sessions, err)
	}
}

func TestCachePatchAndDelete(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestCache(t)

	meta, err := repo.Patch(ctx, &models.Record{ID: "u1", Collection: "one_on_one", Fields: models.Fields{"unreadForAdmin": true}})
	if err != nil {
		t.Fatalf("Patch(create): %v", err)
	}
	created := *meta.CreatedAt

	meta, err = repo.Patch(ctx, &models.Record{ID: "u1", Collection: "one_on_one", Fields: models.Fields{"lastText": "hi"}})
	if err != nil {
		t.Fatalf("Patch(merge): %v", err)
	}
	if !meta.Bool("unreadForAdmin") || meta.Text("lastText") != "hi" {
		t.Errorf("merged fields = %+v", meta.Fields)
	}
	if !meta.CreatedAt.Equal(created) {
		t.Errorf("createdAt changed from %v to %v", created, meta.CreatedAt)
	}

	if err := repo.Delete(ctx, "one_on_one", "u1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got, _ := repo.Get(ctx, "one_on_one", "u1"); got != nil {
		t.Errorf("Get after Delete = %+v", got)
	}
}

func TestCacheResetRebuildAndValues(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestCache(t)

	stale := models.Record{ID: "old", Collection: "videos", Fields: models.Fields{"url": "https://v/1"}}
	if err := repo.Put(ctx, &stale); err != nil {
		t.Fatal(err)
	}

	fresh := []models.Record{{ID: "new", Collection: "videos", Fields: models.Fields{"url": "https://v/2"}}}
	if err := repo.Rebuild(ctx, "videos", fresh); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	list, _ := repo.List(ctx, "videos", models.Query{})
	if len(list) != 1 || list[0].ID != "new" {
		t.Errorf("after Rebuild = %+v", list)
	}

	if err := repo.Reset(ctx, "videos"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	list, _ = repo.List(ctx, "videos", models.Query{})
	if len(list) != 0 {
		t.Errorf("after Reset = %+v", list)
	}

	if _, found, _ := repo.GetValue(ctx, "supportLastSeen:u1"); found {
		t.Error("unexpected value before SetValue")
	}
	if err := repo.SetValue(ctx, "supportLastSeen:u1", "2024-01-01T00:00:00.000Z"); err != nil {
		t.Fatal(err)
	}
	v, found, err := repo.GetValue(ctx, "supportLastSeen:u1")
	if err != nil || !found || v != "2024-01-01T00:00:00.000Z" {
		t.Errorf("GetValue = %q, %v, %v", v, found, err)
	}
}
