package memory

import (
	"context"
	"errors"
	"testing"

	"moneta/internal/cloud"
)

func TestStoreCreateUpdateQuery(t *testing.T) {
	ctx := context.Background()
	s := New()

	rec := cloud.Record{ID: "c1", Fields: map[string]any{cloud.FieldName: "Food", cloud.FieldIcon: "f", cloud.FieldColor: "#000000"}}
	if err := s.Create(ctx, cloud.RecordCategory, rec); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Create(ctx, cloud.RecordCategory, rec); err == nil {
		t.Fatal("expected duplicate create to fail")
	}

	if err := s.Update(ctx, cloud.RecordCategory, "c1", map[string]any{cloud.FieldName: "Meals"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	err := s.Update(ctx, cloud.RecordCategory, "missing", map[string]any{cloud.FieldName: "x"})
	if !errors.Is(err, cloud.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	got, err := s.QueryAll(ctx, cloud.RecordCategory)
	if err != nil || len(got) != 1 {
		t.Fatalf("unexpected query result %v %v", got, err)
	}
	if got[0].Fields[cloud.FieldName] != "Meals" || got[0].Fields[cloud.FieldIcon] != "f" {
		t.Fatalf("update must only touch given fields: %v", got[0].Fields)
	}
}

func TestStoreReadLag(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.SetReadLag(2)

	if err := s.Create(ctx, cloud.RecordUser, cloud.Record{ID: "u1", Fields: map[string]any{}}); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		got, _ := s.QueryAll(ctx, cloud.RecordUser)
		if len(got) != 0 {
			t.Fatalf("read %d should still be stale, got %d records", i, len(got))
		}
	}
	got, _ := s.QueryAll(ctx, cloud.RecordUser)
	if len(got) != 1 {
		t.Fatalf("expected fresh read after lag, got %d records", len(got))
	}
	if len(s.Records(cloud.RecordUser)) != 1 {
		t.Fatal("Records must bypass lag")
	}
}

func TestStoreFailureInjection(t *testing.T) {
	ctx := context.Background()
	s := New()
	netErr := cloud.NewError("query", cloud.KindNetwork, cloud.RecordUser, "", nil)
	s.FailQueries(netErr)

	if _, err := s.QueryAll(ctx, cloud.RecordUser); !errors.Is(err, cloud.ErrNetwork) {
		t.Fatalf("expected injected network error, got %v", err)
	}
	if _, err := s.QueryAll(ctx, cloud.RecordUser); err != nil {
		t.Fatalf("second query should succeed: %v", err)
	}

	boom := errors.New("boom")
	s.FailWrites("u1", boom)
	if err := s.Create(ctx, cloud.RecordUser, cloud.Record{ID: "u1"}); !errors.Is(err, boom) {
		t.Fatalf("expected write failure, got %v", err)
	}
	s.FailWrites("u1", nil)
	if err := s.Create(ctx, cloud.RecordUser, cloud.Record{ID: "u1"}); err != nil {
		t.Fatalf("write should succeed after clearing: %v", err)
	}
}

func TestStoreAssets(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.PutAsset("a1", []byte{1, 2})

	b, err := s.FetchAsset(ctx, "a1")
	if err != nil || len(b) != 2 {
		t.Fatalf("unexpected asset %v %v", b, err)
	}
	if _, err := s.FetchAsset(ctx, "nope"); !errors.Is(err, cloud.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
