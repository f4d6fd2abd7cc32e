package querybuilder

import (
	"reflect"
	"testing"
)

func TestBuildSelect(t *testing.T) {
	query, args := NewQueryBuilder("public").
		Select("id", "address").
		From("worker_events").
		Where("address = ?", "10.0.0.1:5500").
		And("event_type = ?", "EVICTED").
		OrderBy("id", false).
		Limit(20).
		Build()

	want := "SELECT id, address FROM public.worker_events WHERE address = ? AND event_type = ? ORDER BY id DESC LIMIT ?"
	if query != want {
		t.Fatalf("query = %q, want %q", query, want)
	}
	if !reflect.DeepEqual(args, []interface{}{"10.0.0.1:5500", "EVICTED", 20}) {
		t.Fatalf("args = %v", args)
	}
}

func TestBuildInsert(t *testing.T) {
	query, args := NewQueryBuilder("").
		Insert("address", "event_type").
		Into("worker_events").
		Values("a:1", "ADDED").
		Values("b:2", "REMOVED").
		Returning("id").
		Build()

	want := "INSERT INTO worker_events (address, event_type) VALUES (?, ?), (?, ?) RETURNING id"
	if query != want {
		t.Fatalf("query = %q, want %q", query, want)
	}
	if len(args) != 4 || args[2] != "b:2" {
		t.Fatalf("args = %v", args)
	}
}

func TestBuildInsertRowMismatch(t *testing.T) {
	query, args := NewQueryBuilder("").
		Insert("address", "event_type").
		Into("worker_events").
		Values("a:1").
		Build()
	if query != "" || args != nil {
		t.Fatalf("expected empty build, got %q %v", query, args)
	}
}
