package hashreg_test

import (
	"testing"

	"github.com/calvinalkan/agentfs/internal/hashreg"
)

func TestRegistry_Update_ThenGet_ReturnsLatestHash(t *testing.T) {
	t.Parallel()

	r := hashreg.New()
	r.Update("/a.txt", "sha256:aaa")

	got, ok := r.Get("/a.txt")
	if !ok || got != "sha256:aaa" {
		t.Fatalf("Get=(%q,%v), want (sha256:aaa,true)", got, ok)
	}
}

func TestRegistry_Get_MissingPathReportsNotFound(t *testing.T) {
	t.Parallel()

	r := hashreg.New()

	_, ok := r.Get("/missing.txt")
	if ok {
		t.Fatal("Get: ok=true for a path that was never registered")
	}
}

func TestRegistry_Remove_ClearsEntry(t *testing.T) {
	t.Parallel()

	r := hashreg.New()
	r.Update("/a.txt", "sha256:aaa")
	r.Remove("/a.txt")

	if _, ok := r.Get("/a.txt"); ok {
		t.Fatal("Get: entry still present after Remove")
	}
}

func TestRegistry_SnapshotAndRestore_RoundTrip(t *testing.T) {
	t.Parallel()

	r := hashreg.New()
	r.Update("/a.txt", "sha256:aaa")
	r.Update("/b.txt", "sha256:bbb")

	snap := r.Snapshot()

	r2 := hashreg.New()
	r2.Restore(snap)

	for path, hash := range snap {
		got, ok := r2.Get(path)
		if !ok || got != hash {
			t.Fatalf("Get(%q)=(%q,%v), want (%q,true)", path, got, ok, hash)
		}
	}

	if r2.Len() != len(snap) {
		t.Fatalf("Len=%d, want %d", r2.Len(), len(snap))
	}
}

func TestRegistry_Restore_DiscardsPriorEntries(t *testing.T) {
	t.Parallel()

	r := hashreg.New()
	r.Update("/stale.txt", "sha256:stale")

	r.Restore(map[string]string{"/fresh.txt": "sha256:fresh"})

	if _, ok := r.Get("/stale.txt"); ok {
		t.Fatal("Get: stale entry survived Restore")
	}

	if got, ok := r.Get("/fresh.txt"); !ok || got != "sha256:fresh" {
		t.Fatalf("Get(/fresh.txt)=(%q,%v), want (sha256:fresh,true)", got, ok)
	}
}

func TestRegistry_OnUpdate_FiresOnUpdateAndRemove(t *testing.T) {
	t.Parallel()

	r := hashreg.New()

	type event struct {
		path, hash string
		removed    bool
	}

	var events []event
	r.OnUpdate(func(path, hash string, removed bool) {
		events = append(events, event{path, hash, removed})
	})

	r.Update("/a.txt", "sha256:aaa")
	r.Remove("/a.txt")

	want := []event{
		{"/a.txt", "sha256:aaa", false},
		{"/a.txt", "", true},
	}

	if len(events) != len(want) {
		t.Fatalf("events=%v, want %v", events, want)
	}

	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("events[%d]=%v, want %v", i, events[i], want[i])
		}
	}
}
