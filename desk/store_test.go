package desk

import (
	"context"
	"errors"
	"os"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	f, err := os.CreateTemp("", "agentdesk-org-*.db")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	f.Close()
	path := f.Name()
	t.Cleanup(func() { os.Remove(path) })

	store, err := NewStore(path)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	r := threeDeskOrg(t)
	if err := r.AddTeam(&Team{ID: "backend-team", Name: "Backend", Lead: "dev-001"}); err != nil {
		t.Fatalf("AddTeam: %v", err)
	}
	if err := r.AddLearning("dev-001", "ship early"); err != nil {
		t.Fatalf("AddLearning: %v", err)
	}

	if err := store.SaveRegistry(ctx, r); err != nil {
		t.Fatalf("SaveRegistry: %v", err)
	}
	loaded, err := store.LoadRegistry(ctx)
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}

	desks := loaded.List()
	if len(desks) != 3 {
		t.Fatalf("loaded desks = %d, want 3", len(desks))
	}
	want := []string{"cto-001", "dev-001", "qa-001"}
	for i, id := range want {
		if desks[i].ID != id {
			t.Errorf("loaded order[%d] = %s, want %s", i, desks[i].ID, id)
		}
	}

	dev, err := loaded.Get("dev-001")
	if err != nil {
		t.Fatalf("Get after load: %v", err)
	}
	if dev.ReportsTo != "cto-001" || dev.TeamID != "backend-team" {
		t.Errorf("loaded dev-001 = %+v", dev)
	}
	if len(dev.Memory.Learnings) != 1 || dev.Memory.Learnings[0] != "ship early" {
		t.Errorf("loaded memory = %v", dev.Memory)
	}

	team, err := loaded.Team("backend-team")
	if err != nil {
		t.Fatalf("Team after load: %v", err)
	}
	if team.Lead != "dev-001" {
		t.Errorf("loaded team lead = %q, want dev-001", team.Lead)
	}
}

func TestStore_LoadNormalizesBusyDesks(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	r := threeDeskOrg(t)
	if err := r.SetBusy("dev-001", "task_0042"); err != nil {
		t.Fatalf("SetBusy: %v", err)
	}
	if err := store.SaveRegistry(ctx, r); err != nil {
		t.Fatalf("SaveRegistry: %v", err)
	}

	loaded, err := store.LoadRegistry(ctx)
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}
	dev, _ := loaded.Get("dev-001")
	if dev.Status != StatusIdle || dev.CurrentTask != "" {
		t.Errorf("busy desk survived restart as %s/%q, want idle with no task", dev.Status, dev.CurrentTask)
	}
}

func TestStore_SoftDeleteDesk(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.SaveRegistry(ctx, threeDeskOrg(t)); err != nil {
		t.Fatalf("SaveRegistry: %v", err)
	}
	if err := store.SoftDeleteDesk(ctx, "qa-001"); err != nil {
		t.Fatalf("SoftDeleteDesk: %v", err)
	}

	loaded, err := store.LoadRegistry(ctx)
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}
	if _, err := loaded.Get("qa-001"); !errors.Is(err, ErrNotFound) {
		t.Errorf("soft-deleted desk still loads: %v", err)
	}
	if len(loaded.List()) != 2 {
		t.Errorf("loaded %d desks, want 2", len(loaded.List()))
	}

	if err := store.SoftDeleteDesk(ctx, "qa-001"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second SoftDeleteDesk = %v, want ErrNotFound", err)
	}
}
