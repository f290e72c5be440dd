package cluster

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Seci84/ITriggr/internal/core"
)

type memStore struct {
	items []core.RawItem
	err   error

	gotSince int64
}

func (m *memStore) ListRawItemsSince(ctx context.Context, since int64) ([]core.RawItem, error) {
	m.gotSince = since
	if m.err != nil {
		return nil, m.err
	}
	var out []core.RawItem
	for _, item := range m.items {
		if item.PublishedAt >= since {
			out = append(out, item)
		}
	}
	return out, nil
}

func item(id, url, fp string, publishedAt int64) core.RawItem {
	return core.RawItem{ID: id, URL: url, Fingerprint: fp, PublishedAt: publishedAt, Title: id}
}

func TestBuildGroups_GroupsByPrefix(t *testing.T) {
	now := time.Now().Unix()
	store := &memStore{items: []core.RawItem{
		// Same 16-bit prefix "a1b2", differing only in later bits.
		item("one", "https://a.example.com/1", "a1b2000000000000", now),
		item("two", "https://b.example.com/2", "a1b2ffffffffffff", now),
		item("three", "https://c.example.com/3", "a1b2123456789abc", now),
		// Prefix differs in one bit.
		item("other", "https://d.example.com/4", "a1b3000000000000", now),
	}}

	builder := NewBuilder(store, Options{PrefixBits: 16, Window: 6 * time.Hour})
	groups, err := builder.BuildGroups(context.Background())
	if err != nil {
		t.Fatalf("BuildGroups failed: %v", err)
	}

	if len(groups) != 2 {
		t.Fatalf("Expected 2 groups, got %d: %v", len(groups), keys(groups))
	}
	if len(groups["a1b2"]) != 3 {
		t.Errorf("Expected 3 items in group a1b2, got %d", len(groups["a1b2"]))
	}
	if len(groups["a1b3"]) != 1 {
		t.Errorf("Expected 1 item in group a1b3, got %d", len(groups["a1b3"]))
	}
}

func TestBuildGroups_WindowFiltersOldItems(t *testing.T) {
	now := time.Now().Unix()
	store := &memStore{items: []core.RawItem{
		item("fresh", "https://a.example.com/1", "aaaa000000000000", now-60),
		item("stale", "https://b.example.com/2", "aaaa000000000000", now-8*3600),
	}}

	builder := NewBuilder(store, Options{Window: 6 * time.Hour, PrefixBits: 16})
	groups, err := builder.BuildGroups(context.Background())
	if err != nil {
		t.Fatalf("BuildGroups failed: %v", err)
	}

	if len(groups["aaaa"]) != 1 || groups["aaaa"][0].ID != "fresh" {
		t.Errorf("Expected only the fresh item, got %+v", groups["aaaa"])
	}

	wantSince := now - 6*3600
	// Allow a little slack for test runtime.
	if store.gotSince < wantSince-5 || store.gotSince > wantSince+5 {
		t.Errorf("Expected since near %d, got %d", wantSince, store.gotSince)
	}
}

func TestBuildGroups_ExcludedDomains(t *testing.T) {
	now := time.Now().Unix()
	store := &memStore{items: []core.RawItem{
		item("kept", "https://kept.example.com/1", "bbbb000000000000", now),
		item("blocked", "https://nytimes.com/2", "bbbb000000000000", now),
		item("blocked-sub", "https://www.nytimes.com/3", "bbbb000000000000", now),
		item("lookalike", "https://notnytimes.com/4", "bbbb000000000000", now),
	}}

	builder := NewBuilder(store, Options{
		Window:          6 * time.Hour,
		PrefixBits:      16,
		ExcludedDomains: []string{"nytimes.com"},
	})
	groups, err := builder.BuildGroups(context.Background())
	if err != nil {
		t.Fatalf("BuildGroups failed: %v", err)
	}

	members := groups["bbbb"]
	if len(members) != 2 {
		t.Fatalf("Expected 2 surviving items, got %d", len(members))
	}
	for _, m := range members {
		if m.ID == "blocked" || m.ID == "blocked-sub" {
			t.Errorf("Denylisted item %s should have been excluded", m.ID)
		}
	}
}

func TestBuildGroups_MinClusterSize(t *testing.T) {
	now := time.Now().Unix()
	store := &memStore{items: []core.RawItem{
		item("a1", "https://a.example.com/1", "cccc000000000000", now),
		item("a2", "https://b.example.com/2", "cccc000000000000", now),
		item("solo", "https://c.example.com/3", "dddd000000000000", now),
	}}

	// Singleton mode keeps both groups.
	builder := NewBuilder(store, Options{Window: time.Hour, PrefixBits: 16, MinClusterSize: 1})
	groups, err := builder.BuildGroups(context.Background())
	if err != nil {
		t.Fatalf("BuildGroups failed: %v", err)
	}
	if len(groups) != 2 {
		t.Errorf("MinClusterSize=1: expected 2 groups, got %d", len(groups))
	}

	// Pair mode drops the singleton.
	builder = NewBuilder(store, Options{Window: time.Hour, PrefixBits: 16, MinClusterSize: 2})
	groups, err = builder.BuildGroups(context.Background())
	if err != nil {
		t.Fatalf("BuildGroups failed: %v", err)
	}
	if len(groups) != 1 {
		t.Errorf("MinClusterSize=2: expected 1 group, got %d", len(groups))
	}
	if _, ok := groups["dddd"]; ok {
		t.Error("Singleton group should have been dropped")
	}
}

func TestBuildGroups_StoreError(t *testing.T) {
	store := &memStore{err: errors.New("store down")}
	builder := NewBuilder(store, Options{})
	if _, err := builder.BuildGroups(context.Background()); err == nil {
		t.Error("Expected store error to propagate")
	}
}

func keys(m map[string][]core.RawItem) []string {
	var out []string
	for k := range m {
		out = append(out, k)
	}
	return out
}
