package catalog

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/opensource-compliance/gavel/internal/bus"
	"github.com/opensource-compliance/gavel/internal/cache"
	"github.com/opensource-compliance/gavel/internal/domain"
	"github.com/opensource-compliance/gavel/internal/repository"
	"github.com/opensource-compliance/gavel/internal/scoring"
)

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	engine, err := scoring.NewEngine(5)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	return New(engine, nil, nil, nil)
}

func req(id, category, predicate string, weight float64) domain.Requirement {
	return domain.Requirement{
		ID:             id,
		Category:       category,
		Predicate:      predicate,
		SeverityWeight: weight,
	}
}

func TestPublishValidation(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()
	now := time.Now().UTC()

	tests := []struct {
		name string
		reqs []domain.Requirement
	}{
		{"empty version", nil},
		{"malformed predicate", []domain.Requirement{
			req("r1", "disclosure", "not valid CEL !!!", 5),
		}},
		{"weight above range", []domain.Requirement{
			req("r1", "disclosure", "content != ''", 11),
		}},
		{"weight below range", []domain.Requirement{
			req("r1", "disclosure", "content != ''", -1),
		}},
		{"weight zero", []domain.Requirement{
			req("r1", "disclosure", "content != ''", 0),
		}},
		{"duplicate id", []domain.Requirement{
			req("r1", "disclosure", "content != ''", 5),
			req("r1", "disclosure", "content != ''", 5),
		}},
		{"missing category", []domain.Requirement{
			req("r1", "", "content != ''", 5),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Publish(ctx, "tenant-001", "EU", now, tt.reqs)
			var valErr *domain.ValidationError
			if !errors.As(err, &valErr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}

	// Nothing became visible.
	if _, err := c.ActiveVersion(ctx, "tenant-001", "EU", now); err == nil {
		t.Error("rejected publish must not create an active version")
	}
}

func TestActiveVersionAsOf(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	v1, err := c.Publish(ctx, "tenant-001", "EU", base, []domain.Requirement{
		req("r1", "disclosure", "content != ''", 5),
	})
	if err != nil {
		t.Fatalf("publish v1 failed: %v", err)
	}
	v2, err := c.Publish(ctx, "tenant-001", "EU", base.AddDate(0, 6, 0), []domain.Requirement{
		req("r1", "disclosure", "content != ''", 7),
	})
	if err != nil {
		t.Fatalf("publish v2 failed: %v", err)
	}

	tests := []struct {
		name   string
		asOf   time.Time
		wantID string
		hit    bool
	}{
		{"before any version", base.AddDate(0, 0, -1), "", false},
		{"exactly v1", base, v1.ID, true},
		{"between versions", base.AddDate(0, 3, 0), v1.ID, true},
		{"after v2", base.AddDate(1, 0, 0), v2.ID, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.ActiveVersion(ctx, "tenant-001", "EU", tt.asOf)
			if !tt.hit {
				var nfErr *domain.NotFoundError
				if !errors.As(err, &nfErr) {
					t.Fatalf("expected NotFoundError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ActiveVersion failed: %v", err)
			}
			if got.ID != tt.wantID {
				t.Errorf("expected version %s, got %s", tt.wantID, got.ID)
			}
		})
	}

	if v1.SupersededBy != v2.ID {
		t.Errorf("v1 should be superseded by v2, got %q", v1.SupersededBy)
	}
}

func newTestRepo(t *testing.T) domain.Repository {
	t.Helper()
	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "catalog-test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestFailedPersistIsNotVisible(t *testing.T) {
	engine, _ := scoring.NewEngine(5)
	defer engine.Close()
	repo := newTestRepo(t)
	c := New(engine, repo, nil, nil)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	v1, err := c.Publish(ctx, "tenant-001", "EU", base, []domain.Requirement{
		req("r1", "disclosure", "content != ''", 5),
	})
	if err != nil {
		t.Fatalf("publish v1 failed: %v", err)
	}

	// Every subsequent write fails.
	repo.Close()

	_, err = c.Publish(ctx, "tenant-001", "EU", base.AddDate(0, 1, 0), []domain.Requirement{
		req("r1", "disclosure", "content != ''", 9),
	})
	if err == nil {
		t.Fatal("expected publish to fail when persistence fails")
	}

	active, err := c.ActiveVersion(ctx, "tenant-001", "EU", base.AddDate(1, 0, 0))
	if err != nil {
		t.Fatalf("ActiveVersion failed: %v", err)
	}
	if active.ID != v1.ID {
		t.Errorf("failed publish must not become active: expected %s, got %s", v1.ID, active.ID)
	}
	if v1.SupersededBy != "" {
		t.Errorf("failed publish must not supersede the prior version, got %q", v1.SupersededBy)
	}
}

func TestActiveVersionFollowsRemotePublish(t *testing.T) {
	repo := newTestRepo(t)
	shared := cache.NewLRUCache(64)
	ctx := context.Background()

	engineA, _ := scoring.NewEngine(5)
	defer engineA.Close()
	engineB, _ := scoring.NewEngine(5)
	defer engineB.Close()

	// Two catalog instances over the same repository and cache, as in a
	// multi-instance deployment.
	a := New(engineA, repo, nil, shared)
	b := New(engineB, repo, nil, shared)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	v1, err := a.Publish(ctx, "tenant-001", "EU", base, []domain.Requirement{
		req("r1", "disclosure", "content != ''", 5),
	})
	if err != nil {
		t.Fatalf("publish v1 failed: %v", err)
	}
	if _, err := a.ActiveVersion(ctx, "tenant-001", "EU", base); err != nil {
		t.Fatalf("ActiveVersion on publisher failed: %v", err)
	}

	// b has never loaded EU; the cached pointer must pull it from the
	// repository.
	got, err := b.ActiveVersion(ctx, "tenant-001", "EU", base)
	if err != nil {
		t.Fatalf("ActiveVersion on second instance failed: %v", err)
	}
	if got.ID != v1.ID {
		t.Errorf("expected version %s, got %s", v1.ID, got.ID)
	}

	v2, err := a.Publish(ctx, "tenant-001", "EU", base.AddDate(0, 1, 0), []domain.Requirement{
		req("r1", "disclosure", "content != ''", 7),
	})
	if err != nil {
		t.Fatalf("publish v2 failed: %v", err)
	}
	asOf := base.AddDate(0, 2, 0)
	if _, err := a.ActiveVersion(ctx, "tenant-001", "EU", asOf); err != nil {
		t.Fatalf("ActiveVersion on publisher failed: %v", err)
	}

	got, err = b.ActiveVersion(ctx, "tenant-001", "EU", asOf)
	if err != nil {
		t.Fatalf("ActiveVersion after remote publish failed: %v", err)
	}
	if got.ID != v2.ID {
		t.Errorf("second instance must see the remote publish: expected %s, got %s", v2.ID, got.ID)
	}
}

func TestDiff(t *testing.T) {
	old := &domain.RegulationVersion{Requirements: []domain.Requirement{
		req("keep", "a", "content != ''", 5),
		req("reweight", "a", "content != ''", 5),
		req("reword", "a", "content != ''", 5),
		req("drop", "a", "content != ''", 5),
	}}
	new := &domain.RegulationVersion{Requirements: []domain.Requirement{
		req("keep", "a", "content != ''", 5),
		req("reweight", "a", "content != ''", 9),
		req("reword", "a", "section != ''", 5),
		req("fresh", "a", "content != ''", 5),
	}}

	diff := Diff(old, new)

	if len(diff.Added) != 1 || diff.Added[0].ID != "fresh" {
		t.Errorf("added: expected [fresh], got %v", diff.Added)
	}
	if len(diff.Removed) != 1 || diff.Removed[0].ID != "drop" {
		t.Errorf("removed: expected [drop], got %v", diff.Removed)
	}
	if len(diff.Modified) != 2 {
		t.Errorf("modified: expected 2, got %d", len(diff.Modified))
	}

	identical := Diff(old, old)
	if !identical.Empty() {
		t.Error("diff of a version against itself must be empty")
	}
}

func TestPublishEmitsEvent(t *testing.T) {
	engine, _ := scoring.NewEngine(5)
	channelBus := bus.NewChannelBus(10)
	defer channelBus.Close()

	c := New(engine, nil, channelBus, nil)
	ctx := context.Background()

	events := make(chan domain.CatalogPublishedEvent, 2)
	_, err := channelBus.Subscribe(ctx, "tenant-001", domain.TopicCatalogPublished, func(ctx context.Context, msg *domain.Message) error {
		var ev domain.CatalogPublishedEvent
		if err := msg.Decode(&ev); err != nil {
			return err
		}
		events <- ev
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	v1, _ := c.Publish(ctx, "tenant-001", "EU", base, []domain.Requirement{
		req("r1", "disclosure", "content != ''", 5),
	})
	v2, _ := c.Publish(ctx, "tenant-001", "EU", base.AddDate(0, 1, 0), []domain.Requirement{
		req("r1", "disclosure", "content != ''", 5),
		req("r2", "disclosure", "section != ''", 3),
	})

	first := waitEvent(t, events)
	if first.NewVersionID != v1.ID || first.OldVersionID != "" {
		t.Errorf("first event: expected new=%s old=\"\", got new=%s old=%s",
			v1.ID, first.NewVersionID, first.OldVersionID)
	}

	second := waitEvent(t, events)
	if second.OldVersionID != v1.ID || second.NewVersionID != v2.ID {
		t.Errorf("second event: expected old=%s new=%s, got old=%s new=%s",
			v1.ID, v2.ID, second.OldVersionID, second.NewVersionID)
	}
	if len(second.Diff.Added) != 1 || second.Diff.Added[0].ID != "r2" {
		t.Errorf("second event diff: expected added [r2], got %v", second.Diff.Added)
	}
}

func waitEvent(t *testing.T, ch chan domain.CatalogPublishedEvent) domain.CatalogPublishedEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for catalog event")
		return domain.CatalogPublishedEvent{}
	}
}
