package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/hayashida/kengen/internal/entities"
	"github.com/hayashida/kengen/internal/repositories"
)

func TestPostgresSourceRepository_CRUD(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	ctx := context.Background()
	resources := NewPostgresResourceRepository(db)
	sources := NewPostgresSourceRepository(db)

	if err := resources.Create(ctx, &entities.ResourceNode{
		ID:   "doc1",
		Kind: entities.ResourceDocument,
	}); err != nil {
		t.Fatalf("Create resource: %v", err)
	}

	source := &entities.PermissionSource{
		ID:         "src1",
		ResourceID: "doc1",
		SubjectRef: "role:editor",
		Kind:       entities.SourceRole,
		Priority:   50,
		Permissions: map[entities.Action]entities.Tri{
			entities.ActionView: entities.Allow,
			entities.ActionEdit: entities.Deny,
		},
		Active: true,
	}
	if err := sources.Create(ctx, source); err != nil {
		t.Fatalf("Create source: %v", err)
	}

	got, err := sources.Get(ctx, "src1")
	if err != nil {
		t.Fatalf("Get source: %v", err)
	}
	if got.Permissions[entities.ActionView] != entities.Allow {
		t.Errorf("view = %v, want allow", got.Permissions[entities.ActionView])
	}
	if got.Permissions[entities.ActionEdit] != entities.Deny {
		t.Errorf("edit = %v, want deny", got.Permissions[entities.ActionEdit])
	}

	got.Active = false
	if err := sources.Update(ctx, got); err != nil {
		t.Fatalf("Update source: %v", err)
	}

	active, err := sources.List(ctx, &repositories.SourceFilter{
		ResourceID: "doc1",
		ActiveOnly: true,
	})
	if err != nil {
		t.Fatalf("List sources: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("active sources = %d, want 0 after deactivation", len(active))
	}

	if err := sources.Delete(ctx, "src1"); err != nil {
		t.Fatalf("Delete source: %v", err)
	}
	if _, err := sources.Get(ctx, "src1"); !errors.Is(err, entities.ErrSourceNotFound) {
		t.Errorf("Get after delete = %v, want ErrSourceNotFound", err)
	}
}

func TestPostgresConflictRepository_ResolveAtomicity(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	ctx := context.Background()
	resources := NewPostgresResourceRepository(db)
	sources := NewPostgresSourceRepository(db)
	conflicts := NewPostgresConflictRepository(db)

	if err := resources.Create(ctx, &entities.ResourceNode{
		ID:   "doc1",
		Kind: entities.ResourceDocument,
	}); err != nil {
		t.Fatalf("Create resource: %v", err)
	}
	if err := sources.Create(ctx, &entities.PermissionSource{
		ID:          "src1",
		ResourceID:  "doc1",
		SubjectRef:  "role:editor",
		Kind:        entities.SourceRole,
		Priority:    50,
		Permissions: map[entities.Action]entities.Tri{entities.ActionEdit: entities.Deny},
		Active:      true,
	}); err != nil {
		t.Fatalf("Create source: %v", err)
	}

	record := &entities.ConflictStatusRecord{
		ConflictID: "conflict-1",
		Status:     entities.ConflictResolved,
		Actor:      "user:admin",
	}
	changes := []repositories.SourceValueChange{
		{SourceID: "src1", Action: entities.ActionEdit, Value: entities.Allow},
	}
	audit := &entities.AuditEntry{
		ID:       "audit-1",
		Actor:    "user:admin",
		Action:   "conflict.resolve",
		TargetID: "conflict-1",
	}
	if err := conflicts.Resolve(ctx, record, changes, audit); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	got, err := sources.Get(ctx, "src1")
	if err != nil {
		t.Fatalf("Get source: %v", err)
	}
	if got.Permissions[entities.ActionEdit] != entities.Allow {
		t.Errorf("edit = %v, want allow after resolution", got.Permissions[entities.ActionEdit])
	}

	status, err := conflicts.GetStatus(ctx, "conflict-1")
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if status == nil || status.Status != entities.ConflictResolved {
		t.Errorf("status = %+v, want resolved", status)
	}

	// A resolution referencing a missing source must roll everything back.
	badRecord := &entities.ConflictStatusRecord{
		ConflictID: "conflict-2",
		Status:     entities.ConflictResolved,
		Actor:      "user:admin",
	}
	badChanges := []repositories.SourceValueChange{
		{SourceID: "missing", Action: entities.ActionEdit, Value: entities.Allow},
	}
	if err := conflicts.Resolve(ctx, badRecord, badChanges, audit); err == nil {
		t.Fatal("Resolve with missing source should fail")
	}
	status, err = conflicts.GetStatus(ctx, "conflict-2")
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if status != nil {
		t.Errorf("status for failed resolution = %+v, want none", status)
	}
}
