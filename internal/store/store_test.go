package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"metaflux/internal/codec/core"
	"metaflux/pkg/model"
)

func fixtureModel() *model.Model {
	return &model.Model{
		ID:           "core_test",
		Compartments: map[string]string{"c": "cytosol"},
		Metabolites:  []model.Metabolite{{ID: "glc_D[c]", Compartment: "c"}},
		Reactions: []model.Reaction{{
			ID:            "EX_glc",
			Stoichiometry: map[string]float64{"glc_D[c]": -1},
			LowerBound:    -10,
			UpperBound:    1000,
		}},
	}
}

func TestMemoryCRUD(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	saved, err := s.Save(ctx, Record{ID: "core", Name: "Core", SourceFormat: core.FormatSBML, Model: fixtureModel()})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved.Checksum == "" || saved.CreatedAt.IsZero() || saved.UpdatedAt.IsZero() {
		t.Fatalf("saved metadata incomplete: %+v", saved)
	}

	got, err := s.Get(ctx, "core")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !reflect.DeepEqual(got.Model, fixtureModel()) {
		t.Fatalf("stored model = %+v", got.Model)
	}

	// Mutating the retrieved model must not leak into the catalog.
	got.Model.Reactions[0].UpperBound = 5
	again, err := s.Get(ctx, "core")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if again.Model.Reactions[0].UpperBound != 1000 {
		t.Fatalf("catalog shares model state with callers")
	}

	updated, err := s.Save(ctx, Record{ID: "core", Name: "Core v2", Model: fixtureModel()})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !updated.CreatedAt.Equal(saved.CreatedAt) {
		t.Fatalf("update changed CreatedAt: %v -> %v", saved.CreatedAt, updated.CreatedAt)
	}

	records, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 1 || records[0].Name != "Core v2" {
		t.Fatalf("list = %+v", records)
	}

	if err := s.Delete(ctx, "core"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, "core"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get after delete = %v", err)
	}
	if err := s.Delete(ctx, "core"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("double delete = %v", err)
	}
}

func TestSQLiteSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "catalog.db")

	s, err := NewSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := s.Save(ctx, Record{ID: "core", SourceFormat: core.FormatMATLAB, Model: fixtureModel()}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := s.Save(ctx, Record{ID: "aux", Model: fixtureModel()}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Delete(ctx, "aux"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	records, err := reopened.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 1 || records[0].ID != "core" {
		t.Fatalf("records after reopen = %+v", records)
	}
	if records[0].SourceFormat != core.FormatMATLAB {
		t.Fatalf("source format = %q", records[0].SourceFormat)
	}
	if !reflect.DeepEqual(records[0].Model, fixtureModel()) {
		t.Fatalf("model after reopen = %+v", records[0].Model)
	}
}

func TestPostgres(t *testing.T) {
	dsn := os.Getenv("METAFLUX_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("METAFLUX_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	s, err := NewPostgres(ctx, dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	if _, err := s.Save(ctx, Record{ID: "core", Model: fixtureModel()}); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.Get(ctx, "core")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !reflect.DeepEqual(got.Model, fixtureModel()) {
		t.Fatalf("stored model = %+v", got.Model)
	}
	if err := s.Delete(ctx, "core"); err != nil {
		t.Fatalf("delete: %v", err)
	}
}

func TestOpenFactory(t *testing.T) {
	t.Setenv("METAFLUX_STORE_DRIVER", "memory")
	s, err := Open(context.Background())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if s.Driver() != DriverMemory {
		t.Fatalf("driver = %q", s.Driver())
	}

	t.Setenv("METAFLUX_STORE_DRIVER", "cassandra")
	if _, err := Open(context.Background()); err == nil {
		t.Fatalf("unknown driver accepted")
	}
}
