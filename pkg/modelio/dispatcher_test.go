package modelio_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"metaflux/pkg/model"
	"metaflux/pkg/modelio"
)

func intPtr(v int) *int { return &v }

func fixtureModel() *model.Model {
	return &model.Model{
		ID:           "core_test",
		Compartments: map[string]string{"c": "cytosol"},
		Metabolites: []model.Metabolite{
			{ID: "glc_D[c]", Name: "D-Glucose", Compartment: "c", Charge: intPtr(0), Formula: "C6H12O6"},
			{ID: "g6p[c]", Name: "Glucose 6-phosphate", Compartment: "c", Charge: intPtr(-2)},
			{ID: "atp[c]", Name: "ATP", Compartment: "c", Charge: intPtr(-4)},
			{ID: "adp[c]", Name: "ADP", Compartment: "c", Charge: intPtr(-3)},
		},
		Reactions: []model.Reaction{
			{
				ID:            "HEX1",
				Name:          "Hexokinase",
				Stoichiometry: map[string]float64{"glc_D[c]": -1, "atp[c]": -1, "g6p[c]": 1, "adp[c]": 1},
				LowerBound:    0,
				UpperBound:    1000,
				GeneRule:      "b2388 or b1818",
			},
		},
		Genes: []model.Gene{{ID: "b2388", Name: "glk"}, {ID: "b1818", Name: "manY"}},
	}
}

func TestDispatchByExtensionIsCaseInsensitive(t *testing.T) {
	d := modelio.New()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "model.XML")

	if err := d.Write(ctx, fixtureModel(), path, ""); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if !strings.Contains(string(data), "<sbml") {
		t.Fatalf("upper-case .XML did not select the SBML codec")
	}

	got, err := d.Read(ctx, path, "")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if _, ok := got.FindReaction("HEX1"); !ok {
		t.Fatalf("reactions = %v", got.Reactions)
	}
}

func TestConvertAcrossFormats(t *testing.T) {
	d := modelio.New()
	ctx := context.Background()
	dir := t.TempDir()
	want := fixtureModel()

	matPath := filepath.Join(dir, "model.mat")
	if err := d.Write(ctx, want, matPath, ""); err != nil {
		t.Fatalf("write mat: %v", err)
	}
	got, err := d.Read(ctx, matPath, "")
	if err != nil {
		t.Fatalf("read mat: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("mat round trip mismatch:\ngot  %+v\nwant %+v", got, want)
	}

	xlsxPath := filepath.Join(dir, "model.xlsx")
	if err := d.Write(ctx, got, xlsxPath, ""); err != nil {
		t.Fatalf("write xlsx: %v", err)
	}
	if _, err := d.Read(ctx, xlsxPath, "excel"); err != nil {
		t.Fatalf("read xlsx: %v", err)
	}
}

func TestWriteSimPhenyIsUnsupported(t *testing.T) {
	d := modelio.New()
	err := d.Write(context.Background(), fixtureModel(), filepath.Join(t.TempDir(), "model.sto"), "simpheny")
	if !errors.Is(err, modelio.ErrUnsupportedFormat) {
		t.Fatalf("error = %v, want unsupported format", err)
	}
}

func TestReadTextFileIsUnknownFormat(t *testing.T) {
	d := modelio.New()
	path := filepath.Join(t.TempDir(), "model.txt")
	if err := os.WriteFile(path, []byte("HEX1\tglc -> g6p\t\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := d.Read(context.Background(), path, ""); !errors.Is(err, modelio.ErrUnknownFormat) {
		t.Fatalf("error = %v, want unknown format", err)
	}
	// Explicitly requested, the text format has no decoder either.
	if _, err := d.Read(context.Background(), path, "text"); !errors.Is(err, modelio.ErrUnsupportedFormat) {
		t.Fatalf("error = %v, want unsupported format", err)
	}
}

func TestUnknownFormatToken(t *testing.T) {
	d := modelio.New()
	if _, err := d.Read(context.Background(), "model.mat", "genbank"); !errors.Is(err, modelio.ErrUnknownFormat) {
		t.Fatalf("error = %v, want unknown format", err)
	}
}

func TestReadMissingFile(t *testing.T) {
	d := modelio.New()
	_, err := d.Read(context.Background(), filepath.Join(t.TempDir(), "absent.mat"), "")
	if !errors.Is(err, modelio.ErrFileNotFound) {
		t.Fatalf("error = %v, want file not found", err)
	}
}

func TestWriteWithoutDestination(t *testing.T) {
	d := modelio.New()
	err := d.Write(context.Background(), fixtureModel(), "", "sbml")
	if !errors.Is(err, modelio.ErrDestinationRequired) {
		t.Fatalf("error = %v, want destination required", err)
	}
}

func TestPathResolverSuppliesDestination(t *testing.T) {
	dir := t.TempDir()
	var prompted modelio.Prompt
	d := modelio.New(modelio.Options{
		PathResolver: func(_ context.Context, prompt modelio.Prompt) (string, error) {
			prompted = prompt
			return filepath.Join(dir, "picked.mat"), nil
		},
	})
	if err := d.Write(context.Background(), fixtureModel(), "", ""); err != nil {
		t.Fatalf("write: %v", err)
	}
	if prompted.Operation != "write" {
		t.Fatalf("prompt = %+v", prompted)
	}
	if _, err := os.Stat(filepath.Join(dir, "picked.mat")); err != nil {
		t.Fatalf("resolved destination not written: %v", err)
	}
}

func TestDefaultFormatFallback(t *testing.T) {
	d := modelio.New(modelio.Options{DefaultFormat: modelio.FormatText})
	path := filepath.Join(t.TempDir(), "reactions.export")
	if err := d.Write(context.Background(), fixtureModel(), path, ""); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.HasPrefix(string(data), "HEX1\t") {
		t.Fatalf("default format not applied: %q", string(data))
	}
}

func TestInvalidModelIsRejectedBeforeWrite(t *testing.T) {
	d := modelio.New()
	m := fixtureModel()
	m.Reactions[0].Stoichiometry["phantom[c]"] = 1

	path := filepath.Join(t.TempDir(), "model.mat")
	err := d.Write(context.Background(), m, path, "")
	var verr *modelio.SchemaViolationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want schema violation", err)
	}
	if _, statErr := os.Stat(path); !errors.Is(statErr, os.ErrNotExist) {
		t.Fatalf("invalid model still produced a file")
	}
}

func TestMetricsRecorderObservesOperations(t *testing.T) {
	rec := modelio.NewExpvarMetricsRecorder("")
	d := modelio.New(modelio.Options{Metrics: rec})
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "model.mat")
	if err := d.Write(ctx, fixtureModel(), path, ""); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := d.Read(ctx, path, ""); err != nil {
		t.Fatalf("read: %v", err)
	}
	if _, err := d.Read(ctx, filepath.Join(t.TempDir(), "absent.mat"), ""); err == nil {
		t.Fatalf("expected read failure")
	}

	snap := rec.Snapshot()
	if snap.Results["write.matlab-struct"]["success"] != 1 {
		t.Fatalf("write results = %v", snap.Results)
	}
	if snap.Results["read.matlab-struct"]["success"] != 1 || snap.Results["read.matlab-struct"]["error"] != 1 {
		t.Fatalf("read results = %v", snap.Results)
	}
}
