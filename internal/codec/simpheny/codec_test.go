package simpheny

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

const (
	fixtureMatrix = "-1\t0\n1\t-1\n0\t1\n"

	fixtureRxns = "id\tname\tlower_bound\tupper_bound\tsubsystem\n" +
		"HEX1\tHexokinase\t0\t1000\tGlycolysis\n" +
		"PGI\tIsomerase\t\t\t\n"

	fixtureMets = "id\tname\tcompartment\tformula\tcharge\n" +
		"glc_D_c\tD-Glucose\tc\tC6H12O6\t0\n" +
		"g6p_c\tG6P\tc\t\t-2\n" +
		"f6p_c\tF6P\tc\t\t\n"

	fixtureGPR = "HEX1\tb2388 or b1818\n" +
		"PGI\tb4025\n"
)

func writeBundle(t *testing.T, withGPR bool) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"core.sto":     fixtureMatrix,
		"core_rxn.txt": fixtureRxns,
		"core_met.txt": fixtureMets,
	}
	if withGPR {
		files["core_gpr.txt"] = fixtureGPR
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return filepath.Join(dir, "core.sto")
}

func TestDecodeFullBundle(t *testing.T) {
	got, err := New().Decode(context.Background(), writeBundle(t, true))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if len(got.Metabolites) != 3 {
		t.Fatalf("metabolite count = %d", len(got.Metabolites))
	}
	glc := got.Metabolites[0]
	if glc.ID != "glc_D_c" || glc.Compartment != "c" || glc.Formula != "C6H12O6" {
		t.Fatalf("glc = %+v", glc)
	}
	if glc.Charge == nil || *glc.Charge != 0 {
		t.Fatalf("glc charge = %v", glc.Charge)
	}
	if got.Metabolites[2].Charge != nil {
		t.Fatalf("blank charge cell parsed as %v", *got.Metabolites[2].Charge)
	}

	if len(got.Reactions) != 2 {
		t.Fatalf("reaction count = %d", len(got.Reactions))
	}
	hex := got.Reactions[0]
	if hex.LowerBound != 0 || hex.UpperBound != 1000 || hex.Subsystem != "Glycolysis" {
		t.Fatalf("hex = %+v", hex)
	}
	if !reflect.DeepEqual(hex.Stoichiometry, map[string]float64{"glc_D_c": -1, "g6p_c": 1}) {
		t.Fatalf("hex stoichiometry = %v", hex.Stoichiometry)
	}
	pgi := got.Reactions[1]
	if pgi.LowerBound != -1000 || pgi.UpperBound != 1000 {
		t.Fatalf("blank bounds = [%g, %g]", pgi.LowerBound, pgi.UpperBound)
	}
	if !reflect.DeepEqual(pgi.Stoichiometry, map[string]float64{"g6p_c": -1, "f6p_c": 1}) {
		t.Fatalf("pgi stoichiometry = %v", pgi.Stoichiometry)
	}

	if hex.GeneRule != "b2388 or b1818" || pgi.GeneRule != "b4025" {
		t.Fatalf("gene rules = %q / %q", hex.GeneRule, pgi.GeneRule)
	}
	wantGenes := []model.Gene{{ID: "b2388"}, {ID: "b1818"}, {ID: "b4025"}}
	if !reflect.DeepEqual(got.Genes, wantGenes) {
		t.Fatalf("genes = %v", got.Genes)
	}

	if !reflect.DeepEqual(got.Compartments, map[string]string{"c": "c"}) {
		t.Fatalf("compartments = %v", got.Compartments)
	}
}

func TestDecodeWithoutGeneFile(t *testing.T) {
	got, err := New().Decode(context.Background(), writeBundle(t, false))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, rxn := range got.Reactions {
		if rxn.GeneRule != "" {
			t.Fatalf("reaction %s has rule %q without a gene file", rxn.ID, rxn.GeneRule)
		}
	}
	if len(got.Genes) != 0 {
		t.Fatalf("genes = %v", got.Genes)
	}
}

func TestDecodeMissingSiblingsIsIncompleteBundle(t *testing.T) {
	source := writeBundle(t, false)
	base := source[:len(source)-len(".sto")]
	for _, name := range []string{base + "_rxn.txt", base + "_met.txt"} {
		if err := os.Remove(name); err != nil {
			t.Fatalf("remove: %v", err)
		}
	}
	_, err := New().Decode(context.Background(), source)
	var berr *core.IncompleteBundleError
	if !errors.As(err, &berr) {
		t.Fatalf("error = %v, want incomplete bundle", err)
	}
	if len(berr.Missing) != 2 {
		t.Fatalf("missing = %v", berr.Missing)
	}
}

func TestDecodeMissingMatrixIsFileNotFound(t *testing.T) {
	_, err := New().Decode(context.Background(), filepath.Join(t.TempDir(), "absent.sto"))
	if !errors.Is(err, core.ErrFileNotFound) {
		t.Fatalf("error = %v, want file-not-found", err)
	}
}

func TestDecodeRejectsMatrixShapeMismatch(t *testing.T) {
	source := writeBundle(t, false)
	if err := os.WriteFile(source, []byte("-1\t0\t5\n1\t-1\t5\n0\t1\t5\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := New().Decode(context.Background(), source)
	var merr *core.MalformedInputError
	if !errors.As(err, &merr) {
		t.Fatalf("error = %v, want malformed input", err)
	}
	if merr.Codec != core.FormatSimPheny {
		t.Fatalf("codec = %q", merr.Codec)
	}

	if err := os.WriteFile(source, []byte("-1\t0\n1\t-1\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := New().Decode(context.Background(), source); !errors.As(err, &merr) {
		t.Fatalf("short matrix error = %v, want malformed input", err)
	}
}
