package sbmlid

import (
	"fmt"
	"reflect"
	"testing"

	"metaflux/pkg/model"
)

func prefixedModel() *model.Model {
	return &model.Model{
		Metabolites: []model.Metabolite{
			{ID: "M_glc_D_c", Compartment: "C_c"},
			{ID: "M_g6p_c", Compartment: "C_c"},
			{ID: "M_glc_D_e", Compartment: "C_e"},
		},
		Reactions: []model.Reaction{
			{
				ID:            "R_HEX1",
				Stoichiometry: map[string]float64{"M_glc_D_c": -1, "M_g6p_c": 1},
				GeneRule:      "G_b2388 or G_b1818",
			},
			{
				ID:            "R_GLCt1",
				Stoichiometry: map[string]float64{"M_glc_D_e": -1, "M_glc_D_c": 1},
			},
		},
		Genes: []model.Gene{
			{ID: "G_b2388"},
			{ID: "G_b1818"},
		},
		Compartments: map[string]string{"C_c": "cytosol", "C_e": "extracellular"},
	}
}

func TestStripRemovesConsistentPrefixesAndSuffixes(t *testing.T) {
	m := prefixedModel()
	New().Strip(m)

	if m.Metabolites[0].ID != "glc_D[c]" {
		t.Fatalf("metabolite id = %q, want glc_D[c]", m.Metabolites[0].ID)
	}
	if m.Metabolites[2].ID != "glc_D[e]" {
		t.Fatalf("metabolite id = %q, want glc_D[e]", m.Metabolites[2].ID)
	}
	if m.Reactions[0].ID != "HEX1" {
		t.Fatalf("reaction id = %q, want HEX1", m.Reactions[0].ID)
	}
	if m.Genes[0].ID != "b2388" {
		t.Fatalf("gene id = %q, want b2388", m.Genes[0].ID)
	}
	if _, ok := m.Compartments["c"]; !ok {
		t.Fatalf("compartment prefix not stripped: %v", m.Compartments)
	}
	if coeff := m.Reactions[0].Stoichiometry["glc_D[c]"]; coeff != -1 {
		t.Fatalf("stoichiometry not rewritten: %v", m.Reactions[0].Stoichiometry)
	}
	if m.Reactions[0].GeneRule != "b2388 or b1818" {
		t.Fatalf("gene rule not rewritten: %q", m.Reactions[0].GeneRule)
	}
	if err := m.Validate(); err != nil {
		t.Fatalf("stripped model invalid: %v", err)
	}
}

func TestStripIsIdempotent(t *testing.T) {
	once := prefixedModel()
	New().Strip(once)
	twice := once.Clone()
	New().Strip(twice)
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("second strip changed the model:\nonce:  %+v\ntwice: %+v", once, twice)
	}
}

// Nine of ten metabolites carry the M_ prefix; the tenth does not. Strict
// all-or-nothing means no id may change.
func TestPartialPrefixPresenceLeavesIDsUntouched(t *testing.T) {
	m := &model.Model{Compartments: map[string]string{"c": "cytosol"}}
	var want []string
	for i := 0; i < 9; i++ {
		id := fmt.Sprintf("M_met%d_c", i)
		m.Metabolites = append(m.Metabolites, model.Metabolite{ID: id, Compartment: "c"})
		want = append(want, id)
	}
	m.Metabolites = append(m.Metabolites, model.Metabolite{ID: "odd_one_out", Compartment: "c"})
	want = append(want, "odd_one_out")

	New().Strip(m)

	for i, met := range m.Metabolites {
		if met.ID != want[i] {
			t.Fatalf("metabolite %d renamed to %q, want %q left untouched", i, met.ID, want[i])
		}
	}
}

func TestSuffixSplitSkipsBoundarySpecies(t *testing.T) {
	m := &model.Model{
		Metabolites: []model.Metabolite{
			{ID: "glc_D_c", Compartment: "c"},
			{ID: "g6p_c", Compartment: "c"},
			{ID: "glc_D_b", Boundary: true},
		},
		Compartments: map[string]string{"c": "cytosol"},
	}
	New().Strip(m)

	if m.Metabolites[0].ID != "glc_D[c]" || m.Metabolites[1].ID != "g6p[c]" {
		t.Fatalf("non-boundary ids not split: %q, %q", m.Metabolites[0].ID, m.Metabolites[1].ID)
	}
	if m.Metabolites[2].ID != "glc_D_b" {
		t.Fatalf("boundary species renamed to %q", m.Metabolites[2].ID)
	}
}

func TestApplyRoundTripsStrip(t *testing.T) {
	original := prefixedModel()
	stripped := original.Clone()
	New().Strip(stripped)

	applied := New().Apply(stripped)

	if applied.Metabolites[0].ID != "M_glc_D_c" {
		t.Fatalf("metabolite id = %q, want M_glc_D_c", applied.Metabolites[0].ID)
	}
	if applied.Reactions[0].ID != "R_HEX1" {
		t.Fatalf("reaction id = %q, want R_HEX1", applied.Reactions[0].ID)
	}
	if applied.Genes[0].ID != "G_b2388" {
		t.Fatalf("gene id = %q, want G_b2388", applied.Genes[0].ID)
	}
	if applied.Reactions[0].GeneRule != "G_b2388 or G_b1818" {
		t.Fatalf("gene rule = %q", applied.Reactions[0].GeneRule)
	}
	if coeff := applied.Reactions[0].Stoichiometry["M_glc_D_c"]; coeff != -1 {
		t.Fatalf("stoichiometry not rewritten: %v", applied.Reactions[0].Stoichiometry)
	}
	if _, ok := applied.Compartments["C_c"]; !ok {
		t.Fatalf("compartment prefix not applied: %v", applied.Compartments)
	}
	// Apply must leave its input untouched.
	if stripped.Metabolites[0].ID != "glc_D[c]" {
		t.Fatalf("Apply mutated its input: %q", stripped.Metabolites[0].ID)
	}
}

func TestReplaceTokenIsWholeTokenOnly(t *testing.T) {
	got := replaceToken("G_b1 and G_b12", "G_b1", "b1")
	if got != "b1 and G_b12" {
		t.Fatalf("replaceToken = %q", got)
	}
}
