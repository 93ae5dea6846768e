package model

import (
	"strings"
	"testing"
)

func intPtr(v int) *int { return &v }

func validModel() *Model {
	return &Model{
		ID: "toy",
		Metabolites: []Metabolite{
			{ID: "glc_c", Name: "Glucose", Compartment: "c", Charge: intPtr(0), Formula: "C6H12O6"},
			{ID: "g6p_c", Name: "Glucose 6-phosphate", Compartment: "c"},
			{ID: "atp_c", Compartment: "c"},
			{ID: "adp_c", Compartment: "c"},
		},
		Reactions: []Reaction{
			{
				ID:   "HEX1",
				Name: "Hexokinase",
				Stoichiometry: map[string]float64{
					"glc_c": -1, "atp_c": -1, "g6p_c": 1, "adp_c": 1,
				},
				LowerBound: 0,
				UpperBound: 1000,
				GeneRule:   "b2388 or b1818",
			},
		},
		Genes: []Gene{
			{ID: "b2388", Name: "hexA"},
			{ID: "b1818"},
		},
		Compartments: map[string]string{"c": "cytosol"},
	}
}

func TestValidateAcceptsConsistentModel(t *testing.T) {
	if err := validModel().Validate(); err != nil {
		t.Fatalf("expected valid model, got %v", err)
	}
}

func TestValidateReportsDuplicateIDs(t *testing.T) {
	m := validModel()
	m.Metabolites = append(m.Metabolites, Metabolite{ID: "glc_c"})
	err := m.Validate()
	if err == nil {
		t.Fatalf("expected schema violation")
	}
	sv, ok := err.(*SchemaViolationError)
	if !ok {
		t.Fatalf("expected *SchemaViolationError, got %T", err)
	}
	if !strings.Contains(sv.Error(), "duplicate metabolite id glc_c") {
		t.Fatalf("unexpected violation message: %s", sv.Error())
	}
}

func TestValidateReportsDanglingReferences(t *testing.T) {
	m := validModel()
	m.Reactions[0].Stoichiometry["missing_met"] = -1
	m.Reactions[0].GeneRule = "b2388 or ghost"
	err := m.Validate()
	if err == nil {
		t.Fatalf("expected schema violation")
	}
	msg := err.Error()
	sv := err.(*SchemaViolationError)
	joined := strings.Join(sv.Violations, "; ")
	if !strings.Contains(joined, "unknown metabolite missing_met") {
		t.Fatalf("missing stoichiometry violation in %q (%s)", joined, msg)
	}
	if !strings.Contains(joined, "unknown gene ghost") {
		t.Fatalf("missing gene rule violation in %q", joined)
	}
}

func TestValidateRejectsBadCoefficientsAndBounds(t *testing.T) {
	m := validModel()
	m.Reactions[0].Stoichiometry["glc_c"] = 0
	m.Reactions[0].LowerBound = 10
	m.Reactions[0].UpperBound = -10
	err := m.Validate()
	if err == nil {
		t.Fatalf("expected schema violation")
	}
	joined := strings.Join(err.(*SchemaViolationError).Violations, "; ")
	if !strings.Contains(joined, "invalid coefficient") {
		t.Fatalf("expected coefficient violation, got %q", joined)
	}
	if !strings.Contains(joined, "lower bound") {
		t.Fatalf("expected bounds violation, got %q", joined)
	}
}

func TestCloneIsDeep(t *testing.T) {
	m := validModel()
	m.Annotations = Annotations{}.Add("source", "unit-test")
	m.Extensions = map[string][]byte{"osenseStr": []byte("max")}
	dup := m.Clone()

	dup.Metabolites[0].ID = "changed"
	*dup.Metabolites[0].Charge = 9
	dup.Reactions[0].Stoichiometry["glc_c"] = 42
	dup.Compartments["c"] = "changed"
	dup.Annotations.Add("source", "second")
	dup.Extensions["osenseStr"][0] = 'X'

	if m.Metabolites[0].ID != "glc_c" || *m.Metabolites[0].Charge != 0 {
		t.Fatalf("metabolite mutated through clone: %+v", m.Metabolites[0])
	}
	if m.Reactions[0].Stoichiometry["glc_c"] != -1 {
		t.Fatalf("stoichiometry mutated through clone")
	}
	if m.Compartments["c"] != "cytosol" {
		t.Fatalf("compartments mutated through clone")
	}
	if len(m.Annotations["source"]) != 1 {
		t.Fatalf("annotations mutated through clone")
	}
	if string(m.Extensions["osenseStr"]) != "max" {
		t.Fatalf("extensions mutated through clone")
	}
}

func TestFormulaString(t *testing.T) {
	rxn := Reaction{
		Stoichiometry: map[string]float64{"glc_c": -1, "atp_c": -2, "g6p_c": 1},
		LowerBound:    0,
	}
	got := rxn.FormulaString()
	want := "2 atp_c + glc_c -> g6p_c"
	if got != want {
		t.Fatalf("formula = %q, want %q", got, want)
	}

	rxn.LowerBound = -1000
	if !strings.Contains(rxn.FormulaString(), "<=>") {
		t.Fatalf("expected reversible arrow, got %q", rxn.FormulaString())
	}
}
