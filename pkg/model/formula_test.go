package model

import (
	"reflect"
	"testing"
)

func TestParseReactionFormula(t *testing.T) {
	cases := []struct {
		formula    string
		want       map[string]float64
		reversible bool
	}{
		{
			formula: "2 atp_c + glc_D_c -> adp_c + g6p_c",
			want:    map[string]float64{"atp_c": -2, "glc_D_c": -1, "adp_c": 1, "g6p_c": 1},
		},
		{
			formula:    "g6p_c <=> f6p_c",
			want:       map[string]float64{"g6p_c": -1, "f6p_c": 1},
			reversible: true,
		},
		{
			formula:    "glc_D_e <->",
			want:       map[string]float64{"glc_D_e": -1},
			reversible: true,
		},
		{
			formula: "-> 0.5 o2_c",
			want:    map[string]float64{"o2_c": 0.5},
		},
	}
	for _, tc := range cases {
		got, reversible, err := ParseReactionFormula(tc.formula)
		if err != nil {
			t.Fatalf("parse %q: %v", tc.formula, err)
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("parse %q = %v, want %v", tc.formula, got, tc.want)
		}
		if reversible != tc.reversible {
			t.Fatalf("parse %q reversible = %v", tc.formula, reversible)
		}
	}
}

func TestParseReactionFormulaErrors(t *testing.T) {
	for _, formula := range []string{
		"",
		"atp_c + adp_c",
		" -> ",
		"2 -1 atp_c -> adp_c",
		"x atp_c -> adp_c",
		"-2 atp_c -> adp_c",
	} {
		if _, _, err := ParseReactionFormula(formula); err == nil {
			t.Fatalf("parse %q succeeded, want error", formula)
		}
	}
}

func TestFormulaStringRoundTrip(t *testing.T) {
	rxn := Reaction{
		Stoichiometry: map[string]float64{"atp_c": -2, "glc_D_c": -1, "adp_c": 1, "g6p_c": 1},
		LowerBound:    -1000,
	}
	got, reversible, err := ParseReactionFormula(rxn.FormulaString())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !reversible {
		t.Fatalf("reversible arrow lost")
	}
	if !reflect.DeepEqual(got, rxn.Stoichiometry) {
		t.Fatalf("round trip = %v, want %v", got, rxn.Stoichiometry)
	}
}
