package model

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// SchemaViolationError reports structural inconsistencies in a model:
// duplicate identifiers, dangling references, or out-of-range values.
// Decode paths surface it without returning a partially valid model.
type SchemaViolationError struct {
	Violations []string
}

func (e *SchemaViolationError) Error() string {
	if len(e.Violations) == 1 {
		return "schema violation: " + e.Violations[0]
	}
	return fmt.Sprintf("schema violation: %d problems, first: %s", len(e.Violations), e.Violations[0])
}

// Validate checks the canonical model invariants. It returns a
// *SchemaViolationError describing every problem found, or nil when the
// model is internally consistent.
func (m *Model) Validate() error {
	var violations []string

	metIDs := make(map[string]struct{}, len(m.Metabolites))
	for _, met := range m.Metabolites {
		if met.ID == "" {
			violations = append(violations, "metabolite with empty id")
			continue
		}
		if _, dup := metIDs[met.ID]; dup {
			violations = append(violations, fmt.Sprintf("duplicate metabolite id %s", met.ID))
		}
		metIDs[met.ID] = struct{}{}
		if met.Compartment != "" && m.Compartments != nil {
			if _, ok := m.Compartments[met.Compartment]; !ok {
				violations = append(violations, fmt.Sprintf("metabolite %s references undeclared compartment %s", met.ID, met.Compartment))
			}
		}
	}

	geneIDs := make(map[string]struct{}, len(m.Genes))
	for _, gene := range m.Genes {
		if gene.ID == "" {
			violations = append(violations, "gene with empty id")
			continue
		}
		if _, dup := geneIDs[gene.ID]; dup {
			violations = append(violations, fmt.Sprintf("duplicate gene id %s", gene.ID))
		}
		geneIDs[gene.ID] = struct{}{}
	}

	rxnIDs := make(map[string]struct{}, len(m.Reactions))
	for _, rxn := range m.Reactions {
		if rxn.ID == "" {
			violations = append(violations, "reaction with empty id")
			continue
		}
		if _, dup := rxnIDs[rxn.ID]; dup {
			violations = append(violations, fmt.Sprintf("duplicate reaction id %s", rxn.ID))
		}
		rxnIDs[rxn.ID] = struct{}{}

		if rxn.LowerBound > rxn.UpperBound {
			violations = append(violations, fmt.Sprintf("reaction %s has lower bound %g above upper bound %g", rxn.ID, rxn.LowerBound, rxn.UpperBound))
		}

		// Report stoichiometry problems in a stable order.
		refs := make([]string, 0, len(rxn.Stoichiometry))
		for id := range rxn.Stoichiometry {
			refs = append(refs, id)
		}
		sort.Strings(refs)
		for _, id := range refs {
			coeff := rxn.Stoichiometry[id]
			if _, ok := metIDs[id]; !ok {
				violations = append(violations, fmt.Sprintf("reaction %s references unknown metabolite %s", rxn.ID, id))
			}
			if coeff == 0 || math.IsNaN(coeff) || math.IsInf(coeff, 0) {
				violations = append(violations, fmt.Sprintf("reaction %s has invalid coefficient %g for %s", rxn.ID, coeff, id))
			}
		}

		if rxn.GeneRule != "" {
			rule, err := ParseGeneRule(rxn.GeneRule)
			if err != nil {
				violations = append(violations, fmt.Sprintf("reaction %s has unparseable gene rule: %v", rxn.ID, err))
				continue
			}
			for _, gene := range rule.Genes() {
				if _, ok := geneIDs[gene]; !ok {
					violations = append(violations, fmt.Sprintf("reaction %s gene rule references unknown gene %s", rxn.ID, gene))
				}
			}
		}
	}

	if len(violations) == 0 {
		return nil
	}
	return &SchemaViolationError{Violations: violations}
}

// FormulaString renders a reaction as a human-readable equation built from
// its stoichiometry, e.g. "2 h_c + o2_c -> h2o_c". Reversibility is derived
// from the lower bound.
func (r Reaction) FormulaString() string {
	type term struct {
		id    string
		coeff float64
	}
	var left, right []term
	for id, coeff := range r.Stoichiometry {
		switch {
		case coeff < 0:
			left = append(left, term{id: id, coeff: -coeff})
		case coeff > 0:
			right = append(right, term{id: id, coeff: coeff})
		}
	}
	sort.Slice(left, func(i, j int) bool { return left[i].id < left[j].id })
	sort.Slice(right, func(i, j int) bool { return right[i].id < right[j].id })

	side := func(terms []term) string {
		parts := make([]string, len(terms))
		for i, t := range terms {
			if t.coeff == 1 {
				parts[i] = t.id
			} else {
				parts[i] = fmt.Sprintf("%g %s", t.coeff, t.id)
			}
		}
		return strings.Join(parts, " + ")
	}

	arrow := "->"
	if r.LowerBound < 0 {
		arrow = "<=>"
	}
	return strings.TrimSpace(side(left) + " " + arrow + " " + side(right))
}
