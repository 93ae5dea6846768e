package model

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParseReactionFormula parses a human-readable reaction equation of the form
// "2 atp_c + glc_D_c -> adp_c + g6p_c" into a stoichiometry map, reporting
// whether the arrow marks the reaction reversible. It is the inverse of
// Reaction.FormulaString; either side may be empty for exchange reactions.
func ParseReactionFormula(formula string) (map[string]float64, bool, error) {
	var left, right string
	var reversible bool
	switch {
	case containsArrow(formula, "<=>", &left, &right),
		containsArrow(formula, "<->", &left, &right):
		reversible = true
	case containsArrow(formula, "->", &left, &right),
		containsArrow(formula, "=>", &left, &right):
	default:
		return nil, false, fmt.Errorf("reaction formula %q: no arrow", formula)
	}

	stoich := make(map[string]float64)
	if err := parseSide(left, -1, stoich); err != nil {
		return nil, false, err
	}
	if err := parseSide(right, 1, stoich); err != nil {
		return nil, false, err
	}
	if len(stoich) == 0 {
		return nil, false, fmt.Errorf("reaction formula %q: no participants", formula)
	}
	return stoich, reversible, nil
}

func containsArrow(formula, arrow string, left, right *string) bool {
	idx := strings.Index(formula, arrow)
	if idx < 0 {
		return false
	}
	*left = formula[:idx]
	*right = formula[idx+len(arrow):]
	return true
}

func parseSide(side string, sign float64, stoich map[string]float64) error {
	side = strings.TrimSpace(side)
	if side == "" {
		return nil
	}
	for _, term := range strings.Split(side, "+") {
		fields := strings.Fields(term)
		var id string
		coeff := 1.0
		switch len(fields) {
		case 1:
			id = fields[0]
		case 2:
			v, err := strconv.ParseFloat(fields[0], 64)
			if err != nil {
				return fmt.Errorf("reaction formula term %q: coefficient: %w", strings.TrimSpace(term), err)
			}
			coeff = v
			id = fields[1]
		default:
			return fmt.Errorf("reaction formula term %q: expected [coefficient] metabolite", strings.TrimSpace(term))
		}
		if coeff <= 0 || math.IsInf(coeff, 0) || math.IsNaN(coeff) {
			return fmt.Errorf("reaction formula term %q: coefficient must be positive and finite", strings.TrimSpace(term))
		}
		stoich[id] += sign * coeff
		if stoich[id] == 0 {
			delete(stoich, id)
		}
	}
	return nil
}
