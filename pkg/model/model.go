// Package model defines the canonical in-memory representation of a
// constraint-based metabolic model that every codec translates to and from.
package model

// Annotations is a multi-valued mapping of annotation keys to values.
// Keys are free-form (typically MIRIAM-style qualifiers or column headers
// carried over from tabular sources).
type Annotations map[string][]string

// Metabolite is a single species participating in reactions.
type Metabolite struct {
	ID          string      `json:"id"`
	Name        string      `json:"name,omitempty"`
	Compartment string      `json:"compartment,omitempty"`
	Charge      *int        `json:"charge,omitempty"`
	Formula     string      `json:"formula,omitempty"`
	Boundary    bool        `json:"boundary,omitempty"`
	Annotations Annotations `json:"annotations,omitempty"`
}

// Reaction is a stoichiometric conversion between metabolites. Stoichiometry
// maps metabolite IDs to signed coefficients (negative consumes, positive
// produces).
type Reaction struct {
	ID            string             `json:"id"`
	Name          string             `json:"name,omitempty"`
	Stoichiometry map[string]float64 `json:"stoichiometry"`
	LowerBound    float64            `json:"lower_bound"`
	UpperBound    float64            `json:"upper_bound"`
	GeneRule      string             `json:"gene_rule,omitempty"`
	Subsystem     string             `json:"subsystem,omitempty"`
	Annotations   Annotations        `json:"annotations,omitempty"`
}

// Gene is a gene product referenced by gene-reaction rules.
type Gene struct {
	ID          string      `json:"id"`
	Name        string      `json:"name,omitempty"`
	Annotations Annotations `json:"annotations,omitempty"`
}

// Model is the canonical representation shared by all codecs. Collections
// preserve source order; compartments map compartment IDs to display names.
type Model struct {
	ID           string            `json:"id,omitempty"`
	Name         string            `json:"name,omitempty"`
	Metabolites  []Metabolite      `json:"metabolites"`
	Reactions    []Reaction        `json:"reactions"`
	Genes        []Gene            `json:"genes"`
	Compartments map[string]string `json:"compartments,omitempty"`
	Annotations  Annotations       `json:"annotations,omitempty"`

	// Extensions holds fields from lossless container formats that are not
	// part of the canonical schema. They are carried opaquely and re-emitted
	// by codecs that support them; nothing in this package interprets them.
	Extensions map[string][]byte `json:"-"`
}

// FindMetabolite returns the metabolite with the given ID.
func (m *Model) FindMetabolite(id string) (Metabolite, bool) {
	for _, met := range m.Metabolites {
		if met.ID == id {
			return met, true
		}
	}
	return Metabolite{}, false
}

// FindReaction returns the reaction with the given ID.
func (m *Model) FindReaction(id string) (Reaction, bool) {
	for _, rxn := range m.Reactions {
		if rxn.ID == id {
			return rxn, true
		}
	}
	return Reaction{}, false
}

// FindGene returns the gene with the given ID.
func (m *Model) FindGene(id string) (Gene, bool) {
	for _, gene := range m.Genes {
		if gene.ID == id {
			return gene, true
		}
	}
	return Gene{}, false
}

// Clone returns a deep copy sharing no mutable state with the receiver.
func (m *Model) Clone() *Model {
	if m == nil {
		return nil
	}
	dup := &Model{
		ID:          m.ID,
		Name:        m.Name,
		Annotations: m.Annotations.clone(),
	}
	if m.Metabolites != nil {
		dup.Metabolites = make([]Metabolite, len(m.Metabolites))
		for i, met := range m.Metabolites {
			met.Annotations = met.Annotations.clone()
			if met.Charge != nil {
				charge := *met.Charge
				met.Charge = &charge
			}
			dup.Metabolites[i] = met
		}
	}
	if m.Reactions != nil {
		dup.Reactions = make([]Reaction, len(m.Reactions))
		for i, rxn := range m.Reactions {
			rxn.Annotations = rxn.Annotations.clone()
			if rxn.Stoichiometry != nil {
				stoich := make(map[string]float64, len(rxn.Stoichiometry))
				for id, coeff := range rxn.Stoichiometry {
					stoich[id] = coeff
				}
				rxn.Stoichiometry = stoich
			}
			dup.Reactions[i] = rxn
		}
	}
	if m.Genes != nil {
		dup.Genes = make([]Gene, len(m.Genes))
		for i, gene := range m.Genes {
			gene.Annotations = gene.Annotations.clone()
			dup.Genes[i] = gene
		}
	}
	if m.Compartments != nil {
		dup.Compartments = make(map[string]string, len(m.Compartments))
		for id, name := range m.Compartments {
			dup.Compartments[id] = name
		}
	}
	if m.Extensions != nil {
		dup.Extensions = make(map[string][]byte, len(m.Extensions))
		for key, raw := range m.Extensions {
			cp := make([]byte, len(raw))
			copy(cp, raw)
			dup.Extensions[key] = cp
		}
	}
	return dup
}

// Add appends a value under key, preserving insertion order of values.
func (a Annotations) Add(key, value string) Annotations {
	if a == nil {
		a = make(Annotations)
	}
	a[key] = append(a[key], value)
	return a
}

// First returns the first value stored under key, if any.
func (a Annotations) First(key string) (string, bool) {
	values := a[key]
	if len(values) == 0 {
		return "", false
	}
	return values[0], true
}

func (a Annotations) clone() Annotations {
	if a == nil {
		return nil
	}
	out := make(Annotations, len(a))
	for key, values := range a {
		out[key] = append([]string(nil), values...)
	}
	return out
}
