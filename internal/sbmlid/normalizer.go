// Package sbmlid translates between SBML-style flat identifiers and the
// canonical naming used in-memory. SBML documents conventionally prefix
// identifiers by entity type (M_, R_, G_, C_) and append the compartment to
// metabolite ids (M_glc_D_c). The normalizer strips and re-applies those
// conventions as a whole-model decision: a prefix or suffix scheme is only
// honoured when every identifier of that entity type follows it, so a
// mixed-convention document is left untouched rather than half-rewritten.
package sbmlid

import (
	"fmt"
	"strings"

	"metaflux/pkg/model"
)

const (
	metabolitePrefix  = "M_"
	reactionPrefix    = "R_"
	genePrefix        = "G_"
	compartmentPrefix = "C_"
)

// Normalizer applies the whole-model identifier conventions. Threshold is the
// fraction of identifiers that must carry a convention before it is honoured;
// the default of 1.0 is strict all-or-nothing. It is kept configurable in
// case field data turns out to tolerate a small minority of exceptions.
type Normalizer struct {
	Threshold float64
}

// New returns a strict all-or-nothing normalizer.
func New() *Normalizer {
	return &Normalizer{Threshold: 1.0}
}

func (n *Normalizer) threshold() float64 {
	if n == nil || n.Threshold <= 0 {
		return 1.0
	}
	return n.Threshold
}

// Strip removes type prefixes and compartment suffixes from the model's
// identifiers in place, updating all cross-references. Stripping is applied
// per entity type only when the convention holds model-wide.
func (n *Normalizer) Strip(m *model.Model) {
	n.stripCompartmentPrefixes(m)
	metRenames := n.stripPrefix(len(m.Metabolites), metabolitePrefix, func(i int) string { return m.Metabolites[i].ID }, func(i int, id string) { m.Metabolites[i].ID = id })
	n.stripPrefix(len(m.Reactions), reactionPrefix, func(i int) string { return m.Reactions[i].ID }, func(i int, id string) { m.Reactions[i].ID = id })
	geneRenames := n.stripPrefix(len(m.Genes), genePrefix, func(i int) string { return m.Genes[i].ID }, func(i int, id string) { m.Genes[i].ID = id })

	metRenames = mergeRenames(metRenames, n.splitCompartmentSuffixes(m))
	rewriteReferences(m, metRenames, geneRenames)
}

// Apply is the encode-direction inverse: it re-attaches compartment suffixes
// to metabolite ids and prepends the type prefixes, updating all
// cross-references. The input model is not modified; a rewritten clone is
// returned.
func (n *Normalizer) Apply(m *model.Model) *model.Model {
	out := m.Clone()

	metRenames := make(map[string]string, len(out.Metabolites))
	for i, met := range out.Metabolites {
		flat := metabolitePrefix + sanitizeSID(flattenMetaboliteID(met))
		metRenames[met.ID] = flat
		out.Metabolites[i].ID = flat
	}
	for i, rxn := range out.Reactions {
		out.Reactions[i].ID = reactionPrefix + sanitizeSID(rxn.ID)
	}
	geneRenames := make(map[string]string, len(out.Genes))
	for i, gene := range out.Genes {
		flat := genePrefix + sanitizeSID(gene.ID)
		geneRenames[gene.ID] = flat
		out.Genes[i].ID = flat
	}
	if out.Compartments != nil {
		comps := make(map[string]string, len(out.Compartments))
		for id, name := range out.Compartments {
			comps[compartmentPrefix+sanitizeSID(id)] = name
		}
		out.Compartments = comps
	}
	for i, met := range out.Metabolites {
		if met.Compartment != "" {
			out.Metabolites[i].Compartment = compartmentPrefix + sanitizeSID(met.Compartment)
		}
	}
	rewriteReferences(out, metRenames, geneRenames)
	return out
}

// flattenMetaboliteID renders a canonical metabolite id in flat SBML form:
// "glc_D[c]" becomes "glc_D_c", anything else passes through.
func flattenMetaboliteID(met model.Metabolite) string {
	base, comp, ok := SplitBracketed(met.ID)
	if ok {
		return base + "_" + comp
	}
	return met.ID
}

// SplitBracketed splits a compartment-qualified canonical id of the form
// "base[comp]" into its parts.
func SplitBracketed(id string) (base, comp string, ok bool) {
	if !strings.HasSuffix(id, "]") {
		return "", "", false
	}
	open := strings.LastIndex(id, "[")
	if open <= 0 {
		return "", "", false
	}
	base = id[:open]
	comp = id[open+1 : len(id)-1]
	if base == "" || comp == "" {
		return "", "", false
	}
	return base, comp, true
}

func (n *Normalizer) stripPrefix(count int, prefix string, get func(int) string, set func(int, string)) map[string]string {
	if count == 0 {
		return nil
	}
	carrying := 0
	for i := 0; i < count; i++ {
		if strings.HasPrefix(get(i), prefix) {
			carrying++
		}
	}
	if float64(carrying) < n.threshold()*float64(count) {
		return nil
	}
	renames := make(map[string]string, count)
	for i := 0; i < count; i++ {
		old := get(i)
		if !strings.HasPrefix(old, prefix) {
			continue
		}
		stripped := strings.TrimPrefix(old, prefix)
		renames[old] = stripped
		set(i, stripped)
	}
	return renames
}

func (n *Normalizer) stripCompartmentPrefixes(m *model.Model) {
	if len(m.Compartments) == 0 {
		return
	}
	carrying := 0
	for id := range m.Compartments {
		if strings.HasPrefix(id, compartmentPrefix) {
			carrying++
		}
	}
	if float64(carrying) < n.threshold()*float64(len(m.Compartments)) {
		return
	}
	comps := make(map[string]string, len(m.Compartments))
	renamed := make(map[string]string, len(m.Compartments))
	for id, name := range m.Compartments {
		stripped := strings.TrimPrefix(id, compartmentPrefix)
		comps[stripped] = name
		renamed[id] = stripped
	}
	m.Compartments = comps
	for i, met := range m.Metabolites {
		if stripped, ok := renamed[met.Compartment]; ok {
			m.Metabolites[i].Compartment = stripped
		}
	}
}

// splitCompartmentSuffixes rewrites "glc_D_c" into "glc_D[c]" when every
// non-boundary metabolite carries a declared-compartment suffix. Boundary
// species are exempt from the census and from rewriting.
func (n *Normalizer) splitCompartmentSuffixes(m *model.Model) map[string]string {
	if len(m.Metabolites) == 0 || len(m.Compartments) == 0 {
		return nil
	}
	eligible, carrying := 0, 0
	for _, met := range m.Metabolites {
		if met.Boundary {
			continue
		}
		eligible++
		if _, _, ok := suffixSplit(met.ID, m.Compartments); ok {
			carrying++
		}
	}
	if eligible == 0 || float64(carrying) < n.threshold()*float64(eligible) {
		return nil
	}
	renames := make(map[string]string, eligible)
	for i, met := range m.Metabolites {
		if met.Boundary {
			continue
		}
		base, comp, ok := suffixSplit(met.ID, m.Compartments)
		if !ok {
			continue
		}
		qualified := base + "[" + comp + "]"
		renames[met.ID] = qualified
		m.Metabolites[i].ID = qualified
		if m.Metabolites[i].Compartment == "" {
			m.Metabolites[i].Compartment = comp
		}
	}
	return renames
}

func suffixSplit(id string, compartments map[string]string) (base, comp string, ok bool) {
	idx := strings.LastIndex(id, "_")
	if idx <= 0 || idx == len(id)-1 {
		return "", "", false
	}
	comp = id[idx+1:]
	if _, declared := compartments[comp]; !declared {
		return "", "", false
	}
	return id[:idx], comp, true
}

// mergeRenames composes two rename passes so references still keyed by the
// original ids resolve straight to the final form.
func mergeRenames(first, second map[string]string) map[string]string {
	if len(first) == 0 {
		return second
	}
	if len(second) == 0 {
		return first
	}
	out := make(map[string]string, len(first)+len(second))
	consumed := make(map[string]struct{}, len(second))
	for orig, mid := range first {
		if final, ok := second[mid]; ok {
			out[orig] = final
			consumed[mid] = struct{}{}
			continue
		}
		out[orig] = mid
	}
	for mid, final := range second {
		if _, ok := consumed[mid]; !ok {
			out[mid] = final
		}
	}
	return out
}

func rewriteReferences(m *model.Model, metRenames, geneRenames map[string]string) {
	if len(metRenames) > 0 {
		for i, rxn := range m.Reactions {
			if len(rxn.Stoichiometry) == 0 {
				continue
			}
			stoich := make(map[string]float64, len(rxn.Stoichiometry))
			for id, coeff := range rxn.Stoichiometry {
				if renamed, ok := metRenames[id]; ok {
					id = renamed
				}
				stoich[id] = coeff
			}
			m.Reactions[i].Stoichiometry = stoich
		}
	}
	if len(geneRenames) > 0 {
		for i, rxn := range m.Reactions {
			if rxn.GeneRule == "" {
				continue
			}
			m.Reactions[i].GeneRule = rewriteGeneRule(rxn.GeneRule, geneRenames)
		}
	}
}

func rewriteGeneRule(rule string, renames map[string]string) string {
	parsed, err := model.ParseGeneRule(rule)
	if err != nil {
		return rule
	}
	out := rule
	for _, gene := range parsed.Genes() {
		if renamed, ok := renames[gene]; ok {
			out = replaceToken(out, gene, renamed)
		}
	}
	return out
}

// replaceToken substitutes whole-token occurrences only, so renaming G_b1
// does not corrupt G_b12.
func replaceToken(s, old, repl string) string {
	var b strings.Builder
	for len(s) > 0 {
		idx := strings.Index(s, old)
		if idx < 0 {
			b.WriteString(s)
			break
		}
		before := idx == 0 || isBoundary(s[idx-1])
		afterIdx := idx + len(old)
		after := afterIdx >= len(s) || isBoundary(s[afterIdx])
		b.WriteString(s[:idx])
		if before && after {
			b.WriteString(repl)
		} else {
			b.WriteString(old)
		}
		s = s[afterIdx:]
	}
	return b.String()
}

func isBoundary(c byte) bool {
	return c == ' ' || c == '(' || c == ')' || c == '&' || c == '|'
}

// sanitizeSID maps arbitrary canonical id characters onto the SBML SId
// grammar (letters, digits, underscore). Brackets from compartment-qualified
// ids are handled by flattenMetaboliteID before this runs.
func sanitizeSID(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		case r == '-':
			b.WriteString("_DASH_")
		default:
			b.WriteString(fmt.Sprintf("_%d_", r))
		}
	}
	return b.String()
}
