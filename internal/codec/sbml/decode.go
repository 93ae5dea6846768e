// Package sbml implements the SBML codec. Level 3 Version 1 documents with
// the fbc extension (v1 or v2) are the primary target; Level 2 documents are
// accepted through a compatibility path that maps kinetic-law flux bounds
// and notes-based gene associations onto the same canonical fields. Encode
// always produces Level 3 Version 1 with fbc v2 and never emits legacy
// notes.
package sbml

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"regexp"
	"strconv"
	"strings"

	"metaflux/internal/codec/core"
	"metaflux/internal/sbmlid"
	"metaflux/pkg/model"
)

const (
	fbcV1NS = "http://www.sbml.org/sbml/level3/version1/fbc/version1"
	fbcV2NS = "http://www.sbml.org/sbml/level3/version1/fbc/version2"

	defaultLowerBound = -1000
	defaultUpperBound = 1000
)

// Codec reads and writes SBML documents.
type Codec struct {
	ids *sbmlid.Normalizer
}

// New returns an SBML codec using the strict identifier normalizer.
func New() *Codec { return &Codec{ids: sbmlid.New()} }

// Format identifies the codec.
func (*Codec) Format() core.Format { return core.FormatSBML }

type xmlDocument struct {
	XMLName xml.Name   `xml:"sbml"`
	Level   int        `xml:"level,attr"`
	Version int        `xml:"version,attr"`
	Attrs   []xml.Attr `xml:",any,attr"`
	Model   xmlModel   `xml:"model"`
}

type xmlModel struct {
	ID           string           `xml:"id,attr"`
	Name         string           `xml:"name,attr"`
	Annotation   *xmlAnnotation   `xml:"annotation"`
	Compartments []xmlCompartment `xml:"listOfCompartments>compartment"`
	Species      []xmlSpecies     `xml:"listOfSpecies>species"`
	Reactions    []xmlReaction    `xml:"listOfReactions>reaction"`
	Parameters   []xmlParameter   `xml:"listOfParameters>parameter"`
	GeneProducts []xmlGeneProduct `xml:"listOfGeneProducts>geneProduct"`
}

type xmlNotes struct {
	Inner string `xml:",innerxml"`
}

type xmlAnnotation struct {
	Inner string `xml:",innerxml"`
}

type xmlCompartment struct {
	ID   string `xml:"id,attr"`
	Name string `xml:"name,attr"`
}

type xmlSpecies struct {
	ID                string         `xml:"id,attr"`
	Name              string         `xml:"name,attr"`
	Compartment       string         `xml:"compartment,attr"`
	BoundaryCondition bool           `xml:"boundaryCondition,attr"`
	Charge            *int           `xml:"charge,attr"` // fbc:charge on L3, plain attribute on L2
	ChemicalFormula   string         `xml:"chemicalFormula,attr"`
	Notes             *xmlNotes      `xml:"notes"`
	Annotation        *xmlAnnotation `xml:"annotation"`
}

type xmlReaction struct {
	ID             string          `xml:"id,attr"`
	Name           string          `xml:"name,attr"`
	Reversible     *bool           `xml:"reversible,attr"`
	LowerFluxBound string          `xml:"lowerFluxBound,attr"`
	UpperFluxBound string          `xml:"upperFluxBound,attr"`
	Reactants      []xmlSpeciesRef `xml:"listOfReactants>speciesReference"`
	Products       []xmlSpeciesRef `xml:"listOfProducts>speciesReference"`
	KineticLaw     *xmlKineticLaw  `xml:"kineticLaw"`
	GeneAssoc      *xmlAssocNode   `xml:"geneProductAssociation"`
	Notes          *xmlNotes       `xml:"notes"`
	Annotation     *xmlAnnotation  `xml:"annotation"`
}

type xmlSpeciesRef struct {
	Species       string   `xml:"species,attr"`
	Stoichiometry *float64 `xml:"stoichiometry,attr"`
}

type xmlKineticLaw struct {
	Parameters []xmlParameter `xml:"listOfParameters>parameter"`
}

type xmlParameter struct {
	ID    string  `xml:"id,attr"`
	Name  string  `xml:"name,attr"`
	Value float64 `xml:"value,attr"`
}

type xmlGeneProduct struct {
	ID   string `xml:"id,attr"`
	Name string `xml:"name,attr"`
}

// xmlAssocNode covers geneProductAssociation and the nested fbc:and/fbc:or
// operators. Children keep document order so rules round trip verbatim; a
// leaf geneProductRef carries gene, operator nodes carry op and children.
type xmlAssocNode struct {
	op       string
	gene     string
	children []xmlAssocNode
}

// UnmarshalXML accumulates operator children in document order. The struct
// tag decoder splits them by element name, which loses the ordering.
func (n *xmlAssocNode) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	if start.Name.Local == "geneProductRef" {
		for _, attr := range start.Attr {
			if attr.Name.Local == "geneProduct" {
				n.gene = attr.Value
			}
		}
		return d.Skip()
	}
	n.op = start.Name.Local
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "geneProductRef", "and", "or":
				var child xmlAssocNode
				if err := child.UnmarshalXML(d, t); err != nil {
					return err
				}
				n.children = append(n.children, child)
			default:
				if err := d.Skip(); err != nil {
					return err
				}
			}
		case xml.EndElement:
			return nil
		}
	}
}

// Decode parses an SBML document into the canonical model.
func (c *Codec) Decode(ctx context.Context, source string) (*model.Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(source)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", core.ErrFileNotFound, source)
	}
	if err != nil {
		return nil, err
	}
	var doc xmlDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, core.Malformed(core.FormatSBML, "parse document", err)
	}
	fbcVersion, err := detectFBC(doc.Attrs)
	if err != nil {
		return nil, err
	}
	legacy := doc.Level < 3
	switch {
	case doc.Level == 3 && doc.Version == 1:
	case doc.Level == 2 && doc.Version >= 1 && doc.Version <= 5:
	default:
		return nil, &core.UnsupportedSBMLVersionError{Level: doc.Level, Version: doc.Version, FBCVersion: fbcVersion}
	}

	m, err := c.buildModel(&doc.Model, legacy)
	if err != nil {
		return nil, err
	}
	c.ids.Strip(m)
	return m, nil
}

func detectFBC(attrs []xml.Attr) (int, error) {
	for _, attr := range attrs {
		if attr.Name.Space != "xmlns" && attr.Name.Local != "xmlns" {
			continue
		}
		switch attr.Value {
		case fbcV1NS:
			return 1, nil
		case fbcV2NS:
			return 2, nil
		default:
			if strings.Contains(attr.Value, "/fbc/version") {
				return 0, &core.UnsupportedSBMLVersionError{Level: 3, Version: 1, FBCVersion: parseTrailingVersion(attr.Value)}
			}
		}
	}
	return 0, nil
}

func parseTrailingVersion(ns string) int {
	idx := strings.LastIndex(ns, "version")
	if idx < 0 {
		return 0
	}
	v, _ := strconv.Atoi(ns[idx+len("version"):])
	return v
}

func (c *Codec) buildModel(src *xmlModel, legacy bool) (*model.Model, error) {
	m := &model.Model{ID: src.ID, Name: src.Name}
	if src.Annotation != nil {
		m.Annotations = parseCVTerms(src.Annotation.Inner)
	}

	if len(src.Compartments) > 0 {
		m.Compartments = make(map[string]string, len(src.Compartments))
		for _, comp := range src.Compartments {
			m.Compartments[comp.ID] = comp.Name
		}
	}

	params := make(map[string]float64, len(src.Parameters))
	for _, p := range src.Parameters {
		params[p.ID] = p.Value
	}

	for _, sp := range src.Species {
		met := model.Metabolite{
			ID:          sp.ID,
			Name:        sp.Name,
			Compartment: sp.Compartment,
			Formula:     sp.ChemicalFormula,
			Boundary:    sp.BoundaryCondition,
		}
		notes := parseNotes(sp.Notes)
		// Per-field precedence: structured fields win over notes, except the
		// legacy charge on Level 2 documents which wins over the attribute.
		met.Charge = resolveCharge(sp.Charge, notes, legacy)
		if met.Formula == "" {
			met.Formula = notes["FORMULA"]
		}
		if sp.Annotation != nil {
			met.Annotations = parseCVTerms(sp.Annotation.Inner)
		}
		m.Metabolites = append(m.Metabolites, met)
	}

	geneSeen := make(map[string]struct{})
	for _, gp := range src.GeneProducts {
		// fbc:label is display shorthand, not a name; only fbc:name maps.
		m.Genes = append(m.Genes, model.Gene{ID: gp.ID, Name: gp.Name})
		geneSeen[gp.ID] = struct{}{}
	}

	for _, rxn := range src.Reactions {
		out := model.Reaction{ID: rxn.ID, Name: rxn.Name}
		notes := parseNotes(rxn.Notes)

		out.Stoichiometry = make(map[string]float64, len(rxn.Reactants)+len(rxn.Products))
		for _, ref := range rxn.Reactants {
			out.Stoichiometry[ref.Species] -= refCoefficient(ref)
		}
		for _, ref := range rxn.Products {
			out.Stoichiometry[ref.Species] += refCoefficient(ref)
		}
		for id, coeff := range out.Stoichiometry {
			if coeff == 0 {
				delete(out.Stoichiometry, id)
			}
		}

		out.LowerBound, out.UpperBound = resolveBounds(&rxn, params)

		switch {
		case rxn.GeneAssoc != nil:
			out.GeneRule = assocToRule(rxn.GeneAssoc)
		case notes["GENE_ASSOCIATION"] != "":
			out.GeneRule = notes["GENE_ASSOCIATION"]
		case notes["GENE ASSOCIATION"] != "":
			out.GeneRule = notes["GENE ASSOCIATION"]
		}
		out.Subsystem = notes["SUBSYSTEM"]
		if rxn.Annotation != nil {
			out.Annotations = parseCVTerms(rxn.Annotation.Inner)
		}

		// Legacy documents declare genes only inside association notes.
		if out.GeneRule != "" {
			if rule, err := model.ParseGeneRule(out.GeneRule); err == nil {
				for _, gene := range rule.Genes() {
					if _, ok := geneSeen[gene]; !ok {
						geneSeen[gene] = struct{}{}
						m.Genes = append(m.Genes, model.Gene{ID: gene})
					}
				}
			}
		}
		m.Reactions = append(m.Reactions, out)
	}
	return m, nil
}

func refCoefficient(ref xmlSpeciesRef) float64 {
	if ref.Stoichiometry == nil {
		return 1
	}
	return *ref.Stoichiometry
}

func resolveCharge(attr *int, notes map[string]string, legacy bool) *int {
	var fromNotes *int
	if raw, ok := notes["CHARGE"]; ok {
		if v, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
			fromNotes = &v
		}
	}
	if legacy {
		if fromNotes != nil {
			return fromNotes
		}
		return attr
	}
	if attr != nil {
		return attr
	}
	return fromNotes
}

func resolveBounds(rxn *xmlReaction, params map[string]float64) (lb, ub float64) {
	lb, ub = defaultLowerBound, defaultUpperBound
	if rxn.Reversible != nil && !*rxn.Reversible {
		lb = 0
	}
	if rxn.KineticLaw != nil {
		for _, p := range rxn.KineticLaw.Parameters {
			switch {
			case p.ID == "LOWER_BOUND" || p.Name == "LOWER_BOUND":
				lb = p.Value
			case p.ID == "UPPER_BOUND" || p.Name == "UPPER_BOUND":
				ub = p.Value
			}
		}
	}
	if rxn.LowerFluxBound != "" {
		if v, ok := params[rxn.LowerFluxBound]; ok {
			lb = v
		}
	}
	if rxn.UpperFluxBound != "" {
		if v, ok := params[rxn.UpperFluxBound]; ok {
			ub = v
		}
	}
	if math.IsNaN(lb) {
		lb = defaultLowerBound
	}
	if math.IsNaN(ub) {
		ub = defaultUpperBound
	}
	return lb, ub
}

func assocToRule(node *xmlAssocNode) string {
	if len(node.children) != 1 {
		return ""
	}
	child := &node.children[0]
	if child.gene != "" {
		return child.gene
	}
	return joinAssoc(child, "")
}

func joinAssoc(node *xmlAssocNode, parentOp string) string {
	parts := make([]string, 0, len(node.children))
	for i := range node.children {
		child := &node.children[i]
		if child.gene != "" {
			parts = append(parts, child.gene)
			continue
		}
		parts = append(parts, joinAssoc(child, node.op))
	}
	joined := strings.Join(parts, " "+node.op+" ")
	if node.op == "or" && parentOp == "and" && len(parts) > 1 {
		return "(" + joined + ")"
	}
	return joined
}

var (
	notesLinePattern = regexp.MustCompile(`(?i)<(?:[a-z]+:)?p[^>]*>\s*([A-Z_ ]+?)\s*:\s*(.*?)\s*</(?:[a-z]+:)?p>`)
	cvTermPattern    = regexp.MustCompile(`rdf:resource="https?://identifiers\.org/([^/"]+)/([^"]+)"`)
)

// parseNotes extracts KEY: VALUE lines from an XHTML notes body.
func parseNotes(notes *xmlNotes) map[string]string {
	if notes == nil {
		return nil
	}
	out := make(map[string]string)
	for _, match := range notesLinePattern.FindAllStringSubmatch(notes.Inner, -1) {
		key := strings.ToUpper(strings.TrimSpace(match[1]))
		if _, exists := out[key]; !exists {
			out[key] = strings.TrimSpace(match[2])
		}
	}
	return out
}

// parseCVTerms pulls identifiers.org resource URIs from an RDF annotation
// block. Anything else in the annotation has no canonical slot and is
// dropped; that loss is deliberate and silent.
func parseCVTerms(inner string) model.Annotations {
	matches := cvTermPattern.FindAllStringSubmatch(inner, -1)
	if len(matches) == 0 {
		return nil
	}
	ann := make(model.Annotations, len(matches))
	for _, match := range matches {
		ann = ann.Add(match[1], match[2])
	}
	return ann
}
