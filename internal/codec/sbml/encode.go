package sbml

import (
	"context"
	"encoding/xml"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"metaflux/pkg/model"
)

const (
	sbmlL3NS  = "http://www.sbml.org/sbml/level3/version1/core"
	xmlHeader = xml.Header
)

type encDocument struct {
	XMLName     xml.Name `xml:"sbml"`
	XMLNS       string   `xml:"xmlns,attr"`
	XMLNSFBC    string   `xml:"xmlns:fbc,attr"`
	Level       int      `xml:"level,attr"`
	Version     int      `xml:"version,attr"`
	FBCRequired bool     `xml:"fbc:required,attr"`
	Model       encModel `xml:"model"`
}

type encModel struct {
	ID           string           `xml:"id,attr,omitempty"`
	Name         string           `xml:"name,attr,omitempty"`
	FBCStrict    bool             `xml:"fbc:strict,attr"`
	Annotation   *encAnnotation   `xml:"annotation,omitempty"`
	Compartments []encCompartment `xml:"listOfCompartments>compartment"`
	Species      []encSpecies     `xml:"listOfSpecies>species"`
	Parameters   []encParameter   `xml:"listOfParameters>parameter"`
	Reactions    []encReaction    `xml:"listOfReactions>reaction"`
	GeneProducts []encGeneProduct `xml:"fbc:listOfGeneProducts>fbc:geneProduct"`
}

type encCompartment struct {
	ID       string `xml:"id,attr"`
	Name     string `xml:"name,attr,omitempty"`
	Constant bool   `xml:"constant,attr"`
}

type encSpecies struct {
	ID                    string         `xml:"id,attr"`
	Name                  string         `xml:"name,attr,omitempty"`
	Compartment           string         `xml:"compartment,attr,omitempty"`
	BoundaryCondition     bool           `xml:"boundaryCondition,attr"`
	HasOnlySubstanceUnits bool           `xml:"hasOnlySubstanceUnits,attr"`
	Constant              bool           `xml:"constant,attr"`
	Charge                *int           `xml:"fbc:charge,attr,omitempty"`
	ChemicalFormula       string         `xml:"fbc:chemicalFormula,attr,omitempty"`
	Annotation            *encAnnotation `xml:"annotation,omitempty"`
}

type encParameter struct {
	ID       string  `xml:"id,attr"`
	Value    float64 `xml:"value,attr"`
	Constant bool    `xml:"constant,attr"`
}

type encReaction struct {
	ID         string          `xml:"id,attr"`
	Name       string          `xml:"name,attr,omitempty"`
	Reversible bool            `xml:"reversible,attr"`
	Fast       bool            `xml:"fast,attr"`
	LowerBound string          `xml:"fbc:lowerFluxBound,attr"`
	UpperBound string          `xml:"fbc:upperFluxBound,attr"`
	Annotation *encAnnotation  `xml:"annotation,omitempty"`
	GeneAssoc  *encGeneAssoc   `xml:"fbc:geneProductAssociation,omitempty"`
	Reactants  []encSpeciesRef `xml:"listOfReactants>speciesReference"`
	Products   []encSpeciesRef `xml:"listOfProducts>speciesReference"`
}

type encSpeciesRef struct {
	Species       string  `xml:"species,attr"`
	Stoichiometry float64 `xml:"stoichiometry,attr"`
	Constant      bool    `xml:"constant,attr"`
}

type encGeneProduct struct {
	ID    string `xml:"fbc:id,attr"`
	Label string `xml:"fbc:label,attr"`
	Name  string `xml:"fbc:name,attr,omitempty"`
}

type encGeneAssoc struct {
	Child encAssocNode
}

type encAssocNode struct {
	XMLName     xml.Name
	GeneProduct string `xml:"fbc:geneProduct,attr,omitempty"`
	Children    []encAssocNode
}

type encAnnotation struct {
	Inner string `xml:",innerxml"`
}

// MarshalXML writes the association wrapper with its single operator or
// reference child.
func (a *encGeneAssoc) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	if err := e.Encode(a.Child); err != nil {
		return err
	}
	return e.EncodeToken(start.End())
}

// Encode writes the model as SBML Level 3 Version 1 with fbc v2. Identifier
// prefixes and compartment suffixes are re-applied; notes are never emitted.
func (c *Codec) Encode(ctx context.Context, m *model.Model, dest string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	flat := c.ids.Apply(m)

	doc := encDocument{
		XMLNS:    sbmlL3NS,
		XMLNSFBC: fbcV2NS,
		Level:    3,
		Version:  1,
		Model: encModel{
			ID:         flat.ID,
			Name:       flat.Name,
			FBCStrict:  true,
			Annotation: cvTermsAnnotation(flat.Annotations),
		},
	}

	compIDs := make([]string, 0, len(flat.Compartments))
	for id := range flat.Compartments {
		compIDs = append(compIDs, id)
	}
	sort.Strings(compIDs)
	for _, id := range compIDs {
		doc.Model.Compartments = append(doc.Model.Compartments, encCompartment{ID: id, Name: flat.Compartments[id], Constant: true})
	}

	for _, met := range flat.Metabolites {
		doc.Model.Species = append(doc.Model.Species, encSpecies{
			ID:                met.ID,
			Name:              met.Name,
			Compartment:       met.Compartment,
			BoundaryCondition: met.Boundary,
			Charge:            met.Charge,
			ChemicalFormula:   met.Formula,
			Annotation:        cvTermsAnnotation(met.Annotations),
		})
	}

	bounds := map[float64]string{}
	boundID := func(v float64) string {
		if id, ok := bounds[v]; ok {
			return id
		}
		id := "bnd_" + strings.NewReplacer("-", "minus_", ".", "_", "+", "plus_").Replace(strconv.FormatFloat(v, 'g', -1, 64))
		bounds[v] = id
		return id
	}

	for _, rxn := range flat.Reactions {
		enc := encReaction{
			ID:         rxn.ID,
			Name:       rxn.Name,
			Reversible: rxn.LowerBound < 0,
			LowerBound: boundID(rxn.LowerBound),
			UpperBound: boundID(rxn.UpperBound),
			Annotation: cvTermsAnnotation(rxn.Annotations),
		}
		ids := make([]string, 0, len(rxn.Stoichiometry))
		for id := range rxn.Stoichiometry {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			coeff := rxn.Stoichiometry[id]
			ref := encSpeciesRef{Species: id, Constant: true}
			if coeff < 0 {
				ref.Stoichiometry = -coeff
				enc.Reactants = append(enc.Reactants, ref)
			} else {
				ref.Stoichiometry = coeff
				enc.Products = append(enc.Products, ref)
			}
		}
		if rxn.GeneRule != "" {
			rule, err := model.ParseGeneRule(rxn.GeneRule)
			if err != nil {
				return fmt.Errorf("reaction %s: gene rule: %w", rxn.ID, err)
			}
			if root, ok := rule.Root(); ok {
				enc.GeneAssoc = &encGeneAssoc{Child: assocFromRule(root)}
			}
		}
		doc.Model.Reactions = append(doc.Model.Reactions, enc)
	}

	paramValues := make([]float64, 0, len(bounds))
	for v := range bounds {
		paramValues = append(paramValues, v)
	}
	sort.Float64s(paramValues)
	for _, v := range paramValues {
		doc.Model.Parameters = append(doc.Model.Parameters, encParameter{ID: bounds[v], Value: v, Constant: true})
	}

	for _, gene := range flat.Genes {
		label := strings.TrimPrefix(gene.ID, "G_")
		doc.Model.GeneProducts = append(doc.Model.GeneProducts, encGeneProduct{ID: gene.ID, Label: label, Name: gene.Name})
	}

	payload, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(dest, append([]byte(xmlHeader), append(payload, '\n')...), 0o644)
}

func assocFromRule(node model.GeneRuleNode) encAssocNode {
	if node.Gene != "" {
		return encAssocNode{
			XMLName:     xml.Name{Local: "fbc:geneProductRef"},
			GeneProduct: node.Gene,
		}
	}
	out := encAssocNode{XMLName: xml.Name{Local: "fbc:" + node.Op}}
	for _, child := range node.Children {
		out.Children = append(out.Children, assocFromRule(child))
	}
	return out
}

// cvTermsAnnotation renders annotations as an RDF bag of identifiers.org
// resource URIs, the only structured annotation form the decoder recognizes.
func cvTermsAnnotation(ann model.Annotations) *encAnnotation {
	if len(ann) == 0 {
		return nil
	}
	keys := make([]string, 0, len(ann))
	for key := range ann {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(`<rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#" xmlns:bqbiol="http://biomodels.net/biology-qualifiers/"><rdf:Description><bqbiol:is><rdf:Bag>`)
	for _, key := range keys {
		for _, value := range ann[key] {
			b.WriteString(`<rdf:li rdf:resource="http://identifiers.org/` + key + `/` + value + `"/>`)
		}
	}
	b.WriteString(`</rdf:Bag></bqbiol:is></rdf:Description></rdf:RDF>`)
	return &encAnnotation{Inner: b.String()}
}
