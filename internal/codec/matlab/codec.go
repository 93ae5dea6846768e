package matlab

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"metaflux/internal/codec/core"
	"metaflux/pkg/model"
)

// Codec reads and writes models as MAT-file struct containers.
type Codec struct{}

// New returns the MAT-file codec.
func New() *Codec { return &Codec{} }

// Format identifies the codec.
func (*Codec) Format() core.Format { return core.FormatMATLAB }

// canonicalFields is the set of struct fields interpreted by this codec.
// Anything else survives decode→encode untouched.
var canonicalFields = map[string]struct{}{
	"modelID": {}, "description": {},
	"rxns": {}, "mets": {}, "genes": {},
	"S": {}, "lb": {}, "ub": {},
	"grRules": {}, "rules": {}, "subSystems": {}, "rxnNames": {},
	"metNames": {}, "metFormulas": {}, "metCharges": {}, "metComps": {}, "metBoundary": {},
	"comps": {}, "compNames": {}, "geneNames": {},
	"modelAnnotations": {}, "rxnAnnotations": {}, "metAnnotations": {}, "geneAnnotations": {},
}

// Decode parses a MAT-file and rebuilds the canonical model from the first
// struct array it contains.
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
	elements, err := parseFile(data)
	if err != nil {
		return nil, core.Malformed(core.FormatMATLAB, "parse container", err)
	}
	var root *matElement
	for _, el := range elements {
		if el.class == mxSTRUCT {
			root = el
			break
		}
	}
	if root == nil {
		return nil, core.Malformed(core.FormatMATLAB, "no model struct in file", nil)
	}
	m, err := c.fromStruct(root)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (c *Codec) fromStruct(root *matElement) (*model.Model, error) {
	get := func(name string) *matElement { return root.fields[name] }
	strings1 := func(name string) ([]string, error) {
		el := get(name)
		if el == nil {
			return nil, nil
		}
		return el.cellStrings()
	}

	rxns, err := strings1("rxns")
	if err != nil {
		return nil, core.Malformed(core.FormatMATLAB, "rxns", err)
	}
	mets, err := strings1("mets")
	if err != nil {
		return nil, core.Malformed(core.FormatMATLAB, "mets", err)
	}
	if get("rxns") == nil || get("mets") == nil || get("S") == nil {
		return nil, &model.SchemaViolationError{Violations: []string{"model struct lacks rxns, mets, or S"}}
	}

	m := &model.Model{}
	if el := get("modelID"); el != nil {
		m.ID = el.str
	}
	if el := get("description"); el != nil {
		m.Name = el.str
	}

	genes, err := strings1("genes")
	if err != nil {
		return nil, core.Malformed(core.FormatMATLAB, "genes", err)
	}
	geneNames, _ := strings1("geneNames")
	geneAnn, err := annotationsColumn(get("geneAnnotations"), len(genes))
	if err != nil {
		return nil, core.Malformed(core.FormatMATLAB, "geneAnnotations", err)
	}
	for i, id := range genes {
		gene := model.Gene{ID: id}
		if i < len(geneNames) {
			gene.Name = geneNames[i]
		}
		if geneAnn != nil {
			gene.Annotations = geneAnn[i]
		}
		m.Genes = append(m.Genes, gene)
	}

	metNames, _ := strings1("metNames")
	metFormulas, _ := strings1("metFormulas")
	metComps, _ := strings1("metComps")
	metAnn, err := annotationsColumn(get("metAnnotations"), len(mets))
	if err != nil {
		return nil, core.Malformed(core.FormatMATLAB, "metAnnotations", err)
	}
	var charges, boundary []float64
	if el := get("metCharges"); el != nil {
		charges = el.num
	}
	if el := get("metBoundary"); el != nil {
		boundary = el.num
	}
	for i, id := range mets {
		met := model.Metabolite{ID: id}
		if i < len(metNames) {
			met.Name = metNames[i]
		}
		if i < len(metFormulas) {
			met.Formula = metFormulas[i]
		}
		if i < len(metComps) {
			met.Compartment = metComps[i]
		}
		if i < len(charges) && !math.IsNaN(charges[i]) {
			charge := int(math.Round(charges[i]))
			met.Charge = &charge
		}
		if i < len(boundary) && boundary[i] != 0 {
			met.Boundary = true
		}
		if metAnn != nil {
			met.Annotations = metAnn[i]
		}
		m.Metabolites = append(m.Metabolites, met)
	}

	stoich, err := stoichiometryFromSparse(get("S"), mets, len(rxns))
	if err != nil {
		return nil, err
	}
	lb, ub := numColumn(get("lb")), numColumn(get("ub"))
	grRules, _ := strings1("grRules")
	if grRules == nil {
		if rules, _ := strings1("rules"); rules != nil {
			grRules = make([]string, len(rules))
			for i, r := range rules {
				grRules[i] = expandIndexRule(r, genes)
			}
		}
	}
	subSystems, _ := strings1("subSystems")
	rxnNames, _ := strings1("rxnNames")
	rxnAnn, err := annotationsColumn(get("rxnAnnotations"), len(rxns))
	if err != nil {
		return nil, core.Malformed(core.FormatMATLAB, "rxnAnnotations", err)
	}
	for j, id := range rxns {
		rxn := model.Reaction{ID: id, Stoichiometry: stoich[j]}
		if j < len(lb) {
			rxn.LowerBound = lb[j]
		}
		if j < len(ub) {
			rxn.UpperBound = ub[j]
		}
		if j < len(grRules) {
			rxn.GeneRule = grRules[j]
		}
		if j < len(subSystems) {
			rxn.Subsystem = subSystems[j]
		}
		if j < len(rxnNames) {
			rxn.Name = rxnNames[j]
		}
		if rxnAnn != nil {
			rxn.Annotations = rxnAnn[j]
		}
		m.Reactions = append(m.Reactions, rxn)
	}

	comps, _ := strings1("comps")
	compNames, _ := strings1("compNames")
	if len(comps) > 0 {
		m.Compartments = make(map[string]string, len(comps))
		for i, id := range comps {
			name := ""
			if i < len(compNames) {
				name = compNames[i]
			}
			m.Compartments[id] = name
		}
	}

	if el := get("modelAnnotations"); el != nil && el.str != "" {
		var ann model.Annotations
		if err := json.Unmarshal([]byte(el.str), &ann); err != nil {
			return nil, core.Malformed(core.FormatMATLAB, "modelAnnotations", err)
		}
		if len(ann) > 0 {
			m.Annotations = ann
		}
	}

	for _, name := range root.order {
		if _, known := canonicalFields[name]; known {
			continue
		}
		if m.Extensions == nil {
			m.Extensions = make(map[string][]byte)
		}
		m.Extensions[name] = root.fields[name].raw
	}
	return m, nil
}

func numColumn(el *matElement) []float64 {
	if el == nil {
		return nil
	}
	return el.num
}

func stoichiometryFromSparse(el *matElement, mets []string, rxnCount int) ([]map[string]float64, error) {
	out := make([]map[string]float64, rxnCount)
	if el.class != mxSPARSE {
		return nil, core.Malformed(core.FormatMATLAB, "S is not a sparse matrix", nil)
	}
	if len(el.dims) != 2 || int(el.dims[0]) != len(mets) || int(el.dims[1]) != rxnCount {
		return nil, &model.SchemaViolationError{Violations: []string{
			fmt.Sprintf("S dimensions %v disagree with %d mets x %d rxns", el.dims, len(mets), rxnCount),
		}}
	}
	if len(el.jc) != rxnCount+1 {
		return nil, core.Malformed(core.FormatMATLAB, "sparse column pointers truncated", nil)
	}
	for j := 0; j < rxnCount; j++ {
		start, end := int(el.jc[j]), int(el.jc[j+1])
		if start > end || end > len(el.num) {
			return nil, core.Malformed(core.FormatMATLAB, "sparse column pointers out of range", nil)
		}
		for k := start; k < end; k++ {
			row := int(el.ir[k])
			if row < 0 || row >= len(mets) {
				return nil, &model.SchemaViolationError{Violations: []string{
					fmt.Sprintf("S row index %d out of range", row),
				}}
			}
			if out[j] == nil {
				out[j] = make(map[string]float64)
			}
			out[j][mets[row]] = el.num[k]
		}
	}
	return out, nil
}

// annotationsColumn decodes a cell column of JSON-encoded annotation maps.
func annotationsColumn(el *matElement, want int) ([]model.Annotations, error) {
	if el == nil {
		return nil, nil
	}
	values, err := el.cellStrings()
	if err != nil {
		return nil, err
	}
	if len(values) != want {
		return nil, fmt.Errorf("annotation column has %d entries, want %d", len(values), want)
	}
	out := make([]model.Annotations, want)
	for i, v := range values {
		if v == "" {
			continue
		}
		var ann model.Annotations
		if err := json.Unmarshal([]byte(v), &ann); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		if len(ann) > 0 {
			out[i] = ann
		}
	}
	return out, nil
}

var indexRulePattern = regexp.MustCompile(`x\((\d+)\)`)

// expandIndexRule rewrites the legacy index form "x(1) | x(2)" into gene
// identifiers.
func expandIndexRule(rule string, genes []string) string {
	return indexRulePattern.ReplaceAllStringFunc(rule, func(match string) string {
		idx, err := strconv.Atoi(indexRulePattern.FindStringSubmatch(match)[1])
		if err != nil || idx < 1 || idx > len(genes) {
			return match
		}
		return genes[idx-1]
	})
}

// Encode writes the model as an uncompressed MAT-file. Output is fully
// deterministic for a given model.
func (c *Codec) Encode(ctx context.Context, m *model.Model, dest string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := c.encodeBytes(m)
	if err != nil {
		return err
	}
	return os.WriteFile(dest, payload, 0o644)
}

func (c *Codec) encodeBytes(m *model.Model) ([]byte, error) {
	metIndex := make(map[string]int, len(m.Metabolites))
	mets := make([]string, len(m.Metabolites))
	for i, met := range m.Metabolites {
		metIndex[met.ID] = i
		mets[i] = met.ID
	}

	rxns := make([]string, len(m.Reactions))
	lb := make([]float64, len(m.Reactions))
	ub := make([]float64, len(m.Reactions))
	grRules := make([]string, len(m.Reactions))
	subSystems := make([]string, len(m.Reactions))
	rxnNames := make([]string, len(m.Reactions))
	var entries []sparseEntry
	for j, rxn := range m.Reactions {
		rxns[j] = rxn.ID
		lb[j], ub[j] = rxn.LowerBound, rxn.UpperBound
		grRules[j] = rxn.GeneRule
		subSystems[j] = rxn.Subsystem
		rxnNames[j] = rxn.Name

		rows := make([]int, 0, len(rxn.Stoichiometry))
		for id := range rxn.Stoichiometry {
			row, ok := metIndex[id]
			if !ok {
				return nil, &model.SchemaViolationError{Violations: []string{
					fmt.Sprintf("reaction %s references unknown metabolite %s", rxn.ID, id),
				}}
			}
			rows = append(rows, row)
		}
		sort.Ints(rows)
		for _, row := range rows {
			entries = append(entries, sparseEntry{row: int32(row), col: int32(j), value: rxn.Stoichiometry[mets[row]]})
		}
	}

	metNames := make([]string, len(m.Metabolites))
	metFormulas := make([]string, len(m.Metabolites))
	metComps := make([]string, len(m.Metabolites))
	metCharges := make([]float64, len(m.Metabolites))
	metBoundary := make([]float64, len(m.Metabolites))
	for i, met := range m.Metabolites {
		metNames[i] = met.Name
		metFormulas[i] = met.Formula
		metComps[i] = met.Compartment
		if met.Charge != nil {
			metCharges[i] = float64(*met.Charge)
		} else {
			metCharges[i] = math.NaN()
		}
		if met.Boundary {
			metBoundary[i] = 1
		}
	}

	genes := make([]string, len(m.Genes))
	geneNames := make([]string, len(m.Genes))
	for i, gene := range m.Genes {
		genes[i] = gene.ID
		geneNames[i] = gene.Name
	}

	comps := make([]string, 0, len(m.Compartments))
	for id := range m.Compartments {
		comps = append(comps, id)
	}
	sort.Strings(comps)
	compNames := make([]string, len(comps))
	for i, id := range comps {
		compNames[i] = m.Compartments[id]
	}

	modelAnn, err := annotationsJSON(m.Annotations)
	if err != nil {
		return nil, err
	}
	rxnAnn := make([]string, len(m.Reactions))
	for j, rxn := range m.Reactions {
		if rxnAnn[j], err = annotationsJSON(rxn.Annotations); err != nil {
			return nil, err
		}
	}
	metAnn := make([]string, len(m.Metabolites))
	for i, met := range m.Metabolites {
		if metAnn[i], err = annotationsJSON(met.Annotations); err != nil {
			return nil, err
		}
	}
	geneAnn := make([]string, len(m.Genes))
	for i, gene := range m.Genes {
		if geneAnn[i], err = annotationsJSON(gene.Annotations); err != nil {
			return nil, err
		}
	}

	fields := []structField{
		{"modelID", charMatrix("", m.ID)},
		{"description", charMatrix("", m.Name)},
		{"rxns", stringCellColumn("", rxns)},
		{"mets", stringCellColumn("", mets)},
		{"genes", stringCellColumn("", genes)},
		{"S", sparseMatrix("", int32(len(mets)), int32(len(rxns)), entries)},
		{"lb", doubleColumn("", lb)},
		{"ub", doubleColumn("", ub)},
		{"grRules", stringCellColumn("", grRules)},
		{"subSystems", stringCellColumn("", subSystems)},
		{"rxnNames", stringCellColumn("", rxnNames)},
		{"metNames", stringCellColumn("", metNames)},
		{"metFormulas", stringCellColumn("", metFormulas)},
		{"metCharges", doubleColumn("", metCharges)},
		{"metComps", stringCellColumn("", metComps)},
		{"metBoundary", doubleColumn("", metBoundary)},
		{"comps", stringCellColumn("", comps)},
		{"compNames", stringCellColumn("", compNames)},
		{"geneNames", stringCellColumn("", geneNames)},
		{"modelAnnotations", charMatrix("", modelAnn)},
		{"rxnAnnotations", stringCellColumn("", rxnAnn)},
		{"metAnnotations", stringCellColumn("", metAnn)},
		{"geneAnnotations", stringCellColumn("", geneAnn)},
	}

	extNames := make([]string, 0, len(m.Extensions))
	for name := range m.Extensions {
		extNames = append(extNames, name)
	}
	sort.Strings(extNames)
	for _, name := range extNames {
		fields = append(fields, structField{name, m.Extensions[name]})
	}

	root, err := structMatrix("model", fields)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	title := strings.TrimSpace("MATLAB 5.0 MAT-file, written by metaflux: " + m.ID)
	writeHeader(&buf, title)
	buf.Write(root)
	return buf.Bytes(), nil
}

func annotationsJSON(ann model.Annotations) (string, error) {
	if len(ann) == 0 {
		return "", nil
	}
	raw, err := json.Marshal(ann)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
