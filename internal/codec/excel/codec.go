// Package excel implements the two-sheet workbook codec. A workbook carries
// a "Reaction List" and a "Metabolite List" sheet with fixed required
// columns; any further columns round-trip as annotations keyed by their
// header.
package excel

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"metaflux/internal/codec/core"
	"metaflux/pkg/model"
)

const (
	reactionSheet   = "Reaction List"
	metaboliteSheet = "Metabolite List"

	defaultLowerBound = -1000
	defaultUpperBound = 1000

	// annotationSeparator joins multi-valued annotations inside one cell.
	annotationSeparator = "; "
)

var (
	reactionColumns   = []string{"Abbreviation", "Description", "Reaction", "GPR", "Lower bound", "Upper bound", "Subsystem"}
	metaboliteColumns = []string{"Abbreviation", "Description", "Compartment", "Charge", "Formula"}
)

// Codec reads and writes two-sheet workbooks.
type Codec struct{}

// New returns the Excel codec.
func New() *Codec { return &Codec{} }

// Format identifies the codec.
func (*Codec) Format() core.Format { return core.FormatExcel }

// sheetTable is one parsed worksheet: required columns resolved to indices,
// everything else kept as annotation columns.
type sheetTable struct {
	sheet    string
	required map[string]int
	extra    map[string]int
	rows     [][]string
}

func loadSheet(f *excelize.File, sheet string, required []string) (*sheetTable, error) {
	idx, err := f.GetSheetIndex(sheet)
	if err != nil || idx < 0 {
		return nil, &core.MissingSheetError{Sheet: sheet}
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, core.Malformed(core.FormatExcel, "read sheet "+sheet, err)
	}
	if len(rows) == 0 {
		return nil, &core.MissingSheetError{Sheet: sheet}
	}

	table := &sheetTable{
		sheet:    sheet,
		required: make(map[string]int, len(required)),
		extra:    make(map[string]int),
		rows:     rows[1:],
	}
	requiredSet := make(map[string]string, len(required))
	for _, col := range required {
		requiredSet[strings.ToLower(col)] = col
	}
	for i, header := range rows[0] {
		header = strings.TrimSpace(header)
		if header == "" {
			continue
		}
		if canonical, ok := requiredSet[strings.ToLower(header)]; ok {
			table.required[canonical] = i
			continue
		}
		table.extra[header] = i
	}
	for _, col := range required {
		if _, ok := table.required[col]; !ok {
			return nil, &core.MissingColumnError{Sheet: sheet, Column: col}
		}
	}
	return table, nil
}

func (t *sheetTable) cell(row []string, column string) string {
	idx, ok := t.required[column]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func (t *sheetTable) annotations(row []string) model.Annotations {
	var ann model.Annotations
	for header, idx := range t.extra {
		if idx >= len(row) {
			continue
		}
		cell := strings.TrimSpace(row[idx])
		if cell == "" {
			continue
		}
		for _, value := range strings.Split(cell, annotationSeparator) {
			ann = ann.Add(header, value)
		}
	}
	return ann
}

// Decode reads a workbook into the canonical model.
func (c *Codec) Decode(ctx context.Context, source string) (*model.Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := excelize.OpenFile(source)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", core.ErrFileNotFound, source)
	}
	if err != nil {
		return nil, core.Malformed(core.FormatExcel, "open workbook", err)
	}
	defer f.Close()

	mets, err := loadSheet(f, metaboliteSheet, metaboliteColumns)
	if err != nil {
		return nil, err
	}
	rxns, err := loadSheet(f, reactionSheet, reactionColumns)
	if err != nil {
		return nil, err
	}

	m := &model.Model{}
	for i, row := range mets.rows {
		met := model.Metabolite{
			ID:          mets.cell(row, "Abbreviation"),
			Name:        mets.cell(row, "Description"),
			Compartment: mets.cell(row, "Compartment"),
			Formula:     mets.cell(row, "Formula"),
			Annotations: mets.annotations(row),
		}
		if met.ID == "" {
			return nil, core.Malformed(core.FormatExcel, fmt.Sprintf("sheet %q row %d: metabolite without abbreviation", metaboliteSheet, i+2), nil)
		}
		if raw := mets.cell(row, "Charge"); raw != "" {
			v, err := strconv.Atoi(raw)
			if err != nil {
				return nil, core.Malformed(core.FormatExcel, fmt.Sprintf("sheet %q row %d: charge %q", metaboliteSheet, i+2, raw), err)
			}
			met.Charge = &v
		}
		if met.Compartment != "" {
			if m.Compartments == nil {
				m.Compartments = map[string]string{}
			}
			if _, ok := m.Compartments[met.Compartment]; !ok {
				m.Compartments[met.Compartment] = met.Compartment
			}
		}
		m.Metabolites = append(m.Metabolites, met)
	}

	seenGenes := make(map[string]struct{})
	for i, row := range rxns.rows {
		rxn := model.Reaction{
			ID:          rxns.cell(row, "Abbreviation"),
			Name:        rxns.cell(row, "Description"),
			GeneRule:    rxns.cell(row, "GPR"),
			Subsystem:   rxns.cell(row, "Subsystem"),
			Annotations: rxns.annotations(row),
		}
		if rxn.ID == "" {
			return nil, core.Malformed(core.FormatExcel, fmt.Sprintf("sheet %q row %d: reaction without abbreviation", reactionSheet, i+2), nil)
		}
		stoich, reversible, err := model.ParseReactionFormula(rxns.cell(row, "Reaction"))
		if err != nil {
			return nil, core.Malformed(core.FormatExcel, fmt.Sprintf("sheet %q row %d", reactionSheet, i+2), err)
		}
		rxn.Stoichiometry = stoich

		rxn.LowerBound = defaultLowerBound
		if !reversible {
			rxn.LowerBound = 0
		}
		rxn.UpperBound = defaultUpperBound
		if raw := rxns.cell(row, "Lower bound"); raw != "" {
			if rxn.LowerBound, err = strconv.ParseFloat(raw, 64); err != nil {
				return nil, core.Malformed(core.FormatExcel, fmt.Sprintf("sheet %q row %d: lower bound", reactionSheet, i+2), err)
			}
		}
		if raw := rxns.cell(row, "Upper bound"); raw != "" {
			if rxn.UpperBound, err = strconv.ParseFloat(raw, 64); err != nil {
				return nil, core.Malformed(core.FormatExcel, fmt.Sprintf("sheet %q row %d: upper bound", reactionSheet, i+2), err)
			}
		}

		if rxn.GeneRule != "" {
			parsed, err := model.ParseGeneRule(rxn.GeneRule)
			if err != nil {
				return nil, core.Malformed(core.FormatExcel, fmt.Sprintf("sheet %q row %d: GPR", reactionSheet, i+2), err)
			}
			for _, gene := range parsed.Genes() {
				if _, ok := seenGenes[gene]; !ok {
					seenGenes[gene] = struct{}{}
					m.Genes = append(m.Genes, model.Gene{ID: gene})
				}
			}
		}
		m.Reactions = append(m.Reactions, rxn)
	}
	return m, nil
}

// Encode writes the two-sheet workbook. Only required columns plus
// annotation keys present on the model are emitted.
func (c *Codec) Encode(ctx context.Context, m *model.Model, dest string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), reactionSheet); err != nil {
		return err
	}
	if _, err := f.NewSheet(metaboliteSheet); err != nil {
		return err
	}

	rxnExtra := annotationKeys(len(m.Reactions), func(i int) model.Annotations { return m.Reactions[i].Annotations })
	rows := [][]any{headerRow(reactionColumns, rxnExtra)}
	for _, rxn := range m.Reactions {
		row := []any{
			rxn.ID,
			rxn.Name,
			rxn.FormulaString(),
			rxn.GeneRule,
			rxn.LowerBound,
			rxn.UpperBound,
			rxn.Subsystem,
		}
		rows = append(rows, appendAnnotationCells(row, rxnExtra, rxn.Annotations))
	}
	if err := writeRows(f, reactionSheet, rows); err != nil {
		return err
	}

	metExtra := annotationKeys(len(m.Metabolites), func(i int) model.Annotations { return m.Metabolites[i].Annotations })
	rows = [][]any{headerRow(metaboliteColumns, metExtra)}
	for _, met := range m.Metabolites {
		row := []any{met.ID, met.Name, met.Compartment, chargeCell(met.Charge), met.Formula}
		rows = append(rows, appendAnnotationCells(row, metExtra, met.Annotations))
	}
	if err := writeRows(f, metaboliteSheet, rows); err != nil {
		return err
	}

	return f.SaveAs(dest)
}

func annotationKeys(n int, get func(int) model.Annotations) []string {
	seen := make(map[string]struct{})
	for i := 0; i < n; i++ {
		for key := range get(i) {
			seen[key] = struct{}{}
		}
	}
	keys := make([]string, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func headerRow(required, extra []string) []any {
	row := make([]any, 0, len(required)+len(extra))
	for _, col := range required {
		row = append(row, col)
	}
	for _, col := range extra {
		row = append(row, col)
	}
	return row
}

func appendAnnotationCells(row []any, keys []string, ann model.Annotations) []any {
	for _, key := range keys {
		row = append(row, strings.Join(ann[key], annotationSeparator))
	}
	return row
}

func chargeCell(charge *int) any {
	if charge == nil {
		return ""
	}
	return *charge
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}
