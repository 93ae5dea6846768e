// Package simpheny implements the decode-only SimPheny bundle codec. A model
// is spread over three required tab-separated files sharing a base name
// (<base>.sto stoichiometry matrix, <base>_rxn.txt reactions, <base>_met.txt
// metabolites) plus an optional <base>_gpr.txt with gene associations.
// Identifiers are taken verbatim; the SBML prefix conventions never apply
// here.
package simpheny

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"metaflux/internal/codec/core"
	"metaflux/pkg/model"
)

const (
	defaultLowerBound = -1000
	defaultUpperBound = 1000
)

// Codec reads SimPheny bundles.
type Codec struct{}

// New returns the SimPheny codec.
func New() *Codec { return &Codec{} }

// Format identifies the codec.
func (*Codec) Format() core.Format { return core.FormatSimPheny }

type bundle struct {
	sto string
	rxn string
	met string
	gpr string // optional
}

// locate derives the sibling file paths from the .sto path and reports the
// required files that are absent.
func locate(source string) (bundle, error) {
	base := source
	if strings.EqualFold(base[max(0, len(base)-4):], ".sto") {
		base = base[:len(base)-4]
	}
	b := bundle{
		sto: source,
		rxn: base + "_rxn.txt",
		met: base + "_met.txt",
		gpr: base + "_gpr.txt",
	}
	if _, err := os.Stat(b.sto); err != nil {
		return bundle{}, fmt.Errorf("%w: %s", core.ErrFileNotFound, b.sto)
	}
	var missing []string
	for _, required := range []string{b.rxn, b.met} {
		if _, err := os.Stat(required); err != nil {
			missing = append(missing, required)
		}
	}
	if len(missing) > 0 {
		return bundle{}, &core.IncompleteBundleError{Missing: missing}
	}
	if _, err := os.Stat(b.gpr); err != nil {
		b.gpr = ""
	}
	return b, nil
}

// Decode reads the bundle anchored at the given .sto file.
func (c *Codec) Decode(ctx context.Context, source string) (*model.Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := locate(source)
	if err != nil {
		return nil, err
	}

	m := &model.Model{}
	if err := readMetabolites(b.met, m); err != nil {
		return nil, err
	}
	if err := readReactions(b.rxn, m); err != nil {
		return nil, err
	}
	if err := readMatrix(b.sto, m); err != nil {
		return nil, err
	}
	if b.gpr != "" {
		if err := readGeneRules(b.gpr, m); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// readTable parses a headered tab-separated file and invokes row for each
// data line with a header-keyed cell lookup.
func readTable(path string, row func(line int, get func(string) string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	var header []string
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(text) == "" {
			continue
		}
		cells := strings.Split(text, "\t")
		if header == nil {
			header = make([]string, len(cells))
			for i, cell := range cells {
				header[i] = strings.ToLower(strings.TrimSpace(cell))
			}
			continue
		}
		get := func(name string) string {
			for i, col := range header {
				if col == name && i < len(cells) {
					return strings.TrimSpace(cells[i])
				}
			}
			return ""
		}
		if err := row(line, get); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func readMetabolites(path string, m *model.Model) error {
	err := readTable(path, func(line int, get func(string) string) error {
		met := model.Metabolite{
			ID:          get("id"),
			Name:        get("name"),
			Compartment: get("compartment"),
			Formula:     get("formula"),
		}
		if met.ID == "" {
			return core.Malformed(core.FormatSimPheny, fmt.Sprintf("%s line %d: metabolite without id", path, line), nil)
		}
		if raw := get("charge"); raw != "" {
			v, err := strconv.Atoi(raw)
			if err != nil {
				return core.Malformed(core.FormatSimPheny, fmt.Sprintf("%s line %d: charge %q", path, line, raw), err)
			}
			met.Charge = &v
		}
		if get("boundary") == "1" {
			met.Boundary = true
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
		return nil
	})
	if err != nil {
		return err
	}
	if len(m.Metabolites) == 0 {
		return core.Malformed(core.FormatSimPheny, path+": no metabolites", nil)
	}
	return nil
}

func readReactions(path string, m *model.Model) error {
	err := readTable(path, func(line int, get func(string) string) error {
		rxn := model.Reaction{
			ID:         get("id"),
			Name:       get("name"),
			Subsystem:  get("subsystem"),
			LowerBound: defaultLowerBound,
			UpperBound: defaultUpperBound,
		}
		if rxn.ID == "" {
			return core.Malformed(core.FormatSimPheny, fmt.Sprintf("%s line %d: reaction without id", path, line), nil)
		}
		var err error
		if rxn.LowerBound, err = boundCell(get("lower_bound"), defaultLowerBound); err != nil {
			return core.Malformed(core.FormatSimPheny, fmt.Sprintf("%s line %d: lower bound", path, line), err)
		}
		if rxn.UpperBound, err = boundCell(get("upper_bound"), defaultUpperBound); err != nil {
			return core.Malformed(core.FormatSimPheny, fmt.Sprintf("%s line %d: upper bound", path, line), err)
		}
		m.Reactions = append(m.Reactions, rxn)
		return nil
	})
	if err != nil {
		return err
	}
	if len(m.Reactions) == 0 {
		return core.Malformed(core.FormatSimPheny, path+": no reactions", nil)
	}
	return nil
}

func boundCell(raw string, fallback float64) (float64, error) {
	if raw == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(raw, 64)
}

// readMatrix parses the dense stoichiometry matrix: one row per metabolite in
// met-file order, one column per reaction in rxn-file order.
func readMatrix(path string, m *model.Model) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	for i := range m.Reactions {
		m.Reactions[i].Stoichiometry = make(map[string]float64)
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	row := 0
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if row >= len(m.Metabolites) {
			return core.Malformed(core.FormatSimPheny, fmt.Sprintf("%s: %d matrix rows for %d metabolites", path, row+1, len(m.Metabolites)), nil)
		}
		cells := strings.Fields(text)
		if len(cells) != len(m.Reactions) {
			return core.Malformed(core.FormatSimPheny, fmt.Sprintf("%s row %d: %d matrix columns for %d reactions", path, row+1, len(cells), len(m.Reactions)), nil)
		}
		for col, cell := range cells {
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return core.Malformed(core.FormatSimPheny, fmt.Sprintf("%s row %d column %d", path, row+1, col+1), err)
			}
			if v != 0 {
				m.Reactions[col].Stoichiometry[m.Metabolites[row].ID] = v
			}
		}
		row++
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if row != len(m.Metabolites) {
		return core.Malformed(core.FormatSimPheny, fmt.Sprintf("%s: %d matrix rows for %d metabolites", path, row, len(m.Metabolites)), nil)
	}
	return nil
}

// readGeneRules parses headerless "reaction-id<TAB>rule" lines and harvests
// the gene inventory from the rules.
func readGeneRules(path string, m *model.Model) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	byID := make(map[string]int, len(m.Reactions))
	for i, rxn := range m.Reactions {
		byID[rxn.ID] = i
	}
	seen := make(map[string]struct{})

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(text) == "" {
			continue
		}
		id, rule, ok := strings.Cut(text, "\t")
		if !ok {
			return core.Malformed(core.FormatSimPheny, fmt.Sprintf("%s line %d: expected reaction id and rule", path, line), nil)
		}
		id = strings.TrimSpace(id)
		rule = strings.TrimSpace(rule)
		idx, known := byID[id]
		if !known {
			return core.Malformed(core.FormatSimPheny, fmt.Sprintf("%s line %d: unknown reaction %q", path, line, id), nil)
		}
		if rule == "" {
			continue
		}
		parsed, err := model.ParseGeneRule(rule)
		if err != nil {
			return core.Malformed(core.FormatSimPheny, fmt.Sprintf("%s line %d: gene rule", path, line), err)
		}
		m.Reactions[idx].GeneRule = rule
		for _, gene := range parsed.Genes() {
			if _, ok := seen[gene]; !ok {
				seen[gene] = struct{}{}
				m.Genes = append(m.Genes, model.Gene{ID: gene})
			}
		}
	}
	return scanner.Err()
}
