// Package textexport implements the write-only flat reaction list. Each
// reaction becomes one tab-separated line of id, equation, and gene rule;
// names, bounds, compartments, and annotations are deliberately not
// representable. There is no matching decoder.
package textexport

import (
	"bufio"
	"context"
	"os"

	"metaflux/internal/codec/core"
	"metaflux/pkg/model"
)

// Codec writes flat reaction lists.
type Codec struct{}

// New returns the text exporter.
func New() *Codec { return &Codec{} }

// Format identifies the codec.
func (*Codec) Format() core.Format { return core.FormatText }

// Encode writes one line per reaction in model order.
func (c *Codec) Encode(ctx context.Context, m *model.Model, dest string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	for _, rxn := range m.Reactions {
		w.WriteString(rxn.ID)
		w.WriteByte('\t')
		w.WriteString(rxn.FormulaString())
		w.WriteByte('\t')
		w.WriteString(flattenRule(rxn.GeneRule))
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// flattenRule renders the rule in its canonical single-line form; rules that
// do not parse are passed through verbatim.
func flattenRule(rule string) string {
	parsed, err := model.ParseGeneRule(rule)
	if err != nil {
		return rule
	}
	return parsed.String()
}
