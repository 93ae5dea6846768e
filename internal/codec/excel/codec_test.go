package excel

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/xuri/excelize/v2"

	"metaflux/internal/codec/core"
	"metaflux/pkg/model"
)

func intPtr(v int) *int { return &v }

func fixtureModel() *model.Model {
	return &model.Model{
		Compartments: map[string]string{"c": "c"},
		Metabolites: []model.Metabolite{
			{ID: "glc_D_c", Name: "D-Glucose", Compartment: "c", Charge: intPtr(0), Formula: "C6H12O6",
				Annotations: model.Annotations{"KEGG ID": {"C00031"}}},
			{ID: "g6p_c", Name: "Glucose 6-phosphate", Compartment: "c", Charge: intPtr(-2), Formula: "C6H11O9P"},
			{ID: "atp_c", Name: "ATP", Compartment: "c", Charge: intPtr(-4), Formula: "C10H12N5O13P3"},
			{ID: "adp_c", Name: "ADP", Compartment: "c", Charge: intPtr(-3), Formula: "C10H12N5O10P2"},
		},
		Reactions: []model.Reaction{
			{
				ID:            "HEX1",
				Name:          "Hexokinase",
				Stoichiometry: map[string]float64{"glc_D_c": -1, "atp_c": -1, "g6p_c": 1, "adp_c": 1},
				LowerBound:    0,
				UpperBound:    1000,
				GeneRule:      "b2388 or b1818",
				Subsystem:     "Glycolysis",
				Annotations:   model.Annotations{"EC Number": {"2.7.1.1", "2.7.1.2"}},
			},
			{
				ID:            "EX_glc",
				Name:          "Glucose exchange",
				Stoichiometry: map[string]float64{"glc_D_c": -1},
				LowerBound:    -10,
				UpperBound:    1000,
			},
		},
		Genes: []model.Gene{{ID: "b2388"}, {ID: "b1818"}},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	codec := New()
	path := filepath.Join(t.TempDir(), "core.xlsx")
	want := fixtureModel()
	if err := codec.Encode(context.Background(), want, path); err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := codec.Decode(context.Background(), path)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("round trip mismatch:\ngot  %+v\nwant %+v", got, want)
	}
}

func writeWorkbook(t *testing.T, sheets map[string][][]any) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	first := true
	for sheet, rows := range sheets {
		if first {
			if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
				t.Fatalf("rename sheet: %v", err)
			}
			first = false
		} else if _, err := f.NewSheet(sheet); err != nil {
			t.Fatalf("new sheet: %v", err)
		}
		for i, row := range rows {
			cell, err := excelize.CoordinatesToCellName(1, i+1)
			if err != nil {
				t.Fatalf("cell name: %v", err)
			}
			if err := f.SetSheetRow(sheet, cell, &row); err != nil {
				t.Fatalf("set row: %v", err)
			}
		}
	}
	path := filepath.Join(t.TempDir(), "book.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	return path
}

func minimalSheets() map[string][][]any {
	return map[string][][]any{
		metaboliteSheet: {
			{"Abbreviation", "Description", "Compartment", "Charge", "Formula"},
			{"glc_D_c", "D-Glucose", "c", 0, "C6H12O6"},
			{"g6p_c", "G6P", "c", -2, ""},
		},
		reactionSheet: {
			{"Abbreviation", "Description", "Reaction", "GPR", "Lower bound", "Upper bound", "Subsystem"},
			{"HEX1", "Hexokinase", "glc_D_c -> g6p_c", "b2388", 0, 1000, "Glycolysis"},
		},
	}
}

func TestDecodeMissingSheet(t *testing.T) {
	sheets := minimalSheets()
	delete(sheets, metaboliteSheet)
	_, err := New().Decode(context.Background(), writeWorkbook(t, sheets))
	var serr *core.MissingSheetError
	if !errors.As(err, &serr) {
		t.Fatalf("error = %v, want missing sheet", err)
	}
	if serr.Sheet != metaboliteSheet {
		t.Fatalf("sheet = %q", serr.Sheet)
	}
}

func TestDecodeMissingColumn(t *testing.T) {
	sheets := minimalSheets()
	sheets[metaboliteSheet][0] = []any{"Abbreviation", "Description", "Compartment", "Formula"}
	_, err := New().Decode(context.Background(), writeWorkbook(t, sheets))
	var cerr *core.MissingColumnError
	if !errors.As(err, &cerr) {
		t.Fatalf("error = %v, want missing column", err)
	}
	if cerr.Sheet != metaboliteSheet || cerr.Column != "Charge" {
		t.Fatalf("missing column = %q in %q", cerr.Column, cerr.Sheet)
	}
}

func TestDecodeBadFormulaIsMalformedInput(t *testing.T) {
	sheets := minimalSheets()
	sheets[reactionSheet][1][2] = "glc_D_c plus g6p_c"
	_, err := New().Decode(context.Background(), writeWorkbook(t, sheets))
	var merr *core.MalformedInputError
	if !errors.As(err, &merr) {
		t.Fatalf("error = %v, want malformed input", err)
	}
	if merr.Codec != core.FormatExcel {
		t.Fatalf("codec = %q", merr.Codec)
	}
}

func TestDecodeExtraColumnsBecomeAnnotations(t *testing.T) {
	sheets := minimalSheets()
	sheets[metaboliteSheet][0] = append(sheets[metaboliteSheet][0], "KEGG ID")
	sheets[metaboliteSheet][1] = append(sheets[metaboliteSheet][1], "C00031; C00221")
	got, err := New().Decode(context.Background(), writeWorkbook(t, sheets))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := model.Annotations{"KEGG ID": {"C00031", "C00221"}}
	if !reflect.DeepEqual(got.Metabolites[0].Annotations, want) {
		t.Fatalf("annotations = %v, want %v", got.Metabolites[0].Annotations, want)
	}
	if got.Metabolites[1].Annotations != nil {
		t.Fatalf("blank annotation cell produced %v", got.Metabolites[1].Annotations)
	}
}

func TestDecodeMissingFileIsFileNotFound(t *testing.T) {
	_, err := New().Decode(context.Background(), filepath.Join(t.TempDir(), "absent.xlsx"))
	if !errors.Is(err, core.ErrFileNotFound) {
		t.Fatalf("error = %v, want file-not-found", err)
	}
}
