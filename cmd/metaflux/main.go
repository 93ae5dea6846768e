// Command metaflux converts, validates, and summarizes constraint-based
// metabolic model files across the supported formats.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"

	"metaflux/pkg/modelio"
)

var exitFunc = os.Exit

// main runs the command-line interface using the program arguments and exits
// the process with the status code returned by cli.
func main() {
	code := cli(os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

func cli(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}
	var err error
	switch args[0] {
	case "convert":
		err = runConvert(args[1:], stdout, stderr)
	case "validate":
		err = runValidate(args[1:], stdout, stderr)
	case "describe":
		err = runDescribe(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "metaflux: unknown command %q\n", args[0])
		usage(stderr)
		return 2
	}
	if err != nil {
		fmt.Fprintf(stderr, "metaflux: %v\n", err)
		return 1
	}
	return 0
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: metaflux <convert|validate|describe> [flags] <paths>")
}

func runConvert(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("convert", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var from, to string
	fs.StringVar(&from, "from", "", "source format (inferred from extension when empty)")
	fs.StringVar(&to, "to", "", "destination format (inferred from extension when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return fmt.Errorf("convert requires <source> <destination>")
	}
	source, dest := fs.Arg(0), fs.Arg(1)

	ctx := context.Background()
	d := modelio.New()
	srcFormat, err := tokenFormat(from)
	if err != nil {
		return err
	}
	dstFormat, err := tokenFormat(to)
	if err != nil {
		return err
	}
	m, err := d.Read(ctx, source, srcFormat)
	if err != nil {
		return err
	}
	if err := d.Write(ctx, m, dest, dstFormat); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "converted %s -> %s\n", source, dest)
	return nil
}

func runValidate(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var format string
	fs.StringVar(&format, "format", "", "source format (inferred from extension when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("validate requires <source>")
	}
	source := fs.Arg(0)

	srcFormat, err := tokenFormat(format)
	if err != nil {
		return err
	}
	m, err := modelio.New().Read(context.Background(), source, srcFormat)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s: valid (%d metabolites, %d reactions, %d genes)\n",
		source, len(m.Metabolites), len(m.Reactions), len(m.Genes))
	return nil
}

func runDescribe(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("describe", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var format string
	fs.StringVar(&format, "format", "", "source format (inferred from extension when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("describe requires <source>")
	}
	source := fs.Arg(0)

	srcFormat, err := tokenFormat(format)
	if err != nil {
		return err
	}
	m, err := modelio.New().Read(context.Background(), source, srcFormat)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "id:           %s\n", m.ID)
	if m.Name != "" {
		fmt.Fprintf(stdout, "name:         %s\n", m.Name)
	}
	fmt.Fprintf(stdout, "metabolites:  %d\n", len(m.Metabolites))
	fmt.Fprintf(stdout, "reactions:    %d\n", len(m.Reactions))
	fmt.Fprintf(stdout, "genes:        %d\n", len(m.Genes))

	compartments := make([]string, 0, len(m.Compartments))
	for id := range m.Compartments {
		compartments = append(compartments, id)
	}
	sort.Strings(compartments)
	fmt.Fprintf(stdout, "compartments: %d", len(compartments))
	for i, id := range compartments {
		if i == 0 {
			fmt.Fprint(stdout, " (")
		} else {
			fmt.Fprint(stdout, ", ")
		}
		fmt.Fprint(stdout, id)
	}
	if len(compartments) > 0 {
		fmt.Fprint(stdout, ")")
	}
	fmt.Fprintln(stdout)

	reversible := 0
	for _, rxn := range m.Reactions {
		if rxn.LowerBound < 0 && rxn.UpperBound > 0 {
			reversible++
		}
	}
	fmt.Fprintf(stdout, "reversible:   %d\n", reversible)
	return nil
}

// tokenFormat resolves an explicit -from/-to/-format flag value. Empty means
// infer from the file extension.
func tokenFormat(token string) (modelio.Format, error) {
	if token == "" {
		return "", nil
	}
	format, ok := modelio.ParseFormat(token)
	if !ok {
		return "", fmt.Errorf("%w: %q", modelio.ErrUnknownFormat, token)
	}
	return format, nil
}
