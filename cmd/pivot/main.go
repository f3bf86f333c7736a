// Command pivot evaluates measures over a data file.
//
//	pivot -measures measures.yaml -data rows.csv -measure sumK1K2 -groupby a -filter b=b1
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"gopkg.in/src-d/go-pivot.v0"
	"gopkg.in/src-d/go-pivot.v0/memory"
	"gopkg.in/src-d/go-pivot.v0/olap"
	"gopkg.in/src-d/go-pivot.v0/olap/filter"
	"gopkg.in/src-d/go-pivot.v0/olap/resource"
	"gopkg.in/src-d/go-pivot.v0/olap/view"
)

type filterFlags []string

func (f *filterFlags) String() string { return strings.Join(*f, ",") }

func (f *filterFlags) Set(v string) error {
	*f = append(*f, v)
	return nil
}

type options struct {
	measures string
	data     string
	names    string
	groupBy  string
	filters  filterFlags
	debug    bool
	explain  bool
	noColor  bool
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	var o options
	fs := flag.NewFlagSet("pivot", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.measures, "measures", "", "YAML or JSON file with the measure definitions")
	fs.StringVar(&o.data, "data", "", "data file: .csv, .json, .jsonl or .avro")
	fs.StringVar(&o.names, "measure", "", "comma separated measures to compute")
	fs.StringVar(&o.groupBy, "groupby", "", "comma separated columns to group by")
	fs.Var(&o.filters, "filter", "filter as col=value, col!=value or col~pattern; may be repeated")
	fs.BoolVar(&o.debug, "debug", false, "log the values of every step")
	fs.BoolVar(&o.explain, "explain", false, "log the query plan")
	fs.BoolVar(&o.noColor, "no-color", false, "disable coloured output")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	switch {
	case o.measures == "":
		return nil, fmt.Errorf("missing -measures")
	case o.data == "":
		return nil, fmt.Errorf("missing -data")
	case o.names == "":
		return nil, fmt.Errorf("missing -measure")
	}
	return &o, nil
}

func splitList(s string) []string {
	var result []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			result = append(result, p)
		}
	}
	return result
}

// parseFilter reads col=value, col!=value or col~pattern.
func parseFilter(s string) (filter.Filter, error) {
	if i := strings.Index(s, "!="); i > 0 {
		return filter.IsDistinctFrom(s[:i], memory.ParseValue(s[i+2:])), nil
	}
	if i := strings.Index(s, "~"); i > 0 {
		return filter.IsLike(s[:i], s[i+1:]), nil
	}
	if i := strings.Index(s, "="); i > 0 {
		return filter.IsEqualTo(s[:i], memory.ParseValue(s[i+1:])), nil
	}
	return nil, fmt.Errorf("invalid filter %q, expected col=value, col!=value or col~pattern", s)
}

func run(args []string, stdout, stderr io.Writer) error {
	o, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	if o.debug {
		logrus.SetLevel(logrus.DebugLevel)
	}

	bag, err := resource.LoadFile(o.measures)
	if err != nil {
		return err
	}

	table, err := memory.Load(o.data)
	if err != nil {
		return err
	}

	filters := make([]filter.Filter, len(o.filters))
	for i, f := range o.filters {
		if filters[i], err = parseFilter(f); err != nil {
			return err
		}
	}

	builder := pivot.NewBuilder(bag).WithObserver(olap.NewLogObserver())
	if o.debug {
		builder = builder.WithDebug()
	}
	e := builder.Build()
	defer e.Operators.Close()

	if err := e.Validate(); err != nil {
		return err
	}

	q := pivot.Query{
		Measures: splitList(o.names),
		Filter:   filter.And(filters...),
		GroupBy:  olap.NewGroupBy(splitList(o.groupBy)...),
		Explain:  o.explain,
	}

	v, err := e.Execute(olap.NewContext(context.Background()), q, table)
	if err != nil {
		return err
	}

	return printView(stdout, v, q.Measures, o.noColor)
}

// printView writes the view as a table with a coloured header line.
func printView(w io.Writer, v *view.TabularView, measures []string, noColor bool) error {
	var buf bytes.Buffer
	tw := tabwriter.NewWriter(&buf, 0, 4, 2, ' ', 0)

	fmt.Fprint(tw, "slice")
	for _, m := range measures {
		fmt.Fprintf(tw, "\t%s", m)
	}
	fmt.Fprintln(tw)

	for _, slice := range v.Slices() {
		values, _ := v.Get(slice)
		fmt.Fprint(tw, slice)
		for _, m := range measures {
			if val, ok := values[m]; ok {
				fmt.Fprintf(tw, "\t%v", val)
			} else {
				fmt.Fprint(tw, "\t")
			}
		}
		fmt.Fprintln(tw)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	lines := strings.SplitAfterN(buf.String(), "\n", 2)
	header := color.New(color.FgCyan, color.Bold)
	if noColor {
		header.DisableColor()
	}
	if _, err := header.Fprint(w, lines[0]); err != nil {
		return err
	}
	if len(lines) > 1 {
		_, err := io.WriteString(w, lines[1])
		return err
	}
	return nil
}

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if err != flag.ErrHelp {
			color.New(color.FgRed).Fprintf(os.Stderr, "ERROR %s\n", err)
		}
		os.Exit(1)
	}
}
