package pgsynth

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/edgeflare/pgsynth/pkg/model"
	"github.com/edgeflare/pgsynth/pkg/synth"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect [entity]",
		Short: "Summarize the generated entities, routes and diagnostics",
		Long: `Runs one generation pass and prints what it produced. Given an entity, a
qualified table or enum name or a routine signature, prints its models.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := generate(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(args) == 1 {
				return printEntity(out, a, args[0])
			}
			routes, _ := cmd.Flags().GetBool("routes")
			printSummary(out, a, routes)
			return nil
		},
	}
	cmd.Flags().Bool("routes", false, "list every route")
	return cmd
}

var (
	heading = color.New(color.Bold, color.FgCyan).SprintFunc()
	warn    = color.New(color.FgYellow).SprintFunc()
	faint   = color.New(color.Faint).SprintFunc()
)

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetBorder(false)
	table.SetColumnSeparator(" ")
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	return table
}

func printSummary(w io.Writer, a *synth.Artifacts, routes bool) {
	fmt.Fprintf(w, "%s %s\n", heading("fingerprint"), a.Fingerprint)
	fmt.Fprintf(w, "%d models, %d routes, %d warnings\n\n", a.Models.Len(), len(a.Routes), len(a.Diagnostics))

	fmt.Fprintln(w, heading("Entities"))
	table := newTable(w, "ENTITY", "KIND", "KEY", "MODELS", "ROUTES")
	for _, t := range a.Graph.Tables() {
		name := t.QualifiedName()
		key := strings.Join(t.PrimaryKey, ",")
		if t.Hidden {
			key = faint("hidden")
		}
		table.Append([]string{name, string(t.Kind), key, count(len(a.Models.Entity(name))), count(len(a.RoutesFor(name)))})
	}
	for _, e := range a.Graph.Enums() {
		name := e.QualifiedName()
		table.Append([]string{name, "enum", "", count(len(a.Models.Entity(name))), ""})
	}
	for _, r := range a.Graph.Routines() {
		kind := string(r.Kind)
		if r.Trigger {
			kind = faint("trigger")
		}
		table.Append([]string{r.Signature, kind, "", count(len(a.Models.Entity(r.Signature))), count(len(a.RoutesFor(r.Signature)))})
	}
	table.Render()

	if routes {
		fmt.Fprintln(w)
		fmt.Fprintln(w, heading("Routes"))
		table = newTable(w, "METHOD", "PATH", "OPERATION", "INPUT", "OUTPUT")
		for _, r := range a.Routes {
			table.Append([]string{r.Method, r.Path, string(r.Operation), r.Input, r.Output})
		}
		table.Render()
	}

	if len(a.Diagnostics) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, heading("Diagnostics"))
		table = newTable(w, "KIND", "OBJECT", "MESSAGE")
		for _, d := range a.Diagnostics {
			table.Append([]string{warn(string(d.Kind)), d.Object, d.Message})
		}
		table.Render()
	}
}

func printEntity(w io.Writer, a *synth.Artifacts, name string) error {
	e, ok := a.Entity(name)
	if !ok {
		return fmt.Errorf("no entity %q", name)
	}
	for i, m := range e.Models {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s %s\n", heading(m.Name), faint(string(m.Purpose)))
		if m.Purpose == model.Enum {
			fmt.Fprintln(w, strings.Join(m.Choices, ", "))
			continue
		}
		table := newTable(w, "FIELD", "TYPE", "REQUIRED", "NULLABLE", "READ ONLY")
		for _, f := range m.Fields {
			typ := string(f.Type.Kind)
			if f.Nested() {
				typ = f.Target
				if f.Many {
					typ = "[]" + typ
				}
			} else if f.Type.Format != "" {
				typ += " (" + f.Type.Format + ")"
			}
			table.Append([]string{f.Name, typ, flag(f.Required), flag(f.Nullable), flag(f.ReadOnly)})
		}
		table.Render()
	}
	if len(e.Routes) > 0 {
		fmt.Fprintln(w)
		for _, r := range e.Routes {
			fmt.Fprintf(w, "%-7s %s\n", r.Method, r.Path)
		}
	}
	return nil
}

func count(n int) string { return strconv.Itoa(n) }

func flag(b bool) string {
	if b {
		return "yes"
	}
	return ""
}
