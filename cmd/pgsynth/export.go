package pgsynth

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/edgeflare/pgsynth/pkg/config"
	"github.com/edgeflare/pgsynth/pkg/export"
	"github.com/edgeflare/pgsynth/pkg/openapi"
	"github.com/spf13/cobra"
)

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the generated artifacts to a file or stdout",
		Long: `Runs one generation pass and writes the result as a YAML or JSON descriptor,
Go type definitions or an OpenAPI document.`,
		Example: `  pgsynth export --format yaml -c postgres://localhost/shop
  pgsynth export --format go --package models -o models/models.go`,
		Args: cobra.NoArgs,
		RunE: runExport,
	}
	f := cmd.Flags()
	f.StringP("format", "f", string(export.FormatYAML), fmt.Sprintf("output format %v", export.Formats))
	f.StringP("output", "o", "", "write to this file instead of stdout")
	f.String("package", "models", "package clause for --format go")
	f.String("server-url", "", "server URL advertised by --format openapi")
	return cmd
}

func runExport(cmd *cobra.Command, _ []string) (err error) {
	name, _ := cmd.Flags().GetString("format")
	format, err := export.ParseFormat(name)
	if err != nil {
		return err
	}
	pkg, _ := cmd.Flags().GetString("package")
	serverURL, _ := cmd.Flags().GetString("server-url")

	a, err := generate(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}

	var out io.Writer = cmd.OutOrStdout()
	if path, _ := cmd.Flags().GetString("output"); path != "" {
		file, err := os.Create(path)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := file.Close(); err == nil {
				err = cerr
			}
		}()
		buf := bufio.NewWriter(file)
		defer func() {
			if ferr := buf.Flush(); err == nil {
				err = ferr
			}
		}()
		out = buf
	}

	return export.Write(out, a, format, export.Options{
		Package:   pkg,
		Info:      openapi.Info{Title: "pgsynth", Version: config.Version},
		ServerURL: serverURL,
	})
}
