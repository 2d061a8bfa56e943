package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/saptarshichakrabarti/image-metadata-recorder/internal/extract"
)

var formatsCmd = &cobra.Command{
	Use:   "formats",
	Short: "List supported file formats",
	Run: func(cmd *cobra.Command, _ []string) {
		formatExtractors(os.Stdout, newRegistry())
	},
}

func init() {
	rootCmd.AddCommand(formatsCmd)
}

func formatExtractors(out io.Writer, reg *extract.Registry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "EXTENSION\tFORMAT")
	_, _ = fmt.Fprintln(w, "---------\t------")

	for _, ext := range reg.Extensions() {
		name := ""
		if e, ok := reg.Lookup(ext); ok {
			name = e.Name()
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\n", ext, name)
	}
	_ = w.Flush()
}
