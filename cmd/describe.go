package cmd

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/zegnqin/seatunnel/commit"
	"github.com/zegnqin/seatunnel/iceberg"
	"github.com/zegnqin/seatunnel/internal/config"
	"github.com/zegnqin/seatunnel/loader"
	"github.com/zegnqin/seatunnel/tracing"
	"github.com/zegnqin/seatunnel/typeconv"
)

var describeCmd = &cobra.Command{
	Use:   "describe",
	Short: "Describe the configured table",
	Long:  `Prints the schema with field ids and the engine row type, the partition spec, table properties and the current snapshot. With --files the live data and delete files are listed.`,
	Args:  cobra.NoArgs,
	RunE:  runDescribe,
}

func init() {
	rootCmd.AddCommand(describeCmd)
	describeCmd.Flags().Bool("files", false, "list live data and delete files of the current snapshot")
}

// openTable loads the table named by the catalog settings. The caller
// closes the loader.
func openTable(ctx context.Context, cfg config.CommonConfig) (*loader.TableLoader, *iceberg.Table, error) {
	tl, err := loader.Create(cfg)
	if err != nil {
		return nil, nil, err
	}
	if err := tl.Open(ctx); err != nil {
		return nil, nil, err
	}
	tbl, err := tl.LoadTable(ctx)
	if err != nil {
		_ = tl.Close()
		return nil, nil, err
	}
	return tl, tbl, nil
}

func runDescribe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	listFiles, _ := cmd.Flags().GetBool("files")

	ctx := cmd.Context()
	tl, tbl, err := openTable(ctx, cfg.Sink.CommonConfig)
	if err != nil {
		return err
	}
	defer func() { _ = tl.Close() }()

	out := cmd.OutOrStdout()
	meta := tbl.Metadata()
	_, _ = fmt.Fprintf(out, "%s (format v%d)\n", tbl.Identifier(), meta.FormatVersion)
	_, _ = fmt.Fprintf(out, "location: %s\n", tbl.Location())
	_, _ = fmt.Fprintf(out, "metadata: %s\n\n", tbl.MetadataLocation())

	if err := printSchema(out, tbl.Schema()); err != nil {
		return err
	}
	printSpec(out, tbl.Spec())

	if props := tbl.Properties(); len(props) > 0 {
		_, _ = fmt.Fprintln(out, "\nproperties:")
		for _, k := range slices.Sorted(maps.Keys(props)) {
			_, _ = fmt.Fprintf(out, "  %s = %s\n", k, props[k])
		}
	}

	snap := meta.CurrentSnapshotEntry()
	if snap == nil {
		_, _ = fmt.Fprintln(out, "\nno snapshots")
		return nil
	}
	_, _ = fmt.Fprintf(out, "\ncurrent snapshot %d (sequence %d)\n", snap.SnapshotID, snap.SequenceNumber)
	for _, k := range slices.Sorted(maps.Keys(snap.Summary)) {
		_, _ = fmt.Fprintf(out, "  %s = %s\n", k, snap.Summary[k])
	}
	if sc, ok := tracing.ParseTraceparent(snap.Summary[commit.SummaryTraceparent]); ok {
		_, _ = fmt.Fprintf(out, "  committed in trace %s (span %s)\n", sc.TraceID(), sc.SpanID())
	}

	if !listFiles {
		return nil
	}
	entries, err := commit.LiveFiles(ctx, tbl)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(out)
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CONTENT\tFORMAT\tRECORDS\tBYTES\tSEQ\tPATH")
	for _, e := range entries {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\n",
			e.File.Content, e.File.FileFormat, e.File.RecordCount, e.File.FileSizeBytes, e.SequenceNumber, e.File.FilePath)
	}
	return w.Flush()
}

func printSchema(out io.Writer, schema *iceberg.Schema) error {
	rowType, err := typeconv.SchemaToLogical(schema)
	if err != nil {
		return err
	}
	identifiers := make(map[int]bool, len(schema.IdentifierFieldIDs))
	for _, id := range schema.IdentifierFieldIDs {
		identifiers[id] = true
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tTYPE\tROW TYPE\tREQUIRED\tKEY")
	for i, f := range schema.Fields {
		req, key := "no", ""
		if f.Required {
			req = "yes"
		}
		if identifiers[f.ID] {
			key = "*"
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n", f.ID, f.Name, f.Type, rowType.Field(i).Type, req, key)
	}
	return w.Flush()
}

func printSpec(out io.Writer, spec *iceberg.PartitionSpec) {
	if spec.IsUnpartitioned() {
		_, _ = fmt.Fprintln(out, "\nunpartitioned")
		return
	}
	_, _ = fmt.Fprintf(out, "\npartition spec %d:\n", spec.SpecID)
	for _, f := range spec.Fields {
		_, _ = fmt.Fprintf(out, "  %s: %s(%d)\n", f.Name, f.Transform, f.SourceID)
	}
}
