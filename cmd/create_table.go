package cmd

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zegnqin/seatunnel/catalog"
	"github.com/zegnqin/seatunnel/iceberg"
	"github.com/zegnqin/seatunnel/loader"
	"github.com/zegnqin/seatunnel/row"
	"github.com/zegnqin/seatunnel/typeconv"
)

var createTableCmd = &cobra.Command{
	Use:   "create-table",
	Short: "Create the configured table from an engine row type",
	Long: `Creates the table named by --namespace and --table. Columns are given as
name:TYPE using engine type names (STRING, INT, BIGINT, DECIMAL(10,2), TIMESTAMP, ...).
Primary key columns become the table's identifier fields. Partition fields are
a column name for identity partitioning or transform(column), e.g. day(ts) or
truncate[4](name).`,
	Example: `  icesink create-table --warehouse /tmp/wh --namespace db --table people \
    --column id:STRING --column name:STRING --column age:INT --primary-key id`,
	Args: cobra.NoArgs,
	RunE: runCreateTable,
}

func init() {
	rootCmd.AddCommand(createTableCmd)
	f := createTableCmd.Flags()
	f.StringSlice("column", nil, "column as name:TYPE (repeatable, in order)")
	f.StringSlice("primary-key", nil, "identifier column (repeatable)")
	f.StringSlice("partition", nil, "partition field as column or transform(column) (repeatable)")
	f.StringToString("property", nil, "table property key=value (repeatable)")
	f.String("format", "parquet", "default data file format: parquet, orc")
}

func runCreateTable(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	columns, _ := cmd.Flags().GetStringSlice("column")
	primaryKeys, _ := cmd.Flags().GetStringSlice("primary-key")
	partitions, _ := cmd.Flags().GetStringSlice("partition")
	props, _ := cmd.Flags().GetStringToString("property")
	format, _ := cmd.Flags().GetString("format")

	rowType, err := parseColumns(columns)
	if err != nil {
		return err
	}
	rowType, err = rowType.LowerCase()
	if err != nil {
		return err
	}
	schema, err := typeconv.SchemaToPhysical(rowType, lower(primaryKeys))
	if err != nil {
		return err
	}
	spec, err := parsePartitionSpec(schema, partitions)
	if err != nil {
		return err
	}
	ff, err := iceberg.ParseFileFormat(format)
	if err != nil {
		return err
	}

	tableProps := map[string]string{iceberg.PropDefaultFileFormat: strings.ToLower(string(ff))}
	for k, v := range props {
		tableProps[k] = v
	}
	// Parquet files carry no field ids, readers resolve columns by name.
	mapping, err := iceberg.NameMappingJSON(schema)
	if err != nil {
		return fmt.Errorf("build name mapping: %w", err)
	}
	tableProps[iceberg.PropNameMappingDefault] = mapping

	ctx := cmd.Context()
	tl, err := loader.Create(cfg.Sink.CommonConfig)
	if err != nil {
		return err
	}
	if err := tl.Open(ctx); err != nil {
		return err
	}
	defer func() { _ = tl.Close() }()

	creator, ok := catalog.AsCreator(tl.Catalog())
	if !ok {
		return fmt.Errorf("create table: %w", catalog.ErrNotSupported)
	}
	tbl, err := creator.CreateTable(ctx, tl.Identifier(), schema, spec, tableProps)
	if err != nil {
		return fmt.Errorf("create table %s: %w", tl.Identifier(), err)
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "created %s at %s\n", tbl.Identifier(), tbl.Location())
	return nil
}

// parseColumns turns name:TYPE pairs into a row type.
func parseColumns(columns []string) (row.Schema, error) {
	if len(columns) == 0 {
		return row.Schema{}, fmt.Errorf("at least one --column is required")
	}
	fields := make([]row.Field, 0, len(columns))
	for _, c := range columns {
		name, typ, ok := strings.Cut(c, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return row.Schema{}, fmt.Errorf("column %q: expected name:TYPE", c)
		}
		t, err := row.ParseType(typ)
		if err != nil {
			return row.Schema{}, fmt.Errorf("column %s: %w", name, err)
		}
		fields = append(fields, row.Field{Name: name, Type: t})
	}
	return row.NewSchema(fields...)
}

var partitionFieldRe = regexp.MustCompile(`^([a-z]+(?:\[\d+\])?)\(\s*([^()\s]+)\s*\)$`)

// parsePartitionSpec builds spec 0 with partition field ids from 1000.
func parsePartitionSpec(schema *iceberg.Schema, fields []string) (*iceberg.PartitionSpec, error) {
	spec := iceberg.UnpartitionedSpec()
	for i, raw := range fields {
		raw = strings.TrimSpace(raw)
		transform, column := "identity", raw
		if m := partitionFieldRe.FindStringSubmatch(strings.ToLower(raw)); m != nil {
			transform, column = m[1], m[2]
		}
		column = strings.ToLower(column)
		src, ok := schema.FindFieldByName(column)
		if !ok {
			return nil, fmt.Errorf("partition %q: column %s is not in the schema", raw, column)
		}
		tr, err := iceberg.ParseTransform(transform)
		if err != nil {
			return nil, fmt.Errorf("partition %q: %w", raw, err)
		}
		spec.Fields = append(spec.Fields, iceberg.PartitionField{
			SourceID:  src.ID,
			FieldID:   1000 + i,
			Name:      partitionFieldName(column, tr.String()),
			Transform: tr.String(),
		})
	}
	return spec, nil
}

func partitionFieldName(column, transform string) string {
	switch {
	case transform == "identity":
		return column
	case transform == "void":
		return column + "_null"
	case strings.HasPrefix(transform, "truncate"):
		return column + "_trunc"
	case strings.HasPrefix(transform, "bucket"):
		return column + "_bucket"
	default:
		return column + "_" + transform
	}
}

func lower(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = strings.ToLower(strings.TrimSpace(n))
	}
	return out
}
