// Package sink wires configuration, table resolution and equality field
// resolution into task writers and an aggregated committer.
package sink

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/zegnqin/seatunnel/commit"
	"github.com/zegnqin/seatunnel/iceberg"
	"github.com/zegnqin/seatunnel/icebergerr"
	"github.com/zegnqin/seatunnel/internal/config"
	"github.com/zegnqin/seatunnel/loader"
	"github.com/zegnqin/seatunnel/metrics"
	"github.com/zegnqin/seatunnel/row"
)

// PluginName identifies the sink to the engine.
const PluginName = "Iceberg"

// Sink holds the normalized job configuration of one target table.
type Sink struct {
	cfg             config.SinkConfig
	table           *CatalogTable
	rowType         row.Schema
	equalityColumns []string
	format          iceberg.FileFormat
	logger          *slog.Logger
}

// Option configures a Sink.
type Option func(*Sink)

// WithLogger sets the logger. nil keeps slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Sink) {
		if l != nil {
			s.logger = l
		}
	}
}

// New normalizes table to lower-case column names and picks the equality
// columns: the table's primary key unless primary_keys is configured. A nil
// table leaves the row type to SetTypeInfo.
func New(cfg config.SinkConfig, table *CatalogTable, opts ...Option) (*Sink, error) {
	s := &Sink{cfg: cfg, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	s.logger = s.logger.With("component", "sink")

	if cfg.FileFormat != "" {
		f, err := iceberg.ParseFileFormat(cfg.FileFormat)
		if err != nil {
			return nil, &icebergerr.ConfigurationError{Field: "file_format", Reason: "unknown file format", Err: err}
		}
		s.format = f
	}

	if table != nil {
		lower, err := table.LowerCase()
		if err != nil {
			return nil, &icebergerr.ConfigurationError{Field: "schema", Reason: "column names collide when lower-cased", Err: err}
		}
		s.table = &lower
		s.rowType = lower.Schema
		if lower.PrimaryKey != nil {
			s.equalityColumns = slices.Clone(lower.PrimaryKey.Columns)
		}
	}
	if len(cfg.PrimaryKeys) > 0 {
		s.equalityColumns = slices.Clone(cfg.PrimaryKeys)
	}
	return s, nil
}

// SetTypeInfo supplies the row type when the sink was created without a
// catalog table. It has no effect once a row type is known.
func (s *Sink) SetTypeInfo(rowType row.Schema) error {
	if s.rowType.Len() > 0 {
		return nil
	}
	lower, err := rowType.LowerCase()
	if err != nil {
		return &icebergerr.ConfigurationError{Field: "schema", Reason: "column names collide when lower-cased", Err: err}
	}
	s.rowType = lower
	s.equalityColumns = slices.Clone(s.cfg.PrimaryKeys)
	return nil
}

// RowType is the lower-cased row type the sink consumes.
func (s *Sink) RowType() row.Schema { return s.rowType }

// EqualityColumns are the configured key column names.
func (s *Sink) EqualityColumns() []string { return slices.Clone(s.equalityColumns) }

func (s *Sink) newLoader() (*loader.TableLoader, error) {
	var hint *loader.CatalogTableHint
	if s.table != nil {
		hint = &loader.CatalogTableHint{Namespace: s.table.Namespace, Table: s.table.Name}
	}
	return loader.CreateWithHint(s.cfg.CommonConfig, hint, loader.WithLogger(s.logger))
}

func (s *Sink) openTable(ctx context.Context) (*loader.TableLoader, *iceberg.Table, error) {
	tl, err := s.newLoader()
	if err != nil {
		return nil, nil, err
	}
	if err := tl.Open(ctx); err != nil {
		return nil, nil, err
	}
	table, err := tl.LoadTable(ctx)
	if err != nil {
		tl.Close()
		return nil, nil, err
	}
	return tl, table, nil
}

// CheckAndGetEqualityFieldIDs loads the table once and resolves the
// equality columns against its schema.
func (s *Sink) CheckAndGetEqualityFieldIDs(ctx context.Context) ([]int, error) {
	tl, table, err := s.openTable(ctx)
	if err != nil {
		return nil, fmt.Errorf("load iceberg table: %w", err)
	}
	defer tl.Close()
	return ResolveEqualityFieldIDs(table.Schema(), s.equalityColumns, s.logger)
}

// ResolveEqualityFieldIDs starts from the schema's identifier fields. When
// columns are given they are resolved to field ids and replace the
// identifier fields; a warning is logged if the two sets differ.
func ResolveEqualityFieldIDs(schema *iceberg.Schema, columns []string, logger *slog.Logger) ([]int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ids := slices.Clone(schema.IdentifierFieldIDs)
	if len(columns) == 0 {
		return ids, nil
	}

	set := make(map[int]struct{}, len(columns))
	configured := make([]int, 0, len(columns))
	for _, column := range columns {
		f, ok := schema.FindFieldByName(column)
		if !ok {
			return nil, &icebergerr.ConfigurationError{
				Field:  column,
				Reason: "missing required equality field column in table schema " + schema.String(),
			}
		}
		if _, dup := set[f.ID]; dup {
			continue
		}
		set[f.ID] = struct{}{}
		configured = append(configured, f.ID)
	}

	identifiers := make(map[int]struct{}, len(schema.IdentifierFieldIDs))
	for _, id := range schema.IdentifierFieldIDs {
		identifiers[id] = struct{}{}
	}
	if !maps.Equal(set, identifiers) {
		metrics.EqualityFieldOverrides.Inc()
		logger.Warn("The configured equality field column IDs are not matched with the schema identifier field IDs, use job specified equality field columns as the equality fields by default.",
			"equality_field_ids", configured,
			"identifier_field_ids", schema.IdentifierFieldIDs,
		)
	}
	return configured, nil
}

// Writer is a task writer bound to the loader that produced its table.
type Writer struct {
	*TaskWriter
	loader *loader.TableLoader
}

// Close releases the catalog connection. Files not yet prepared for commit
// are abandoned.
func (w *Writer) Close() error { return w.loader.Close() }

// CreateWriter loads the table, resolves the equality fields and builds the
// writer of task taskID.
func (s *Sink) CreateWriter(ctx context.Context, taskID int) (*Writer, error) {
	if s.rowType.Len() == 0 {
		return nil, &icebergerr.PreconditionError{Message: "row type is not set"}
	}
	tl, table, err := s.openTable(ctx)
	if err != nil {
		return nil, err
	}
	ids, err := ResolveEqualityFieldIDs(table.Schema(), s.equalityColumns, s.logger)
	if err != nil {
		tl.Close()
		return nil, err
	}
	factory, err := NewTaskWriterFactory(table, s.rowType, TaskWriterOptions{
		TargetFileSizeBytes: s.cfg.TargetFileSizeBytes,
		Format:              s.format,
		Props:               s.cfg.WriteProps,
		EqualityFieldIDs:    ids,
		Upsert:              s.cfg.EnableUpsert,
		Logger:              s.logger,
	})
	if err != nil {
		tl.Close()
		return nil, err
	}
	s.logger.Info("task writer created",
		"task_id", taskID,
		"table", table.Identifier().String(),
		"format", factory.Format(),
		"equality_field_ids", ids,
		"upsert", factory.Upsert(),
	)
	return &Writer{TaskWriter: factory.NewTaskWriter(taskID, 0), loader: tl}, nil
}

// AggregatedCommitter merges the results of all task writers of a
// checkpoint and commits them as one snapshot.
type AggregatedCommitter struct {
	loader    *loader.TableLoader
	committer *commit.Committer
	logger    *slog.Logger
}

// CreateAggregatedCommitter opens its own loader on the target table.
func (s *Sink) CreateAggregatedCommitter(ctx context.Context) (*AggregatedCommitter, error) {
	tl, err := s.newLoader()
	if err != nil {
		return nil, err
	}
	if err := tl.Open(ctx); err != nil {
		return nil, err
	}
	c, err := commit.New(tl.Catalog(),
		commit.WithLogger(s.logger),
		commit.WithRetry(s.cfg.CommitRetries, s.cfg.CommitBackoffBase, s.cfg.CommitBackoffCap),
	)
	if err != nil {
		tl.Close()
		return nil, err
	}
	return &AggregatedCommitter{loader: tl, committer: c, logger: s.logger}, nil
}

// Combine merges per-task results.
func (c *AggregatedCommitter) Combine(results ...commit.WriteResult) commit.WriteResult {
	return commit.Merge(results...)
}

// Commit publishes results as one snapshot. Nothing is committed when no
// files were written.
func (c *AggregatedCommitter) Commit(ctx context.Context, results ...commit.WriteResult) (*iceberg.Snapshot, error) {
	table, err := c.loader.LoadTable(ctx)
	if err != nil {
		return nil, err
	}
	return c.committer.Commit(ctx, table, results...)
}

// Abort deletes the files of results that will never be committed.
func (c *AggregatedCommitter) Abort(ctx context.Context, results ...commit.WriteResult) error {
	table, err := c.loader.LoadTable(ctx)
	if err != nil {
		return err
	}
	return commit.Abort(ctx, table.IO(), commit.Merge(results...), c.logger)
}

// Close releases the catalog connection.
func (c *AggregatedCommitter) Close() error { return c.loader.Close() }
