package sink

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/zegnqin/seatunnel/commit"
	"github.com/zegnqin/seatunnel/iceberg"
	"github.com/zegnqin/seatunnel/icebergerr"
	"github.com/zegnqin/seatunnel/row"
	"github.com/zegnqin/seatunnel/storage"
	"github.com/zegnqin/seatunnel/tracing"
	"github.com/zegnqin/seatunnel/writer"
)

// TaskWriterOptions are the write settings shared by the task writers of a
// sink. Zero values fall back to table properties.
type TaskWriterOptions struct {
	TargetFileSizeBytes int64
	Format              iceberg.FileFormat
	Props               map[string]string
	EqualityFieldIDs    []int
	Upsert              bool
	Logger              *slog.Logger
}

// TaskWriterFactory builds task writers for one table.
type TaskWriterFactory struct {
	table            *iceberg.Table
	rowType          row.Schema
	targetFileSize   int64
	format           iceberg.FileFormat
	equalityFieldIDs []int
	upsert           bool
	logger           *slog.Logger
	tracer           trace.Tracer

	appenders    *writer.AppenderFactory
	partitioner  *writer.Partitioner
	keyRowType   row.Schema
	keyPositions []int
}

// NewTaskWriterFactory resolves formats, key columns and partitioning for
// rows of rowType written into table.
func NewTaskWriterFactory(table *iceberg.Table, rowType row.Schema, opts TaskWriterOptions) (*TaskWriterFactory, error) {
	if table == nil {
		return nil, &icebergerr.PreconditionError{Message: "table shouldn't be null"}
	}
	props := table.Properties()

	format := opts.Format
	if format == "" {
		def := props[iceberg.PropDefaultFileFormat]
		if def == "" {
			def = string(iceberg.FormatParquet)
		}
		f, err := iceberg.ParseFileFormat(def)
		if err != nil {
			return nil, &icebergerr.ConfigurationError{Field: iceberg.PropDefaultFileFormat, Reason: "invalid file format", Err: err}
		}
		format = f
	}

	target := opts.TargetFileSizeBytes
	if target <= 0 {
		target = iceberg.DefaultTargetFileSizeBytes
		if v, ok := props[iceberg.PropTargetFileSizeBytes]; ok {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil || n <= 0 {
				return nil, &icebergerr.ConfigurationError{Field: iceberg.PropTargetFileSizeBytes, Reason: fmt.Sprintf("invalid size %q", v)}
			}
			target = n
		}
	}

	upsert := opts.Upsert || strings.EqualFold(props[iceberg.PropUpsertEnabled], "true")
	if upsert && len(opts.EqualityFieldIDs) == 0 {
		return nil, &icebergerr.ConfigurationError{Field: "enable_upsert", Reason: "upsert needs primary keys or table identifier fields"}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	f := &TaskWriterFactory{
		table:            table,
		rowType:          rowType,
		targetFileSize:   target,
		format:           format,
		equalityFieldIDs: slices.Clone(opts.EqualityFieldIDs),
		upsert:           upsert,
		logger:           logger.With("component", "task_writer"),
		tracer:           tracing.Tracer("icesink.sink"),
	}

	schema := table.Schema()
	var keySchema *iceberg.Schema
	if len(f.equalityFieldIDs) > 0 {
		ks, err := schema.Select(f.equalityFieldIDs...)
		if err != nil {
			return nil, &icebergerr.ConfigurationError{Field: "primary_keys", Reason: "equality field ids are not in the table schema", Err: err}
		}
		keySchema = ks
	}

	// Delete rows carry only the key columns, for equality and position
	// deletes alike.
	appenders, err := writer.NewAppenderFactory(table, schema, rowType, opts.Props, table.Spec(), f.equalityFieldIDs, keySchema, keySchema)
	if err != nil {
		return nil, err
	}
	f.appenders = appenders

	if keySchema != nil {
		keyRowType, err := appenders.EqualityDeleteRowType()
		if err != nil {
			return nil, err
		}
		f.keyRowType = keyRowType
		for _, name := range keyRowType.Names() {
			f.keyPositions = append(f.keyPositions, rowType.IndexOf(name))
		}
	}

	p, err := writer.NewPartitioner(table.Spec(), schema, rowType)
	if err != nil {
		return nil, err
	}
	f.partitioner = p
	return f, nil
}

// Format is the file format of written files.
func (f *TaskWriterFactory) Format() iceberg.FileFormat { return f.format }

// TargetFileSizeBytes is the size at which files roll over.
func (f *TaskWriterFactory) TargetFileSizeBytes() int64 { return f.targetFileSize }

// EqualityFieldIDs are the key field ids of delete files.
func (f *TaskWriterFactory) EqualityFieldIDs() []int { return slices.Clone(f.equalityFieldIDs) }

// Upsert reports whether inserts replace rows with the same key.
func (f *TaskWriterFactory) Upsert() bool { return f.upsert }

func (f *TaskWriterFactory) delta() bool { return len(f.equalityFieldIDs) > 0 }

// NewTaskWriter creates the writer of one parallel task.
func (f *TaskWriterFactory) NewTaskWriter(taskID, attemptID int) *TaskWriter {
	return &TaskWriter{
		f:           f,
		taskID:      taskID,
		attemptID:   attemptID,
		operationID: uuid.New().String(),
		partitions:  make(map[string]*partitionWriter),
	}
}

// TaskWriter routes rows of one task into data and delete files per
// partition. Not safe for concurrent use.
type TaskWriter struct {
	f           *TaskWriterFactory
	taskID      int
	attemptID   int
	operationID string
	fileCount   atomic.Int64

	partitions map[string]*partitionWriter
	order      []string
}

type filePosition struct {
	path string
	pos  int64
	key  row.Row
}

type partitionWriter struct {
	key        iceberg.PartitionKey
	data       *rollingWriter[row.Row, *writer.DataWriter]
	eqDeletes  *rollingWriter[row.Row, *writer.EqualityDeleteWriter]
	posDeletes *rollingWriter[writer.PositionDelete, *writer.PositionDeleteWriter]

	// inserted maps keys written by this task since the last commit to
	// their position, so that a later delete of the key becomes a position
	// delete.
	inserted   map[string]filePosition
	pendingPos []writer.PositionDelete
	referenced map[string]struct{}
}

func (w *TaskWriter) outputFile(key iceberg.PartitionKey) storage.EncryptedOutputFile {
	n := w.fileCount.Add(1)
	name := fmt.Sprintf("%05d-%d-%s-%05d%s", w.taskID, w.attemptID, w.operationID, n, w.f.format.Extension())
	dir := w.f.table.Properties()[iceberg.PropWriteDataPath]
	if dir == "" {
		dir = storage.Join(w.f.table.Location(), "data")
	}
	if p := key.Path(); p != "" {
		dir = storage.Join(dir, p)
	}
	return storage.Plain(storage.NewOutputFile(w.f.table.IO(), storage.Join(dir, name)))
}

func (w *TaskWriter) newPartitionWriter(key iceberg.PartitionKey) *partitionWriter {
	f := w.f
	pw := &partitionWriter{key: key}
	pw.data = newRollingWriter[row.Row, *writer.DataWriter](f.targetFileSize,
		func(ctx context.Context) (*writer.DataWriter, error) {
			return f.appenders.NewDataWriter(ctx, w.outputFile(key), f.format, key)
		},
		func(dw *writer.DataWriter) (iceberg.DataFile, error) { return dw.DataFile() },
	)
	if !f.delta() {
		return pw
	}
	pw.inserted = make(map[string]filePosition)
	pw.referenced = make(map[string]struct{})
	pw.eqDeletes = newRollingWriter[row.Row, *writer.EqualityDeleteWriter](f.targetFileSize,
		func(ctx context.Context) (*writer.EqualityDeleteWriter, error) {
			return f.appenders.NewEqualityDeleteWriter(ctx, w.outputFile(key), f.format, key)
		},
		func(ew *writer.EqualityDeleteWriter) (iceberg.DataFile, error) { return ew.DeleteFile() },
	)
	pw.posDeletes = newRollingWriter[writer.PositionDelete, *writer.PositionDeleteWriter](f.targetFileSize,
		func(ctx context.Context) (*writer.PositionDeleteWriter, error) {
			return f.appenders.NewPositionDeleteWriter(ctx, w.outputFile(key), f.format, key)
		},
		func(pdw *writer.PositionDeleteWriter) (iceberg.DataFile, error) {
			for _, p := range pdw.ReferencedDataFiles() {
				pw.referenced[p] = struct{}{}
			}
			return pdw.DeleteFile()
		},
	)
	return pw
}

func (w *TaskWriter) route(r row.Row) (*partitionWriter, error) {
	key, err := w.f.partitioner.Partition(r)
	if err != nil {
		return nil, fmt.Errorf("partition row: %w", err)
	}
	id := key.String()
	pw, ok := w.partitions[id]
	if !ok {
		pw = w.newPartitionWriter(key)
		w.partitions[id] = pw
		w.order = append(w.order, id)
	}
	return pw, nil
}

// Write routes one row by its kind. Without equality fields only inserts
// and update-afters are accepted. In upsert mode an insert first deletes
// its key and update-befores are skipped.
func (w *TaskWriter) Write(ctx context.Context, r row.Row) error {
	if r.Arity() != w.f.rowType.Len() {
		return fmt.Errorf("row has %d fields, row type %s has %d", r.Arity(), w.f.rowType, w.f.rowType.Len())
	}
	if !w.f.delta() && !r.Kind.IsAddition() {
		return &icebergerr.PreconditionError{Message: fmt.Sprintf("%s rows need equality field columns: set primary_keys or table identifier fields", r.Kind)}
	}
	pw, err := w.route(r)
	if err != nil {
		return err
	}
	if !w.f.delta() {
		return pw.data.write(ctx, r)
	}

	switch r.Kind {
	case row.Insert, row.UpdateAfter:
		if w.f.upsert {
			if err := w.deleteKey(ctx, pw, r); err != nil {
				return err
			}
		}
		return w.insert(ctx, pw, r)
	case row.UpdateBefore:
		if w.f.upsert {
			return nil
		}
		return w.deleteKey(ctx, pw, r)
	case row.Delete:
		return w.deleteKey(ctx, pw, r)
	default:
		return fmt.Errorf("unknown row kind %s", r.Kind)
	}
}

// keyOf projects r onto the key columns and renders a comparable form.
func (w *TaskWriter) keyOf(r row.Row) (row.Row, string, error) {
	key := r.Project(w.f.keyPositions)
	key.Kind = row.Insert
	var b strings.Builder
	for i, v := range key.Fields {
		cv, err := row.Coerce(w.f.keyRowType.Field(i).Type, v)
		if err != nil {
			return row.Row{}, "", fmt.Errorf("key column %s: %w", w.f.keyRowType.Field(i).Name, err)
		}
		fmt.Fprintf(&b, "%T:%v\x00", cv, cv)
	}
	return key, b.String(), nil
}

func (w *TaskWriter) insert(ctx context.Context, pw *partitionWriter, r row.Row) error {
	key, k, err := w.keyOf(r)
	if err != nil {
		return err
	}
	path, pos, err := pw.data.position(ctx)
	if err != nil {
		return err
	}
	if err := pw.data.write(ctx, r); err != nil {
		return err
	}
	if prev, ok := pw.inserted[k]; ok {
		pw.pendingPos = append(pw.pendingPos, writer.PositionDelete{Path: prev.path, Pos: prev.pos, Row: &prev.key})
	}
	pw.inserted[k] = filePosition{path: path, pos: pos, key: key}
	return nil
}

// deleteKey deletes the row inserted earlier by this task in place, or
// writes an equality delete for rows already in the table.
func (w *TaskWriter) deleteKey(ctx context.Context, pw *partitionWriter, r row.Row) error {
	key, k, err := w.keyOf(r)
	if err != nil {
		return err
	}
	if prev, ok := pw.inserted[k]; ok {
		delete(pw.inserted, k)
		pw.pendingPos = append(pw.pendingPos, writer.PositionDelete{Path: prev.path, Pos: prev.pos, Row: &prev.key})
		return nil
	}
	return pw.eqDeletes.write(ctx, key)
}

// close writes the buffered position deletes in file and position order and
// finishes every open file.
func (pw *partitionWriter) close(ctx context.Context) (commit.WriteResult, error) {
	var res commit.WriteResult
	files, err := pw.data.close()
	res.DataFiles = files
	if err != nil || pw.eqDeletes == nil {
		return res, err
	}

	if files, err = pw.eqDeletes.close(); err != nil {
		return res, err
	}
	res.DeleteFiles = append(res.DeleteFiles, files...)

	slices.SortFunc(pw.pendingPos, func(a, b writer.PositionDelete) int {
		if c := strings.Compare(a.Path, b.Path); c != 0 {
			return c
		}
		return cmp.Compare(a.Pos, b.Pos)
	})
	for _, d := range pw.pendingPos {
		if err := pw.posDeletes.write(ctx, d); err != nil {
			return res, err
		}
	}
	if files, err = pw.posDeletes.close(); err != nil {
		return res, err
	}
	res.DeleteFiles = append(res.DeleteFiles, files...)
	res.ReferencedDataFiles = slices.Sorted(maps.Keys(pw.referenced))
	return res, nil
}

func (pw *partitionWriter) locations() []string {
	out := pw.data.locations()
	if pw.eqDeletes != nil {
		out = append(out, pw.eqDeletes.locations()...)
		out = append(out, pw.posDeletes.locations()...)
	}
	return out
}

func (w *TaskWriter) reset() {
	w.partitions = make(map[string]*partitionWriter)
	w.order = nil
}

// PrepareCommit finishes every open file, closing partitions in parallel,
// and returns the files written since the previous call.
func (w *TaskWriter) PrepareCommit(ctx context.Context) (res commit.WriteResult, err error) {
	ctx, span := w.f.tracer.Start(ctx, "icesink.sink.prepare_commit",
		trace.WithAttributes(
			attribute.Int("icesink.task_id", w.taskID),
			attribute.Int("icesink.partitions", len(w.order)),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	results := make([]commit.WriteResult, len(w.order))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range w.order {
		pw := w.partitions[id]
		g.Go(func() error {
			r, err := pw.close(gctx)
			results[i] = r
			if err != nil {
				return fmt.Errorf("close partition %q: %w", pw.key.Path(), err)
			}
			return nil
		})
	}
	err = g.Wait()
	w.reset()
	res = commit.Merge(results...)
	ctx = tracing.ContextWithTable(ctx, w.f.table.Identifier().String())
	if err != nil {
		if abortErr := commit.Abort(ctx, w.f.table.IO(), res, w.f.logger); abortErr != nil {
			w.f.logger.WarnContext(ctx, "delete files of failed commit preparation", "error", abortErr)
		}
		return commit.WriteResult{}, err
	}
	w.f.logger.DebugContext(ctx, "prepared commit",
		"task_id", w.taskID,
		"data_files", len(res.DataFiles),
		"delete_files", len(res.DeleteFiles),
	)
	return res, nil
}

// Abort drops every open file and deletes the files completed since the
// previous PrepareCommit.
func (w *TaskWriter) Abort(ctx context.Context) error {
	var res commit.WriteResult
	for _, id := range w.order {
		for _, loc := range w.partitions[id].locations() {
			res.DataFiles = append(res.DataFiles, iceberg.DataFile{FilePath: loc})
		}
	}
	w.reset()
	return commit.Abort(ctx, w.f.table.IO(), res, w.f.logger)
}
