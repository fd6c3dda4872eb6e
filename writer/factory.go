// Package writer turns logical rows into data, equality-delete and
// position-delete files of an iceberg table.
package writer

import (
	"context"
	"maps"
	"sync"

	"github.com/zegnqin/seatunnel/iceberg"
	"github.com/zegnqin/seatunnel/icebergerr"
	"github.com/zegnqin/seatunnel/metrics"
	"github.com/zegnqin/seatunnel/row"
	"github.com/zegnqin/seatunnel/storage"
)

// AppenderFactory builds file writers for one table. Its configuration is
// fixed at construction; it is safe for concurrent use.
type AppenderFactory struct {
	table              *iceberg.Table
	schema             *iceberg.Schema
	rowType            row.Schema
	props              map[string]string
	spec               *iceberg.PartitionSpec
	equalityFieldIDs   []int
	eqDeleteRowSchema  *iceberg.Schema
	posDeleteRowSchema *iceberg.Schema

	eqOnce    sync.Once
	eqRowType row.Schema
	eqErr     error

	posOnce    sync.Once
	posRowType row.Schema
	posErr     error
}

// NewAppenderFactory captures the write configuration. A nil schema or spec
// defaults to the table's current one. props override table properties.
func NewAppenderFactory(
	table *iceberg.Table,
	schema *iceberg.Schema,
	rowType row.Schema,
	props map[string]string,
	spec *iceberg.PartitionSpec,
	equalityFieldIDs []int,
	eqDeleteRowSchema *iceberg.Schema,
	posDeleteRowSchema *iceberg.Schema,
) (*AppenderFactory, error) {
	if table == nil {
		return nil, &icebergerr.PreconditionError{Message: "table shouldn't be null"}
	}
	if schema == nil {
		schema = table.Schema()
	}
	if spec == nil {
		spec = table.Spec()
	}
	merged := maps.Clone(table.Properties())
	if merged == nil {
		merged = map[string]string{}
	}
	maps.Copy(merged, props)

	return &AppenderFactory{
		table:              table,
		schema:             schema,
		rowType:            rowType,
		props:              merged,
		spec:               spec,
		equalityFieldIDs:   append([]int(nil), equalityFieldIDs...),
		eqDeleteRowSchema:  eqDeleteRowSchema,
		posDeleteRowSchema: posDeleteRowSchema,
	}, nil
}

// Schema is the physical schema of data files.
func (f *AppenderFactory) Schema() *iceberg.Schema { return f.schema }

// Spec is the partition spec new files are written for.
func (f *AppenderFactory) Spec() *iceberg.PartitionSpec { return f.spec }

// EqualityFieldIDs are recorded on equality-delete files.
func (f *AppenderFactory) EqualityFieldIDs() []int { return append([]int(nil), f.equalityFieldIDs...) }

// projectRowType returns, in delete-schema order, the logical columns named
// by the delete schema.
func projectRowType(rowType row.Schema, deleteSchema *iceberg.Schema) (row.Schema, error) {
	fields := make([]row.Field, 0, len(deleteSchema.Fields))
	for _, df := range deleteSchema.Fields {
		i := rowType.IndexOf(df.Name)
		if i < 0 {
			return row.Schema{}, &icebergerr.ConfigurationError{Field: df.Name, Reason: "delete column is not in the row type " + rowType.String()}
		}
		fields = append(fields, rowType.Field(i))
	}
	return row.NewSchema(fields...)
}

// EqualityDeleteRowType is the logical row type of equality-delete rows.
func (f *AppenderFactory) EqualityDeleteRowType() (row.Schema, error) {
	if f.eqDeleteRowSchema == nil {
		return row.Schema{}, &icebergerr.PreconditionError{Message: "equality delete row schema shouldn't be null"}
	}
	f.eqOnce.Do(func() {
		f.eqRowType, f.eqErr = projectRowType(f.rowType, f.eqDeleteRowSchema)
	})
	return f.eqRowType, f.eqErr
}

// PositionDeleteRowType is the logical row type of the row column of
// position-delete files.
func (f *AppenderFactory) PositionDeleteRowType() (row.Schema, error) {
	if f.posDeleteRowSchema == nil {
		return row.Schema{}, &icebergerr.PreconditionError{Message: "position delete row schema shouldn't be null"}
	}
	f.posOnce.Do(func() {
		f.posRowType, f.posErr = projectRowType(f.rowType, f.posDeleteRowSchema)
	})
	return f.posRowType, f.posErr
}

func (f *AppenderFactory) openStream(ctx context.Context, out storage.OutputFile, format iceberg.FileFormat, schema *iceberg.Schema) (storage.PositionWriteCloser, fileWriter, error) {
	enc, ok := lookupEncoding(format)
	if !ok {
		return nil, nil, &icebergerr.UnsupportedFormatError{Format: string(format), Operation: "write"}
	}
	stream, err := out.CreateOrOverwrite(ctx)
	if err != nil {
		return nil, nil, &icebergerr.WriteIOError{Path: out.Location(), Op: "create", Err: err}
	}
	fw, err := enc.newFileWriter(stream, schema, f.props)
	if err != nil {
		// The stream is abandoned unclosed so no object is stored.
		return nil, nil, err
	}
	return stream, fw, nil
}

// NewAppender creates a data-row appender at out. Any existing file there is
// replaced.
func (f *AppenderFactory) NewAppender(ctx context.Context, out storage.OutputFile, format iceberg.FileFormat) (*FileAppender[row.Row], error) {
	if _, ok := lookupEncoding(format); !ok {
		return nil, &icebergerr.UnsupportedFormatError{Format: string(format), Operation: "write"}
	}
	mc, err := iceberg.MetricsConfigForTable(f.table)
	if err != nil {
		return nil, err
	}
	tr, err := newRowTranslator(f.rowType, f.schema)
	if err != nil {
		return nil, err
	}
	stream, fw, err := f.openStream(ctx, out, format, f.schema)
	if err != nil {
		return nil, err
	}
	return newFileAppender(stream, out.Location(), format, fw, tr.translate, newStatsCollector(f.schema, mc)), nil
}

// NewDataWriter creates a writer for a data file in partition.
func (f *AppenderFactory) NewDataWriter(ctx context.Context, file storage.EncryptedOutputFile, format iceberg.FileFormat, partition iceberg.PartitionKey) (*DataWriter, error) {
	a, err := f.NewAppender(ctx, file.EncryptingOutputFile(), format)
	if err != nil {
		return nil, err
	}
	metrics.WritersOpened.WithLabelValues("data", string(format)).Inc()
	return &DataWriter{
		appender:    a,
		spec:        f.spec,
		partition:   partition,
		keyMetadata: file.KeyMetadata(),
	}, nil
}

// NewEqualityDeleteWriter creates a writer for an equality-delete file.
// Rows passed to it are in EqualityDeleteRowType.
func (f *AppenderFactory) NewEqualityDeleteWriter(ctx context.Context, file storage.EncryptedOutputFile, format iceberg.FileFormat, partition iceberg.PartitionKey) (*EqualityDeleteWriter, error) {
	if len(f.equalityFieldIDs) == 0 {
		return nil, &icebergerr.PreconditionError{Message: "equality field ids shouldn't be null or empty when creating equality-delete writer"}
	}
	if f.eqDeleteRowSchema == nil {
		return nil, &icebergerr.PreconditionError{Message: "equality delete row schema shouldn't be null when creating equality-delete writer"}
	}
	if _, ok := lookupEncoding(format); !ok {
		return nil, &icebergerr.UnsupportedFormatError{Format: string(format), Operation: "write equality deletes"}
	}

	rowType, err := f.EqualityDeleteRowType()
	if err != nil {
		return nil, err
	}
	mc, err := iceberg.MetricsConfigForTable(f.table)
	if err != nil {
		return nil, err
	}
	tr, err := newRowTranslator(rowType, f.eqDeleteRowSchema)
	if err != nil {
		return nil, err
	}
	out := file.EncryptingOutputFile()
	stream, fw, err := f.openStream(ctx, out, format, f.eqDeleteRowSchema)
	if err != nil {
		return nil, err
	}
	metrics.WritersOpened.WithLabelValues("equality_delete", string(format)).Inc()
	return &EqualityDeleteWriter{
		appender:         newFileAppender(stream, out.Location(), format, fw, tr.translate, newStatsCollector(f.eqDeleteRowSchema, mc)),
		spec:             f.spec,
		partition:        partition,
		keyMetadata:      file.KeyMetadata(),
		equalityFieldIDs: f.EqualityFieldIDs(),
	}, nil
}

// NewPositionDeleteWriter creates a writer for a position-delete file with
// the file_path, pos, row layout.
func (f *AppenderFactory) NewPositionDeleteWriter(ctx context.Context, file storage.EncryptedOutputFile, format iceberg.FileFormat, partition iceberg.PartitionKey) (*PositionDeleteWriter, error) {
	if f.posDeleteRowSchema == nil {
		return nil, &icebergerr.PreconditionError{Message: "position delete row schema shouldn't be null when creating position-delete writer"}
	}
	if _, ok := lookupEncoding(format); !ok {
		return nil, &icebergerr.UnsupportedFormatError{Format: string(format), Operation: "write position deletes"}
	}

	rowType, err := f.PositionDeleteRowType()
	if err != nil {
		return nil, err
	}
	mc, err := iceberg.MetricsConfigForPositionDelete(f.table)
	if err != nil {
		return nil, err
	}
	layout := iceberg.PositionDeleteSchema(f.posDeleteRowSchema)
	tr, err := newPositionDeleteTranslator(rowType, layout)
	if err != nil {
		return nil, err
	}
	out := file.EncryptingOutputFile()
	stream, fw, err := f.openStream(ctx, out, format, layout)
	if err != nil {
		return nil, err
	}
	metrics.WritersOpened.WithLabelValues("position_delete", string(format)).Inc()
	return &PositionDeleteWriter{
		appender:    newFileAppender(stream, out.Location(), format, fw, tr.translate, newStatsCollector(layout, mc)),
		spec:        f.spec,
		partition:   partition,
		keyMetadata: file.KeyMetadata(),
		referenced:  make(map[string]struct{}),
	}, nil
}
