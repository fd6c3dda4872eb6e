package writer

import (
	"errors"
	"fmt"

	"github.com/zegnqin/seatunnel/iceberg"
	"github.com/zegnqin/seatunnel/icebergerr"
	"github.com/zegnqin/seatunnel/metrics"
	"github.com/zegnqin/seatunnel/storage"
)

var errAppenderClosed = errors.New("appender closed")

// FileAppender serializes values of type T into one file. Not safe for
// concurrent use.
type FileAppender[T any] struct {
	location  string
	format    iceberg.FileFormat
	stream    storage.PositionWriteCloser
	fw        fileWriter
	translate func(T) ([]any, error)
	stats     *statsCollector

	records int64
	closed  bool
	length  int64
	fm      fileMetrics
}

func newFileAppender[T any](out storage.PositionWriteCloser, location string, format iceberg.FileFormat, fw fileWriter, translate func(T) ([]any, error), stats *statsCollector) *FileAppender[T] {
	return &FileAppender[T]{
		location:  location,
		format:    format,
		stream:    out,
		fw:        fw,
		translate: translate,
		stats:     stats,
	}
}

// Add appends one value.
func (a *FileAppender[T]) Add(v T) error {
	if a.closed {
		return fmt.Errorf("add to %s: %w", a.location, errAppenderClosed)
	}
	rec, err := a.translate(v)
	if err != nil {
		return fmt.Errorf("translate record for %s: %w", a.location, err)
	}
	if err := a.fw.write(rec); err != nil {
		return &icebergerr.WriteIOError{Path: a.location, Op: "write", Err: err}
	}
	a.stats.update(rec)
	a.records++
	return nil
}

// Location is the target file location.
func (a *FileAppender[T]) Location() string { return a.location }

// Format is the file encoding.
func (a *FileAppender[T]) Format() iceberg.FileFormat { return a.format }

// RecordCount is the number of values added.
func (a *FileAppender[T]) RecordCount() int64 { return a.records }

// Length is the file size once closed; before that it is the larger of the
// bytes flushed so far and the estimated record size.
func (a *FileAppender[T]) Length() int64 {
	if a.closed {
		return a.length
	}
	return max(a.stream.Length(), a.stats.estimatedBytes())
}

// Close flushes the encoder and stores the file. Closing twice does nothing.
func (a *FileAppender[T]) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true
	if err := a.fw.close(); err != nil {
		a.stream.Close()
		return &icebergerr.WriteIOError{Path: a.location, Op: "flush", Err: err}
	}
	a.length = a.stream.Length()
	if err := a.stream.Close(); err != nil {
		return &icebergerr.WriteIOError{Path: a.location, Op: "close", Err: err}
	}
	fm, err := a.stats.metrics()
	if err != nil {
		return fmt.Errorf("column metrics for %s: %w", a.location, err)
	}
	a.fm = fm
	metrics.BytesWritten.WithLabelValues(string(a.format)).Add(float64(a.length))
	return nil
}

// toDataFile fills the file-level fields of a DataFile. Valid after Close.
func (a *FileAppender[T]) toDataFile(content iceberg.FileContent, spec *iceberg.PartitionSpec, partition iceberg.PartitionKey, keyMetadata []byte) (iceberg.DataFile, error) {
	if !a.closed {
		return iceberg.DataFile{}, fmt.Errorf("file %s is still open", a.location)
	}
	metrics.FilesWritten.WithLabelValues(content.String(), string(a.format)).Inc()
	return iceberg.DataFile{
		Content:         content,
		FilePath:        a.location,
		FileFormat:      a.format,
		SpecID:          spec.SpecID,
		PartitionData:   partition.Data(),
		RecordCount:     a.records,
		FileSizeBytes:   a.length,
		ColumnSizes:     a.fm.columnSizes,
		ValueCounts:     a.fm.valueCounts,
		NullValueCounts: a.fm.nullValueCounts,
		NaNValueCounts:  a.fm.nanValueCounts,
		LowerBounds:     a.fm.lowerBounds,
		UpperBounds:     a.fm.upperBounds,
		KeyMetadata:     keyMetadata,
	}, nil
}
