package writer

import (
	"fmt"
	"slices"

	"github.com/zegnqin/seatunnel/iceberg"
	"github.com/zegnqin/seatunnel/row"
)

// DataWriter writes full rows into one data file.
type DataWriter struct {
	appender    *FileAppender[row.Row]
	spec        *iceberg.PartitionSpec
	partition   iceberg.PartitionKey
	keyMetadata []byte

	file   iceberg.DataFile
	closed bool
}

// Write appends r. Its position in the file is RecordCount before the call.
func (w *DataWriter) Write(r row.Row) error { return w.appender.Add(r) }

// Location is the data file location.
func (w *DataWriter) Location() string { return w.appender.Location() }

// RecordCount is the number of rows written.
func (w *DataWriter) RecordCount() int64 { return w.appender.RecordCount() }

// Length is the current file size estimate.
func (w *DataWriter) Length() int64 { return w.appender.Length() }

// Close finishes the file. Closing twice does nothing.
func (w *DataWriter) Close() error {
	if w.closed {
		return nil
	}
	if err := w.appender.Close(); err != nil {
		return err
	}
	f, err := w.appender.toDataFile(iceberg.ContentData, w.spec, w.partition, w.keyMetadata)
	if err != nil {
		return err
	}
	w.file = f
	w.closed = true
	return nil
}

// DataFile describes the written file. Valid after Close.
func (w *DataWriter) DataFile() (iceberg.DataFile, error) {
	if !w.closed {
		return iceberg.DataFile{}, fmt.Errorf("data file %s is still open", w.Location())
	}
	return w.file, nil
}

// EqualityDeleteWriter writes key rows, in the equality-delete row type, into
// one equality-delete file.
type EqualityDeleteWriter struct {
	appender         *FileAppender[row.Row]
	spec             *iceberg.PartitionSpec
	partition        iceberg.PartitionKey
	keyMetadata      []byte
	equalityFieldIDs []int

	file   iceberg.DataFile
	closed bool
}

// Write appends one delete key.
func (w *EqualityDeleteWriter) Write(key row.Row) error { return w.appender.Add(key) }

// Location is the delete file location.
func (w *EqualityDeleteWriter) Location() string { return w.appender.Location() }

// RecordCount is the number of delete keys written.
func (w *EqualityDeleteWriter) RecordCount() int64 { return w.appender.RecordCount() }

// Length is the current file size estimate.
func (w *EqualityDeleteWriter) Length() int64 { return w.appender.Length() }

// Close finishes the file. Closing twice does nothing.
func (w *EqualityDeleteWriter) Close() error {
	if w.closed {
		return nil
	}
	if err := w.appender.Close(); err != nil {
		return err
	}
	f, err := w.appender.toDataFile(iceberg.ContentEqualityDeletes, w.spec, w.partition, w.keyMetadata)
	if err != nil {
		return err
	}
	f.EqualityIDs = w.equalityFieldIDs
	w.file = f
	w.closed = true
	return nil
}

// DeleteFile describes the written file. Valid after Close.
func (w *EqualityDeleteWriter) DeleteFile() (iceberg.DataFile, error) {
	if !w.closed {
		return iceberg.DataFile{}, fmt.Errorf("delete file %s is still open", w.Location())
	}
	return w.file, nil
}

// PositionDeleteWriter writes file/position pairs into one position-delete
// file.
type PositionDeleteWriter struct {
	appender    *FileAppender[PositionDelete]
	spec        *iceberg.PartitionSpec
	partition   iceberg.PartitionKey
	keyMetadata []byte
	referenced  map[string]struct{}

	file   iceberg.DataFile
	closed bool
}

// Write appends one position delete.
func (w *PositionDeleteWriter) Write(d PositionDelete) error {
	if err := w.appender.Add(d); err != nil {
		return err
	}
	w.referenced[d.Path] = struct{}{}
	return nil
}

// Delete is Write without a row.
func (w *PositionDeleteWriter) Delete(path string, pos int64) error {
	return w.Write(PositionDelete{Path: path, Pos: pos})
}

// Location is the delete file location.
func (w *PositionDeleteWriter) Location() string { return w.appender.Location() }

// RecordCount is the number of position deletes written.
func (w *PositionDeleteWriter) RecordCount() int64 { return w.appender.RecordCount() }

// Length is the current file size estimate.
func (w *PositionDeleteWriter) Length() int64 { return w.appender.Length() }

// ReferencedDataFiles lists the data files the deletes point at, sorted.
func (w *PositionDeleteWriter) ReferencedDataFiles() []string {
	out := make([]string, 0, len(w.referenced))
	for p := range w.referenced {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

// Close finishes the file. Closing twice does nothing.
func (w *PositionDeleteWriter) Close() error {
	if w.closed {
		return nil
	}
	if err := w.appender.Close(); err != nil {
		return err
	}
	f, err := w.appender.toDataFile(iceberg.ContentPositionDeletes, w.spec, w.partition, w.keyMetadata)
	if err != nil {
		return err
	}
	w.file = f
	w.closed = true
	return nil
}

// DeleteFile describes the written file. Valid after Close.
func (w *PositionDeleteWriter) DeleteFile() (iceberg.DataFile, error) {
	if !w.closed {
		return iceberg.DataFile{}, fmt.Errorf("delete file %s is still open", w.Location())
	}
	return w.file, nil
}
