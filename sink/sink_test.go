package sink_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/zegnqin/seatunnel/catalog"
	"github.com/zegnqin/seatunnel/commit"
	"github.com/zegnqin/seatunnel/iceberg"
	"github.com/zegnqin/seatunnel/icebergerr"
	"github.com/zegnqin/seatunnel/internal/config"
	"github.com/zegnqin/seatunnel/row"
	"github.com/zegnqin/seatunnel/sink"
	"github.com/zegnqin/seatunnel/storage"
)

var peopleRowType = row.MustSchema(
	row.Field{Name: "id", Type: row.String},
	row.Field{Name: "name", Type: row.String},
	row.Field{Name: "age", Type: row.Int},
)

func peopleSchema(identifiers ...int) *iceberg.Schema {
	return iceberg.NewSchema(0, []iceberg.NestedField{
		{ID: 1, Name: "id", Type: iceberg.String, Required: true},
		{ID: 2, Name: "name", Type: iceberg.String},
		{ID: 3, Name: "age", Type: iceberg.Int},
	}, identifiers...)
}

// createTable makes db.people in a fresh Hadoop warehouse.
func createTable(t *testing.T, schema *iceberg.Schema, spec *iceberg.PartitionSpec) (string, *iceberg.Table) {
	t.Helper()
	wh := t.TempDir()
	cat := catalog.NewHadoopCatalog(wh, &storage.LocalStorage{})
	tbl, err := cat.CreateTable(context.Background(), iceberg.NewIdentifier("db", "people"), schema, spec, nil)
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	return wh, tbl
}

func sinkConfig(wh string) config.SinkConfig {
	cfg := config.Default().Sink
	cfg.Warehouse = wh
	cfg.Namespace = "db"
	cfg.Table = "people"
	cfg.CacheEnabled = false
	cfg.CommitBackoffBase = time.Millisecond
	cfg.CommitBackoffCap = time.Millisecond
	return cfg
}

func newSink(t *testing.T, cfg config.SinkConfig, table *sink.CatalogTable) *sink.Sink {
	t.Helper()
	s, err := sink.New(cfg, table)
	if err != nil {
		t.Fatalf("sink.New: %v", err)
	}
	return s
}

func taskWriter(t *testing.T, tbl *iceberg.Table, opts sink.TaskWriterOptions) *sink.TaskWriter {
	t.Helper()
	f, err := sink.NewTaskWriterFactory(tbl, peopleRowType, opts)
	if err != nil {
		t.Fatalf("NewTaskWriterFactory: %v", err)
	}
	return f.NewTaskWriter(0, 0)
}

func withKind(k row.Kind, fields ...any) row.Row {
	r := row.New(fields...)
	r.Kind = k
	return r
}

func write(t *testing.T, w interface {
	Write(context.Context, row.Row) error
}, rows ...row.Row) {
	t.Helper()
	for _, r := range rows {
		if err := w.Write(context.Background(), r); err != nil {
			t.Fatalf("Write(%v): %v", r, err)
		}
	}
}

func prepare(t *testing.T, w *sink.TaskWriter) commit.WriteResult {
	t.Helper()
	res, err := w.PrepareCommit(context.Background())
	if err != nil {
		t.Fatalf("PrepareCommit: %v", err)
	}
	return res
}

func filesOf(t *testing.T, files []iceberg.DataFile, content iceberg.FileContent, want int) []iceberg.DataFile {
	t.Helper()
	var out []iceberg.DataFile
	for _, f := range files {
		if f.Content == content {
			out = append(out, f)
		}
	}
	if len(out) != want {
		t.Fatalf("got %d %v files, want %d", len(out), content, want)
	}
	return out
}

func configField(t *testing.T, err error) *icebergerr.ConfigurationError {
	t.Helper()
	var ce *icebergerr.ConfigurationError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want ConfigurationError", err)
	}
	return ce
}

func TestResolveEqualityFieldIDs(t *testing.T) {
	schema := peopleSchema(1)

	tests := []struct {
		name    string
		columns []string
		want    []int
		warn    bool
	}{
		{name: "identifier fields by default", want: []int{1}},
		{name: "matching columns", columns: []string{"id"}, want: []int{1}},
		{name: "override", columns: []string{"name"}, want: []int{2}, warn: true},
		{name: "configured order and duplicates", columns: []string{"name", "id", "name"}, want: []int{2, 1}, warn: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, nil))

			got, err := sink.ResolveEqualityFieldIDs(schema, tt.columns, logger)
			if err != nil {
				t.Fatalf("ResolveEqualityFieldIDs: %v", err)
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("ids = %v, want %v", got, tt.want)
			}
			if warned := strings.Contains(buf.String(), "are not matched with the schema identifier field IDs"); warned != tt.warn {
				t.Errorf("warned = %v, want %v; log: %s", warned, tt.warn, buf.String())
			}
		})
	}
}

func TestResolveEqualityFieldIDsMissingColumn(t *testing.T) {
	_, err := sink.ResolveEqualityFieldIDs(peopleSchema(1), []string{"email"}, nil)
	ce := configField(t, err)
	if ce.Field != "email" {
		t.Errorf("Field = %q, want email", ce.Field)
	}
	if !strings.Contains(ce.Reason, "missing required equality field column") {
		t.Errorf("Reason = %q", ce.Reason)
	}
}

func TestCatalogTableLowerCase(t *testing.T) {
	tbl := sink.CatalogTable{
		Name: "People",
		Schema: row.MustSchema(
			row.Field{Name: "ID", Type: row.String},
			row.Field{Name: "Name", Type: row.String},
		),
		PrimaryKey: &sink.PrimaryKey{Name: "pk", Columns: []string{"ID"}},
		Constraints: []sink.ConstraintKey{{
			Type:    "UNIQUE_KEY",
			Name:    "uk",
			Columns: []sink.ConstraintColumn{{Name: "Name", SortType: "ASC"}},
		}},
	}

	lower, err := tbl.LowerCase()
	if err != nil {
		t.Fatalf("LowerCase: %v", err)
	}
	if got := lower.Schema.Names(); !slices.Equal(got, []string{"id", "name"}) {
		t.Errorf("columns = %v", got)
	}
	if !slices.Equal(lower.PrimaryKey.Columns, []string{"id"}) {
		t.Errorf("primary key = %v", lower.PrimaryKey.Columns)
	}
	if c := lower.Constraints[0].Columns[0]; c.Name != "name" || c.SortType != "ASC" {
		t.Errorf("constraint column = %+v", c)
	}
	if lower.Name != "People" {
		t.Errorf("table name = %q, want People", lower.Name)
	}
	if !slices.Equal(tbl.PrimaryKey.Columns, []string{"ID"}) {
		t.Errorf("input primary key modified: %v", tbl.PrimaryKey.Columns)
	}

	clash := sink.CatalogTable{Schema: row.MustSchema(
		row.Field{Name: "a", Type: row.Int},
		row.Field{Name: "A", Type: row.Int},
	)}
	if _, err := clash.LowerCase(); err == nil {
		t.Error("columns that collide after lower-casing should fail")
	}
}

func TestNewSink(t *testing.T) {
	table := &sink.CatalogTable{
		Namespace:  "db",
		Name:       "people",
		Schema:     row.MustSchema(row.Field{Name: "ID", Type: row.String}, row.Field{Name: "NAME", Type: row.String}),
		PrimaryKey: &sink.PrimaryKey{Columns: []string{"ID"}},
	}

	s := newSink(t, sinkConfig(t.TempDir()), table)
	if got := s.RowType().Names(); !slices.Equal(got, []string{"id", "name"}) {
		t.Errorf("row type = %v", got)
	}
	if got := s.EqualityColumns(); !slices.Equal(got, []string{"id"}) {
		t.Errorf("equality columns = %v, want [id]", got)
	}

	cfg := sinkConfig(t.TempDir())
	cfg.PrimaryKeys = []string{"name"}
	s = newSink(t, cfg, table)
	if got := s.EqualityColumns(); !slices.Equal(got, []string{"name"}) {
		t.Errorf("equality columns = %v, want [name]", got)
	}

	cfg.FileFormat = "csv"
	_, err := sink.New(cfg, table)
	if ce := configField(t, err); ce.Field != "file_format" {
		t.Errorf("Field = %q, want file_format", ce.Field)
	}
}

func TestSetTypeInfo(t *testing.T) {
	ctx := context.Background()
	s := newSink(t, sinkConfig(t.TempDir()), nil)

	if _, err := s.CreateWriter(ctx, 0); !errors.Is(err, icebergerr.ErrPrecondition) {
		t.Fatalf("CreateWriter without a row type err = %v, want ErrPrecondition", err)
	}

	if err := s.SetTypeInfo(row.MustSchema(row.Field{Name: "ID", Type: row.String})); err != nil {
		t.Fatalf("SetTypeInfo: %v", err)
	}
	if got := s.RowType().Names(); !slices.Equal(got, []string{"id"}) {
		t.Errorf("row type = %v, want [id]", got)
	}

	if err := s.SetTypeInfo(peopleRowType); err != nil {
		t.Fatalf("second SetTypeInfo: %v", err)
	}
	if got := s.RowType().Names(); !slices.Equal(got, []string{"id"}) {
		t.Errorf("row type = %v, first row type should win", got)
	}
}

func TestAppendOnlyWriter(t *testing.T) {
	ctx := context.Background()
	_, tbl := createTable(t, peopleSchema(), nil)
	w := taskWriter(t, tbl, sink.TaskWriterOptions{})

	write(t, w, row.New("a", "alice", int32(30)), withKind(row.UpdateAfter, "b", "bob", int32(40)))

	if err := w.Write(ctx, withKind(row.Delete, "a", "alice", int32(30))); !errors.Is(err, icebergerr.ErrPrecondition) {
		t.Errorf("delete on append-only err = %v, want ErrPrecondition", err)
	}
	if err := w.Write(ctx, row.New("a", "alice")); err == nil {
		t.Error("short row should fail")
	}

	res := prepare(t, w)
	if len(res.DataFiles) != 1 || len(res.DeleteFiles) != 0 {
		t.Fatalf("got %d data and %d delete files, want 1 and 0", len(res.DataFiles), len(res.DeleteFiles))
	}
	df := res.DataFiles[0]
	if df.RecordCount != 2 {
		t.Errorf("RecordCount = %d, want 2", df.RecordCount)
	}
	if df.FileFormat != iceberg.FormatParquet {
		t.Errorf("FileFormat = %v, want parquet", df.FileFormat)
	}
	if !strings.HasPrefix(df.FilePath, tbl.Location()+"/data/00000-0-") || !strings.HasSuffix(df.FilePath, "-00001.parquet") {
		t.Errorf("FilePath = %s", df.FilePath)
	}

	if res := prepare(t, w); !res.Empty() {
		t.Errorf("second PrepareCommit = %+v, want empty", res)
	}
}

func TestDeltaWriterSameBatchDelete(t *testing.T) {
	_, tbl := createTable(t, peopleSchema(1), nil)
	w := taskWriter(t, tbl, sink.TaskWriterOptions{EqualityFieldIDs: []int{1}})

	write(t, w,
		row.New("a", "alice", int32(30)),
		row.New("b", "bob", int32(40)),
		withKind(row.Delete, "a", "alice", int32(30)),
		withKind(row.Delete, "c", "carol", int32(50)),
	)

	res := prepare(t, w)
	if len(res.DataFiles) != 1 {
		t.Fatalf("got %d data files, want 1", len(res.DataFiles))
	}
	data := res.DataFiles[0]
	if data.RecordCount != 2 {
		t.Errorf("data RecordCount = %d, want 2", data.RecordCount)
	}

	eq := filesOf(t, res.DeleteFiles, iceberg.ContentEqualityDeletes, 1)
	if eq[0].RecordCount != 1 || !slices.Equal(eq[0].EqualityIDs, []int{1}) {
		t.Errorf("equality deletes: %d records, ids %v", eq[0].RecordCount, eq[0].EqualityIDs)
	}

	pos := filesOf(t, res.DeleteFiles, iceberg.ContentPositionDeletes, 1)
	if pos[0].RecordCount != 1 {
		t.Errorf("position deletes: %d records, want 1", pos[0].RecordCount)
	}
	if got := string(pos[0].LowerBounds[iceberg.DeleteFilePathID]); got != data.FilePath {
		t.Errorf("file_path lower bound = %q, want %q", got, data.FilePath)
	}
	if !slices.Equal(res.ReferencedDataFiles, []string{data.FilePath}) {
		t.Errorf("ReferencedDataFiles = %v", res.ReferencedDataFiles)
	}
}

func TestDeltaWriterUpsert(t *testing.T) {
	_, tbl := createTable(t, peopleSchema(1), nil)

	_, err := sink.NewTaskWriterFactory(tbl, peopleRowType, sink.TaskWriterOptions{Upsert: true})
	if ce := configField(t, err); ce.Field != "enable_upsert" {
		t.Errorf("Field = %q, want enable_upsert", ce.Field)
	}

	f, err := sink.NewTaskWriterFactory(tbl, peopleRowType, sink.TaskWriterOptions{EqualityFieldIDs: []int{1}, Upsert: true})
	if err != nil {
		t.Fatalf("NewTaskWriterFactory: %v", err)
	}
	if !f.Upsert() {
		t.Error("Upsert() = false")
	}
	w := f.NewTaskWriter(1, 0)

	write(t, w,
		row.New("a", "alice", int32(30)),
		withKind(row.UpdateBefore, "a", "alice", int32(30)),
		withKind(row.UpdateAfter, "a", "alice", int32(31)),
	)

	res := prepare(t, w)
	if len(res.DataFiles) != 1 || res.DataFiles[0].RecordCount != 2 {
		t.Fatalf("data files = %+v, want one file with 2 records", res.DataFiles)
	}

	// The first insert deletes key "a" from the table, the update replaces
	// the row written in this batch.
	if eq := filesOf(t, res.DeleteFiles, iceberg.ContentEqualityDeletes, 1); eq[0].RecordCount != 1 {
		t.Errorf("equality deletes: %d records, want 1", eq[0].RecordCount)
	}
	if pos := filesOf(t, res.DeleteFiles, iceberg.ContentPositionDeletes, 1); pos[0].RecordCount != 1 {
		t.Errorf("position deletes: %d records, want 1", pos[0].RecordCount)
	}
}

func TestUpsertFromTableProperty(t *testing.T) {
	cat := catalog.NewHadoopCatalog(t.TempDir(), &storage.LocalStorage{})
	tbl, err := cat.CreateTable(context.Background(), iceberg.NewIdentifier("db", "people"), peopleSchema(1), nil,
		map[string]string{iceberg.PropUpsertEnabled: "true"})
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}

	f, err := sink.NewTaskWriterFactory(tbl, peopleRowType, sink.TaskWriterOptions{EqualityFieldIDs: []int{1}, Format: iceberg.FormatORC})
	if err != nil {
		t.Fatalf("NewTaskWriterFactory: %v", err)
	}
	if !f.Upsert() {
		t.Error("Upsert() = false, want the table property to enable it")
	}
	if f.Format() != iceberg.FormatORC {
		t.Errorf("Format() = %v, want orc", f.Format())
	}
	if got := f.TargetFileSizeBytes(); got != int64(iceberg.DefaultTargetFileSizeBytes) {
		t.Errorf("TargetFileSizeBytes() = %d, want %d", got, int64(iceberg.DefaultTargetFileSizeBytes))
	}
}

func TestRollingByTargetSize(t *testing.T) {
	_, tbl := createTable(t, peopleSchema(), nil)
	w := taskWriter(t, tbl, sink.TaskWriterOptions{TargetFileSizeBytes: 1})

	for _, id := range []string{"a", "b", "c"} {
		write(t, w, row.New(id, "n", int32(1)))
	}
	res := prepare(t, w)
	if len(res.DataFiles) != 3 {
		t.Fatalf("got %d data files, want 3", len(res.DataFiles))
	}

	seen := map[string]bool{}
	for _, f := range res.DataFiles {
		if f.RecordCount != 1 {
			t.Errorf("%s has %d records, want 1", f.FilePath, f.RecordCount)
		}
		seen[f.FilePath] = true
	}
	if len(seen) != 3 {
		t.Errorf("got %d distinct paths, want 3", len(seen))
	}
}

func TestPartitionedWriter(t *testing.T) {
	spec := &iceberg.PartitionSpec{SpecID: 0, Fields: []iceberg.PartitionField{
		{SourceID: 2, FieldID: 1000, Name: "name", Transform: "identity"},
	}}
	_, tbl := createTable(t, peopleSchema(1), spec)
	w := taskWriter(t, tbl, sink.TaskWriterOptions{EqualityFieldIDs: []int{1}})

	write(t, w,
		row.New("a", "alice", int32(30)),
		row.New("b", "bob", int32(40)),
		row.New("c", "alice", int32(50)),
		withKind(row.Delete, "b", "bob", int32(40)),
	)

	res := prepare(t, w)
	if len(res.DataFiles) != 2 {
		t.Fatalf("got %d data files, want 2", len(res.DataFiles))
	}

	byPartition := map[string]iceberg.DataFile{}
	for _, f := range res.DataFiles {
		byPartition[f.PartitionData["name"].(string)] = f
	}
	if alice := byPartition["alice"]; alice.RecordCount != 2 || !strings.Contains(alice.FilePath, "/data/name=alice/") {
		t.Errorf("alice file %s has %d records", alice.FilePath, alice.RecordCount)
	}
	if bob := byPartition["bob"]; bob.RecordCount != 1 {
		t.Errorf("bob file has %d records, want 1", bob.RecordCount)
	}

	pos := filesOf(t, res.DeleteFiles, iceberg.ContentPositionDeletes, 1)
	if !strings.Contains(pos[0].FilePath, "/data/name=bob/") {
		t.Errorf("position delete path = %s", pos[0].FilePath)
	}
	if !slices.Equal(res.ReferencedDataFiles, []string{byPartition["bob"].FilePath}) {
		t.Errorf("ReferencedDataFiles = %v", res.ReferencedDataFiles)
	}
}

func dataEntries(t *testing.T, tbl *iceberg.Table) int {
	t.Helper()
	entries, err := os.ReadDir(tbl.Location() + "/data")
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	return len(entries)
}

func TestTaskWriterAbort(t *testing.T) {
	ctx := context.Background()
	_, tbl := createTable(t, peopleSchema(), nil)
	w := taskWriter(t, tbl, sink.TaskWriterOptions{TargetFileSizeBytes: 1})

	write(t, w, row.New("a", "alice", int32(30)), row.New("b", "bob", int32(40)))
	if n := dataEntries(t, tbl); n != 2 {
		t.Fatalf("got %d data files before abort, want 2", n)
	}

	if err := w.Abort(ctx); err != nil {
		t.Fatalf("Abort: %v", err)
	}
	if n := dataEntries(t, tbl); n != 0 {
		t.Errorf("got %d data files after abort, want 0", n)
	}
	if res := prepare(t, w); !res.Empty() {
		t.Errorf("PrepareCommit after abort = %+v, want empty", res)
	}
}

func TestSinkWriteAndCommit(t *testing.T) {
	ctx := context.Background()
	wh, _ := createTable(t, peopleSchema(1), nil)
	table := &sink.CatalogTable{
		Namespace:  "db",
		Name:       "people",
		Schema:     row.MustSchema(row.Field{Name: "ID", Type: row.String}, row.Field{Name: "Name", Type: row.String}, row.Field{Name: "Age", Type: row.Int}),
		PrimaryKey: &sink.PrimaryKey{Columns: []string{"ID"}},
	}
	s := newSink(t, sinkConfig(wh), table)

	ids, err := s.CheckAndGetEqualityFieldIDs(ctx)
	if err != nil {
		t.Fatalf("CheckAndGetEqualityFieldIDs: %v", err)
	}
	if !slices.Equal(ids, []int{1}) {
		t.Errorf("equality ids = %v, want [1]", ids)
	}

	var results []commit.WriteResult
	for task, rows := range [][]row.Row{
		{row.New("a", "alice", int32(30)), row.New("b", "bob", int32(40))},
		{row.New("c", "carol", int32(50)), withKind(row.Delete, "a", "alice", int32(30))},
	} {
		w, err := s.CreateWriter(ctx, task)
		if err != nil {
			t.Fatalf("CreateWriter(%d): %v", task, err)
		}
		write(t, w, rows...)
		res, err := w.PrepareCommit(ctx)
		if err != nil {
			t.Fatalf("PrepareCommit(%d): %v", task, err)
		}
		if err := w.Close(); err != nil {
			t.Fatalf("Close(%d): %v", task, err)
		}
		results = append(results, res)
	}

	c, err := s.CreateAggregatedCommitter(ctx)
	if err != nil {
		t.Fatalf("CreateAggregatedCommitter: %v", err)
	}
	defer c.Close()

	merged := c.Combine(results...)
	if len(merged.DataFiles) != 2 || len(merged.DeleteFiles) != 1 {
		t.Errorf("merged %d data and %d delete files, want 2 and 1", len(merged.DataFiles), len(merged.DeleteFiles))
	}

	snap, err := c.Commit(ctx, merged)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if snap == nil {
		t.Fatal("Commit returned no snapshot")
	}
	for k, v := range map[string]string{
		"operation":              commit.OperationOverwrite,
		"total-records":          "3",
		"total-equality-deletes": "1",
	} {
		if got := snap.Summary[k]; got != v {
			t.Errorf("summary %s = %q, want %q", k, got, v)
		}
	}

	cat := catalog.NewHadoopCatalog(wh, &storage.LocalStorage{})
	tbl, err := cat.LoadTable(ctx, iceberg.NewIdentifier("db", "people"))
	if err != nil {
		t.Fatalf("LoadTable: %v", err)
	}
	live, err := commit.LiveFiles(ctx, tbl)
	if err != nil {
		t.Fatalf("LiveFiles: %v", err)
	}
	if len(live) != 3 {
		t.Errorf("got %d live files, want 3", len(live))
	}

	snap, err = c.Commit(ctx, commit.WriteResult{})
	if err != nil {
		t.Fatalf("empty Commit: %v", err)
	}
	if snap != nil {
		t.Errorf("empty commit produced snapshot %d", snap.SnapshotID)
	}
}

func TestAggregatedCommitterAbort(t *testing.T) {
	ctx := context.Background()
	wh, _ := createTable(t, peopleSchema(), nil)
	s := newSink(t, sinkConfig(wh), &sink.CatalogTable{Schema: peopleRowType})

	w, err := s.CreateWriter(ctx, 0)
	if err != nil {
		t.Fatalf("CreateWriter: %v", err)
	}
	defer w.Close()
	write(t, w, row.New("a", "alice", int32(30)))
	res, err := w.PrepareCommit(ctx)
	if err != nil {
		t.Fatalf("PrepareCommit: %v", err)
	}
	if len(res.DataFiles) != 1 {
		t.Fatalf("got %d data files, want 1", len(res.DataFiles))
	}

	c, err := s.CreateAggregatedCommitter(ctx)
	if err != nil {
		t.Fatalf("CreateAggregatedCommitter: %v", err)
	}
	defer c.Close()
	if err := c.Abort(ctx, res); err != nil {
		t.Fatalf("Abort: %v", err)
	}

	if _, err := os.Stat(res.DataFiles[0].FilePath); !os.IsNotExist(err) {
		t.Errorf("Stat after abort err = %v, want not-exist", err)
	}
}
