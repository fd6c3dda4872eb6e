package commit_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/zegnqin/seatunnel/catalog"
	"github.com/zegnqin/seatunnel/commit"
	"github.com/zegnqin/seatunnel/iceberg"
	"github.com/zegnqin/seatunnel/storage"
)

func ordersSchema() *iceberg.Schema {
	return iceberg.NewSchema(0, []iceberg.NestedField{
		{ID: 1, Name: "id", Type: iceberg.Long, Required: true},
		{ID: 2, Name: "region", Type: iceberg.String},
	}, 1)
}

func newTable(t *testing.T, spec *iceberg.PartitionSpec) (*catalog.HadoopCatalog, *iceberg.Table) {
	t.Helper()
	cat := catalog.NewHadoopCatalog(t.TempDir(), &storage.LocalStorage{})
	tbl, err := cat.CreateTable(context.Background(), iceberg.NewIdentifier("db", "orders"), ordersSchema(), spec, nil)
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	return cat, tbl
}

func dataFile(tbl *iceberg.Table, name string, records int64) iceberg.DataFile {
	lower, _ := iceberg.SingleValueBytes(iceberg.Long, int64(1))
	upper, _ := iceberg.SingleValueBytes(iceberg.Long, records)
	return iceberg.DataFile{
		Content:         iceberg.ContentData,
		FilePath:        filepath.Join(tbl.Location(), "data", name),
		FileFormat:      iceberg.FormatParquet,
		SpecID:          tbl.Spec().SpecID,
		RecordCount:     records,
		FileSizeBytes:   100 * records,
		ValueCounts:     map[int]int64{1: records, 2: records},
		NullValueCounts: map[int]int64{1: 0, 2: 1},
		LowerBounds:     map[int][]byte{1: lower},
		UpperBounds:     map[int][]byte{1: upper},
	}
}

func newCommitter(t *testing.T, cat catalog.Catalog) *commit.Committer {
	t.Helper()
	c, err := commit.New(cat, commit.WithRetry(2, time.Millisecond, time.Millisecond))
	if err != nil {
		t.Fatalf("commit.New: %v", err)
	}
	return c
}

func liveFiles(t *testing.T, tbl *iceberg.Table, want int) []iceberg.ManifestEntry {
	t.Helper()
	live, err := commit.LiveFiles(context.Background(), tbl)
	if err != nil {
		t.Fatalf("LiveFiles: %v", err)
	}
	if len(live) != want {
		t.Fatalf("got %d live files, want %d", len(live), want)
	}
	return live
}

func checkSummary(t *testing.T, snap *iceberg.Snapshot, want map[string]string) {
	t.Helper()
	for k, v := range want {
		if got := snap.Summary[k]; got != v {
			t.Errorf("summary %s = %q, want %q", k, got, v)
		}
	}
}

func TestCommitAppendThenDelete(t *testing.T) {
	ctx := context.Background()
	cat, tbl := newTable(t, nil)
	c := newCommitter(t, cat)

	df := dataFile(tbl, "a.parquet", 10)
	first, err := c.Commit(ctx, tbl, commit.WriteResult{DataFiles: []iceberg.DataFile{df}})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if first == nil {
		t.Fatal("Commit returned no snapshot")
	}
	if first.ParentSnapshotID != nil || first.SequenceNumber != 1 {
		t.Errorf("first snapshot parent = %v, sequence = %d", first.ParentSnapshotID, first.SequenceNumber)
	}
	checkSummary(t, first, map[string]string{
		"operation":          commit.OperationAppend,
		"added-data-files":   "1",
		"total-records":      "10",
		"total-delete-files": "0",
	})

	// The handle follows the committed metadata.
	meta := tbl.Metadata()
	if meta.CurrentSnapshot != first.SnapshotID || meta.Refs[iceberg.MainBranch].SnapshotID != first.SnapshotID {
		t.Errorf("current snapshot = %d, main = %d, want %d", meta.CurrentSnapshot, meta.Refs[iceberg.MainBranch].SnapshotID, first.SnapshotID)
	}
	if !strings.Contains(tbl.MetadataLocation(), "v2.metadata.json") {
		t.Errorf("MetadataLocation = %s, want v2", tbl.MetadataLocation())
	}
	if n := len(meta.MetadataLog); n != 1 {
		t.Errorf("metadata log has %d entries, want 1", n)
	}

	got := liveFiles(t, tbl, 1)[0]
	if got.Status != iceberg.ManifestEntryStatusAdded || got.SnapshotID != first.SnapshotID {
		t.Errorf("entry status = %v, snapshot = %d", got.Status, got.SnapshotID)
	}
	if got.File.FilePath != df.FilePath || got.File.RecordCount != df.RecordCount {
		t.Errorf("entry file = %s with %d records", got.File.FilePath, got.File.RecordCount)
	}
	if !reflect.DeepEqual(got.File.ValueCounts, df.ValueCounts) || !reflect.DeepEqual(got.File.NullValueCounts, df.NullValueCounts) {
		t.Errorf("counts = %v / %v", got.File.ValueCounts, got.File.NullValueCounts)
	}
	if !reflect.DeepEqual(got.File.LowerBounds, df.LowerBounds) || !reflect.DeepEqual(got.File.UpperBounds, df.UpperBounds) {
		t.Errorf("bounds = %v / %v", got.File.LowerBounds, got.File.UpperBounds)
	}

	del := iceberg.DataFile{
		Content:       iceberg.ContentEqualityDeletes,
		FilePath:      filepath.Join(tbl.Location(), "data", "eq.parquet"),
		FileFormat:    iceberg.FormatParquet,
		SpecID:        tbl.Spec().SpecID,
		RecordCount:   2,
		FileSizeBytes: 50,
		EqualityIDs:   []int{1},
	}
	second, err := c.Commit(ctx, tbl, commit.WriteResult{DeleteFiles: []iceberg.DataFile{del}})
	if err != nil {
		t.Fatalf("Commit deletes: %v", err)
	}
	if second.ParentSnapshotID == nil || *second.ParentSnapshotID != first.SnapshotID {
		t.Errorf("second parent = %v, want %d", second.ParentSnapshotID, first.SnapshotID)
	}
	if second.SequenceNumber != 2 {
		t.Errorf("second sequence = %d, want 2", second.SequenceNumber)
	}
	checkSummary(t, second, map[string]string{
		"operation":              commit.OperationDelete,
		"added-equality-deletes": "2",
		"total-data-files":       "1",
		"total-delete-files":     "1",
	})

	manifests, err := commit.ReadManifestList(ctx, tbl.IO(), second.ManifestList)
	if err != nil {
		t.Fatalf("ReadManifestList: %v", err)
	}
	if len(manifests) != 2 {
		t.Fatalf("got %d manifests, want 2", len(manifests))
	}
	if manifests[0].ContentType != 1 || manifests[1].ContentType != 0 {
		t.Errorf("manifest content = %d, %d; want deletes then data", manifests[0].ContentType, manifests[1].ContentType)
	}
	if manifests[1].AddedSnapshotID != first.SnapshotID {
		t.Errorf("data manifest added by %d, want %d", manifests[1].AddedSnapshotID, first.SnapshotID)
	}

	live := liveFiles(t, tbl, 2)
	if live[0].File.Content != iceberg.ContentEqualityDeletes || !slices.Equal(live[0].File.EqualityIDs, []int{1}) {
		t.Errorf("first live file = %v with equality ids %v", live[0].File.Content, live[0].File.EqualityIDs)
	}
}

func TestCommitEmptyResult(t *testing.T) {
	cat, tbl := newTable(t, nil)
	c := newCommitter(t, cat)

	snap, err := c.Commit(context.Background(), tbl, commit.WriteResult{}, commit.WriteResult{})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if snap != nil {
		t.Errorf("empty commit produced snapshot %d", snap.SnapshotID)
	}
	if !strings.Contains(tbl.MetadataLocation(), "v1.metadata.json") {
		t.Errorf("MetadataLocation = %s, want v1", tbl.MetadataLocation())
	}
}

func TestCommitRetriesOnConflict(t *testing.T) {
	ctx := context.Background()
	cat, tbl := newTable(t, nil)
	c := newCommitter(t, cat)

	stale, err := cat.LoadTable(ctx, tbl.Identifier())
	if err != nil {
		t.Fatalf("LoadTable: %v", err)
	}
	first, err := c.Commit(ctx, tbl, commit.WriteResult{DataFiles: []iceberg.DataFile{dataFile(tbl, "a.parquet", 3)}})
	if err != nil {
		t.Fatalf("first Commit: %v", err)
	}

	second, err := c.Commit(ctx, stale, commit.WriteResult{DataFiles: []iceberg.DataFile{dataFile(tbl, "b.parquet", 4)}})
	if err != nil {
		t.Fatalf("Commit from a stale handle: %v", err)
	}
	if second.ParentSnapshotID == nil || *second.ParentSnapshotID != first.SnapshotID {
		t.Errorf("parent = %v, want %d", second.ParentSnapshotID, first.SnapshotID)
	}
	checkSummary(t, second, map[string]string{"total-records": "7"})
	if !strings.Contains(stale.MetadataLocation(), "v3.metadata.json") {
		t.Errorf("MetadataLocation = %s, want v3", stale.MetadataLocation())
	}
	liveFiles(t, stale, 2)
}

func TestCommitPartitioned(t *testing.T) {
	ctx := context.Background()
	spec := &iceberg.PartitionSpec{SpecID: 0, Fields: []iceberg.PartitionField{
		{SourceID: 2, FieldID: 1000, Name: "region", Transform: "identity"},
	}}
	cat, tbl := newTable(t, spec)
	c := newCommitter(t, cat)

	eu := dataFile(tbl, "region=eu/a.parquet", 2)
	eu.PartitionData = map[string]any{"region": "eu"}
	us := dataFile(tbl, "region=us/b.parquet", 5)
	us.PartitionData = map[string]any{"region": "us"}

	if _, err := c.Commit(ctx, tbl, commit.WriteResult{DataFiles: []iceberg.DataFile{eu, us}}); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	live := liveFiles(t, tbl, 2)
	for i, want := range []string{"eu", "us"} {
		if got := fmt.Sprint(live[i].File.PartitionData["region"]); !strings.Contains(got, want) {
			t.Errorf("file %d region = %q, want %q", i, got, want)
		}
	}
}

func TestCommitUnknownSpec(t *testing.T) {
	cat, tbl := newTable(t, nil)
	c := newCommitter(t, cat)

	df := dataFile(tbl, "a.parquet", 1)
	df.SpecID = 7
	_, err := c.Commit(context.Background(), tbl, commit.WriteResult{DataFiles: []iceberg.DataFile{df}})
	if err == nil || !strings.Contains(err.Error(), "unknown partition spec 7") {
		t.Fatalf("err = %v, want unknown partition spec 7", err)
	}
	if !strings.Contains(tbl.MetadataLocation(), "v1.metadata.json") {
		t.Errorf("MetadataLocation = %s, want v1", tbl.MetadataLocation())
	}
}

type readOnlyCatalog struct{}

func (readOnlyCatalog) TableExists(context.Context, iceberg.Identifier) (bool, error) {
	return false, nil
}

func (readOnlyCatalog) LoadTable(context.Context, iceberg.Identifier) (*iceberg.Table, error) {
	return nil, errors.New("not implemented")
}

func TestNewRequiresCommitter(t *testing.T) {
	if _, err := commit.New(readOnlyCatalog{}); !errors.Is(err, catalog.ErrNotSupported) {
		t.Errorf("New(read-only) err = %v, want ErrNotSupported", err)
	}
	if _, err := commit.New(catalog.NewCachingCatalog(readOnlyCatalog{})); !errors.Is(err, catalog.ErrNotSupported) {
		t.Errorf("New(cached read-only) err = %v, want ErrNotSupported", err)
	}
}

func TestMerge(t *testing.T) {
	a := commit.WriteResult{
		DataFiles:           []iceberg.DataFile{{FilePath: "a"}},
		ReferencedDataFiles: []string{"z", "a"},
	}
	b := commit.WriteResult{
		DeleteFiles:         []iceberg.DataFile{{FilePath: "d"}},
		ReferencedDataFiles: []string{"a"},
	}
	m := commit.Merge(a, b)
	if len(m.DataFiles) != 1 || len(m.DeleteFiles) != 1 || len(m.Files()) != 2 {
		t.Errorf("merged %d data and %d delete files", len(m.DataFiles), len(m.DeleteFiles))
	}
	if !slices.Equal(m.ReferencedDataFiles, []string{"a", "z"}) {
		t.Errorf("ReferencedDataFiles = %v, want [a z]", m.ReferencedDataFiles)
	}
	if !commit.Merge().Empty() {
		t.Error("merging nothing should be empty")
	}
}

func TestAbortDeletesFiles(t *testing.T) {
	ctx := context.Background()
	st := &storage.LocalStorage{}
	dir := t.TempDir()
	paths := []string{filepath.Join(dir, "a.parquet"), filepath.Join(dir, "b.parquet")}
	for _, p := range paths {
		if err := st.Write(ctx, p, []byte("x")); err != nil {
			t.Fatalf("Write(%s): %v", p, err)
		}
	}

	res := commit.WriteResult{
		DataFiles:   []iceberg.DataFile{{FilePath: paths[0]}},
		DeleteFiles: []iceberg.DataFile{{FilePath: paths[1]}, {FilePath: filepath.Join(dir, "missing")}},
	}
	if err := commit.Abort(ctx, st, res, nil); err != nil {
		t.Fatalf("Abort: %v", err)
	}
	for _, p := range paths {
		if ok, err := st.Exists(ctx, p); err != nil || ok {
			t.Errorf("%s still exists (%v)", p, err)
		}
	}
}
