package catalog_test

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zegnqin/seatunnel/catalog"
	"github.com/zegnqin/seatunnel/iceberg"
	"github.com/zegnqin/seatunnel/icebergerr"
	"github.com/zegnqin/seatunnel/storage"
)

func testSchema() *iceberg.Schema {
	return iceberg.NewSchema(0, []iceberg.NestedField{
		{ID: 1, Name: "id", Type: iceberg.Long, Required: true},
		{ID: 2, Name: "name", Type: iceberg.String},
	}, 1)
}

func newHadoop(t *testing.T) (*catalog.HadoopCatalog, string) {
	t.Helper()
	wh := t.TempDir()
	return catalog.NewHadoopCatalog(wh, &storage.LocalStorage{}), wh
}

func mustCreate(t *testing.T, c catalog.TableCreator, id iceberg.Identifier, props map[string]string) *iceberg.Table {
	t.Helper()
	tbl, err := c.CreateTable(context.Background(), id, testSchema(), nil, props)
	if err != nil {
		t.Fatalf("CreateTable(%s): %v", id, err)
	}
	return tbl
}

func cloneMetadata(t *testing.T, tbl *iceberg.Table) *iceberg.TableMetadata {
	t.Helper()
	next, err := tbl.Metadata().Clone()
	if err != nil {
		t.Fatalf("Clone: %v", err)
	}
	return next
}

func TestHadoopCreateLoadCommit(t *testing.T) {
	ctx := context.Background()
	cat, wh := newHadoop(t)
	id := iceberg.NewIdentifier("db", "orders")
	metaDir := filepath.Join(wh, "db", "orders", "metadata")

	if ok, err := cat.TableExists(ctx, id); err != nil || ok {
		t.Fatalf("TableExists before create = %v, %v", ok, err)
	}
	_, err := cat.LoadTable(ctx, id)
	var nf *icebergerr.TableNotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("LoadTable err = %v, want TableNotFoundError", err)
	}

	created := mustCreate(t, cat, id, map[string]string{"k": "v"})
	if got, want := created.Location(), filepath.Join(wh, "db", "orders"); got != want {
		t.Errorf("Location = %q, want %q", got, want)
	}
	if got, want := created.MetadataLocation(), filepath.Join(metaDir, "v1.metadata.json"); got != want {
		t.Errorf("MetadataLocation = %q, want %q", got, want)
	}
	if _, err := cat.CreateTable(ctx, id, testSchema(), nil, nil); err == nil {
		t.Error("second CreateTable should fail")
	}

	tbl, err := cat.LoadTable(ctx, id)
	if err != nil {
		t.Fatalf("LoadTable: %v", err)
	}
	if tbl.Properties()["k"] != "v" {
		t.Errorf("properties = %v", tbl.Properties())
	}
	if got := tbl.Schema().IdentifierFieldIDs; !slices.Equal(got, []int{1}) {
		t.Errorf("identifier ids = %v, want [1]", got)
	}

	next := cloneMetadata(t, tbl)
	next.Properties["k"] = "v2"
	loc, err := cat.CommitTable(ctx, id, tbl.MetadataLocation(), next)
	if err != nil {
		t.Fatalf("CommitTable: %v", err)
	}
	if want := filepath.Join(metaDir, "v2.metadata.json"); loc != want {
		t.Errorf("committed location = %q, want %q", loc, want)
	}

	// A second commit from the stale base conflicts.
	_, err = cat.CommitTable(ctx, id, tbl.MetadataLocation(), next)
	var conflict *icebergerr.CommitConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("stale commit err = %v, want CommitConflictError", err)
	}

	if err := tbl.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if tbl.Properties()["k"] != "v2" || tbl.MetadataLocation() != loc {
		t.Errorf("refreshed table at %s with k=%q", tbl.MetadataLocation(), tbl.Properties()["k"])
	}
}

func TestHadoopStaleVersionHint(t *testing.T) {
	ctx := context.Background()
	cat, wh := newHadoop(t)
	id := iceberg.NewIdentifier("db", "t")
	tbl := mustCreate(t, cat, id, nil)

	if _, err := cat.CommitTable(ctx, id, tbl.MetadataLocation(), cloneMetadata(t, tbl)); err != nil {
		t.Fatalf("CommitTable: %v", err)
	}

	// Roll the hint back; loading still finds v2.
	st := &storage.LocalStorage{}
	if err := st.Write(ctx, filepath.Join(wh, "db", "t", "metadata", "version-hint.text"), []byte("1")); err != nil {
		t.Fatalf("write hint: %v", err)
	}
	loaded, err := cat.LoadTable(ctx, id)
	if err != nil {
		t.Fatalf("LoadTable: %v", err)
	}
	if got, want := loaded.MetadataLocation(), filepath.Join(wh, "db", "t", "metadata", "v2.metadata.json"); got != want {
		t.Errorf("MetadataLocation = %q, want %q", got, want)
	}
}

type countingCatalog struct {
	catalog.Catalog
	loads  atomic.Int32
	closed atomic.Int32
}

func (c *countingCatalog) LoadTable(ctx context.Context, id iceberg.Identifier) (*iceberg.Table, error) {
	c.loads.Add(1)
	return c.Catalog.LoadTable(ctx, id)
}

func (c *countingCatalog) Close() error {
	c.closed.Add(1)
	return nil
}

func TestCachingCatalog(t *testing.T) {
	ctx := context.Background()
	hadoop, _ := newHadoop(t)
	id := iceberg.NewIdentifier("db", "t")
	mustCreate(t, hadoop, id, nil)

	inner := &countingCatalog{Catalog: hadoop}
	now := time.Unix(1000, 0)
	cached := catalog.NewCachingCatalog(inner,
		catalog.WithExpiration(time.Minute),
		catalog.WithClock(func() time.Time { return now }),
	)
	load := func() *iceberg.Table {
		t.Helper()
		tbl, err := cached.LoadTable(ctx, id)
		if err != nil {
			t.Fatalf("LoadTable: %v", err)
		}
		return tbl
	}

	first, second := load(), load()
	if first != second {
		t.Error("second load should return the cached handle")
	}
	if n := inner.loads.Load(); n != 1 {
		t.Errorf("inner loads = %d, want 1", n)
	}
	if ok, err := cached.TableExists(ctx, id); err != nil || !ok {
		t.Errorf("TableExists = %v, %v", ok, err)
	}

	now = now.Add(2 * time.Minute)
	load()
	if n := inner.loads.Load(); n != 2 {
		t.Errorf("inner loads after expiry = %d, want 2", n)
	}

	cached.Invalidate(id)
	load()
	if n := inner.loads.Load(); n != 3 {
		t.Errorf("inner loads after Invalidate = %d, want 3", n)
	}

	if err := cached.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if n := inner.closed.Load(); n != 1 {
		t.Errorf("inner closed %d times, want 1", n)
	}
}

func TestCachingCatalogCapabilities(t *testing.T) {
	ctx := context.Background()
	hadoop, _ := newHadoop(t)
	cached := catalog.NewCachingCatalog(hadoop)

	creator, ok := catalog.AsCreator(cached)
	if !ok {
		t.Fatal("caching a hadoop catalog keeps CreateTable")
	}
	id := iceberg.NewIdentifier("db", "t")
	tbl := mustCreate(t, creator, id, nil)

	committer, ok := catalog.AsCommitter(cached)
	if !ok {
		t.Fatal("caching a hadoop catalog keeps CommitTable")
	}
	next := cloneMetadata(t, tbl)
	if _, err := committer.CommitTable(ctx, id, tbl.MetadataLocation(), next); err != nil {
		t.Fatalf("CommitTable: %v", err)
	}

	// The commit invalidated the cached v1 handle.
	reloaded, err := cached.LoadTable(ctx, id)
	if err != nil {
		t.Fatalf("LoadTable: %v", err)
	}
	if reloaded.MetadataLocation() == tbl.MetadataLocation() {
		t.Errorf("reloaded table still at %s", reloaded.MetadataLocation())
	}

	readOnly := catalog.NewCachingCatalog(&countingCatalog{Catalog: hadoop})
	if _, ok := catalog.AsCommitter(readOnly); ok {
		t.Error("a catalog without CommitTable should not report it")
	}
	if _, err := readOnly.CommitTable(ctx, id, "", next); !errors.Is(err, catalog.ErrNotSupported) {
		t.Errorf("CommitTable err = %v, want ErrNotSupported", err)
	}
}

func TestFactoryCreate(t *testing.T) {
	ctx := context.Background()
	cat, err := catalog.Factory{CatalogName: "local", CatalogType: "Hadoop", Warehouse: t.TempDir()}.Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, ok := cat.(*catalog.HadoopCatalog); !ok {
		t.Errorf("Create returned %T, want *catalog.HadoopCatalog", cat)
	}

	tests := []struct {
		name    string
		factory catalog.Factory
		field   string
	}{
		{"missing type", catalog.Factory{Warehouse: "/tmp"}, "catalog_type"},
		{"unknown type", catalog.Factory{CatalogType: "nessie"}, "catalog_type"},
		{"hive", catalog.Factory{CatalogType: "hive", URI: "thrift://hms:9083"}, "catalog_type"},
		{"hadoop without warehouse", catalog.Factory{CatalogType: "hadoop"}, "warehouse"},
		{"rest without uri", catalog.Factory{CatalogType: "rest"}, "uri"},
		{"kerberos", catalog.Factory{CatalogType: "hadoop", Warehouse: "/tmp", KerberosPrincipal: "sink@REALM"}, "kerberos_principal"},
		{"site files", catalog.Factory{CatalogType: "hadoop", Warehouse: "/tmp", HdfsSitePath: "/etc/hdfs-site.xml"}, "hdfs_site_path"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.factory.Create(ctx)
			var ce *icebergerr.ConfigurationError
			if !errors.As(err, &ce) {
				t.Fatalf("err = %v, want ConfigurationError", err)
			}
			if ce.Field != tt.field {
				t.Errorf("ConfigurationError.Field = %q, want %q", ce.Field, tt.field)
			}
		})
	}
}
