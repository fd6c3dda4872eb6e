package loader_test

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"testing"

	"github.com/zegnqin/seatunnel/catalog"
	"github.com/zegnqin/seatunnel/iceberg"
	"github.com/zegnqin/seatunnel/icebergerr"
	"github.com/zegnqin/seatunnel/internal/config"
	"github.com/zegnqin/seatunnel/loader"
	"github.com/zegnqin/seatunnel/storage"
)

func warehouse(t *testing.T, tables ...string) string {
	t.Helper()
	wh := t.TempDir()
	cat := catalog.NewHadoopCatalog(wh, &storage.LocalStorage{})
	schema := iceberg.NewSchema(0, []iceberg.NestedField{
		{ID: 1, Name: "id", Type: iceberg.Long, Required: true},
		{ID: 2, Name: "name", Type: iceberg.String},
	}, 1)
	for _, name := range tables {
		if _, err := cat.CreateTable(context.Background(), iceberg.NewIdentifier("db", name), schema, nil, nil); err != nil {
			t.Fatalf("CreateTable(%s): %v", name, err)
		}
	}
	return wh
}

func commonConfig(wh, table string) config.CommonConfig {
	cfg := config.DefaultCommon()
	cfg.Warehouse = wh
	cfg.Namespace = "db"
	cfg.Table = table
	return cfg
}

func openLoader(t *testing.T, cfg config.CommonConfig) *loader.TableLoader {
	t.Helper()
	tl, err := loader.Create(cfg)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := tl.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { tl.Close() })
	return tl
}

func mustLoad(t *testing.T, tl *loader.TableLoader) *iceberg.Table {
	t.Helper()
	tbl, err := tl.LoadTable(context.Background())
	if err != nil {
		t.Fatalf("LoadTable: %v", err)
	}
	return tbl
}

func TestLoadTable(t *testing.T) {
	ctx := context.Background()
	tl, err := loader.Create(commonConfig(warehouse(t, "orders"), "orders"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer tl.Close()

	if _, err := tl.LoadTable(ctx); !errors.Is(err, icebergerr.ErrLoaderNotOpen) {
		t.Fatalf("LoadTable before Open err = %v, want ErrLoaderNotOpen", err)
	}
	if err := tl.Open(ctx); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := tl.Open(ctx); err != nil {
		t.Fatalf("second Open: %v", err)
	}

	tbl := mustLoad(t, tl)
	if got := tbl.Identifier().String(); got != "db.orders" {
		t.Errorf("Identifier = %q, want db.orders", got)
	}
	if got := tbl.Schema().IdentifierFieldNames(); !slices.Equal(got, []string{"id"}) {
		t.Errorf("identifier fields = %v, want [id]", got)
	}
}

func TestLoadTableMissing(t *testing.T) {
	tl := openLoader(t, commonConfig(warehouse(t), "missing"))

	_, err := tl.LoadTable(context.Background())
	var nf *icebergerr.TableNotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("err = %v, want TableNotFoundError", err)
	}
	if nf.Table != "db.missing" {
		t.Errorf("TableNotFoundError.Table = %q, want db.missing", nf.Table)
	}
}

func TestCachingToggle(t *testing.T) {
	wh := warehouse(t, "orders")

	cached := openLoader(t, commonConfig(wh, "orders"))
	if _, ok := cached.Catalog().(*catalog.CachingCatalog); !ok {
		t.Errorf("Catalog = %T, want *catalog.CachingCatalog", cached.Catalog())
	}
	if first, second := mustLoad(t, cached), mustLoad(t, cached); first != second {
		t.Error("cached loader should return the same handle")
	}

	cfg := commonConfig(wh, "orders")
	cfg.CacheEnabled = false
	direct := openLoader(t, cfg)
	if _, ok := direct.Catalog().(*catalog.HadoopCatalog); !ok {
		t.Errorf("Catalog = %T, want *catalog.HadoopCatalog", direct.Catalog())
	}
	if first, second := mustLoad(t, direct), mustLoad(t, direct); first == second {
		t.Error("uncached loader should load a fresh handle")
	}
}

func TestTableNameFallback(t *testing.T) {
	cfg := commonConfig(t.TempDir(), "")
	create := func(hint *loader.CatalogTableHint) *loader.TableLoader {
		t.Helper()
		tl, err := loader.CreateWithHint(cfg, hint)
		if err != nil {
			t.Fatalf("CreateWithHint(%+v): %v", hint, err)
		}
		return tl
	}

	if got := create(&loader.CatalogTableHint{Table: "orders"}).Identifier().String(); got != "db.orders" {
		t.Errorf("hinted table = %q, want db.orders", got)
	}

	cfg.Table = "configured"
	if got := create(&loader.CatalogTableHint{Table: "orders"}).Identifier().String(); got != "db.configured" {
		t.Errorf("configured table = %q, want db.configured", got)
	}

	cfg.Table = ""
	cfg.Namespace = ""
	tl := create(&loader.CatalogTableHint{Namespace: "sales.eu", Table: "orders"})
	if got := tl.Identifier().Namespace; !slices.Equal(got, []string{"sales", "eu"}) {
		t.Errorf("namespace = %v, want [sales eu]", got)
	}

	for _, hint := range []*loader.CatalogTableHint{nil, {}} {
		_, err := loader.CreateWithHint(cfg, hint)
		var ce *icebergerr.ConfigurationError
		if !errors.As(err, &ce) {
			t.Errorf("hint %+v: err = %v, want ConfigurationError", hint, err)
			continue
		}
		if ce.Field != "table" {
			t.Errorf("ConfigurationError.Field = %q, want table", ce.Field)
		}
	}
}

func TestOpenConfigurationErrors(t *testing.T) {
	cfg := commonConfig(t.TempDir(), "orders")
	cfg.CatalogType = "hive"
	tl, err := loader.Create(cfg)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	err = tl.Open(context.Background())
	var ce *icebergerr.ConfigurationError
	if !errors.As(err, &ce) {
		t.Fatalf("Open err = %v, want ConfigurationError", err)
	}
	if tl.Catalog() != nil {
		t.Errorf("failed Open left catalog %T", tl.Catalog())
	}
}

func TestCloseIdempotent(t *testing.T) {
	ctx := context.Background()
	tl, err := loader.Create(commonConfig(warehouse(t, "orders"), "orders"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := tl.Close(); err != nil {
		t.Fatalf("Close before Open: %v", err)
	}
	if err := tl.Open(ctx); err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := tl.Close(); err != nil {
			t.Fatalf("Close %d: %v", i, err)
		}
	}
	if _, err := tl.LoadTable(ctx); !errors.Is(err, icebergerr.ErrLoaderNotOpen) {
		t.Errorf("LoadTable after Close err = %v, want ErrLoaderNotOpen", err)
	}
}

func TestJSONTransfer(t *testing.T) {
	ctx := context.Background()
	tl := openLoader(t, commonConfig(warehouse(t, "orders"), "orders"))

	data, err := json.Marshal(tl)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var wire struct {
		Identifier struct {
			Namespace []string `json:"namespace"`
		} `json:"identifier"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		t.Fatalf("Unmarshal into wire form: %v", err)
	}
	if !slices.Equal(wire.Identifier.Namespace, []string{"db"}) {
		t.Errorf("identifier.namespace = %v in %s", wire.Identifier.Namespace, data)
	}

	var restored loader.TableLoader
	if err := json.Unmarshal(data, &restored); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if restored.Identifier().String() != tl.Identifier().String() {
		t.Errorf("restored identifier = %s, want %s", restored.Identifier(), tl.Identifier())
	}
	if restored.Config().Warehouse != tl.Config().Warehouse {
		t.Errorf("restored warehouse = %q, want %q", restored.Config().Warehouse, tl.Config().Warehouse)
	}
	if _, err := restored.LoadTable(ctx); !errors.Is(err, icebergerr.ErrLoaderNotOpen) {
		t.Errorf("restored loader LoadTable err = %v, want ErrLoaderNotOpen", err)
	}

	if err := restored.Open(ctx); err != nil {
		t.Fatalf("Open restored: %v", err)
	}
	defer restored.Close()
	if got := mustLoad(t, &restored).Identifier().Name; got != "orders" {
		t.Errorf("restored table name = %q, want orders", got)
	}
}
