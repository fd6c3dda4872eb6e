package cmd

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"text/template"
	"time"

	"github.com/spf13/viper"

	"github.com/zegnqin/seatunnel/catalog"
	"github.com/zegnqin/seatunnel/commit"
	"github.com/zegnqin/seatunnel/iceberg"
	"github.com/zegnqin/seatunnel/internal/config"
	"github.com/zegnqin/seatunnel/row"
	"github.com/zegnqin/seatunnel/sink"
	"github.com/zegnqin/seatunnel/storage"
	"github.com/zegnqin/seatunnel/typeconv"
)

func TestParseColumns(t *testing.T) {
	rs, err := parseColumns([]string{"id:STRING", "amount:decimal(10, 2)", " ts :TIMESTAMP"})
	if err != nil {
		t.Fatalf("parseColumns: %v", err)
	}
	if got := strings.Join(rs.Names(), ","); got != "id,amount,ts" {
		t.Errorf("names = %s", got)
	}
	if got := rs.Field(1).Type; got != row.DecimalOf(10, 2) {
		t.Errorf("amount type = %v", got)
	}

	for _, bad := range [][]string{nil, {"id"}, {":INT"}, {"id:UUIDISH"}, {"a:INT", "a:INT"}} {
		if _, err := parseColumns(bad); err == nil {
			t.Errorf("parseColumns(%q) should fail", bad)
		}
	}
}

func TestParsePartitionSpec(t *testing.T) {
	schema := iceberg.NewSchema(0, []iceberg.NestedField{
		{ID: 1, Name: "id", Type: iceberg.String, Required: true},
		{ID: 2, Name: "region", Type: iceberg.String},
		{ID: 3, Name: "ts", Type: iceberg.Timestamp},
	}, 1)

	spec, err := parsePartitionSpec(schema, []string{"region", "day(ts)", "truncate[4](id)", "bucket[8](id)"})
	if err != nil {
		t.Fatalf("parsePartitionSpec: %v", err)
	}
	want := []iceberg.PartitionField{
		{SourceID: 2, FieldID: 1000, Name: "region", Transform: "identity"},
		{SourceID: 3, FieldID: 1001, Name: "ts_day", Transform: "day"},
		{SourceID: 1, FieldID: 1002, Name: "id_trunc", Transform: "truncate[4]"},
		{SourceID: 1, FieldID: 1003, Name: "id_bucket", Transform: "bucket[8]"},
	}
	if len(spec.Fields) != len(want) {
		t.Fatalf("got %d fields, want %d", len(spec.Fields), len(want))
	}
	for i, f := range spec.Fields {
		if f != want[i] {
			t.Errorf("field %d = %+v, want %+v", i, f, want[i])
		}
	}

	for _, bad := range []string{"missing", "bucket[0](id)", "weekly(ts)"} {
		if _, err := parsePartitionSpec(schema, []string{bad}); err == nil {
			t.Errorf("parsePartitionSpec(%q) should fail", bad)
		}
	}

	spec, err = parsePartitionSpec(schema, nil)
	if err != nil || !spec.IsUnpartitioned() {
		t.Errorf("no fields should give the unpartitioned spec, got %+v, %v", spec, err)
	}
}

func TestRowDecoder(t *testing.T) {
	dec := rowDecoder{rowType: row.MustSchema(
		row.Field{Name: "id", Type: row.BigInt},
		row.Field{Name: "name", Type: row.String},
		row.Field{Name: "score", Type: row.Double},
	)}

	r, err := dec.decode([]byte(`{"op": "-D", "ID": 9007199254740993, "score": 1.5}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if r.Kind != row.Delete {
		t.Errorf("kind = %s, want -D", r.Kind)
	}
	if r.Fields[0] != int64(9007199254740993) {
		t.Errorf("id = %v (%T)", r.Fields[0], r.Fields[0])
	}
	if r.Fields[1] != nil {
		t.Errorf("missing column should be null, got %v", r.Fields[1])
	}
	if r.Fields[2] != 1.5 {
		t.Errorf("score = %v", r.Fields[2])
	}

	r, err = dec.decode([]byte(`{"id": 1}`))
	if err != nil || r.Kind != row.Insert {
		t.Errorf("default kind = %v, %v", r.Kind, err)
	}

	for _, bad := range []string{`{"email": "x"}`, `{"op": 1}`, `{"op": "merge"}`, `{"id": "abc"}`, `[1, 2]`} {
		if _, err := dec.decode([]byte(bad)); err == nil {
			t.Errorf("decode(%s) should fail", bad)
		}
	}
}

func TestWriteRows(t *testing.T) {
	ctx := context.Background()
	wh := t.TempDir()
	cat := catalog.NewHadoopCatalog(wh, &storage.LocalStorage{})
	schema := iceberg.NewSchema(0, []iceberg.NestedField{
		{ID: 1, Name: "id", Type: iceberg.String, Required: true},
		{ID: 2, Name: "name", Type: iceberg.String},
		{ID: 3, Name: "age", Type: iceberg.Int},
	}, 1)
	if _, err := cat.CreateTable(ctx, iceberg.NewIdentifier("db", "people"), schema, nil, nil); err != nil {
		t.Fatalf("create table: %v", err)
	}

	cfg := config.Default().Sink
	cfg.Warehouse = wh
	cfg.Namespace = "db"
	cfg.Table = "people"
	cfg.CacheEnabled = false
	cfg.CommitBackoffBase = time.Millisecond
	cfg.CommitBackoffCap = time.Millisecond

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := sink.New(cfg, nil, sink.WithLogger(logger))
	if err != nil {
		t.Fatalf("sink.New: %v", err)
	}
	rowType, err := typeconv.SchemaToLogical(schema)
	if err != nil {
		t.Fatalf("SchemaToLogical: %v", err)
	}
	if err := s.SetTypeInfo(rowType); err != nil {
		t.Fatalf("SetTypeInfo: %v", err)
	}

	input := strings.Join([]string{
		`{"id": "a", "name": "alice", "age": 30}`,
		`{"id": "b", "name": "bob", "age": 40}`,
		``,
		`{"op": "+U", "id": "a", "name": "alice", "age": 31}`,
		`{"op": "-D", "id": "b"}`,
		`{"id": "c", "name": "carol"}`,
	}, "\n")

	ready := newReadiness()
	st, err := writeRows(ctx, s, strings.NewReader(input), 2, ready, logger)
	if err != nil {
		t.Fatalf("writeRows: %v", err)
	}
	if st.rows != 5 || st.snapshots != 3 {
		t.Errorf("stats = %+v, want 5 rows in 3 snapshots", st)
	}
	if !ready.ready.Load() {
		t.Error("readiness should be set once writing starts")
	}

	tbl, err := cat.LoadTable(ctx, iceberg.NewIdentifier("db", "people"))
	if err != nil {
		t.Fatalf("load table: %v", err)
	}
	snap := tbl.Metadata().CurrentSnapshotEntry()
	if snap == nil {
		t.Fatal("no current snapshot")
	}
	if got := snap.Summary["total-records"]; got != "4" {
		t.Errorf("total-records = %s, want 4", got)
	}
	if got := snap.Summary["total-equality-deletes"]; got != "1" {
		t.Errorf("total-equality-deletes = %s, want 1", got)
	}
	live, err := commit.LiveFiles(ctx, tbl)
	if err != nil {
		t.Fatalf("LiveFiles: %v", err)
	}
	if len(live) != 4 {
		t.Errorf("got %d live files, want 4", len(live))
	}
}

func TestWriteRowsBadLine(t *testing.T) {
	ctx := context.Background()
	wh := t.TempDir()
	cat := catalog.NewHadoopCatalog(wh, &storage.LocalStorage{})
	schema := iceberg.NewSchema(0, []iceberg.NestedField{{ID: 1, Name: "id", Type: iceberg.Long, Required: true}})
	tbl, err := cat.CreateTable(ctx, iceberg.NewIdentifier("db", "ids"), schema, nil, nil)
	if err != nil {
		t.Fatalf("create table: %v", err)
	}

	cfg := config.Default().Sink
	cfg.Warehouse = wh
	cfg.Namespace = "db"
	cfg.Table = "ids"
	s, err := sink.New(cfg, &sink.CatalogTable{Schema: row.MustSchema(row.Field{Name: "id", Type: row.BigInt})})
	if err != nil {
		t.Fatalf("sink.New: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, err = writeRows(ctx, s, strings.NewReader("{\"id\": 1}\n{\"id\": \"x\"}\n"), 100, newReadiness(), logger)
	if err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Fatalf("err = %v, want line 2 error", err)
	}
	if snap := tbl.Metadata().CurrentSnapshotEntry(); snap != nil {
		t.Errorf("nothing should be committed, got snapshot %d", snap.SnapshotID)
	}
}

func TestMetricsRouter(t *testing.T) {
	ready := newReadiness()
	srv := httptest.NewServer(metricsRouter(ready))
	defer srv.Close()

	get := func(path string) int {
		t.Helper()
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		defer func() { _ = resp.Body.Close() }()
		return resp.StatusCode
	}

	if code := get("/healthz"); code != http.StatusOK {
		t.Errorf("/healthz = %d", code)
	}
	if code := get("/readyz"); code != http.StatusServiceUnavailable {
		t.Errorf("/readyz before ready = %d", code)
	}
	ready.set(true)
	if code := get("/readyz"); code != http.StatusOK {
		t.Errorf("/readyz after ready = %d", code)
	}
	if code := get("/metrics"); code != http.StatusOK {
		t.Errorf("/metrics = %d", code)
	}
}

func TestConfigTemplate(t *testing.T) {
	tmpl := template.Must(template.New("config").Parse(configTemplate))
	for _, catalogType := range []string{"hadoop", "rest", "glue"} {
		t.Run(catalogType, func(t *testing.T) {
			var buf bytes.Buffer
			if err := tmpl.Execute(&buf, configTemplateData{Catalog: catalogType}); err != nil {
				t.Fatalf("execute: %v", err)
			}
			v := viper.New()
			v.SetConfigType("yaml")
			if err := v.ReadConfig(&buf); err != nil {
				t.Fatalf("generated yaml does not parse: %v", err)
			}
			cfg := config.Default()
			if err := v.Unmarshal(&cfg); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if cfg.Sink.CatalogType != catalogType {
				t.Errorf("catalog_type = %q", cfg.Sink.CatalogType)
			}
			if cfg.Sink.CommitBackoffCap != 5*time.Second {
				t.Errorf("commit_backoff_cap = %v", cfg.Sink.CommitBackoffCap)
			}
			if catalogType != "glue" {
				if err := cfg.Validate(); err != nil {
					t.Errorf("Validate() = %v", err)
				}
			}
		})
	}
}
