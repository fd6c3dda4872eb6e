// Package loader opens a catalog and resolves the sink's target table.
package loader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zegnqin/seatunnel/catalog"
	"github.com/zegnqin/seatunnel/iceberg"
	"github.com/zegnqin/seatunnel/icebergerr"
	"github.com/zegnqin/seatunnel/internal/config"
	"github.com/zegnqin/seatunnel/metrics"
	"github.com/zegnqin/seatunnel/tracing"
)

// CatalogTableHint carries the engine-side table descriptor. Its names are
// used when the configuration leaves them blank.
type CatalogTableHint struct {
	Namespace string
	Table     string
}

// TableLoader owns a catalog connection and yields handles to one table.
// It must be opened before LoadTable and closed when done.
type TableLoader struct {
	cfg    config.CommonConfig
	id     iceberg.Identifier
	logger *slog.Logger
	tracer trace.Tracer

	mu  sync.Mutex
	cat catalog.Catalog
}

// Option configures a TableLoader.
type Option func(*TableLoader)

// WithLogger sets the logger. nil keeps slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(tl *TableLoader) {
		if l != nil {
			tl.logger = l
		}
	}
}

// Create builds a closed loader from cfg.
func Create(cfg config.CommonConfig, opts ...Option) (*TableLoader, error) {
	return CreateWithHint(cfg, nil, opts...)
}

// CreateWithHint is Create with a fallback table name taken from hint.
func CreateWithHint(cfg config.CommonConfig, hint *CatalogTableHint, opts ...Option) (*TableLoader, error) {
	tl := &TableLoader{
		cfg:    cfg,
		logger: slog.Default(),
		tracer: tracing.Tracer("icesink.loader"),
	}
	for _, o := range opts {
		o(tl)
	}
	tl.logger = tl.logger.With("component", "table_loader")

	id, err := tl.resolveIdentifier(hint)
	if err != nil {
		return nil, err
	}
	tl.id = id
	return tl, nil
}

func (tl *TableLoader) resolveIdentifier(hint *CatalogTableHint) (iceberg.Identifier, error) {
	namespace := strings.TrimSpace(tl.cfg.Namespace)
	name := strings.TrimSpace(tl.cfg.Table)

	if hint != nil {
		if namespace == "" {
			namespace = hint.Namespace
		}
		if name == "" && hint.Table != "" {
			tl.logger.Info("conf table name is empty, use catalog table name: " + hint.Table)
			name = hint.Table
		}
	}
	if name == "" {
		return iceberg.Identifier{}, &icebergerr.ConfigurationError{Field: "table", Reason: "table name is empty"}
	}
	return iceberg.NewIdentifier(namespace, name), nil
}

// SetTracer replaces the tracer used for Open and LoadTable spans.
func (tl *TableLoader) SetTracer(t trace.Tracer) {
	tl.tracer = t
}

// Identifier returns the resolved table identifier.
func (tl *TableLoader) Identifier() iceberg.Identifier { return tl.id }

// Config returns the catalog configuration.
func (tl *TableLoader) Config() config.CommonConfig { return tl.cfg }

// Catalog returns the open catalog, or nil before Open.
func (tl *TableLoader) Catalog() catalog.Catalog {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return tl.cat
}

func (tl *TableLoader) factory() catalog.Factory {
	return catalog.Factory{
		CatalogName:          tl.cfg.CatalogName,
		CatalogType:          tl.cfg.CatalogType,
		Warehouse:            tl.cfg.Warehouse,
		URI:                  tl.cfg.URI,
		KerberosPrincipal:    tl.cfg.KerberosPrincipal,
		KerberosKrb5ConfPath: tl.cfg.KerberosKrb5ConfPath,
		KerberosKeytabPath:   tl.cfg.KerberosKeytabPath,
		HdfsSitePath:         tl.cfg.HdfsSitePath,
		HiveSitePath:         tl.cfg.HiveSitePath,
		Properties:           tl.cfg.CatalogProps,
	}
}

// Open connects to the catalog. Opening an open loader does nothing.
func (tl *TableLoader) Open(ctx context.Context) (err error) {
	ctx, span := tl.tracer.Start(ctx, "icesink.loader.open",
		trace.WithAttributes(
			attribute.String("icesink.catalog_type", tl.cfg.CatalogType),
			attribute.String("icesink.table", tl.id.String()),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	tl.mu.Lock()
	defer tl.mu.Unlock()
	if tl.cat != nil {
		return nil
	}

	cat, err := tl.factory().Create(ctx)
	if err != nil {
		return fmt.Errorf("open catalog %q: %w", tl.cfg.CatalogName, err)
	}
	if tl.cfg.CacheEnabled {
		cat = catalog.NewCachingCatalog(cat, catalog.WithExpiration(tl.cfg.CacheExpiration))
	}
	tl.cat = cat
	tl.logger.Info("catalog opened",
		"catalog", tl.cfg.CatalogName,
		"type", tl.cfg.CatalogType,
		"cache", tl.cfg.CacheEnabled,
	)
	return nil
}

// LoadTable returns a live handle to the configured table.
func (tl *TableLoader) LoadTable(ctx context.Context) (_ *iceberg.Table, err error) {
	ctx, span := tl.tracer.Start(ctx, "icesink.loader.load_table",
		trace.WithAttributes(attribute.String("icesink.table", tl.id.String())),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	cat := tl.Catalog()
	if cat == nil {
		return nil, icebergerr.ErrLoaderNotOpen
	}

	exists, err := cat.TableExists(ctx, tl.id)
	if err != nil {
		metrics.CatalogLoads.WithLabelValues("error").Inc()
		return nil, icebergerr.WrapTable(err, "table exists", tl.id.String())
	}
	if !exists {
		metrics.CatalogLoads.WithLabelValues("not_found").Inc()
		return nil, &icebergerr.TableNotFoundError{Table: tl.id.String()}
	}

	tbl, err := cat.LoadTable(ctx, tl.id)
	if err != nil {
		var nf *icebergerr.TableNotFoundError
		if errors.As(err, &nf) {
			metrics.CatalogLoads.WithLabelValues("not_found").Inc()
			return nil, err
		}
		metrics.CatalogLoads.WithLabelValues("error").Inc()
		return nil, icebergerr.WrapTable(err, "load table", tl.id.String())
	}
	metrics.CatalogLoads.WithLabelValues("ok").Inc()
	return tbl, nil
}

// Close releases the catalog. Closing twice, or closing an unopened loader,
// does nothing.
func (tl *TableLoader) Close() error {
	tl.mu.Lock()
	cat := tl.cat
	tl.cat = nil
	tl.mu.Unlock()

	if cat == nil {
		return nil
	}
	if closer, ok := cat.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			return fmt.Errorf("close catalog %q: %w", tl.cfg.CatalogName, err)
		}
	}
	tl.logger.Debug("catalog closed", "catalog", tl.cfg.CatalogName)
	return nil
}

type wireLoader struct {
	Config     config.CommonConfig `json:"config"`
	Identifier iceberg.Identifier  `json:"identifier"`
}

// MarshalJSON encodes the configuration and identifier. The connection is
// never transferred.
func (tl *TableLoader) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireLoader{Config: tl.cfg, Identifier: tl.id})
}

// UnmarshalJSON restores a closed loader; Open must be called before use.
func (tl *TableLoader) UnmarshalJSON(data []byte) error {
	var w wireLoader
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decode table loader: %w", err)
	}
	if w.Identifier.Name == "" {
		return &icebergerr.ConfigurationError{Field: "table", Reason: "table name is empty"}
	}

	tl.mu.Lock()
	defer tl.mu.Unlock()
	tl.cfg = w.Config
	tl.id = w.Identifier
	tl.cat = nil
	if tl.logger == nil {
		tl.logger = slog.Default().With("component", "table_loader")
	}
	if tl.tracer == nil {
		tl.tracer = tracing.Tracer("icesink.loader")
	}
	return nil
}
