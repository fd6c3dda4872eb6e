package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	icecatalog "github.com/apache/iceberg-go/catalog"
	"github.com/apache/iceberg-go/catalog/glue"
	"github.com/apache/iceberg-go/catalog/rest"
	"github.com/apache/iceberg-go/table"

	"github.com/zegnqin/seatunnel/iceberg"
	"github.com/zegnqin/seatunnel/icebergerr"
	"github.com/zegnqin/seatunnel/storage"
)

// Property keys forwarded to REST catalogs.
const (
	PropRESTCredential = "credential"
	PropRESTToken      = "token"
	PropRESTPrefix     = "prefix"
)

// ExternalCatalog serves tables from a catalog service through iceberg-go.
// Tables are loaded read-only: commits need a MetadataCommitter.
type ExternalCatalog struct {
	kind  string
	cat   icecatalog.Catalog
	props map[string]string
}

// NewExternalCatalog wraps an iceberg-go catalog. props configure the file
// IO of loaded tables.
func NewExternalCatalog(kind string, cat icecatalog.Catalog, props map[string]string) *ExternalCatalog {
	return &ExternalCatalog{kind: kind, cat: cat, props: props}
}

func newRESTCatalog(ctx context.Context, name, uri, warehouse string, props map[string]string) (*ExternalCatalog, error) {
	var opts []rest.Option
	if warehouse != "" {
		opts = append(opts, rest.WithWarehouseLocation(warehouse))
	}
	if cred := props[PropRESTCredential]; cred != "" {
		opts = append(opts, rest.WithCredential(cred))
	}
	if tok := props[PropRESTToken]; tok != "" {
		opts = append(opts, rest.WithOAuthToken(tok))
	}
	if prefix := props[PropRESTPrefix]; prefix != "" {
		opts = append(opts, rest.WithPrefix(prefix))
	}
	cat, err := rest.NewCatalog(ctx, name, uri, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect rest catalog %s: %w", uri, err)
	}
	return NewExternalCatalog(TypeREST, cat, props), nil
}

func newGlueCatalog(ctx context.Context, props map[string]string) (*ExternalCatalog, error) {
	cfg, err := storage.LoadAWSConfig(ctx, props)
	if err != nil {
		return nil, err
	}
	return NewExternalCatalog(TypeGlue, glue.NewCatalog(glue.WithAwsConfig(cfg)), props), nil
}

func toIdentifier(id iceberg.Identifier) table.Identifier {
	return icecatalog.ToIdentifier(id.Parts()...)
}

func (c *ExternalCatalog) TableExists(ctx context.Context, id iceberg.Identifier) (bool, error) {
	ok, err := c.cat.CheckTableExists(ctx, toIdentifier(id))
	if err != nil {
		return false, fmt.Errorf("%s catalog: check %s: %w", c.kind, id, err)
	}
	return ok, nil
}

func (c *ExternalCatalog) LoadTable(ctx context.Context, id iceberg.Identifier) (*iceberg.Table, error) {
	meta, loc, err := c.loadMetadata(ctx, id)
	if err != nil {
		return nil, err
	}
	st, err := storage.ForLocation(ctx, meta.Location, c.props)
	if err != nil {
		return nil, fmt.Errorf("file io for %s: %w", id, err)
	}
	refresh := func(ctx context.Context) (*iceberg.TableMetadata, string, error) {
		return c.loadMetadata(ctx, id)
	}
	return iceberg.NewTable(id, meta, loc, st, refresh), nil
}

func (c *ExternalCatalog) loadMetadata(ctx context.Context, id iceberg.Identifier) (*iceberg.TableMetadata, string, error) {
	tbl, err := c.cat.LoadTable(ctx, toIdentifier(id), nil)
	if err != nil {
		if errors.Is(err, icecatalog.ErrNoSuchTable) {
			return nil, "", &icebergerr.TableNotFoundError{Table: id.String()}
		}
		return nil, "", fmt.Errorf("%s catalog: load %s: %w", c.kind, id, err)
	}
	meta, err := convertMetadata(tbl.Metadata())
	if err != nil {
		return nil, "", fmt.Errorf("%s catalog: %s: %w", c.kind, id, err)
	}
	return meta, tbl.MetadataLocation(), nil
}

// convertMetadata round-trips through the shared JSON metadata format.
func convertMetadata(m table.Metadata) (*iceberg.TableMetadata, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return iceberg.ReadMetadata(data)
}
