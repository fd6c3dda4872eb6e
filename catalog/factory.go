package catalog

import (
	"context"
	"strings"

	"github.com/zegnqin/seatunnel/icebergerr"
	"github.com/zegnqin/seatunnel/storage"
)

// Catalog types accepted by Factory.
const (
	TypeHadoop = "hadoop"
	TypeREST   = "rest"
	TypeGlue   = "glue"
	TypeHive   = "hive"
)

// Factory holds the settings needed to connect to a catalog.
type Factory struct {
	CatalogName          string            `json:"catalog_name"`
	CatalogType          string            `json:"catalog_type"`
	Warehouse            string            `json:"warehouse"`
	URI                  string            `json:"uri,omitempty"`
	KerberosPrincipal    string            `json:"kerberos_principal,omitempty"`
	KerberosKrb5ConfPath string            `json:"kerberos_krb5_conf_path,omitempty"`
	KerberosKeytabPath   string            `json:"kerberos_keytab_path,omitempty"`
	HdfsSitePath         string            `json:"hdfs_site_path,omitempty"`
	HiveSitePath         string            `json:"hive_site_path,omitempty"`
	Properties           map[string]string `json:"catalog_props,omitempty"`
}

// Create connects to the configured catalog.
func (f Factory) Create(ctx context.Context) (Catalog, error) {
	if f.KerberosPrincipal != "" || f.KerberosKeytabPath != "" || f.KerberosKrb5ConfPath != "" {
		return nil, &icebergerr.ConfigurationError{Field: "kerberos_principal", Reason: "kerberos authentication is not available"}
	}
	if f.HdfsSitePath != "" || f.HiveSitePath != "" {
		return nil, &icebergerr.ConfigurationError{Field: "hdfs_site_path", Reason: "hadoop site files are not supported; use warehouse and catalog_props"}
	}

	props := f.Properties
	if props == nil {
		props = map[string]string{}
	}

	switch strings.ToLower(f.CatalogType) {
	case TypeHadoop:
		if f.Warehouse == "" {
			return nil, &icebergerr.ConfigurationError{Field: "warehouse", Reason: "required for hadoop catalog"}
		}
		st, err := storage.ForLocation(ctx, f.Warehouse, props)
		if err != nil {
			return nil, err
		}
		return NewHadoopCatalog(f.Warehouse, st), nil
	case TypeREST:
		if f.URI == "" {
			return nil, &icebergerr.ConfigurationError{Field: "uri", Reason: "required for rest catalog"}
		}
		return newRESTCatalog(ctx, f.CatalogName, f.URI, f.Warehouse, props)
	case TypeGlue:
		return newGlueCatalog(ctx, props)
	case TypeHive:
		return nil, &icebergerr.ConfigurationError{Field: "catalog_type", Reason: "hive metastore catalogs are not supported"}
	case "":
		return nil, &icebergerr.ConfigurationError{Field: "catalog_type", Reason: "required"}
	default:
		return nil, &icebergerr.ConfigurationError{Field: "catalog_type", Reason: "unknown catalog type " + f.CatalogType}
	}
}
