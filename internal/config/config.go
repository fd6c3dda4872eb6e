package config

import "time"

type Config struct {
	LogLevel    string     `mapstructure:"log_level"`
	LogFormat   string     `mapstructure:"log_format"`
	MetricsAddr string     `mapstructure:"metrics_addr"`
	OTel        OTelConfig `mapstructure:"otel"`
	Sink        SinkConfig `mapstructure:"sink"`
}

type OTelConfig struct {
	Exporter    string  `mapstructure:"exporter"`
	Endpoint    string  `mapstructure:"endpoint"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// CommonConfig locates the catalog and the target table.
type CommonConfig struct {
	CatalogName          string            `mapstructure:"catalog_name" json:"catalog_name"`
	CatalogType          string            `mapstructure:"catalog_type" json:"catalog_type"` // "hadoop", "rest", "glue"
	Warehouse            string            `mapstructure:"warehouse" json:"warehouse"`
	URI                  string            `mapstructure:"uri" json:"uri,omitempty"`
	Namespace            string            `mapstructure:"namespace" json:"namespace"`
	Table                string            `mapstructure:"table" json:"table"`
	KerberosPrincipal    string            `mapstructure:"kerberos_principal" json:"kerberos_principal,omitempty"`
	KerberosKrb5ConfPath string            `mapstructure:"kerberos_krb5_conf_path" json:"kerberos_krb5_conf_path,omitempty"`
	KerberosKeytabPath   string            `mapstructure:"kerberos_keytab_path" json:"kerberos_keytab_path,omitempty"`
	HdfsSitePath         string            `mapstructure:"hdfs_site_path" json:"hdfs_site_path,omitempty"`
	HiveSitePath         string            `mapstructure:"hive_site_path" json:"hive_site_path,omitempty"`
	CacheEnabled         bool              `mapstructure:"cache_enabled" json:"cache_enabled"`
	CacheExpiration      time.Duration     `mapstructure:"cache_expiration" json:"cache_expiration"`
	CatalogProps         map[string]string `mapstructure:"catalog_props" json:"catalog_props,omitempty"`
}

// SinkConfig adds the write-path settings.
type SinkConfig struct {
	CommonConfig `mapstructure:",squash"`

	PrimaryKeys         []string          `mapstructure:"primary_keys"`
	FileFormat          string            `mapstructure:"file_format"` // "parquet" or "orc"
	TargetFileSizeBytes int64             `mapstructure:"target_file_size_bytes"`
	EnableUpsert        bool              `mapstructure:"enable_upsert"`
	WriteProps          map[string]string `mapstructure:"write_props"`
	CommitRetries       int               `mapstructure:"commit_retries"`
	CommitBackoffBase   time.Duration     `mapstructure:"commit_backoff_base"`
	CommitBackoffCap    time.Duration     `mapstructure:"commit_backoff_cap"`
}

// DefaultCommon returns CommonConfig defaults.
func DefaultCommon() CommonConfig {
	return CommonConfig{
		CatalogName:     "default",
		CatalogType:     "hadoop",
		CacheEnabled:    true,
		CacheExpiration: 30 * time.Second,
		CatalogProps:    map[string]string{},
	}
}

func Default() Config {
	return Config{
		LogLevel:  "info",
		LogFormat: "text",
		OTel: OTelConfig{
			Exporter:    "none",
			SampleRatio: 1.0,
		},
		Sink: SinkConfig{
			CommonConfig:        DefaultCommon(),
			FileFormat:          "parquet",
			TargetFileSizeBytes: 512 * 1024 * 1024, // 512 MB
			WriteProps:          map[string]string{},
			CommitRetries:       4,
			CommitBackoffBase:   100 * time.Millisecond,
			CommitBackoffCap:    5 * time.Second,
		},
	}
}
