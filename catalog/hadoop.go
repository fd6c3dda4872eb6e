package catalog

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/zegnqin/seatunnel/iceberg"
	"github.com/zegnqin/seatunnel/icebergerr"
	"github.com/zegnqin/seatunnel/storage"
)

const (
	versionHintFile = "version-hint.text"
	maxScanVersions = 10000
)

// HadoopCatalog stores Iceberg metadata as versioned JSON files on a filesystem.
// No catalog server required. Table location: {warehouse}/{namespace}/{table}/
type HadoopCatalog struct {
	warehouse string
	storage   storage.Storage
}

// NewHadoopCatalog creates a hadoop-style catalog backed by the given storage.
func NewHadoopCatalog(warehouse string, st storage.Storage) *HadoopCatalog {
	return &HadoopCatalog{
		warehouse: strings.TrimSuffix(warehouse, "/"),
		storage:   st,
	}
}

func (c *HadoopCatalog) tablePath(id iceberg.Identifier) string {
	return storage.Join(c.warehouse, id.Parts()...)
}

func (c *HadoopCatalog) metadataDir(id iceberg.Identifier) string {
	return storage.Join(c.tablePath(id), "metadata")
}

func versionFile(metaDir string, v int) string {
	return storage.Join(metaDir, fmt.Sprintf("v%d.metadata.json", v))
}

// TableExists reports whether any metadata version exists.
func (c *HadoopCatalog) TableExists(ctx context.Context, id iceberg.Identifier) (bool, error) {
	v, err := c.latestVersion(ctx, c.metadataDir(id))
	if err != nil {
		return false, err
	}
	return v > 0, nil
}

// LoadTable reads the latest versioned metadata file.
func (c *HadoopCatalog) LoadTable(ctx context.Context, id iceberg.Identifier) (*iceberg.Table, error) {
	meta, loc, err := c.loadMetadata(ctx, id)
	if err != nil {
		return nil, err
	}
	refresh := func(ctx context.Context) (*iceberg.TableMetadata, string, error) {
		return c.loadMetadata(ctx, id)
	}
	return iceberg.NewTable(id, meta, loc, c.storage, refresh), nil
}

func (c *HadoopCatalog) loadMetadata(ctx context.Context, id iceberg.Identifier) (*iceberg.TableMetadata, string, error) {
	metaDir := c.metadataDir(id)

	version, err := c.latestVersion(ctx, metaDir)
	if err != nil {
		return nil, "", err
	}
	if version < 0 {
		return nil, "", &icebergerr.TableNotFoundError{Table: id.String()}
	}

	path := versionFile(metaDir, version)
	data, err := c.storage.Read(ctx, path)
	if err != nil {
		return nil, "", fmt.Errorf("read metadata v%d: %w", version, err)
	}

	meta, err := iceberg.ReadMetadata(data)
	if err != nil {
		return nil, "", fmt.Errorf("parse metadata v%d: %w", version, err)
	}
	return meta, path, nil
}

// CreateTable writes the initial metadata as v1.metadata.json.
func (c *HadoopCatalog) CreateTable(ctx context.Context, id iceberg.Identifier, schema *iceberg.Schema, spec *iceberg.PartitionSpec, props map[string]string) (*iceberg.Table, error) {
	metaDir := c.metadataDir(id)

	exists, err := c.TableExists(ctx, id)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("create table %s: already exists", id)
	}

	meta := iceberg.NewTableMetadata(c.tablePath(id), schema, spec, props)
	data, err := iceberg.WriteMetadata(meta)
	if err != nil {
		return nil, err
	}

	path := versionFile(metaDir, 1)
	if err := c.storage.Write(ctx, path, data); err != nil {
		return nil, fmt.Errorf("write metadata v1: %w", err)
	}

	// Write version-hint.text for other readers.
	if err := c.storage.Write(ctx, storage.Join(metaDir, versionHintFile), []byte("1")); err != nil {
		return nil, fmt.Errorf("write version hint: %w", err)
	}

	refresh := func(ctx context.Context) (*iceberg.TableMetadata, string, error) {
		return c.loadMetadata(ctx, id)
	}
	return iceberg.NewTable(id, meta, path, c.storage, refresh), nil
}

// CommitTable writes the next versioned metadata file.
// Uses optimistic concurrency: the latest version must still be baseLocation.
func (c *HadoopCatalog) CommitTable(ctx context.Context, id iceberg.Identifier, baseLocation string, updated *iceberg.TableMetadata) (string, error) {
	metaDir := c.metadataDir(id)

	currentVersion, err := c.latestVersion(ctx, metaDir)
	if err != nil {
		return "", err
	}
	if currentVersion < 0 {
		return "", &icebergerr.TableNotFoundError{Table: id.String()}
	}
	if current := versionFile(metaDir, currentVersion); current != baseLocation {
		return "", &icebergerr.CommitConflictError{
			Table: id.String(),
			Err:   fmt.Errorf("base %s is stale, current is %s", baseLocation, current),
		}
	}

	newVersion := currentVersion + 1
	path := versionFile(metaDir, newVersion)
	if exists, err := c.storage.Exists(ctx, path); err != nil {
		return "", fmt.Errorf("check metadata v%d: %w", newVersion, err)
	} else if exists {
		return "", &icebergerr.CommitConflictError{Table: id.String(), Err: fmt.Errorf("v%d written concurrently", newVersion)}
	}

	updated.Location = c.tablePath(id)
	data, err := iceberg.WriteMetadata(updated)
	if err != nil {
		return "", err
	}
	if err := c.storage.Write(ctx, path, data); err != nil {
		return "", fmt.Errorf("write metadata v%d: %w", newVersion, err)
	}

	// Update version hint.
	hintPath := storage.Join(metaDir, versionHintFile)
	if err := c.storage.Write(ctx, hintPath, []byte(strconv.Itoa(newVersion))); err != nil {
		return "", fmt.Errorf("update version hint: %w", err)
	}
	return path, nil
}

// latestVersion finds the highest version number in the metadata directory.
// Returns -1 if no metadata files exist.
func (c *HadoopCatalog) latestVersion(ctx context.Context, metaDir string) (int, error) {
	// Try reading version-hint.text first.
	hintData, err := c.storage.Read(ctx, storage.Join(metaDir, versionHintFile))
	if err == nil {
		if v, err := strconv.Atoi(strings.TrimSpace(string(hintData))); err == nil && v > 0 {
			exists, err := c.storage.Exists(ctx, versionFile(metaDir, v))
			if err != nil {
				return -1, fmt.Errorf("check metadata v%d: %w", v, err)
			}
			// A newer version may exist if the hint update was lost.
			if exists {
				return c.scanFrom(ctx, metaDir, v)
			}
		}
	}

	return c.scanFrom(ctx, metaDir, 0)
}

// scanFrom checks v(from+1), v(from+2), ... and returns the last that exists,
// or -1 when none does.
func (c *HadoopCatalog) scanFrom(ctx context.Context, metaDir string, from int) (int, error) {
	latest := from
	for v := from + 1; v <= maxScanVersions; v++ {
		exists, err := c.storage.Exists(ctx, versionFile(metaDir, v))
		if err != nil {
			return -1, fmt.Errorf("scan versions: %w", err)
		}
		if !exists {
			break
		}
		latest = v
	}
	if latest == 0 {
		return -1, nil
	}
	return latest, nil
}
