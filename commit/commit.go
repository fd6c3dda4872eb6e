// Package commit publishes written data and delete files as table snapshots.
package commit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zegnqin/seatunnel/catalog"
	"github.com/zegnqin/seatunnel/iceberg"
	"github.com/zegnqin/seatunnel/icebergerr"
	"github.com/zegnqin/seatunnel/internal/backoff"
	"github.com/zegnqin/seatunnel/metrics"
	"github.com/zegnqin/seatunnel/storage"
	"github.com/zegnqin/seatunnel/tracing"
)

// Snapshot operations recorded in the summary.
const (
	OperationAppend    = "append"
	OperationOverwrite = "overwrite"
	OperationDelete    = "delete"
)

// SummaryTraceparent is the snapshot summary key holding the W3C
// traceparent of the commit span.
const SummaryTraceparent = "icesink.traceparent"

const (
	defaultRetries     = 4
	defaultBackoffBase = 100 * time.Millisecond
	defaultBackoffCap  = 5 * time.Second
)

// WriteResult is what one task writer produced for a checkpoint.
type WriteResult struct {
	DataFiles           []iceberg.DataFile `json:"data-files,omitempty"`
	DeleteFiles         []iceberg.DataFile `json:"delete-files,omitempty"`
	ReferencedDataFiles []string           `json:"referenced-data-files,omitempty"`
}

// Empty reports whether the result carries no files.
func (r WriteResult) Empty() bool { return len(r.DataFiles) == 0 && len(r.DeleteFiles) == 0 }

// Merge combines results from several writers into one.
func Merge(results ...WriteResult) WriteResult {
	var out WriteResult
	seen := map[string]struct{}{}
	for _, r := range results {
		out.DataFiles = append(out.DataFiles, r.DataFiles...)
		out.DeleteFiles = append(out.DeleteFiles, r.DeleteFiles...)
		for _, p := range r.ReferencedDataFiles {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			out.ReferencedDataFiles = append(out.ReferencedDataFiles, p)
		}
	}
	sort.Strings(out.ReferencedDataFiles)
	return out
}

// Files lists every data and delete file of the result.
func (r WriteResult) Files() []iceberg.DataFile {
	out := make([]iceberg.DataFile, 0, len(r.DataFiles)+len(r.DeleteFiles))
	out = append(out, r.DataFiles...)
	return append(out, r.DeleteFiles...)
}

// Committer turns write results into snapshots through a catalog that
// supports metadata commits.
type Committer struct {
	committer catalog.MetadataCommitter
	logger    *slog.Logger
	tracer    trace.Tracer

	retries     int
	backoffBase time.Duration
	backoffCap  time.Duration
	now         func() time.Time
}

// Option configures a Committer.
type Option func(*Committer)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Committer) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRetry sets how many times a conflicting commit is retried and the
// backoff between attempts.
func WithRetry(retries int, base, cap time.Duration) Option {
	return func(c *Committer) {
		c.retries = retries
		if base > 0 {
			c.backoffBase = base
		}
		if cap > 0 {
			c.backoffCap = cap
		}
	}
}

// New builds a Committer for cat. It fails when the catalog cannot commit.
func New(cat catalog.Catalog, opts ...Option) (*Committer, error) {
	mc, ok := catalog.AsCommitter(cat)
	if !ok {
		return nil, fmt.Errorf("new committer: %w", catalog.ErrNotSupported)
	}
	c := &Committer{
		committer:   mc,
		logger:      slog.Default(),
		tracer:      tracing.Tracer("icesink.commit"),
		retries:     defaultRetries,
		backoffBase: defaultBackoffBase,
		backoffCap:  defaultBackoffCap,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "committer")
	return c, nil
}

// SetTracer sets the OpenTelemetry tracer for commit spans.
func (c *Committer) SetTracer(t trace.Tracer) {
	if t != nil {
		c.tracer = t
	}
}

func isConflict(err error) bool {
	var conflict *icebergerr.CommitConflictError
	return errors.As(err, &conflict)
}

// Commit publishes results as one snapshot of table and updates the handle
// to the committed metadata. On a conflict the table is refreshed and the
// snapshot rebuilt on top of the new state. An empty result commits nothing
// and returns nil.
func (c *Committer) Commit(ctx context.Context, table *iceberg.Table, results ...WriteResult) (snap *iceberg.Snapshot, err error) {
	merged := Merge(results...)
	ctx = tracing.ContextWithTable(ctx, table.Identifier().String())
	if merged.Empty() {
		c.logger.DebugContext(ctx, "nothing to commit")
		return nil, nil
	}

	ctx, span := c.tracer.Start(ctx, "icesink.commit",
		trace.WithAttributes(
			attribute.String("icesink.table", table.Identifier().String()),
			attribute.Int("icesink.data_files", len(merged.DataFiles)),
			attribute.Int("icesink.delete_files", len(merged.DeleteFiles)),
		),
	)
	start := c.now()
	defer func() {
		metrics.CommitDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	traceparent := tracing.FormatTraceparent(span.SpanContext())

	err = backoff.Retry(ctx, c.retries, c.backoffBase, c.backoffCap, isConflict, func(attempt int) error {
		if attempt > 0 {
			if err := table.Refresh(ctx); err != nil {
				return err
			}
		}
		s, err := c.attempt(ctx, table, merged, attempt, traceparent)
		switch {
		case err == nil:
			metrics.Commits.WithLabelValues("ok").Inc()
			snap = s
		case isConflict(err):
			metrics.Commits.WithLabelValues("conflict").Inc()
			c.logger.WarnContext(ctx, "commit conflict, retrying", "attempt", attempt, "error", err)
		default:
			metrics.Commits.WithLabelValues("error").Inc()
		}
		return err
	})
	if err != nil {
		return nil, icebergerr.WrapTable(err, "commit", table.Identifier().String())
	}

	span.SetAttributes(attribute.Int64("icesink.snapshot_id", snap.SnapshotID))
	c.logger.InfoContext(ctx, "snapshot committed",
		"snapshot_id", snap.SnapshotID,
		"operation", snap.Summary["operation"],
		"data_files", len(merged.DataFiles),
		"delete_files", len(merged.DeleteFiles),
		"duration_s", fmt.Sprintf("%.3f", time.Since(start).Seconds()),
	)
	return snap, nil
}

// attempt writes manifests and a manifest list on top of the table's current
// metadata and swaps the metadata pointer.
// 1. Write one Avro manifest per content kind and partition spec
// 2. Write the Avro manifest list, carrying over the parent's manifests
// 3. Add the snapshot to a copy of the metadata
// 4. Commit to catalog
func (c *Committer) attempt(ctx context.Context, table *iceberg.Table, res WriteResult, attempt int, traceparent string) (*iceberg.Snapshot, error) {
	base := table.Metadata()
	baseLocation := table.MetadataLocation()
	io := table.IO()
	metaDir := storage.Join(base.Location, "metadata")

	schema := base.CurrentSchema()
	if schema == nil {
		return nil, fmt.Errorf("table %s has no current schema", table.Identifier())
	}
	snapID := iceberg.GenerateSnapshotID()
	seqNum := base.LastSeqNumber + 1

	var written []string
	cleanup := func() {
		for _, p := range written {
			if err := io.Delete(ctx, p); err != nil {
				c.logger.WarnContext(ctx, "delete uncommitted manifest", "path", p, "error", err)
			}
		}
	}

	// 1. Manifests for the new files.
	var added []iceberg.ManifestFile
	for _, group := range groupFiles(res) {
		spec := base.SpecByID(group.specID)
		if spec == nil {
			cleanup()
			return nil, fmt.Errorf("file %s references unknown partition spec %d", group.files[0].FilePath, group.specID)
		}
		data, err := writeManifest(group.files, group.content, schema, spec, snapID, seqNum)
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("write manifest: %w", err)
		}
		path := storage.Join(metaDir, fmt.Sprintf("%s-m%d.avro", uuid.New().String(), len(added)))
		if err := io.Write(ctx, path, data); err != nil {
			cleanup()
			return nil, fmt.Errorf("store manifest: %w", err)
		}
		written = append(written, path)

		mf := iceberg.ManifestFile{
			ManifestPath:        path,
			ManifestLength:      int64(len(data)),
			PartitionSpecID:     spec.SpecID,
			ContentType:         group.content,
			SequenceNumber:      seqNum,
			MinSequenceNumber:   seqNum,
			AddedSnapshotID:     snapID,
			AddedDataFilesCount: len(group.files),
		}
		for _, f := range group.files {
			mf.AddedRowsCount += f.RecordCount
		}
		added = append(added, mf)
	}

	// 2. Manifest list: new manifests first, then those of the parent.
	parent := base.CurrentSnapshotEntry()
	manifests := added
	var parentID *int64
	if parent != nil {
		id := parent.SnapshotID
		parentID = &id
		if parent.ManifestList != "" {
			previous, err := ReadManifestList(ctx, io, parent.ManifestList)
			if err != nil {
				cleanup()
				return nil, err
			}
			manifests = append(manifests, previous...)
		}
	}
	listData, err := writeManifestList(manifests, snapID, parentID, seqNum)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("write manifest list: %w", err)
	}
	listPath := storage.Join(metaDir, fmt.Sprintf("snap-%d-%d-%s.avro", snapID, attempt+1, uuid.New().String()))
	if err := io.Write(ctx, listPath, listData); err != nil {
		cleanup()
		return nil, fmt.Errorf("store manifest list: %w", err)
	}
	written = append(written, listPath)

	// 3. New metadata with the snapshot as the head of main.
	updated, err := base.Clone()
	if err != nil {
		cleanup()
		return nil, err
	}
	now := c.now()
	snap := iceberg.Snapshot{
		SnapshotID:       snapID,
		ParentSnapshotID: parentID,
		SequenceNumber:   seqNum,
		TimestampMS:      now.UnixMilli(),
		ManifestList:     listPath,
		Summary:          summarize(res, parent, traceparent),
		SchemaID:         schema.SchemaID,
	}
	if baseLocation != "" {
		updated.MetadataLog = append(updated.MetadataLog, iceberg.MetadataLogEntry{
			TimestampMS:  base.LastUpdatedMS,
			MetadataFile: baseLocation,
		})
	}
	updated.LastSeqNumber = seqNum
	updated.LastUpdatedMS = now.UnixMilli()
	updated.Snapshots = append(updated.Snapshots, snap)
	updated.SnapshotLog = append(updated.SnapshotLog, iceberg.SnapshotLogEntry{
		TimestampMS: now.UnixMilli(),
		SnapshotID:  snapID,
	})
	updated.CurrentSnapshot = snapID
	if updated.Refs == nil {
		updated.Refs = map[string]iceberg.SnapshotRef{}
	}
	updated.Refs[iceberg.MainBranch] = iceberg.SnapshotRef{SnapshotID: snapID, Type: "branch"}

	// 4. Commit to catalog.
	newLocation, err := c.committer.CommitTable(ctx, table.Identifier(), baseLocation, updated)
	if err != nil {
		cleanup()
		return nil, err
	}
	table.Update(updated, newLocation)
	return &snap, nil
}

type fileGroup struct {
	content int
	specID  int
	files   []iceberg.DataFile
}

// groupFiles splits files by manifest content and partition spec, data
// manifests first.
func groupFiles(res WriteResult) []fileGroup {
	var groups []fileGroup
	index := map[[2]int]int{}
	add := func(content int, f iceberg.DataFile) {
		key := [2]int{content, f.SpecID}
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, fileGroup{content: content, specID: f.SpecID})
		}
		groups[i].files = append(groups[i].files, f)
	}
	for _, f := range res.DataFiles {
		add(manifestContentData, f)
	}
	for _, f := range res.DeleteFiles {
		add(manifestContentDeletes, f)
	}
	return groups
}

func summarize(res WriteResult, parent *iceberg.Snapshot, traceparent string) map[string]string {
	var records, size, posDeletes, eqDeletes int64
	for _, f := range res.DataFiles {
		records += f.RecordCount
		size += f.FileSizeBytes
	}
	for _, f := range res.DeleteFiles {
		size += f.FileSizeBytes
		if f.Content == iceberg.ContentEqualityDeletes {
			eqDeletes += f.RecordCount
		} else {
			posDeletes += f.RecordCount
		}
	}

	op := OperationAppend
	switch {
	case len(res.DeleteFiles) > 0 && len(res.DataFiles) > 0:
		op = OperationOverwrite
	case len(res.DeleteFiles) > 0:
		op = OperationDelete
	}

	s := map[string]string{"operation": op}
	put := func(key string, added int64, total string) {
		if added > 0 {
			s[key] = strconv.FormatInt(added, 10)
		}
		s[total] = strconv.FormatInt(summaryInt(parent, total)+added, 10)
	}
	put("added-data-files", int64(len(res.DataFiles)), "total-data-files")
	put("added-records", records, "total-records")
	put("added-files-size", size, "total-files-size")
	put("added-delete-files", int64(len(res.DeleteFiles)), "total-delete-files")
	put("added-position-deletes", posDeletes, "total-position-deletes")
	put("added-equality-deletes", eqDeletes, "total-equality-deletes")
	if traceparent != "" {
		s[SummaryTraceparent] = traceparent
	}
	return s
}

// summaryInt reads a counter from a snapshot summary; missing is zero.
func summaryInt(snap *iceberg.Snapshot, key string) int64 {
	if snap == nil {
		return 0
	}
	n, _ := strconv.ParseInt(snap.Summary[key], 10, 64)
	return n
}

// LiveFiles lists the files tracked by the table's current snapshot.
func LiveFiles(ctx context.Context, table *iceberg.Table) ([]ManifestEntry, error) {
	snap := table.Metadata().CurrentSnapshotEntry()
	if snap == nil || snap.ManifestList == "" {
		return nil, nil
	}
	manifests, err := ReadManifestList(ctx, table.IO(), snap.ManifestList)
	if err != nil {
		return nil, err
	}
	var out []ManifestEntry
	for _, mf := range manifests {
		entries, err := ReadManifest(ctx, table.IO(), mf.ManifestPath)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.Status == iceberg.ManifestEntryStatusDeleted {
				continue
			}
			e.File.SpecID = mf.PartitionSpecID
			out = append(out, e)
		}
	}
	return out, nil
}

// Abort deletes files that were written but will not be committed.
func Abort(ctx context.Context, io storage.Storage, res WriteResult, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	var errs []error
	for _, f := range res.Files() {
		if err := io.Delete(ctx, f.FilePath); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", f.FilePath, err))
			continue
		}
		logger.DebugContext(ctx, "deleted uncommitted file", "path", f.FilePath)
	}
	return errors.Join(errs...)
}
