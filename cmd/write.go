package cmd

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/zegnqin/seatunnel/internal/config"
	"github.com/zegnqin/seatunnel/row"
	"github.com/zegnqin/seatunnel/sink"
	"github.com/zegnqin/seatunnel/tracing"
	"github.com/zegnqin/seatunnel/typeconv"
)

var writeCmd = &cobra.Command{
	Use:   "write [file.jsonl]",
	Short: "Write JSON lines into the configured table",
	Long: `Reads one JSON object per line from the file or stdin and writes it into the
configured table. Keys are column names; the optional "op" key carries the row
kind (+I, -U, +U, -D or insert, update, delete). Every --checkpoint-rows rows the
written files are committed as one snapshot.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWrite,
}

func init() {
	rootCmd.AddCommand(writeCmd)
	f := writeCmd.Flags()
	f.StringSlice("primary-key", nil, "equality columns, overriding the table identifier fields (repeatable)")
	f.String("file-format", "", "data file format: parquet, orc (default: sink.file_format)")
	f.Bool("upsert", false, "replace rows with the same key on insert")
	f.Int64("target-file-size", 0, "roll data files at this many bytes (default: sink.target_file_size_bytes)")
	f.Int("checkpoint-rows", 10000, "commit after this many rows")
	f.String("metrics-addr", "", "serve /metrics and /healthz on this address")
	f.String("otel-exporter", "none", "trace exporter: none, stdout, otlp")
	f.String("otel-endpoint", "", "OTLP endpoint")

	// Sink overrides are read directly so that unset flags keep the
	// config file values.
	mustBindPFlag("metrics_addr", f.Lookup("metrics-addr"))
	mustBindPFlag("otel.exporter", f.Lookup("otel-exporter"))
	mustBindPFlag("otel.endpoint", f.Lookup("otel-endpoint"))
}

func runWrite(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applySinkFlags(cmd, &cfg.Sink); err != nil {
		return err
	}
	checkpointRows, _ := cmd.Flags().GetInt("checkpoint-rows")
	if checkpointRows <= 0 {
		return fmt.Errorf("--checkpoint-rows must be > 0")
	}

	var in io.Reader = cmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		defer func() { _ = f.Close() }()
		in = f
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	logger := slog.Default()

	_, shutdown, err := tracing.Setup(ctx, tracing.Config{
		Exporter:       cfg.OTel.Exporter,
		Endpoint:       cfg.OTel.Endpoint,
		SampleRatio:    cfg.OTel.SampleRatio,
		ServiceVersion: Version,
		CatalogType:    cfg.Sink.CatalogType,
		Table:          cfg.Sink.Namespace + "." + cfg.Sink.Table,
	}, logger)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer shutdown()

	// The row type is the table's own schema seen through the type bridge.
	tl, tbl, err := openTable(ctx, cfg.Sink.CommonConfig)
	if err != nil {
		return err
	}
	rowType, err := typeconv.SchemaToLogical(tbl.Schema())
	_ = tl.Close()
	if err != nil {
		return err
	}

	s, err := sink.New(cfg.Sink, nil, sink.WithLogger(logger))
	if err != nil {
		return err
	}
	if err := s.SetTypeInfo(rowType); err != nil {
		return err
	}

	ready := newReadiness()
	g, gctx := errgroup.WithContext(ctx)
	done := make(chan struct{})
	if cfg.MetricsAddr != "" {
		g.Go(func() error {
			return serveMetrics(gctx, cfg.MetricsAddr, ready, done, logger)
		})
	}
	g.Go(func() error {
		defer close(done)
		st, err := writeRows(gctx, s, in, checkpointRows, ready, logger)
		logger.Info("write finished", "rows", st.rows, "snapshots", st.snapshots)
		return err
	})
	return g.Wait()
}

func applySinkFlags(cmd *cobra.Command, cfg *config.SinkConfig) error {
	f := cmd.Flags()
	if f.Changed("primary-key") {
		cfg.PrimaryKeys, _ = f.GetStringSlice("primary-key")
	}
	if f.Changed("file-format") {
		cfg.FileFormat, _ = f.GetString("file-format")
	}
	if f.Changed("upsert") {
		cfg.EnableUpsert, _ = f.GetBool("upsert")
	}
	if f.Changed("target-file-size") {
		cfg.TargetFileSizeBytes, _ = f.GetInt64("target-file-size")
	}
	return cfg.Validate()
}

type writeStats struct {
	rows      int64
	snapshots int
}

// writeRows streams JSON lines from in through one task writer, committing
// every checkpointRows rows and once more at the end of input.
func writeRows(ctx context.Context, s *sink.Sink, in io.Reader, checkpointRows int, ready *readiness, logger *slog.Logger) (st writeStats, err error) {
	w, err := s.CreateWriter(ctx, 0)
	if err != nil {
		return st, err
	}
	defer func() { _ = w.Close() }()

	c, err := s.CreateAggregatedCommitter(ctx)
	if err != nil {
		return st, err
	}
	defer func() { _ = c.Close() }()

	defer func() {
		if err != nil {
			if abortErr := w.Abort(context.WithoutCancel(ctx)); abortErr != nil {
				logger.Warn("delete uncommitted files", "error", abortErr)
			}
		}
	}()

	checkpoint := func() error {
		res, err := w.PrepareCommit(ctx)
		if err != nil {
			return err
		}
		snap, err := c.Commit(ctx, res)
		if err != nil {
			if abortErr := c.Abort(context.WithoutCancel(ctx), res); abortErr != nil {
				logger.Warn("delete files of failed commit", "error", abortErr)
			}
			return err
		}
		if snap != nil {
			st.snapshots++
			logger.Info("checkpoint committed", "snapshot_id", snap.SnapshotID, "rows", st.rows)
		}
		return nil
	}

	ready.set(true)
	dec := rowDecoder{rowType: s.RowType()}
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	pending := 0
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return st, err
		}
		b := bytes.TrimSpace(scanner.Bytes())
		if len(b) == 0 {
			continue
		}
		r, err := dec.decode(b)
		if err != nil {
			return st, fmt.Errorf("line %d: %w", line, err)
		}
		if err := w.Write(ctx, r); err != nil {
			return st, fmt.Errorf("line %d: %w", line, err)
		}
		st.rows++
		if pending++; pending >= checkpointRows {
			if err := checkpoint(); err != nil {
				return st, err
			}
			pending = 0
		}
	}
	if err := scanner.Err(); err != nil {
		return st, fmt.Errorf("read input: %w", err)
	}
	return st, checkpoint()
}

// opKey is the JSON key holding the row kind.
const opKey = "op"

// rowDecoder maps a JSON object onto rows of rowType. Missing columns are
// null.
type rowDecoder struct {
	rowType row.Schema
}

func (d rowDecoder) decode(line []byte) (row.Row, error) {
	jd := json.NewDecoder(bytes.NewReader(line))
	jd.UseNumber()
	var obj map[string]any
	if err := jd.Decode(&obj); err != nil {
		return row.Row{}, fmt.Errorf("decode json: %w", err)
	}

	kind := row.Insert
	if op, ok := obj[opKey]; ok {
		name, ok := op.(string)
		if !ok {
			return row.Row{}, fmt.Errorf("%q must be a string, got %T", opKey, op)
		}
		k, err := row.ParseKind(name)
		if err != nil {
			return row.Row{}, err
		}
		kind = k
		delete(obj, opKey)
	}

	fields := make([]any, d.rowType.Len())
	for key, v := range obj {
		i := d.rowType.IndexOf(strings.ToLower(key))
		if i < 0 {
			return row.Row{}, fmt.Errorf("unknown column %q", key)
		}
		cv, err := row.Coerce(d.rowType.Field(i).Type, v)
		if err != nil {
			return row.Row{}, fmt.Errorf("column %s: %w", key, err)
		}
		fields[i] = cv
	}
	return row.Row{Kind: kind, Fields: fields}, nil
}
