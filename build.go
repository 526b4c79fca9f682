package edzip

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/opencontainers/go-digest"

	"github.com/edzip/edzip/internal/scan"
)

const (
	defaultBatchSize = 1024
	defaultChunkSize = 64 << 10
)

// BuildOption configures an index build.
type BuildOption func(*buildConfig)

type buildConfig struct {
	batchSize         int
	chunkSize         int
	maxDescriptorScan uint64
	progress          ProgressFunc
	logger            *slog.Logger
}

// WithBatchSize sets how many entries are buffered before being persisted
// into the directory. Zero uses the default.
func WithBatchSize(n int) BuildOption {
	return func(c *buildConfig) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// WithMaxDescriptorScan bounds the forward search for a data descriptor on
// streamed entries. Zero uses the default (4GB).
func WithMaxDescriptorScan(limit uint64) BuildOption {
	return func(c *buildConfig) {
		c.maxDescriptorScan = limit
	}
}

// WithBuildProgress sets a callback receiving build progress events.
func WithBuildProgress(fn ProgressFunc) BuildOption {
	return func(c *buildConfig) {
		c.progress = fn
	}
}

// WithBuildLogger sets the logger used during the build.
func WithBuildLogger(logger *slog.Logger) BuildOption {
	return func(c *buildConfig) {
		c.logger = logger
	}
}

// Build scans archive bytes from r front to back and persists one Entry per
// member into dir, finalizing it with the build's Meta.
//
// The scan is single-pass and forward-only; it never seeks, so r may be a
// pipe or a network body. Entries are emitted in strictly increasing
// sequence order with strictly increasing header offsets. A decode failure
// aborts the whole build: whatever was persisted before the failure is not a
// valid index (dir is left unfinalized) and must be discarded.
//
// The context is checked between chunks, making long builds cancellable at
// I/O boundaries.
func Build(ctx context.Context, r io.Reader, dir Directory, opts ...BuildOption) (Meta, error) {
	cfg := buildConfig{
		batchSize: defaultBatchSize,
		chunkSize: defaultChunkSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	log := cfg.logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	digester := digest.SHA256.Digester()
	batch := make([]Entry, 0, cfg.batchSize)
	var bytesDone, entriesDone uint64

	report := func(stage ProgressStage) {
		if cfg.progress == nil {
			return
		}
		cfg.progress(ProgressEvent{Stage: stage, BytesDone: bytesDone, EntriesDone: entriesDone})
	}

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := dir.Put(ctx, batch); err != nil {
			return fmt.Errorf("persist entries: %w", err)
		}
		report(StageFlushing)
		batch = batch[:0]
		return nil
	}

	scanner := scan.New(func(e Entry) error {
		batch = append(batch, e)
		entriesDone++
		if len(batch) >= cfg.batchSize {
			return flush()
		}
		return nil
	}, scan.WithMaxDescriptorScan(cfg.maxDescriptorScan))

	buf := make([]byte, cfg.chunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return Meta{}, err
		}
		n, rerr := r.Read(buf)
		if n > 0 {
			if _, err := digester.Hash().Write(buf[:n]); err != nil {
				return Meta{}, err
			}
			bytesDone += uint64(n)
			if err := scanner.Feed(buf[:n]); err != nil {
				return Meta{}, err
			}
			report(StageScanning)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return Meta{}, fmt.Errorf("%w: %v", ErrSourceUnavailable, rerr)
		}
	}

	if err := scanner.Finish(); err != nil {
		return Meta{}, err
	}
	if err := flush(); err != nil {
		return Meta{}, err
	}

	meta := Meta{
		Version:     FormatVersion,
		ArchiveSize: bytesDone,
		Entries:     scanner.Count(),
		Digest:      digester.Digest(),
	}
	report(StageFinalizing)
	if err := dir.SetMeta(ctx, meta); err != nil {
		return Meta{}, fmt.Errorf("finalize index: %w", err)
	}

	log.Info("index built",
		"entries", meta.Entries,
		"archive_size", meta.ArchiveSize,
		"digest", meta.Digest)
	return meta, nil
}
