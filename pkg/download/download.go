// Package download fetches pronunciation audio into the media directory with
// a small bounded pool of concurrent transfers.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/japaniel/shanbaysync/pkg/transport"
)

// DefaultWorkers is the number of concurrent transfers.
const DefaultWorkers = 3

// Task names one file to fetch. FileName is relative to the media directory.
type Task struct {
	FileName string
	URL      string
}

// Stats counts task outcomes of one Run.
type Stats struct {
	Downloaded int
	Skipped    int
	Failed     int
}

// Downloader streams tasks to disk.
type Downloader struct {
	Client  *http.Client
	Dir     string
	Workers int
	// OnTick is called once per finished task, failed ones included. It may
	// be called from several goroutines.
	OnTick func()
	// PoolFactory allows tests to inject custom worker pool implementations.
	PoolFactory func(workers, queue int) Pool

	log *slog.Logger
}

type outcome int

const (
	downloaded outcome = iota
	skipped
)

// NewDownloader creates a Downloader writing into dir.
func NewDownloader(client *http.Client, dir string, logger *slog.Logger) *Downloader {
	if client == nil {
		client = transport.New(transport.Config{Logger: logger})
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Downloader{
		Client:  client,
		Dir:     dir,
		Workers: DefaultWorkers,
		log:     logger.With("component", "download"),
	}
}

// Run downloads every task. Individual failures are logged and counted; only
// cancellation or a pool error stops the run early.
func (d *Downloader) Run(ctx context.Context, tasks []Task) (Stats, error) {
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return Stats{}, fmt.Errorf("create media dir: %w", err)
	}

	var pool Pool
	if d.PoolFactory != nil {
		pool = d.PoolFactory(d.Workers, d.Workers*2)
	} else {
		pool = NewWorkerPool(d.Workers, d.Workers*2)
	}
	pool.Start(ctx)

	var done, skip, failed atomic.Int64
	var submitErr error
	for _, t := range tasks {
		task := t
		err := pool.SubmitCtx(ctx, func(ctx context.Context) error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			defer d.tick()
			res, err := d.fetch(ctx, task)
			if err != nil {
				failed.Add(1)
				d.log.WarnContext(ctx, "download failed", "file", task.FileName, "url", task.URL, "error", err)
				return err
			}
			if res == skipped {
				skip.Add(1)
			} else {
				done.Add(1)
			}
			return nil
		})
		if err != nil {
			submitErr = err
			break
		}
	}
	pool.Close()

	stats := Stats{Downloaded: int(done.Load()), Skipped: int(skip.Load()), Failed: int(failed.Load())}
	if submitErr != nil {
		return stats, fmt.Errorf("submit download: %w", submitErr)
	}
	if err := ctx.Err(); err != nil {
		return stats, err
	}
	d.log.InfoContext(ctx, "downloads complete",
		"downloaded", stats.Downloaded, "skipped", stats.Skipped, "failed", stats.Failed)
	return stats, nil
}

func (d *Downloader) tick() {
	if d.OnTick != nil {
		d.OnTick()
	}
}

// fetch skips files whose size already matches Content-Length and otherwise
// streams the body to a temporary file renamed into place.
func (d *Downloader) fetch(ctx context.Context, t Task) (outcome, error) {
	name := filepath.Base(t.FileName)
	if name == "." || name == string(filepath.Separator) {
		return 0, fmt.Errorf("invalid file name %q", t.FileName)
	}
	dst := filepath.Join(d.Dir, name)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.URL, nil)
	if err != nil {
		return 0, err
	}
	resp, err := d.Client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, &transport.StatusError{Method: req.Method, URL: t.URL, StatusCode: resp.StatusCode}
	}

	if fi, err := os.Stat(dst); err == nil && resp.ContentLength >= 0 && fi.Size() == resp.ContentLength {
		return skipped, nil
	}

	tmp, err := os.CreateTemp(d.Dir, "."+name+".*")
	if err != nil {
		return 0, err
	}
	_, copyErr := io.Copy(tmp, resp.Body)
	closeErr := tmp.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		os.Remove(tmp.Name())
		return 0, fmt.Errorf("write %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return 0, err
	}
	return downloaded, nil
}
