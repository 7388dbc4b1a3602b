// Package archive bundles project files into an in-memory zip archive.
//
// Files are read concurrently but written in manifest order. Files that
// cannot be read are skipped and logged; the archive still succeeds.
// Entries are compressed with deflate at its highest level.
package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/flate"
	"github.com/sourcegraph/conc/iter"
)

const (
	// MIMEType is the content type of every archive produced by a Builder.
	MIMEType = "application/zip"
	// DefaultName is the suggested download filename.
	DefaultName = "silk-ai-project.zip"
	// DefaultReaders bounds concurrent file reads.
	DefaultReaders = 8
)

// ErrNoFiles is returned when the manifest resolves to nothing.
var ErrNoFiles = errors.New("archive: manifest is empty")

// Result is the outcome of one archive build. Only the Builder constructs it;
// callers relay it unchanged.
type Result struct {
	FileDataBase64 string `json:"fileDataBase64"`
	FileType       string `json:"fileType"`
	Filename       string `json:"filename"`

	Data     []byte   `json:"-"`
	Included []string `json:"-"`
	Skipped  []string `json:"-"`
}

// JSON encodes the result in its wire form.
func (r Result) JSON() ([]byte, error) {
	return json.Marshal(r)
}

// Options configures a Builder.
type Options struct {
	Root     string       // Project root; defaults to the working directory.
	Name     string       // Download filename; defaults to DefaultName.
	Manifest Manifest     // Files to include.
	Readers  int          // Concurrent reads; defaults to DefaultReaders.
	Logger   *slog.Logger // Defaults to slog.Default().
}

// Builder produces zip archives of a project tree. It is safe for concurrent use.
type Builder struct {
	root     string
	name     string
	manifest Manifest
	readers  int
	log      *slog.Logger
}

// New creates a Builder from opts.
func New(opts Options) *Builder {
	if opts.Root == "" {
		opts.Root = "."
	}
	if opts.Name == "" {
		opts.Name = DefaultName
	}
	if opts.Readers <= 0 {
		opts.Readers = DefaultReaders
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Builder{
		root:     opts.Root,
		name:     opts.Name,
		manifest: opts.Manifest,
		readers:  opts.Readers,
		log:      opts.Logger,
	}
}

// Name returns the download filename.
func (b *Builder) Name() string { return b.name }

type fileRead struct {
	path string
	data []byte
	err  error
}

// Build resolves the manifest, reads every file and returns the archive.
func (b *Builder) Build(ctx context.Context) (Result, error) {
	paths, err := b.manifest.Resolve(b.root)
	if err != nil {
		return Result{}, err
	}
	if len(paths) == 0 {
		return Result{}, ErrNoFiles
	}

	mapper := iter.Mapper[string, fileRead]{MaxGoroutines: b.readers}
	reads := mapper.Map(paths, func(p *string) fileRead {
		if err := ctx.Err(); err != nil {
			return fileRead{path: *p, err: err}
		}
		data, err := os.ReadFile(filepath.Join(b.root, filepath.FromSlash(*p)))
		return fileRead{path: *p, data: data, err: err}
	})

	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("archive: build: %w", err)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestCompression)
	})

	res := Result{FileType: MIMEType, Filename: b.name}

	for _, r := range reads {
		if r.err != nil {
			b.log.WarnContext(ctx, "archive: skipping unreadable file", "path", r.path, "error", r.err)
			res.Skipped = append(res.Skipped, r.path)
			continue
		}

		w, err := zw.CreateHeader(&zip.FileHeader{Name: r.path, Method: zip.Deflate})
		if err != nil {
			return Result{}, fmt.Errorf("archive: add %s: %w", r.path, err)
		}
		if _, err := w.Write(r.data); err != nil {
			return Result{}, fmt.Errorf("archive: write %s: %w", r.path, err)
		}
		res.Included = append(res.Included, r.path)
	}

	if err := zw.Close(); err != nil {
		return Result{}, fmt.Errorf("archive: finalize: %w", err)
	}

	res.Data = buf.Bytes()
	res.FileDataBase64 = base64.StdEncoding.EncodeToString(res.Data)

	b.log.DebugContext(ctx, "archive built",
		"files", len(res.Included), "skipped", len(res.Skipped), "bytes", len(res.Data))

	return res, nil
}
