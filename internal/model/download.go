package model

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"
)

// Files served under a model URL.
const (
	ModelFile    = "model.onnx"
	MetadataFile = "metadata.json"
)

// Files are the local copies of one model.
type Files struct {
	Dir      string
	Model    string
	Metadata string
}

// ResolveURL joins the model URL with a file name. The base is otherwise
// taken as given.
func ResolveURL(base, file string) (string, error) {
	return url.JoinPath(base, file)
}

// CacheDir is the directory under root that holds the files of base.
func CacheDir(root, base string) string {
	sum := sha256.Sum256([]byte(base))
	return filepath.Join(root, hex.EncodeToString(sum[:])[:16])
}

// Fetcher downloads model files into a local cache.
type Fetcher struct {
	Client *http.Client
	Root   string
	Log    zerolog.Logger

	// Progress receives a progress bar per download when set.
	Progress io.Writer
}

// Fetch makes sure both files of the model at base are cached and returns
// their paths. Files already present are not downloaded again.
func (f *Fetcher) Fetch(ctx context.Context, base string) (Files, error) {
	dir := CacheDir(f.Root, base)
	files := Files{
		Dir:      dir,
		Model:    filepath.Join(dir, ModelFile),
		Metadata: filepath.Join(dir, MetadataFile),
	}

	for name, dest := range map[string]string{MetadataFile: files.Metadata, ModelFile: files.Model} {
		if _, err := os.Stat(dest); err == nil {
			continue
		}
		src, err := ResolveURL(base, name)
		if err != nil {
			return Files{}, fmt.Errorf("resolve %s: %w", name, err)
		}
		if err := f.download(ctx, src, dest); err != nil {
			return Files{}, err
		}
	}

	return files, nil
}

// progressWriter logs download progress every couple of seconds
type progressWriter struct {
	total      int64
	downloaded int64
	lastLog    time.Time
	file       string
	log        zerolog.Logger
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n := len(p)
	pw.downloaded += int64(n)

	now := time.Now()
	if now.Sub(pw.lastLog) >= 2*time.Second || pw.downloaded >= pw.total {
		pw.lastLog = now
		pw.log.Debug().
			Str("file", pw.file).
			Float64("percent", float64(pw.downloaded)/float64(pw.total)*100).
			Float64("downloaded_mb", float64(pw.downloaded)/1024/1024).
			Msg("Downloading model")
	}

	return n, nil
}

func (f *Fetcher) download(ctx context.Context, src, destPath string) error {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("failed to create models directory: %w", err)
	}

	// Download to temp file first
	tmpPath := destPath + ".tmp"
	defer os.Remove(tmpPath)

	f.Log.Info().Str("url", src).Msg("Starting model download")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", src, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to download %s: HTTP %d", src, resp.StatusCode)
	}

	totalSize := resp.ContentLength
	if totalSize <= 0 {
		f.Log.Warn().Str("url", src).Msg("Content-Length not provided, progress tracking unavailable")
	}

	out, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer out.Close()

	writers := []io.Writer{out}
	if totalSize > 0 {
		writers = append(writers, &progressWriter{
			total:   totalSize,
			file:    filepath.Base(destPath),
			lastLog: time.Now(),
			log:     f.Log,
		})
	}
	if f.Progress != nil {
		bar := progressbar.NewOptions64(totalSize,
			progressbar.OptionSetDescription("⬇️  "+filepath.Base(destPath)),
			progressbar.OptionSetWriter(f.Progress),
			progressbar.OptionShowBytes(true),
		)
		defer bar.Finish()
		writers = append(writers, bar)
	}

	written, err := io.Copy(io.MultiWriter(writers...), resp.Body)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(destPath), err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", filepath.Base(destPath), err)
	}

	// Move to final location
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to move model file: %w", err)
	}

	f.Log.Info().
		Str("path", destPath).
		Float64("size_mb", float64(written)/1024/1024).
		Msg("Model file downloaded")

	return nil
}
