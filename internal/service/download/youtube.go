// Package download fetches remote videos into temporary directories.
package download

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"visionengine/internal/config"
	"visionengine/internal/logger"
)

var (
	// ErrInvalidURL means the URL is not a YouTube video link.
	ErrInvalidURL = errors.New("invalid YouTube URL")
	// ErrDownloadFailed wraps every failure of the downloader itself.
	ErrDownloadFailed = errors.New("download failed")
)

// Format prefers a single progressive mp4 so no muxer is needed.
const Format = "best[ext=mp4][height<=720]/best[height<=720]/best"

var youtubeURL = regexp.MustCompile(`(https?://)?(www\.)?(youtube\.com/watch\?v=|youtu\.be/)[\w-]+`)

// ValidURL reports whether url looks like a YouTube video link.
func ValidURL(url string) bool {
	return youtubeURL.MatchString(strings.TrimSpace(url))
}

// Result is a downloaded video. Dir holds the file and must be removed by the caller.
type Result struct {
	Dir  string
	Path string
}

// Runner executes the downloader binary. Tests substitute it.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// YouTube downloads videos with yt-dlp.
type YouTube struct {
	binary  string
	tempDir string
	timeout time.Duration
	run     Runner
	logger  *logger.Logger
}

// NewYouTube creates a downloader from the configuration.
func NewYouTube(config *config.Config, logger *logger.Logger) *YouTube {
	return &YouTube{
		binary:  config.YtDlpPath,
		tempDir: config.TempDirectory,
		timeout: time.Duration(config.DownloadTimeout) * time.Second,
		run:     execRunner,
		logger:  logger,
	}
}

// WithRunner replaces the process runner.
func (y *YouTube) WithRunner(run Runner) *YouTube {
	y.run = run
	return y
}

// Fetch downloads url into a fresh temporary directory as video.<ext>.
func (y *YouTube) Fetch(ctx context.Context, url string) (*Result, error) {
	url = strings.TrimSpace(url)
	if !ValidURL(url) {
		return nil, ErrInvalidURL
	}

	dir, err := os.MkdirTemp(y.tempDir, "yt-")
	if err != nil {
		return nil, fmt.Errorf("create download directory: %w", err)
	}

	if y.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, y.timeout)
		defer cancel()
	}

	started := time.Now()
	output, err := y.run(ctx, y.binary,
		"--no-playlist",
		"--format", Format,
		"--merge-output-format", "mp4",
		"--output", filepath.Join(dir, "video.%(ext)s"),
		url,
	)
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("%w: %v: %s", ErrDownloadFailed, err, lastLine(output))
	}

	matches, _ := filepath.Glob(filepath.Join(dir, "video.*"))
	if len(matches) == 0 {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("%w: downloaded file not found, the video may be private or unavailable", ErrDownloadFailed)
	}

	path := matches[0]
	if info, err := os.Stat(path); err == nil {
		y.logger.Info("YouTube video downloaded in %s: %s (%d KB)", time.Since(started).Round(time.Millisecond), path, info.Size()/1024)
	}
	return &Result{Dir: dir, Path: path}, nil
}

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.Bytes(), err
}

func lastLine(output []byte) string {
	lines := strings.Split(strings.TrimSpace(string(output)), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
