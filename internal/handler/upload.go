package handler

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var (
	errUnsupportedImage = errors.New("unsupported image type")
	errUnsupportedVideo = errors.New("unsupported video type")
	errMissingFile      = errors.New("multipart field \"file\" is required")
	errMalformedUpload  = errors.New("malformed multipart upload")
)

// sniffLength is how much of an upload is read to detect its type.
const sniffLength = 3072

var imageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/bmp":  true,
	"image/webp": true,
}

var videoTypes = map[string]bool{
	"video/mp4":        true,
	"video/avi":        true,
	"video/x-msvideo":  true,
	"video/quicktime":  true,
	"video/x-matroska": true,
	"video/webm":       true,
	"video/mpeg":       true,
}

var videoExtensions = map[string]bool{
	".mp4":  true,
	".avi":  true,
	".mov":  true,
	".mkv":  true,
	".webm": true,
	".mpeg": true,
	".mpg":  true,
}

// uploadKind decides which uploads are accepted and how they are named on disk.
type uploadKind struct {
	accept      func(contentType, ext string) bool
	rejected    error
	fallbackExt string
}

var imageUpload = uploadKind{
	accept:      func(contentType, _ string) bool { return imageTypes[contentType] },
	rejected:    errUnsupportedImage,
	fallbackExt: ".img",
}

// Videos are also accepted by extension since browsers often report a generic type.
var videoUpload = uploadKind{
	accept:      func(contentType, ext string) bool { return videoTypes[contentType] || videoExtensions[ext] },
	rejected:    errUnsupportedVideo,
	fallbackExt: ".mp4",
}

type stagedUpload struct {
	Path        string
	Filename    string
	ContentType string
	Size        int64
}

// stageUpload streams the "file" field of a multipart request into a temp
// file. The type is validated before anything touches the disk.
func stageUpload(w http.ResponseWriter, r *http.Request, tempDir string, maxBytes int64, kind uploadKind) (*stagedUpload, error) {
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}
	reader, err := r.MultipartReader()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedUpload, err)
	}

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			return nil, errMissingFile
		}
		if err != nil {
			return nil, readError(err)
		}
		if part.FormName() != "file" {
			part.Close()
			continue
		}
		defer part.Close()
		return stagePart(part.Header.Get("Content-Type"), part.FileName(), part, tempDir, kind)
	}
}

func stagePart(declared, filename string, body io.Reader, tempDir string, kind uploadKind) (*stagedUpload, error) {
	head := make([]byte, sniffLength)
	n, err := io.ReadFull(body, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, readError(err)
	}
	head = head[:n]

	contentType := mediaType(declared)
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = mediaType(mimetype.Detect(head).String())
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if !kind.accept(contentType, ext) {
		return nil, kind.rejected
	}
	if ext == "" {
		if ext = mimetype.Detect(head).Extension(); ext == "" {
			ext = kind.fallbackExt
		}
	}

	file, err := os.CreateTemp(tempDir, "upload-*"+ext)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	size, err := io.Copy(file, io.MultiReader(bytes.NewReader(head), body))
	closeErr := file.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(file.Name())
		return nil, readError(err)
	}

	return &stagedUpload{
		Path:        file.Name(),
		Filename:    filename,
		ContentType: contentType,
		Size:        size,
	}, nil
}

// readError keeps size limit failures recognizable and tags the rest as malformed.
func readError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return err
	}
	return fmt.Errorf("%w: %v", errMalformedUpload, err)
}

func mediaType(value string) string {
	if value == "" {
		return ""
	}
	parsed, _, err := mime.ParseMediaType(value)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.Split(value, ";")[0]))
	}
	return parsed
}
