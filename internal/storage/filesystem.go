package storage

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrUnsupportedFormat is returned for uploads that are not MP3 audio.
var ErrUnsupportedFormat = errors.New("unsupported file format: upload an MP3 file")

// ErrTooLarge is returned when an upload exceeds the configured cap.
var ErrTooLarge = errors.New("upload exceeds the size limit")

type FileEntry struct {
	Name         string `json:"name"`          // stored name inside the upload dir
	OriginalName string `json:"original_name"` // name the client sent
	Size         int64  `json:"size"`
}

var audioExtensions = map[string]bool{
	".mp3": true,
}

var audioContentTypes = map[string]bool{
	"audio/mpeg":  true,
	"audio/mp3":   true,
	"audio/mpeg3": true,
}

func IsAudioFile(name string) bool {
	return audioExtensions[strings.ToLower(filepath.Ext(name))]
}

// IsAudioContentType accepts the MIME types browsers send for MP3.
func IsAudioContentType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return audioContentTypes[strings.ToLower(mediaType)]
}

// Uploads stores uploaded audio until its job has consumed it
type Uploads struct {
	basePath string
	maxBytes int64 // 0 means unlimited
}

func NewUploads(basePath string, maxBytes int64) (*Uploads, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Uploads{basePath: basePath, maxBytes: maxBytes}, nil
}

// Dir returns the upload directory
func (u *Uploads) Dir() string {
	return u.basePath
}

// Save writes r to a new uniquely named file. The original name and content
// type must identify MP3 audio.
func (u *Uploads) Save(r io.Reader, originalName, contentType string) (*FileEntry, error) {
	if !IsAudioFile(originalName) && !IsAudioContentType(contentType) {
		return nil, ErrUnsupportedFormat
	}

	name := uuid.New().String() + ".mp3"
	fullPath := filepath.Join(u.basePath, name)

	f, err := os.OpenFile(fullPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, fmt.Errorf("create upload: %w", err)
	}

	src := r
	if u.maxBytes > 0 {
		src = io.LimitReader(r, u.maxBytes+1)
	}
	n, err := io.Copy(f, src)
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && u.maxBytes > 0 && n > u.maxBytes {
		err = ErrTooLarge
	}
	if err == nil && n == 0 {
		err = fmt.Errorf("empty upload")
	}
	if err != nil {
		os.Remove(fullPath)
		if errors.Is(err, ErrTooLarge) {
			return nil, err
		}
		return nil, fmt.Errorf("write upload: %w", err)
	}

	return &FileEntry{Name: name, OriginalName: filepath.Base(originalName), Size: n}, nil
}

// Path resolves a stored name, refusing anything outside the upload dir.
func (u *Uploads) Path(name string) (string, error) {
	fullPath := filepath.Join(u.basePath, name)

	// Prevent path traversal
	absBase, err := filepath.Abs(u.basePath)
	if err != nil {
		return "", err
	}
	absFull, err := filepath.Abs(fullPath)
	if err != nil {
		return "", err
	}
	if filepath.Dir(absFull) != absBase {
		return "", os.ErrPermission
	}
	return fullPath, nil
}

// Remove deletes a stored upload. A missing file is not an error.
func (u *Uploads) Remove(name string) error {
	p, err := u.Path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// List returns the uploads currently on disk
func (u *Uploads) List() ([]*FileEntry, error) {
	entries, err := os.ReadDir(u.basePath)
	if err != nil {
		return nil, err
	}

	var result []*FileEntry
	for _, entry := range entries {
		// Skip hidden files
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		result = append(result, &FileEntry{Name: entry.Name(), Size: info.Size()})
	}
	return result, nil
}

// Purge removes every stored upload and returns how many were deleted.
// Called at startup, when no job can still own a file.
func (u *Uploads) Purge() (int, error) {
	entries, err := u.List()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, e := range entries {
		if err := u.Remove(e.Name); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
