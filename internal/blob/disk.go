package blob

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/milanh34/linkUp/internal/model"
)

// Executable and script extensions are rejected outright; everything else
// is allowed and classified by sniffed content type.
var blockedExt = map[string]bool{
	".exe": true, ".sh": true, ".js": true, ".bat": true, ".cmd": true,
	".php": true, ".py": true, ".rb": true,
}

// DiskStore keeps uploads on the local filesystem under Dir, named by a
// fresh uuid so original filenames never touch the disk.
type DiskStore struct {
	Dir     string
	MaxSize int64
	// BaseURL is the public path prefix assets are served from, e.g. "/media".
	BaseURL string
}

func NewDiskStore(dir string, maxSize int64, baseURL string) *DiskStore {
	return &DiskStore{Dir: dir, MaxSize: maxSize, BaseURL: strings.TrimSuffix(baseURL, "/")}
}

func (s *DiskStore) Upload(name string, r io.Reader) (Asset, error) {
	ext := strings.ToLower(filepath.Ext(name))
	if blockedExt[ext] {
		return Asset{}, ErrBlockedType
	}

	head := make([]byte, 3072)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return Asset{}, fmt.Errorf("read upload head: %w", err)
	}
	head = head[:n]

	kind := classify(mimetype.Detect(head))

	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return Asset{}, fmt.Errorf("create upload dir: %w", err)
	}

	newName := uuid.New().String() + ext
	path := filepath.Join(s.Dir, newName)
	dst, err := os.Create(path)
	if err != nil {
		return Asset{}, fmt.Errorf("create %s: %w", newName, err)
	}
	if _, err := dst.Write(head); err != nil {
		dst.Close()
		os.Remove(path)
		return Asset{}, fmt.Errorf("write %s: %w", newName, err)
	}
	written, err := io.Copy(dst, io.LimitReader(r, s.MaxSize))
	if err != nil {
		dst.Close()
		os.Remove(path)
		return Asset{}, fmt.Errorf("write %s: %w", newName, err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(path)
		return Asset{}, fmt.Errorf("close %s: %w", newName, err)
	}
	if int64(n)+written > s.MaxSize {
		os.Remove(path)
		return Asset{}, ErrTooLarge
	}

	return Asset{URL: s.BaseURL + "/" + newName, Kind: kind}, nil
}

// Release deletes a stored asset by its public URL. Unknown or foreign URLs
// are ignored so callers can pass any previously stored reference.
func (s *DiskStore) Release(url string) error {
	name := filepath.Base(url)
	if name == "" || name == "." || name == "/" {
		return nil
	}
	if !strings.HasPrefix(url, s.BaseURL+"/") {
		return nil
	}
	err := os.Remove(filepath.Join(s.Dir, name))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("release %s: %w", name, err)
	}
	return nil
}

// Open returns the stored file for serving, with its sniffed content type.
func (s *DiskStore) Open(name string) (*os.File, string, error) {
	name = filepath.Base(name)
	path := filepath.Join(s.Dir, name)
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return f, "application/octet-stream", nil
	}
	return f, mt.String(), nil
}

func classify(mt *mimetype.MIME) model.MediaKind {
	ct := mt.String()
	switch {
	case strings.HasPrefix(ct, "image/"):
		return model.MediaKindImage
	case strings.HasPrefix(ct, "video/"):
		return model.MediaKindVideo
	case strings.HasPrefix(ct, "audio/"):
		return model.MediaKindAudio
	default:
		return model.MediaKindFile
	}
}
