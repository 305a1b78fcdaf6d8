// Package blob stores uploaded media and classifies it by content type.
package blob

import (
	"errors"
	"io"

	"github.com/milanh34/linkUp/internal/model"
)

var (
	ErrTooLarge    = errors.New("file too large")
	ErrBlockedType = errors.New("file type not allowed")
)

// Asset is the stored result of an upload: a URL clients reference in
// messages or group avatars, plus its classified kind.
type Asset struct {
	URL  string
	Kind model.MediaKind
}

// Store saves uploaded content and releases assets that are no longer
// referenced (e.g. a replaced group avatar).
type Store interface {
	Upload(name string, r io.Reader) (Asset, error)
	Release(url string) error
}
