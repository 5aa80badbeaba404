// Package filestore keeps card media on disk, one directory per media role.
package filestore

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif" // Registers the gif decoder
	"image/jpeg"
	_ "image/png" // Registers the png decoder
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // Registers the webp decoder

	"github.com/conorfennell/apkgbridge/internal/domain"
)

// ThumbnailSize is the longest edge of a generated thumbnail, in pixels.
const ThumbnailSize = 256

const thumbnailsDir = "thumbnails"

var (
	ErrInvalidName = errors.New("invalid media file name")
	ErrNotImage    = errors.New("media role does not hold images")
)

// Store is a directory-backed media store.
type Store struct {
	root string
}

// New returns a Store rooted at dir, creating the directory if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create media directory %s: %w", dir, err)
	}
	return &Store{root: dir}, nil
}

// Path returns where a media file of the given role lives, whether or not it
// exists.
func (s *Store) Path(role domain.MediaRole, name string) (string, error) {
	if err := checkName(name); err != nil {
		return "", err
	}
	return filepath.Join(s.root, role.String(), name), nil
}

// ThumbnailPath returns where the thumbnail of an image is written.
func (s *Store) ThumbnailPath(role domain.MediaRole, name string) (string, error) {
	if err := checkName(name); err != nil {
		return "", err
	}
	base := strings.TrimSuffix(name, filepath.Ext(name))
	return filepath.Join(s.root, thumbnailsDir, role.String(), base+".jpg"), nil
}

// Create writes r under name, replacing any existing file.
func (s *Store) Create(role domain.MediaRole, name string, r io.Reader) (err error) {
	path, err := s.Path(role, name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", role, err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create media file %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = cerr
		}
		if err != nil {
			os.Remove(path)
		}
	}()

	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("failed to write media file %s: %w", path, err)
	}
	return nil
}

// Get returns the path of an existing media file. A missing file yields an
// error wrapping os.ErrNotExist.
func (s *Store) Get(role domain.MediaRole, name string) (string, error) {
	path, err := s.Path(role, name)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("media file %s: %w", name, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("media file %s: %w", name, os.ErrNotExist)
	}
	return path, nil
}

// Delete removes a media file and its thumbnail. Deleting a missing file is
// not an error.
func (s *Store) Delete(role domain.MediaRole, name string) error {
	path, err := s.Path(role, name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete media file %s: %w", path, err)
	}
	if role.IsImage() {
		thumb, _ := s.ThumbnailPath(role, name)
		if err := os.Remove(thumb); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to delete thumbnail %s: %w", thumb, err)
		}
	}
	return nil
}

// GenerateThumbnail scales an image so its longest edge is at most
// ThumbnailSize and writes it as JPEG. Images already small enough are
// re-encoded at their own size.
func (s *Store) GenerateThumbnail(role domain.MediaRole, name string) error {
	if !role.IsImage() {
		return fmt.Errorf("%w: %s", ErrNotImage, role)
	}
	src, err := s.Get(role, name)
	if err != nil {
		return err
	}
	dst, err := s.ThumbnailPath(role, name)
	if err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open image %s: %w", src, err)
	}
	defer in.Close()

	img, _, err := image.Decode(in)
	if err != nil {
		return fmt.Errorf("failed to decode image %s: %w", name, err)
	}

	thumb := image.NewRGBA(thumbnailBounds(img.Bounds()))
	draw.CatmullRom.Scale(thumb, thumb.Bounds(), img, img.Bounds(), draw.Over, nil)

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create thumbnail directory: %w", err)
	}
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create thumbnail %s: %w", dst, err)
	}
	if err := jpeg.Encode(out, thumb, &jpeg.Options{Quality: 85}); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("failed to encode thumbnail %s: %w", dst, err)
	}
	return out.Close()
}

func thumbnailBounds(b image.Rectangle) image.Rectangle {
	w, h := b.Dx(), b.Dy()
	if w <= ThumbnailSize && h <= ThumbnailSize {
		return image.Rect(0, 0, max(w, 1), max(h, 1))
	}
	if w >= h {
		return image.Rect(0, 0, ThumbnailSize, max(h*ThumbnailSize/w, 1))
	}
	return image.Rect(0, 0, max(w*ThumbnailSize/h, 1), ThumbnailSize)
}

func checkName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
