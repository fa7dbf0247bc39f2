package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrTooLarge is returned when an upload exceeds the configured size limit.
	ErrTooLarge = errors.New("file exceeds size limit")
	// ErrUnsupportedType is returned for content types outside the allow list.
	ErrUnsupportedType = errors.New("unsupported file type")
)

var extensionsByMIME = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
	"application/pdf": ".pdf",
}

// LocalStorage persists uploaded vouchers on disk under a base directory and
// hands out public references under a URL prefix.
type LocalStorage struct {
	baseDir      string
	publicPrefix string
	maxSize      int64
	allowed      map[string]struct{}
}

// Options configures LocalStorage.
type Options struct {
	BaseDir      string
	PublicPrefix string
	MaxSize      int64
	AllowedMIMEs []string
}

// NewLocalStorage ensures the base directory exists and returns a handle.
func NewLocalStorage(opts Options) (*LocalStorage, error) {
	if opts.BaseDir == "" {
		opts.BaseDir = "./uploads"
	}
	if opts.PublicPrefix == "" {
		opts.PublicPrefix = "/uploads"
	}
	if err := os.MkdirAll(opts.BaseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}
	allowed := make(map[string]struct{}, len(opts.AllowedMIMEs))
	for _, mime := range opts.AllowedMIMEs {
		allowed[strings.ToLower(strings.TrimSpace(mime))] = struct{}{}
	}
	return &LocalStorage{
		baseDir:      opts.BaseDir,
		publicPrefix: "/" + strings.Trim(opts.PublicPrefix, "/"),
		maxSize:      opts.MaxSize,
		allowed:      allowed,
	}, nil
}

// SaveVoucher validates and writes an uploaded voucher, returning the public
// reference that gets recorded on the installment.
func (s *LocalStorage) SaveVoucher(installmentID, contentType string, size int64, r io.Reader) (string, error) {
	mime := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	if len(s.allowed) > 0 {
		if _, ok := s.allowed[mime]; !ok {
			return "", fmt.Errorf("%w: %s", ErrUnsupportedType, mime)
		}
	}
	if s.maxSize > 0 && size > s.maxSize {
		return "", ErrTooLarge
	}

	name := fmt.Sprintf("voucher-%s-%s%s", sanitize(installmentID), uuid.NewString(), extensionsByMIME[mime])
	target := filepath.Join(s.baseDir, name)
	file, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("create voucher file: %w", err)
	}

	src := r
	if s.maxSize > 0 {
		src = io.LimitReader(r, s.maxSize+1)
	}
	written, copyErr := io.Copy(file, src)
	closeErr := file.Close()
	if copyErr == nil && s.maxSize > 0 && written > s.maxSize {
		copyErr = ErrTooLarge
	}
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(target)
		if copyErr != nil {
			if errors.Is(copyErr, ErrTooLarge) {
				return "", copyErr
			}
			return "", fmt.Errorf("write voucher file: %w", copyErr)
		}
		return "", fmt.Errorf("close voucher file: %w", closeErr)
	}
	return path.Join(s.publicPrefix, name), nil
}

// Delete removes a stored voucher given its public reference. Missing files are ignored.
func (s *LocalStorage) Delete(ref string) error {
	name := path.Base(ref)
	if err := os.Remove(filepath.Join(s.baseDir, name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete voucher file: %w", err)
	}
	return nil
}

// Dir exposes the base directory so the HTTP layer can serve it statically.
func (s *LocalStorage) Dir() string { return s.baseDir }

// PublicPrefix is the URL prefix vouchers are served under.
func (s *LocalStorage) PublicPrefix() string { return s.publicPrefix }

func sanitize(value string) string {
	var b strings.Builder
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "file"
	}
	return b.String()
}
