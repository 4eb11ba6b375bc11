package storage

import (
	"bufio"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"serenity-catalog/internal/domain"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
)

const (
	fallbackBase = "unnamed"
	fallbackExt  = ".jpg"
	tokenLength  = 6
	sniffLength  = 3072
)

var whitespace = regexp.MustCompile(`\s+`)

// AssetStore writes uploaded images to a Disk under collision-resistant names.
type AssetStore struct {
	disk   Disk
	logger *zap.Logger
	now    func() time.Time
	token  func() string
}

// NewAssetStore creates a new AssetStore backed by disk
func NewAssetStore(disk Disk, logger *zap.Logger) *AssetStore {
	return &AssetStore{
		disk:   disk,
		logger: logger,
		now:    time.Now,
		token:  randomToken,
	}
}

func randomToken() string {
	return strings.ToLower(rand.Text()[:tokenLength])
}

// GenerateFilename builds <base>_<unixMillis>_<token><ext> from the client-supplied name.
// Directory components are dropped and whitespace runs become a single underscore.
func GenerateFilename(originalName string, now time.Time, token string) (string, error) {
	name := strings.TrimSpace(strings.ReplaceAll(originalName, `\`, "/"))
	if name != "" {
		name = path.Base(name)
	}
	if name == "." || name == ".." || name == "/" {
		return "", fmt.Errorf("invalid file name %q: %w", originalName, domain.ErrInvalidInput)
	}

	base, ext := fallbackBase, fallbackExt
	if name != "" {
		ext = filepath.Ext(name)
		base = strings.TrimSuffix(name, ext)
		if base == "" {
			base = fallbackBase
		}
	}
	base = whitespace.ReplaceAllString(base, "_")
	ext = whitespace.ReplaceAllString(ext, "")

	filename := fmt.Sprintf("%s_%d_%s%s", base, now.UnixMilli(), token, ext)
	if strings.ContainsAny(filename, "/\x00") {
		return "", fmt.Errorf("invalid file name %q: %w", originalName, domain.ErrInvalidInput)
	}
	return filename, nil
}

// Remove deletes a stored asset. Removing a missing asset is not an error.
func (s *AssetStore) Remove(ctx context.Context, ref domain.AssetReference) error {
	if err := s.disk.Delete(ctx, ref.Path); err != nil {
		return fmt.Errorf("failed to remove %s: %w: %w", ref.Filename, domain.ErrIOFailure, err)
	}
	s.logger.Info("Asset removed", zap.String("filename", ref.Filename))
	return nil
}

// Store persists content under a freshly generated name and returns its reference.
// An existing file is never overwritten.
func (s *AssetStore) Store(ctx context.Context, content io.Reader, originalName string) (domain.AssetReference, error) {
	if content == nil {
		return domain.AssetReference{}, fmt.Errorf("no file content supplied: %w", domain.ErrInvalidInput)
	}

	filename, err := GenerateFilename(originalName, s.now(), s.token())
	if err != nil {
		return domain.AssetReference{}, err
	}

	br := bufio.NewReaderSize(content, sniffLength)
	head, err := br.Peek(sniffLength)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return domain.AssetReference{}, fmt.Errorf("failed to read upload: %w: %w", domain.ErrIOFailure, err)
	}
	if len(head) == 0 {
		return domain.AssetReference{}, fmt.Errorf("no file content supplied: %w", domain.ErrInvalidInput)
	}
	contentType := mimetype.Detect(head).String()

	size, err := s.disk.Create(ctx, filename, br)
	if err != nil {
		s.logger.Error("Failed to store asset",
			zap.String("filename", filename),
			zap.Error(err),
		)
		return domain.AssetReference{}, fmt.Errorf("failed to store %s: %w: %w", filename, domain.ErrIOFailure, err)
	}

	s.logger.Info("Asset stored",
		zap.String("filename", filename),
		zap.String("content_type", contentType),
		zap.Int64("size", size),
	)

	return domain.AssetReference{
		Filename:    filename,
		Path:        filename,
		URL:         s.disk.URL(filename),
		ContentType: contentType,
		Size:        size,
	}, nil
}
