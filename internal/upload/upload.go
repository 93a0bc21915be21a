// Package upload accepts image bytes, checks them against a size ceiling and
// an image content filter, and hands them to a blob store that returns a
// stable public URL.
package upload

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"memoboard/api/internal/util"
)

// DefaultMaxBytes is the upload ceiling when none is configured.
const DefaultMaxBytes int64 = 5 << 20

var (
	ErrTooLarge        = errors.New("upload: file too large")
	ErrUnsupportedType = errors.New("upload: unsupported media type")
	ErrEmpty           = errors.New("upload: empty file")
)

// Store persists one object and returns the URL clients should use for it.
type Store interface {
	Put(ctx context.Context, name, contentType string, size int64, r io.Reader) (string, error)
}

// Service validates incoming files before they reach the Store.
type Service struct {
	store    Store
	maxBytes int64
	logger   *zap.Logger
}

func NewService(store Store, maxBytes int64, logger *zap.Logger) *Service {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, maxBytes: maxBytes, logger: logger}
}

func (s *Service) MaxBytes() int64 {
	return s.maxBytes
}

// Accept sniffs the leading bytes of r, rejects anything that is not an
// image, and stores the content under a fresh name carrying the detected
// extension.
func (s *Service) Accept(ctx context.Context, r io.Reader) (string, error) {
	limited := io.LimitReader(r, s.maxBytes+1)
	buffered := bufio.NewReaderSize(limited, 3072)

	head, err := buffered.Peek(3072)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return "", fmt.Errorf("read upload: %w", err)
	}
	if len(head) == 0 {
		return "", ErrEmpty
	}

	mtype := mimetype.Detect(head)
	if !strings.HasPrefix(mtype.String(), "image/") {
		s.logger.Debug("rejected upload", zap.String("mime", mtype.String()))
		return "", ErrUnsupportedType
	}

	body, err := io.ReadAll(buffered)
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	if int64(len(body)) > s.maxBytes {
		return "", ErrTooLarge
	}

	name := util.NewID("img") + mtype.Extension()
	url, err := s.store.Put(ctx, name, mtype.String(), int64(len(body)), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("store upload: %w", err)
	}
	s.logger.Info("stored upload", zap.String("name", name), zap.String("mime", mtype.String()), zap.Int("bytes", len(body)))
	return url, nil
}
