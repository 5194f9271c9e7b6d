package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

type UploadResult struct {
	Key      string
	Location string
	ETag     string
}

// FileUploader — хранилище файлов доказательств и пруфов результатов.
type FileUploader interface {
	Upload(ctx context.Context, key string, contentType string, reader io.Reader) (*UploadResult, error)

	Delete(ctx context.Context, key string) error

	GetPublicURL(key string) string
}

// Допустимые типы загрузок. Исполняемые и архивные типы не принимаются.
var allowedContentTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
	"video/mp4":  ".mp4",
	"video/webm": ".webm",
	"text/plain": ".txt",
}

// AllowedContentType возвращает расширение файла для разрешённого MIME-типа.
func AllowedContentType(contentType string) (string, bool) {
	ext, ok := allowedContentTypes[strings.ToLower(strings.TrimSpace(contentType))]
	return ext, ok
}

// EvidenceKey строит ключ объекта для доказательства спора.
// Ключи неугадываемые: исходное имя файла в них не участвует.
func EvidenceKey(disputeID int, contentType string) (string, error) {
	ext, ok := AllowedContentType(contentType)
	if !ok {
		return "", fmt.Errorf("content type %q is not allowed for evidence uploads", contentType)
	}
	return path.Join("disputes", fmt.Sprintf("%d", disputeID),
		fmt.Sprintf("%d-%s%s", time.Now().UTC().Unix(), uuid.NewString(), ext)), nil
}

// ProofKey строит ключ объекта для пруфа, приложенного к заявке на результат.
func ProofKey(matchID int, contentType string) (string, error) {
	ext, ok := AllowedContentType(contentType)
	if !ok {
		return "", fmt.Errorf("content type %q is not allowed for proof uploads", contentType)
	}
	return path.Join("matches", fmt.Sprintf("%d", matchID), "proofs",
		fmt.Sprintf("%d-%s%s", time.Now().UTC().Unix(), uuid.NewString(), ext)), nil
}
