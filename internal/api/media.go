package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if s.deps.Media == nil {
		s.fail(w, r, errMediaDisabled)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxImageSize+1024)
	mr, err := r.MultipartReader()
	if err != nil {
		s.fail(w, r, badRequest("expecting multipart form"))
		return
	}
	part, err := nextFilePart(mr)
	if err != nil {
		s.fail(w, r, badRequest("missing file part"))
		return
	}
	defer part.Close()
	tmp, err := s.persistTemp(part)
	if err != nil {
		s.fail(w, r, badRequest("%v", err))
		return
	}
	defer os.Remove(tmp.path)
	defer tmp.f.Close()
	if !s.imageAllowed(tmp.contentType) {
		s.fail(w, r, badRequest("unsupported image type %s", tmp.contentType))
		return
	}
	objectKey := fmt.Sprintf("reports/%s/%s%s", id.UserID, uuid.NewString(), imageExtensions[tmp.contentType])
	url, err := s.uploadToStorage(r.Context(), objectKey, tmp)
	if err != nil {
		s.logger.Error("upload to storage failed", zap.String("object_key", objectKey), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to store file")
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]string{"url": url})
}

func (s *Server) imageAllowed(contentType string) bool {
	if _, ok := imageExtensions[contentType]; !ok {
		return false
	}
	for _, allowed := range s.cfg.AllowedImages {
		if allowed == contentType {
			return true
		}
	}
	return false
}

type tempUpload struct {
	f           *os.File
	path        string
	size        int64
	contentType string
}

// persistTemp spools the part to disk, enforcing the size cap and keeping the
// first 512 bytes for content sniffing.
func (s *Server) persistTemp(part *multipart.Part) (*tempUpload, error) {
	tmpFile, err := os.CreateTemp("", "straymandu-*.img")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	discard := func(err error) (*tempUpload, error) {
		tmpFile.Close()
		os.Remove(tmpFile.Name())
		return nil, err
	}
	var sniff []byte
	buf := make([]byte, 32*1024)
	var written int64
	for {
		n, readErr := part.Read(buf)
		if n > 0 {
			written += int64(n)
			if written > s.cfg.MaxImageSize {
				return discard(fmt.Errorf("file exceeds limit (%d bytes)", s.cfg.MaxImageSize))
			}
			if len(sniff) < 512 {
				chunk := n
				if remain := 512 - len(sniff); chunk > remain {
					chunk = remain
				}
				sniff = append(sniff, buf[:chunk]...)
			}
			if _, err := tmpFile.Write(buf[:n]); err != nil {
				return discard(fmt.Errorf("write temp file: %w", err))
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			return discard(fmt.Errorf("read file: %w", readErr))
		}
	}
	if written == 0 {
		return discard(errors.New("empty file"))
	}
	return &tempUpload{
		f:           tmpFile,
		path:        tmpFile.Name(),
		size:        written,
		contentType: http.DetectContentType(sniff),
	}, nil
}

func (s *Server) uploadToStorage(ctx context.Context, objectKey string, tmp *tempUpload) (string, error) {
	if _, err := tmp.f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return s.deps.Media.UploadImage(ctx, objectKey, tmp.f, tmp.size, tmp.contentType)
}

func nextFilePart(mr *multipart.Reader) (*multipart.Part, error) {
	for {
		part, err := mr.NextPart()
		if err != nil {
			return nil, err
		}
		if part.FormName() == "file" {
			return part, nil
		}
		part.Close()
	}
}
