// Package fileserver хранит загруженные вложения и отдаёт их по ссылке.
// Ссылка используется как content сообщения типа IMAGE или FILE.
package fileserver

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/whitechapel007/chat-app-pern/internal/logger"
	"github.com/whitechapel007/chat-app-pern/internal/model"
)

const sniffLen = 3072

// Блокируем только опасные расширения (исполняемые/скрипты). Остальные — разрешены.
var BlockedExt = map[string]bool{
	".exe": true, ".sh": true, ".js": true, ".bat": true, ".cmd": true,
	".php": true, ".py": true, ".rb": true, ".msi": true, ".dll": true,
}

var blockedMIME = []string{
	"application/vnd.microsoft.portable-executable",
	"application/x-elf",
	"application/x-mach-binary",
	"text/x-shellscript",
}

var imageExt = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true, ".heic": true,
}

type UploadResponse struct {
	URL         string            `json:"url"`
	FileName    string            `json:"fileName"`
	FileSize    int64             `json:"fileSize"`
	MimeType    string            `json:"mimeType"`
	MessageType model.MessageType `json:"messageType"`
}

// Service обрабатывает загрузку и раздачу файлов. Файлы хранятся сжатыми (.gz).
type Service struct {
	UploadDir     string
	MaxUploadSize int64
	// URLPrefix — префикс ссылок, по которому смонтирован Serve.
	URLPrefix string
}

func New(uploadDir string, maxUploadSize int64) *Service {
	return &Service{UploadDir: uploadDir, MaxUploadSize: maxUploadSize, URLPrefix: "/uploads/"}
}

func (s *Service) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Errorf("fileserver writeJSON: %v", err)
	}
}

func (s *Service) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, struct {
		Error string `json:"error"`
	}{Error: msg})
}

// Upload обрабатывает POST multipart/form-data с полем "file".
func (s *Service) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, s.MaxUploadSize)

	if err := r.ParseMultipartForm(s.MaxUploadSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		s.writeError(w, http.StatusBadRequest, "multipart form expected")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	// В ряде клиентов/прокси пробел в имени кодируется как "+".
	rawFilename := strings.ReplaceAll(header.Filename, "+", " ")
	ext := strings.ToLower(filepath.Ext(rawFilename))
	if BlockedExt[ext] {
		s.writeError(w, http.StatusBadRequest, "file type not allowed")
		return
	}

	head := make([]byte, sniffLen)
	n, _ := io.ReadAtLeast(file, head, len(head))
	head = head[:n]
	mt := mimetype.Detect(head)
	if mimetype.EqualsAny(mt.String(), blockedMIME...) {
		s.writeError(w, http.StatusBadRequest, "file type not allowed")
		return
	}
	isImage := strings.HasPrefix(mt.String(), "image/")
	if imageExt[ext] && !isImage {
		s.writeError(w, http.StatusBadRequest, "file content does not match type")
		return
	}
	if ext == "" {
		ext = mt.Extension()
	}

	newName := uuid.NewString() + ext
	if err := s.store(ctx, newName, head, file); err != nil {
		if ctx.Err() != nil {
			return
		}
		logger.Errorf("fileserver save %s: %v", newName, err)
		s.writeError(w, http.StatusInternalServerError, "failed to save file")
		return
	}

	displayName := safeFilename(filepath.Base(rawFilename))
	if displayName == "" {
		displayName = newName
	}
	msgType := model.MessageFile
	if isImage {
		msgType = model.MessageImage
	}
	s.writeJSON(w, http.StatusCreated, UploadResponse{
		URL:         s.URLPrefix + newName,
		FileName:    displayName,
		FileSize:    header.Size,
		MimeType:    mt.String(),
		MessageType: msgType,
	})
}

func (s *Service) store(ctx context.Context, name string, head []byte, rest io.Reader) (err error) {
	if err := os.MkdirAll(s.UploadDir, 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	dstPath := filepath.Join(s.UploadDir, name+".gz")
	dst, err := os.Create(dstPath)
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}
	defer func() {
		if err != nil {
			os.Remove(dstPath)
		}
	}()
	gz := gzip.NewWriter(dst)
	if _, err := gz.Write(head); err != nil {
		gz.Close()
		dst.Close()
		return fmt.Errorf("write: %w", err)
	}
	if err := copyWithContext(ctx, gz, rest); err != nil {
		gz.Close()
		dst.Close()
		return err
	}
	if err := gz.Close(); err != nil {
		dst.Close()
		return fmt.Errorf("gzip close: %w", err)
	}
	return dst.Close()
}

// Serve отдаёт файл по имени (разархивирует при отдаче); query name= — оригинальное имя для Content-Disposition.
func (s *Service) Serve(w http.ResponseWriter, r *http.Request, filename string) {
	filename = filepath.Base(filename)
	f, err := os.Open(filepath.Join(s.UploadDir, filename+".gz"))
	if err != nil {
		s.writeError(w, http.StatusNotFound, "file not found")
		return
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to read file")
		return
	}
	defer gz.Close()

	br := bufio.NewReaderSize(gz, sniffLen)
	head, _ := br.Peek(sniffLen)
	w.Header().Set("Content-Type", mimetype.Detect(head).String())
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if origName := r.URL.Query().Get("name"); origName != "" {
		origName = strings.TrimSpace(strings.ReplaceAll(origName, "+", " "))
		if safe := safeFilename(origName); safe != "" {
			w.Header().Set("Content-Disposition", "attachment; filename*=UTF-8''"+url.PathEscape(safe))
		}
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, br); err != nil {
		logger.Errorf("fileserver serve %s: %v", filename, err)
	}
}

// safeFilename оставляет имя файла безопасным для Content-Disposition (без управляющих символов и кавычек).
func safeFilename(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || s == "." || s == "/" {
		return ""
	}
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '\r', '\n', '"', '\\', '/', '\x00':
			continue
		}
		if unicode.IsPrint(r) {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) error {
	buf := make([]byte, 32*1024)
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("upload cancelled: %w", ctx.Err())
		default:
		}
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return fmt.Errorf("write: %w", err)
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return fmt.Errorf("read: %w", readErr)
		}
	}
}
