package services

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

const (
	UploadURLPrefix = "/uploads/"
	sniffLength     = 3072
)

var allowedExtensions = map[string]bool{
	".pdf": true, ".doc": true, ".docx": true, ".ppt": true, ".pptx": true,
	".xls": true, ".xlsx": true, ".txt": true, ".png": true, ".jpg": true, ".jpeg": true,
}

// Extensions whose content has an unambiguous signature must sniff as one
// of these types. Office formats sniff as zip or OLE containers and are
// only checked against the blocked list.
var expectedMIME = map[string][]string{
	".pdf":  {"application/pdf"},
	".png":  {"image/png"},
	".jpg":  {"image/jpeg"},
	".jpeg": {"image/jpeg"},
	".txt":  {"text/plain"},
}

var blockedMIME = []string{
	"application/vnd.microsoft.portable-executable",
	"application/x-executable",
	"application/x-elf",
	"application/x-mach-binary",
	"application/x-sharedlib",
	"text/x-shellscript",
	"text/html",
	"application/javascript",
}

// UploadedFile is a file part of a multipart write.
type UploadedFile struct {
	Name string
	Body io.Reader
}

// UploadStore keeps uploaded documents on local disk under Root/<kind>/.
type UploadStore struct {
	Root     string
	MaxBytes int64
	now      func() time.Time
}

func NewUploadStore(root string, maxBytes int64) *UploadStore {
	return &UploadStore{Root: root, MaxBytes: maxBytes, now: time.Now}
}

func EnsureStoragePath(base string, bucket string) (string, error) {
	path := filepath.Join(base, bucket)
	if err := os.MkdirAll(path, 0755); err != nil {
		return "", err
	}
	return path, nil
}

// SanitizeFilename keeps letters, digits, dots, dashes and underscores
// and replaces every other run of characters with a single dash.
func SanitizeFilename(name string) string {
	base := filepath.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	var b strings.Builder
	lastDash := false
	for _, r := range base {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '_' || r == '-' {
			b.WriteRune(r)
			lastDash = r == '-'
			continue
		}
		if !lastDash {
			b.WriteRune('-')
			lastDash = true
		}
	}
	clean := strings.Trim(b.String(), "-.")
	if clean == "" {
		return "file"
	}
	return clean
}

// Save validates and writes file under kind and returns its public path.
func (u *UploadStore) Save(kind string, file UploadedFile) (string, error) {
	name := SanitizeFilename(file.Name)
	ext := strings.ToLower(filepath.Ext(name))
	if !allowedExtensions[ext] {
		return "", ErrValidation("File type not allowed")
	}

	limited := io.LimitReader(file.Body, u.MaxBytes+1)
	head := make([]byte, sniffLength)
	n, err := io.ReadFull(limited, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", WrapError(err, "read upload")
	}
	head = head[:n]
	if n == 0 {
		return "", ErrValidation("File is empty")
	}
	if err := checkContent(ext, mimetype.Detect(head)); err != nil {
		return "", err
	}

	dir, err := EnsureStoragePath(u.Root, kind)
	if err != nil {
		return "", WrapError(err, "prepare upload dir")
	}
	stored := fmt.Sprintf("%d-%s-%s", u.now().UnixMilli(), uuid.NewString()[:8], name)
	target := filepath.Join(dir, stored)
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", WrapError(err, "create upload")
	}
	size, err := io.Copy(out, io.MultiReader(bytes.NewReader(head), limited))
	_ = out.Close()
	if err != nil {
		_ = os.Remove(target)
		return "", WrapError(err, "write upload")
	}
	if size > u.MaxBytes {
		_ = os.Remove(target)
		return "", ErrValidation(fmt.Sprintf("File exceeds the %d MB limit", u.MaxBytes/(1<<20)))
	}
	return UploadURLPrefix + kind + "/" + stored, nil
}

// Remove deletes the file behind a public path returned by Save. Paths
// outside the upload prefix are ignored.
func (u *UploadStore) Remove(publicPath string) {
	if !strings.HasPrefix(publicPath, UploadURLPrefix) {
		return
	}
	rel := strings.TrimPrefix(publicPath, UploadURLPrefix)
	parts := strings.SplitN(rel, "/", 2)
	if len(parts) != 2 {
		return
	}
	_ = os.Remove(filepath.Join(u.Root, filepath.Base(parts[0]), filepath.Base(parts[1])))
}

func checkContent(ext string, detected *mimetype.MIME) error {
	for m := detected; m != nil; m = m.Parent() {
		for _, blocked := range blockedMIME {
			if m.Is(blocked) {
				return ErrValidation("File content is not allowed")
			}
		}
	}
	expected, ok := expectedMIME[ext]
	if !ok {
		return nil
	}
	for m := detected; m != nil; m = m.Parent() {
		for _, want := range expected {
			if m.Is(want) {
				return nil
			}
		}
	}
	return ErrValidation("File content does not match its extension")
}
