package index

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/schema"
	pdf "github.com/ledongthuc/pdf"

	"github.com/aptify/knowledge-rag/internal/agent/model"
	logx "github.com/aptify/knowledge-rag/pkg/logger"
)

var allowedExt = []string{".pdf", ".txt", ".md"}

// FileLoader loads knowledge articles from a file or a directory tree.
type FileLoader struct{}

func NewFileLoader() *FileLoader { return &FileLoader{} }

// Load implements document.Loader; src.URI is a local path. Files that
// yield no text are skipped.
func (l *FileLoader) Load(ctx context.Context, src document.Source, _ ...document.LoaderOption) ([]*schema.Document, error) {
	paths, err := listFiles(src.URI)
	if err != nil {
		return nil, err
	}
	docs := make([]*schema.Document, 0, len(paths))
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := extractText(p)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", p, err)
		}
		text = strings.TrimSpace(text)
		if text == "" {
			logx.Warn().Str("path", p).Msg("no text extracted, skipping")
			continue
		}
		md := map[string]any{
			model.MetaSource: filepath.Base(p),
			model.MetaPath:   p,
		}
		if title := markdownTitle(p, text); title != "" {
			md[model.MetaTitle] = title
		}
		docs = append(docs, &schema.Document{ID: p, Content: text, MetaData: md})
	}
	return docs, nil
}

func listFiles(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		if !allowed(root) {
			return nil, fmt.Errorf("unsupported file type %q", filepath.Ext(root))
		}
		return []string{root}, nil
	}
	var out []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if allowed(path) {
			out = append(out, path)
		}
		return nil
	})
	return out, err
}

func allowed(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, a := range allowedExt {
		if ext == a {
			return true
		}
	}
	return false
}

func extractText(path string) (string, error) {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return extractTextFromPDF(path)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func extractTextFromPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var buf bytes.Buffer
	b, err := r.GetPlainText()
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(&buf, b); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// markdownTitle returns the first level-one heading of a markdown file.
func markdownTitle(path, text string) string {
	if !strings.EqualFold(filepath.Ext(path), ".md") {
		return ""
	}
	for _, line := range strings.Split(text, "\n") {
		if t, ok := strings.CutPrefix(strings.TrimSpace(line), "# "); ok {
			return strings.TrimSpace(t)
		}
	}
	return ""
}

var _ document.Loader = (*FileLoader)(nil)
