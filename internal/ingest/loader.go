package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"code.sajari.com/docconv/v2"
	"github.com/xxxsen/common/logutil"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"go.uber.org/zap"

	"github.com/huduma-ai/civicqa/internal/model"
	"github.com/huduma-ai/civicqa/internal/pkg/errs"
)

// Warning records a document that was skipped during ingestion.
type Warning struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Report is the outcome of one ingestion walk.
type Report struct {
	Docs     []model.Document
	Warnings []Warning
}

type Loader struct{}

func NewLoader() *Loader {
	return &Loader{}
}

// Load walks root recursively and extracts plain text from every
// supported file. Per-file failures become warnings; only a missing or
// unreadable root is fatal.
func (l *Loader) Load(ctx context.Context, root string) (*Report, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("root", root))
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrLoadRoot, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: not a directory", errs.ErrLoadRoot)
	}

	report := &Report{}
	now := time.Now()
	err = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			report.Warnings = append(report.Warnings, Warning{Path: path, Reason: err.Error()})
			if entry != nil && entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if entry.IsDir() {
			if strings.HasPrefix(entry.Name(), ".") && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(entry.Name(), ".") {
			return nil
		}
		raw, warnReason := extractText(path)
		if warnReason != "" {
			report.Warnings = append(report.Warnings, Warning{Path: path, Reason: warnReason})
			return nil
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			report.Warnings = append(report.Warnings, Warning{Path: path, Reason: "no extractable text"})
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = path
		}
		report.Docs = append(report.Docs, model.Document{
			ID:         docID(rel),
			Title:      titleOf(raw, entry.Name()),
			Source:     rel,
			Audience:   audienceOf(rel),
			RawText:    raw,
			IngestedAt: now,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrLoadRoot, err)
	}
	logger.Info("ingestion walk finished",
		zap.Int("documents", len(report.Docs)),
		zap.Int("warnings", len(report.Warnings)),
	)
	for _, w := range report.Warnings {
		logger.Warn("document skipped", zap.String("path", w.Path), zap.String("reason", w.Reason))
	}
	return report, nil
}

func extractText(path string) (string, string) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".text":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err.Error()
		}
		return string(data), ""
	case ".md", ".markdown":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err.Error()
		}
		return markdownToText(data), ""
	case ".pdf", ".docx", ".html", ".htm", ".odt":
		res, err := docconv.ConvertPath(path)
		if err != nil {
			return "", fmt.Sprintf("convert failed: %v", err)
		}
		return res.Body, ""
	default:
		return "", "unsupported extension"
	}
}

// markdownToText flattens a markdown document to plain text, keeping
// block boundaries as blank lines so the chunker still sees paragraphs.
func markdownToText(source []byte) string {
	md := goldmark.New()
	reader := text.NewReader(source)
	doc := md.Parser().Parse(reader)

	var blocks []string
	for node := doc.FirstChild(); node != nil; node = node.NextSibling() {
		var sb strings.Builder
		_ = ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
			if !entering {
				return ast.WalkContinue, nil
			}
			if n.Kind() == ast.KindText {
				sb.Write(n.(*ast.Text).Segment.Value(source))
				sb.WriteByte(' ')
			}
			return ast.WalkContinue, nil
		})
		if block := strings.TrimSpace(sb.String()); block != "" {
			blocks = append(blocks, block)
		}
	}
	return strings.Join(blocks, "\n\n")
}

func docID(rel string) string {
	hash := sha256.Sum256([]byte(filepath.ToSlash(rel)))
	return hex.EncodeToString(hash[:8])
}

func titleOf(raw, filename string) string {
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "# "))
		if line == "" {
			continue
		}
		if len(line) > 120 {
			line = line[:120]
		}
		return line
	}
	return strings.TrimSuffix(filename, filepath.Ext(filename))
}

func audienceOf(rel string) model.Audience {
	first := strings.SplitN(filepath.ToSlash(rel), "/", 2)[0]
	if first == "staff" {
		return model.AudienceStaff
	}
	return model.AudiencePublic
}
