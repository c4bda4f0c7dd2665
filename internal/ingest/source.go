package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DocumentSource yields raw documents.
type DocumentSource interface {
	FetchDocuments(ctx context.Context) ([]RawDocument, error)
	// HasUpdates reports whether anything changed after since. A zero since
	// always reports true.
	HasUpdates(ctx context.Context, since time.Time) (bool, error)
	Metadata() SourceInfo
}

// UniswapVersions are the protocol versions laid out under the docs root.
var UniswapVersions = []string{"v2", "v3"}

type uniswapVersion struct {
	version   string
	contracts string
	docs      string
	source    SourceInfo
}

// UniswapSource reads pre-fetched Uniswap files from
// <root>/<version>/contracts/*.sol and <root>/<version>/docs/*.md|*.mdx.
type UniswapSource struct {
	root     string
	versions []uniswapVersion
	logger   *slog.Logger
	now      func() time.Time
}

// NewUniswapSource creates a source rooted at dir.
func NewUniswapSource(dir string, logger *slog.Logger) *UniswapSource {
	if logger == nil {
		logger = slog.Default()
	}
	s := &UniswapSource{root: dir, logger: logger, now: time.Now}
	for _, v := range UniswapVersions {
		s.versions = append(s.versions, uniswapVersion{
			version:   v,
			contracts: filepath.Join(dir, v, "contracts"),
			docs:      filepath.Join(dir, v, "docs"),
			source: SourceInfo{
				Name:     "uniswap-" + v,
				Type:     "uniswap",
				Location: "https://docs.uniswap.org/contracts/" + v + "/overview",
				Version:  v,
			},
		})
	}
	return s
}

func (s *UniswapSource) Metadata() SourceInfo {
	return SourceInfo{
		Name:     "uniswap",
		Type:     "uniswap",
		Location: "https://docs.uniswap.org",
		Version:  "latest",
	}
}

// FetchDocuments walks each version directory. Missing directories and
// unreadable files are logged and skipped.
func (s *UniswapSource) FetchDocuments(ctx context.Context) ([]RawDocument, error) {
	var docs []RawDocument
	for _, v := range s.versions {
		contracts, err := s.walk(ctx, v, v.contracts, TypeSolidity, "contract")
		if err != nil {
			return nil, err
		}
		pages, err := s.walk(ctx, v, v.docs, TypeMarkdown, "documentation")
		if err != nil {
			return nil, err
		}
		docs = append(docs, contracts...)
		docs = append(docs, pages...)
	}
	s.logger.Info("loaded uniswap documents", "root", s.root, "count", len(docs))
	return docs, nil
}

func (s *UniswapSource) walk(ctx context.Context, v uniswapVersion, dir string, docType DocumentType, kind string) ([]RawDocument, error) {
	if _, err := os.Stat(dir); err != nil {
		s.logger.Warn("uniswap directory not found", "version", v.version, "path", dir)
		return nil, nil
	}

	var docs []RawDocument
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			s.logger.Warn("walk failed", "path", path, "error", err)
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || !matchesType(path, docType) {
			return nil
		}

		content, err := os.ReadFile(path) // #nosec G304 -- path comes from walking the configured docs root
		if err != nil {
			s.logger.Warn("failed to read file", "path", path, "error", err)
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = path
		}

		now := s.now().UTC()
		meta := DocumentMetadata{
			Title:     d.Name(),
			DocType:   docType,
			Version:   v.version,
			Source:    v.source,
			Tags:      []string{v.version, kind, filepath.ToSlash(rel)},
			CreatedAt: now,
			UpdatedAt: now,
		}
		if side, ok := readSidecar(path); ok {
			if !side.ProcessedAt.IsZero() {
				meta.CreatedAt = side.ProcessedAt
				meta.UpdatedAt = side.ProcessedAt
			}
			if side.SourceURL != "" {
				meta.Source.Location = side.SourceURL
			}
		}
		docs = append(docs, NewRawDocument(content, meta))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

func matchesType(path string, docType DocumentType) bool {
	ext := strings.ToLower(filepath.Ext(path))
	switch docType {
	case TypeSolidity:
		return ext == ".sol"
	case TypeMarkdown:
		return ext == ".md" || ext == ".mdx"
	}
	return false
}

// HasUpdates reports whether any file under the root was modified after
// since.
func (s *UniswapSource) HasUpdates(ctx context.Context, since time.Time) (bool, error) {
	if since.IsZero() {
		return true, nil
	}

	errFound := errors.New("found")
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err == nil && info.ModTime().After(since) {
			return errFound
		}
		return nil
	})
	switch {
	case errors.Is(err, errFound):
		return true, nil
	case err != nil:
		return false, err
	}
	return false, nil
}

// SidecarSuffix is appended to a fetched file's name for its metadata file.
const SidecarSuffix = ".meta.json"

// Sidecar is the metadata written next to each fetched file.
type Sidecar struct {
	Version     string    `json:"version"`
	SourceURL   string    `json:"source_url"`
	ProcessedAt time.Time `json:"processed_at"`
	Type        string    `json:"type"`
}

func readSidecar(path string) (Sidecar, bool) {
	b, err := os.ReadFile(path + SidecarSuffix) // #nosec G304 -- sibling of a walked file
	if err != nil {
		return Sidecar{}, false
	}
	var s Sidecar
	if json.Unmarshal(b, &s) != nil {
		return Sidecar{}, false
	}
	return s, true
}
