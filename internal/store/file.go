package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Harshitk-cp/symstate/internal/domain"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type format int

const (
	formatYAML format = iota
	formatJSON
)

// FileStore keeps each document in its own file next to the configured
// path: state.yaml holds the graph, state.goals.yaml and state.proofs.yaml
// the other two. Writes go through a temp file and rename.
type FileStore struct {
	graphPath  string
	goalsPath  string
	proofsPath string
	format     format
	logger     *zap.Logger

	mu sync.Mutex
}

func NewFileStore(path string, logger *zap.Logger) (*FileStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("file store path is required")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create state dir: %w", err)
		}
	}

	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	if ext == "" {
		ext = ".yaml"
	}
	f := formatYAML
	if strings.EqualFold(ext, ".json") {
		f = formatJSON
	}
	return &FileStore{
		graphPath:  base + ext,
		goalsPath:  base + ".goals" + ext,
		proofsPath: base + ".proofs" + ext,
		format:     f,
		logger:     logger,
	}, nil
}

// Paths returns the graph, goals and proofs file paths.
func (s *FileStore) Paths() (graph, goals, proofs string) {
	return s.graphPath, s.goalsPath, s.proofsPath
}

func (s *FileStore) LoadGraph(ctx context.Context) (*domain.GraphDocument, error) {
	doc := &domain.GraphDocument{}
	if err := s.load(s.graphPath, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *FileStore) SaveGraph(ctx context.Context, doc *domain.GraphDocument) error {
	return s.save(ctx, s.graphPath, doc)
}

func (s *FileStore) LoadGoals(ctx context.Context) (*domain.GoalDocument, error) {
	doc := &domain.GoalDocument{}
	if err := s.load(s.goalsPath, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *FileStore) SaveGoals(ctx context.Context, doc *domain.GoalDocument) error {
	return s.save(ctx, s.goalsPath, doc)
}

func (s *FileStore) LoadProofs(ctx context.Context) (*domain.ProofDocument, error) {
	doc := &domain.ProofDocument{}
	if err := s.load(s.proofsPath, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *FileStore) SaveProofs(ctx context.Context, doc *domain.ProofDocument) error {
	return s.save(ctx, s.proofsPath, doc)
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) load(path string, out any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return notFound(path)
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := s.unmarshal(data, out); err != nil {
		return corrupt(path, err)
	}
	return nil
}

func (s *FileStore) save(ctx context.Context, path string, doc any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := s.marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeFileAtomic(path, data); err != nil {
		return err
	}
	s.logger.Debug("document written", zap.String("path", path), zap.Int("bytes", len(data)))
	return nil
}

func (s *FileStore) marshal(doc any) ([]byte, error) {
	if s.format == formatJSON {
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *FileStore) unmarshal(data []byte, out any) error {
	if s.format == formatJSON {
		return json.Unmarshal(data, out)
	}
	return yaml.Unmarshal(data, out)
}

// writeFileAtomic writes data to a temp file in the target directory,
// fsyncs it and renames it over path, then fsyncs the directory.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		cleanup()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		cleanup()
		return fmt.Errorf("rename: %w", err)
	}

	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}

var _ domain.StateStore = (*FileStore)(nil)
