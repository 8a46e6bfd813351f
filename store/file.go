package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/bstflow/types"
)

var safeID = regexp.MustCompile(`^[A-Za-z0-9._-]{1,128}$`)

// FileStore 每个报告保存为目录下的一个 JSON 文件
type FileStore struct {
	dir    string
	logger *zap.Logger
}

// NewFileStore 创建文件存储，目录不存在时自动创建
func NewFileStore(dir string, logger *zap.Logger) (*FileStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}
	return &FileStore{
		dir:    dir,
		logger: logger.With(zap.String("component", "file_store")),
	}, nil
}

func (s *FileStore) path(id string) (string, error) {
	if !safeID.MatchString(id) || strings.Trim(id, ".") == "" {
		return "", types.NewError(types.ErrConfigInvalid, "request id not usable as file name: "+id)
	}
	return filepath.Join(s.dir, id+".json"), nil
}

func (s *FileStore) Save(_ context.Context, r *types.FinalReport) error {
	if err := validate(r); err != nil {
		return err
	}
	path, err := s.path(r.RequestID)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	// 先写临时文件再重命名，读者不会看到半个文件
	tmp, err := os.CreateTemp(s.dir, ".report-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close report: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename report: %w", err)
	}
	return nil
}

func (s *FileStore) Get(_ context.Context, id string) (*types.FinalReport, error) {
	path, err := s.path(id)
	if err != nil {
		return nil, ErrNotFound
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}
	var r types.FinalReport
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", id, err)
	}
	return &r, nil
}

func (s *FileStore) List(ctx context.Context, limit int) ([]Summary, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read report dir: %w", err)
	}
	var out []Summary
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		r, err := s.Get(ctx, strings.TrimSuffix(name, ".json"))
		if err != nil {
			s.logger.Warn("skipping unreadable report", zap.String("file", name), zap.Error(err))
			continue
		}
		out = append(out, Summarize(r))
	}
	slices.SortFunc(out, func(a, b Summary) int { return b.CreatedAt.Compare(a.CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *FileStore) Delete(_ context.Context, id string) error {
	path, err := s.path(id)
	if err != nil {
		return ErrNotFound
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("delete report: %w", err)
	}
	return nil
}

func (s *FileStore) Close() error { return nil }
