package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"OVIP/internal/domain/models"
	"OVIP/pkg/logger"
)

// FileSource loads the panel from a data directory. The first candidate file that
// exists is the main panel; the performance file is merged when present.
type FileSource struct {
	dir        string
	candidates []string
	perfFile   string
	log        *logger.Logger
}

func NewFileSource(dir string, candidates []string, perfFile string, log *logger.Logger) *FileSource {
	if log == nil {
		log = logger.Nop()
	}
	return &FileSource{dir: dir, candidates: candidates, perfFile: perfFile, log: log}
}

func (s *FileSource) Name() string { return "csv:" + s.dir }

func (s *FileSource) Load(ctx context.Context) (*models.MarketPanel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := s.mainFile()
	if err != nil {
		return nil, err
	}
	panel, err := readFile(path)
	if err != nil {
		return nil, err
	}
	s.log.Info("panel loaded", logger.String("file", path), logger.Int("rows", panel.Len()))

	if s.perfFile == "" {
		return panel, nil
	}
	perfPath := filepath.Join(s.dir, s.perfFile)
	perf, err := readFile(perfPath)
	if errors.Is(err, os.ErrNotExist) {
		s.log.Debug("performance file not found", logger.String("file", perfPath))
		return panel, nil
	}
	if err != nil {
		return nil, err
	}
	return MergePerformance(panel, perf), nil
}

func (s *FileSource) mainFile() (string, error) {
	for _, name := range s.candidates {
		path := filepath.Join(s.dir, name)
		if st, err := os.Stat(path); err == nil && !st.IsDir() {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w in %s (tried %v)", ErrNoDataFile, s.dir, s.candidates)
}

func readFile(path string) (*models.MarketPanel, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	p, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return p, nil
}
