package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Persistence handles the disk I/O for the MemStore.
type Persistence struct {
	DataDir string
	logger  *zap.Logger
	mu      sync.Mutex // Protects concurrent writes to the filesystem
}

// NewPersistence initializes a persistence handler.
func NewPersistence(dir string, logger *zap.Logger) (*Persistence, error) {
	// Ensure the data directory exists
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Persistence{DataDir: dir, logger: logger}, nil
}

// SaveNamespace writes a single namespace's data to a JSON file atomically.
// An empty namespace removes its file.
func (p *Persistence) SaveNamespace(namespace string, data map[string]string) error {
	if err := ValidateNamespace(namespace); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	filePath := filepath.Join(p.DataDir, namespace+".json")
	if len(data) == 0 {
		if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}

	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}

	// Write to a temporary file first, then swap it in.
	// If the power fails, you have either the old file or the new one, never a corrupt one.
	tempPath := filePath + ".tmp"
	if err := os.WriteFile(tempPath, bytes, 0o600); err != nil {
		return err
	}
	return os.Rename(tempPath, filePath)
}

// LoadAll returns all namespace data found in the data directory.
// Unreadable or corrupt files are skipped with a warning.
func (p *Persistence) LoadAll() (map[string]map[string]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	allData := make(map[string]map[string]string)

	files, err := os.ReadDir(p.DataDir)
	if err != nil {
		return nil, err
	}

	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".json" {
			continue
		}
		namespace := strings.TrimSuffix(file.Name(), ".json")
		if ValidateNamespace(namespace) != nil {
			p.logger.Warn("skipping file with an invalid namespace name", zap.String("file", file.Name()))
			continue
		}

		content, err := os.ReadFile(filepath.Join(p.DataDir, file.Name()))
		if err != nil {
			p.logger.Warn("could not read namespace file", zap.String("file", file.Name()), zap.Error(err))
			continue
		}

		var nsData map[string]string
		if err := json.Unmarshal(content, &nsData); err != nil {
			p.logger.Warn("could not decode namespace file", zap.String("file", file.Name()), zap.Error(err))
			continue
		}
		allData[namespace] = nsData
	}
	return allData, nil
}
