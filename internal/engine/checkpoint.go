package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// CheckpointManager saves and loads run progress for resume.
type CheckpointManager struct {
	checkpointDir string
}

// Checkpoint is the serializable run progress.
type Checkpoint struct {
	RunID      string           `json:"run_id"`
	Timestamp  time.Time        `json:"timestamp"`
	StartURL   string           `json:"start_url"`
	Processed  []string         `json:"processed"`
	NextIndex  int              `json:"next_index"`
	ReviewRows int              `json:"review_rows"`
	SeenPhotos []string         `json:"seen_photos"`
	Stats      map[string]int64 `json:"stats"`
}

// NewCheckpointManager creates a CheckpointManager writing under dir.
func NewCheckpointManager(dir string) *CheckpointManager {
	return &CheckpointManager{checkpointDir: dir}
}

func (cm *CheckpointManager) path() string {
	return filepath.Join(cm.checkpointDir, "checkpoint.json")
}

// Save writes cp atomically: a temp file is written and renamed over the
// previous checkpoint.
func (cm *CheckpointManager) Save(cp *Checkpoint) error {
	if err := os.MkdirAll(cm.checkpointDir, 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}

	cp.Timestamp = time.Now()
	tmpPath := filepath.Join(cm.checkpointDir, "checkpoint.tmp")

	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create checkpoint file: %w", err)
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(cp); err != nil {
		f.Close()
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close checkpoint file: %w", err)
	}

	if err := os.Rename(tmpPath, cm.path()); err != nil {
		return fmt.Errorf("rename checkpoint file: %w", err)
	}
	return nil
}

// Load reads the last checkpoint. It returns nil, nil when there is none.
func (cm *CheckpointManager) Load() (*Checkpoint, error) {
	f, err := os.Open(cm.path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open checkpoint: %w", err)
	}
	defer f.Close()

	var cp Checkpoint
	if err := json.NewDecoder(f).Decode(&cp); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	return &cp, nil
}

// HasCheckpoint returns true if a checkpoint file exists.
func (cm *CheckpointManager) HasCheckpoint() bool {
	_, err := os.Stat(cm.path())
	return err == nil
}

// Clean removes the checkpoint file.
func (cm *CheckpointManager) Clean() error {
	if err := os.Remove(cm.path()); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
