package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/soltide/poolmgr/internal/lib/tide"
)

// SaveSnapshotFile writes the snapshot as indented JSON, by first saving
// into a temp file and then renaming over the target only if successfully
// written. Readers never observe a half-written file.
func SaveSnapshotFile(snapshot *tide.Snapshot, path string) error {
	dir := filepath.Dir(path)
	temp, err := os.CreateTemp(dir, filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	encoder := json.NewEncoder(temp)
	encoder.SetIndent("", "  ")
	err = encoder.Encode(snapshot)
	if err != nil {
		_ = temp.Close()
		_ = os.Remove(temp.Name())
		return fmt.Errorf("error saving snapshot: %w", err)
	}

	err = temp.Close()
	if err != nil {
		return err
	}

	err = os.Rename(temp.Name(), path)
	if err != nil {
		return err
	}
	slog.Info("snapshot saved", "file", path)
	return nil
}
