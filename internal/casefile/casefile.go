package casefile

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/me/flowsched/pkg/model"
)

// MetadataFile is the per-case metadata record inside a case directory.
const MetadataFile = "metadata.toml"

// Load reads the case metadata record from caseDir. Returns nil without
// error when no record exists yet.
func Load(caseDir string) (*model.CaseMetadata, error) {
	data, err := os.ReadFile(filepath.Join(caseDir, MetadataFile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read case metadata: %w", err)
	}

	var meta model.CaseMetadata
	if err := toml.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parse %s: %w", MetadataFile, err)
	}
	return &meta, nil
}

// Write persists the case metadata record with an atomic whole-file
// rewrite (temp file + rename) so a crash can never leave a partial record.
func Write(caseDir string, meta *model.CaseMetadata) error {
	fields := map[string]any{
		"name":       meta.Name,
		"id":         meta.ID,
		"path":       meta.Path,
		"status":     meta.Status,
		"created_at": meta.CreatedAt,
	}
	if meta.Success != nil {
		fields["success"] = *meta.Success
	}
	if meta.FinishedAt != nil {
		fields["finished_at"] = *meta.FinishedAt
	}
	return writeFields(caseDir, fields)
}

// WriteOutcome updates only the fields the manager owns (status, success,
// finished_at), preserving everything else in the record. success and
// finishedAt may be nil while the job is still in flight.
func WriteOutcome(caseDir, status string, success *bool, finishedAt *time.Time) error {
	fields := map[string]any{
		"status": status,
	}
	if success != nil {
		fields["success"] = *success
	}
	if finishedAt != nil {
		fields["finished_at"] = *finishedAt
	}
	return writeFields(caseDir, fields)
}

// writeFields merges fields into the existing record (if any) and rewrites
// the file atomically. Keys owned by other tools are carried over untouched.
func writeFields(caseDir string, fields map[string]any) error {
	path := filepath.Join(caseDir, MetadataFile)

	record := map[string]any{}
	if data, err := os.ReadFile(path); err == nil {
		if err := toml.Unmarshal(data, &record); err != nil {
			return fmt.Errorf("parse existing %s: %w", MetadataFile, err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("read case metadata: %w", err)
	}

	for k, v := range fields {
		if v == nil {
			continue
		}
		record[k] = v
	}

	data, err := toml.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal case metadata: %w", err)
	}

	tmp, err := os.CreateTemp(caseDir, MetadataFile+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp record: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp record: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace case metadata: %w", err)
	}
	return nil
}
