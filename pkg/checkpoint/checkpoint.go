package checkpoint

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"followsweep/pkg/logger"
	"followsweep/pkg/session"
)

// Version is the on-disk journal format
const Version = 1

// Checkpoint records how the last collection session for a subject ended
type Checkpoint struct {
	Subject    string    `json:"subject"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Outcome    string    `json:"outcome"`
	Iterations int       `json:"iterations"`
	Written    int       `json:"written"`
	Error      string    `json:"error,omitempty"`
	Version    int       `json:"version"`
}

// FromSnapshot converts a finished session snapshot
func FromSnapshot(snap session.Snapshot) *Checkpoint {
	return &Checkpoint{
		Subject:    snap.Subject,
		StartedAt:  snap.StartedAt,
		FinishedAt: snap.FinishedAt,
		Outcome:    snap.Outcome,
		Iterations: snap.Iterations,
		Written:    snap.Written,
		Error:      snap.Error,
		Version:    Version,
	}
}

// Interrupted reports whether the session stopped before reaching the end
// of the list
func (c *Checkpoint) Interrupted() bool {
	return c.Outcome != "success"
}

// Age is how long ago the session finished
func (c *Checkpoint) Age(now time.Time) time.Duration {
	return now.Sub(c.FinishedAt)
}

// Manager keeps one journal file per subject in a directory
type Manager struct {
	dir    string
	logger logger.Logger
}

// NewManager creates dir when missing
func NewManager(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoints directory: %w", err)
	}
	return &Manager{dir: dir, logger: logger.GetLogger()}, nil
}

// Dir returns the journal directory
func (m *Manager) Dir() string { return m.dir }

func (m *Manager) path(subject string) string {
	name := strings.ToLower(strings.TrimPrefix(subject, "@"))
	if name == "" {
		name = "_unknown"
	}
	return filepath.Join(m.dir, name+".checkpoint.json")
}

// Save writes the journal for snap's subject atomically
func (m *Manager) Save(snap session.Snapshot) error {
	cp := FromSnapshot(snap)
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	target := m.path(cp.Subject)
	tempPath := target + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary checkpoint file: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync checkpoint file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close checkpoint file: %w", err)
	}
	if err := os.Rename(tempPath, target); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace checkpoint file: %w", err)
	}

	m.logger.DebugWithFields("Checkpoint saved", map[string]interface{}{
		"subject": cp.Subject,
		"outcome": cp.Outcome,
		"written": cp.Written,
	})
	return nil
}

// Load returns the journal for subject, or nil when none was written
func (m *Manager) Load(subject string) (*Checkpoint, error) {
	data, err := os.ReadFile(m.path(subject))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	if cp.Version > Version {
		return nil, fmt.Errorf("checkpoint version %d is newer than supported %d", cp.Version, Version)
	}
	return &cp, nil
}

// Delete removes the journal for subject; a missing file is not an error
func (m *Manager) Delete(subject string) error {
	if err := os.Remove(m.path(subject)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	m.logger.WithField("subject", subject).Debug("Checkpoint deleted")
	return nil
}
