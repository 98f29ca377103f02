package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// LedgerFileName is the ledger file inside the state directory.
const LedgerFileName = "imported.yaml"

// ErrKeyNotFound is returned when removing a key the ledger does not hold.
var ErrKeyNotFound = errors.New("key not in ledger")

// LedgerFile represents the top-level structure of imported.yaml.
type LedgerFile struct {
	Version string   `yaml:"version"`
	Keys    []string `yaml:"keys"`
}

// LedgerManager is the persisted set of item keys already imported.
type LedgerManager interface {
	Load() error
	Contains(key string) bool
	Add(key string) error
	Remove(key string) error
	Keys() []string
	Save() error
	Close() error
	Path() string
}

type fileLedgerManager struct {
	basePath string
	keys     map[string]struct{}
	unlock   func() error
	lockWait time.Duration
}

// LedgerOption configures a LedgerManager.
type LedgerOption func(*fileLedgerManager)

// WithLockWait sets how long Load waits for another holder of the ledger
// lock before failing with ErrLocked.
func WithLockWait(d time.Duration) LedgerOption {
	return func(m *fileLedgerManager) { m.lockWait = d }
}

// NewLedgerManager creates a LedgerManager backed by imported.yaml in
// basePath. The file is locked from Load until Close; a Load that finds
// the lock held waits up to DefaultLockWait for it.
func NewLedgerManager(basePath string, opts ...LedgerOption) LedgerManager {
	m := &fileLedgerManager{
		basePath: basePath,
		keys:     make(map[string]struct{}),
		lockWait: DefaultLockWait,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *fileLedgerManager) Path() string {
	return LedgerPath(m.basePath)
}

// LedgerPath returns the ledger file inside the state directory basePath.
func LedgerPath(basePath string) string {
	return filepath.Join(basePath, LedgerFileName)
}

func (m *fileLedgerManager) Load() error {
	if m.unlock == nil {
		if err := os.MkdirAll(m.basePath, 0o750); err != nil {
			return fmt.Errorf("loading ledger: creating directory: %w", err)
		}
		unlock, err := lockFile(m.Path()+".lock", m.lockWait)
		if err != nil {
			return fmt.Errorf("loading ledger: %w", err)
		}
		m.unlock = unlock
	}

	data, err := os.ReadFile(m.Path())
	if err != nil {
		if os.IsNotExist(err) {
			m.keys = make(map[string]struct{})
			return nil
		}
		return fmt.Errorf("loading ledger: %w", err)
	}

	var lf LedgerFile
	if err := yaml.Unmarshal(data, &lf); err != nil {
		return fmt.Errorf("loading ledger: parsing YAML: %w", err)
	}
	m.keys = make(map[string]struct{}, len(lf.Keys))
	for _, k := range lf.Keys {
		if k != "" {
			m.keys[k] = struct{}{}
		}
	}
	return nil
}

func (m *fileLedgerManager) Contains(key string) bool {
	_, ok := m.keys[key]
	return ok
}

// Add records key and persists the ledger at once. Adding a key already
// present writes nothing.
func (m *fileLedgerManager) Add(key string) error {
	if key == "" {
		return fmt.Errorf("adding ledger key: key must not be empty")
	}
	if m.Contains(key) {
		return nil
	}
	m.keys[key] = struct{}{}
	return m.Save()
}

func (m *fileLedgerManager) Remove(key string) error {
	if !m.Contains(key) {
		return fmt.Errorf("removing ledger key %q: %w", key, ErrKeyNotFound)
	}
	delete(m.keys, key)
	return m.Save()
}

// Keys returns the recorded keys in sorted order.
func (m *fileLedgerManager) Keys() []string {
	out := make([]string, 0, len(m.keys))
	for k := range m.keys {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (m *fileLedgerManager) Save() error {
	if err := os.MkdirAll(m.basePath, 0o750); err != nil {
		return fmt.Errorf("saving ledger: creating directory: %w", err)
	}
	data, err := yaml.Marshal(&LedgerFile{Version: "1.0", Keys: m.Keys()})
	if err != nil {
		return fmt.Errorf("saving ledger: marshaling YAML: %w", err)
	}
	if err := writeFileAtomic(m.Path(), data, 0o600); err != nil {
		return fmt.Errorf("saving ledger: %w", err)
	}
	return nil
}

// Close releases the ledger lock. It is safe to call more than once.
func (m *fileLedgerManager) Close() error {
	if m.unlock == nil {
		return nil
	}
	err := m.unlock()
	m.unlock = nil
	return err
}
