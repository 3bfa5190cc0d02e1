package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const (
	// fileVersion is bumped when the on-disk layout changes.
	fileVersion = 1

	sessionsFileName = "sessions.json"
	appDirName       = "launch-widgets"
)

type fileState struct {
	Version int               `json:"version"`
	Values  map[string]string `json:"values"`
}

// FileStorage keeps values in a JSON file, by default under
// ~/.local/state/launch-widgets (respecting XDG_STATE_HOME).
type FileStorage struct {
	dir string

	mu sync.Mutex
}

// NewFileStorage reads and writes sessions.json in dir. The directory is
// created on the first write. Pass an empty string for the default path.
func NewFileStorage(dir string) *FileStorage {
	if dir == "" {
		dir = DefaultDir()
	}
	return &FileStorage{dir: dir}
}

// Path returns the full path to the sessions file.
func (f *FileStorage) Path() string {
	return filepath.Join(f.dir, sessionsFileName)
}

func (f *FileStorage) Get(key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, err := f.load()
	if err != nil {
		return "", false, err
	}
	v, ok := st.Values[key]
	return v, ok, nil
}

func (f *FileStorage) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, err := f.load()
	if err != nil {
		return err
	}
	st.Values[key] = value
	return f.save(st)
}

func (f *FileStorage) Remove(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, err := f.load()
	if err != nil {
		return err
	}
	if _, ok := st.Values[key]; !ok {
		return nil
	}
	delete(st.Values, key)
	return f.save(st)
}

func (f *FileStorage) Close() error { return nil }

// load reads the file. A missing file is an empty store.
func (f *FileStorage) load() (*fileState, error) {
	data, err := os.ReadFile(f.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return &fileState{Version: fileVersion, Values: make(map[string]string)}, nil
		}
		return nil, fmt.Errorf("reading sessions: %w", err)
	}
	var st fileState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parsing sessions: %w", err)
	}
	if st.Values == nil {
		st.Values = make(map[string]string)
	}
	return &st, nil
}

// save writes the file using an atomic temp-file-then-rename pattern.
func (f *FileStorage) save(st *fileState) error {
	if err := os.MkdirAll(f.dir, 0o700); err != nil {
		return fmt.Errorf("creating sessions dir: %w", err)
	}
	st.Version = fileVersion

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling sessions: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(f.dir, ".sessions-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, f.Path()); err != nil {
		return fmt.Errorf("renaming sessions file: %w", err)
	}
	committed = true
	return nil
}

// DefaultDir returns ~/.local/state/launch-widgets, respecting
// XDG_STATE_HOME if set.
func DefaultDir() string {
	if base := os.Getenv("XDG_STATE_HOME"); base != "" {
		return filepath.Join(base, appDirName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".local", "state", appDirName)
}
