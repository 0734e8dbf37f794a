package storesession

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// FileStore keeps one file per session under a directory (backend "files").
// The file name is the session ID.
type FileStore struct {
	fs              afero.Fs
	dir             string
	ttl             time.Duration
	maxSessionBytes int
}

// FileConfig holds configuration for the file store.
type FileConfig struct {
	Dir             string
	TTL             time.Duration // files untouched for longer are removed by Cleanup
	MaxSessionBytes int
}

// NewFileStore creates a file store on the operating system filesystem.
func NewFileStore(cfg FileConfig) (*FileStore, error) {
	return NewFileStoreWithFs(afero.NewOsFs(), cfg)
}

// NewFileStoreWithFs creates a file store on the given filesystem.
func NewFileStoreWithFs(fsys afero.Fs, cfg FileConfig) (*FileStore, error) {
	dir := normalizeSavePath(cfg.Dir)
	if err := fsys.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}
	return &FileStore{
		fs:              fsys,
		dir:             dir,
		ttl:             cfg.TTL,
		maxSessionBytes: cfg.MaxSessionBytes,
	}, nil
}

// Dir returns the directory the store writes to.
func (s *FileStore) Dir() string {
	return s.dir
}

// WithSavePath returns a store rooted at dir that shares the filesystem and limits.
func (s *FileStore) WithSavePath(dir string) Store {
	cp := *s
	cp.dir = normalizeSavePath(dir)
	return &cp
}

// path maps an ID to its file. IDs are restricted to letters and digits, so
// the result can never leave dir.
func (s *FileStore) path(id string) (string, error) {
	if !isValidID(id) {
		return "", ErrInvalidSessionID
	}
	return filepath.Join(s.dir, id), nil
}

func (s *FileStore) Get(ctx context.Context, id string) (*Session, error) {
	name, err := s.path(id)
	if err != nil {
		return nil, err
	}

	data, err := afero.ReadFile(s.fs, name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	session, err := decodeEnvelope(id, data, s.maxSessionBytes)
	if err != nil {
		return nil, err
	}
	if !session.ExpiresAt.IsZero() && !session.ExpiresAt.After(time.Now()) {
		return nil, nil
	}
	return session, nil
}

// Save writes to a temporary file and renames it over the record, so readers
// never observe a partial write.
func (s *FileStore) Save(ctx context.Context, session *Session) error {
	name, err := s.path(session.ID)
	if err != nil {
		return err
	}

	buf, err := encodeEnvelope(session, s.maxSessionBytes)
	if err != nil {
		return err
	}
	defer PutBuffer(buf)

	if err := s.fs.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	tmp, err := afero.TempFile(s.fs, s.dir, tempPrefix(session.ID)+"*")
	if err != nil {
		return fmt.Errorf("failed to create session file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := s.fs.Rename(tmpName, name); err != nil {
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("failed to save session file: %w", err)
	}
	return nil
}

func (s *FileStore) Delete(ctx context.Context, id string) error {
	name, err := s.path(id)
	if err != nil {
		return err
	}
	if err := s.fs.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete session file: %w", err)
	}
	return nil
}

// Cleanup removes session files, and temporary files left by interrupted
// saves, whose modification time is older than the TTL.
// With a zero TTL nothing is removed.
func (s *FileStore) Cleanup(ctx context.Context) error {
	if s.ttl <= 0 {
		return nil
	}

	entries, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to list session directory: %w", err)
	}

	cutoff := time.Now().Add(-s.ttl)
	var errs []error
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if entry.IsDir() || (!isValidID(entry.Name()) && !isTempName(entry.Name())) {
			continue
		}
		if entry.ModTime().Before(cutoff) {
			if err := s.fs.Remove(filepath.Join(s.dir, entry.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
				errs = append(errs, err)
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to cleanup expired sessions: %w", errors.Join(errs...))
	}
	return nil
}

// Close is a no-op, the store holds no open handles.
func (s *FileStore) Close() error {
	return nil
}

// tempPrefix is the name prefix of the file a Save writes before renaming.
func tempPrefix(id string) string {
	return "." + id + "-"
}

// isTempName reports whether name is a temporary file left by Save, for
// example after a crash between write and rename.
func isTempName(name string) bool {
	rest, ok := strings.CutPrefix(name, ".")
	if !ok {
		return false
	}
	id, _, ok := strings.Cut(rest, "-")
	return ok && isValidID(id)
}

// normalizeSavePath drops a trailing separator and cleans the path.
func normalizeSavePath(dir string) string {
	if dir == "" {
		return "."
	}
	return filepath.Clean(dir)
}
