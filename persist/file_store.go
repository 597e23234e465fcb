package persist

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/chatlink/ext/extensible"
)

// FileStore keeps the snapshot in a single text file, one record per line:
// kind, target and key separated by tabs, then the payload in base64. The
// file is replaced atomically via a temp file and rename.
type FileStore struct {
	path string

	mu     sync.Mutex
	closed bool
}

// NewFileStore creates a store writing to path. The parent directory must
// exist.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Save writes the full snapshot, replacing the previous file.
func (s *FileStore) Save(ctx context.Context, recs []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp*")
	if err != nil {
		return fmt.Errorf("persist: create temp snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	written := 0
	for _, rec := range recs {
		if strings.ContainsAny(rec.Target, "\t\n") || strings.ContainsAny(rec.Key, "\t\n") {
			log.Warn().Str("target", rec.Target).Str("key", rec.Key).Msg("skipping record with unstorable target or key")
			continue
		}
		_, err := fmt.Fprintf(w, "%d\t%s\t%s\t%s\n",
			int(rec.Kind), rec.Target, rec.Key, base64.StdEncoding.EncodeToString(rec.Payload))
		if err != nil {
			tmp.Close()
			return fmt.Errorf("persist: write snapshot: %w", err)
		}
		written++
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("persist: flush snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("persist: close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("persist: replace snapshot: %w", err)
	}

	log.Debug().Str("path", s.path).Int("records", written).Msg("snapshot written")
	return nil
}

// Load reads the snapshot. A missing file is an empty snapshot. Malformed
// lines are skipped.
func (s *FileStore) Load(ctx context.Context) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("persist: open snapshot: %w", err)
	}
	defer f.Close()

	var recs []Record
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "\t", 4)
		if len(parts) != 4 {
			log.Warn().Str("path", s.path).Int("line", lineNo).Msg("skipping malformed snapshot line")
			continue
		}
		var kind int
		if _, err := fmt.Sscanf(parts[0], "%d", &kind); err != nil {
			log.Warn().Str("path", s.path).Int("line", lineNo).Msg("skipping snapshot line with bad kind")
			continue
		}
		payload, err := base64.StdEncoding.DecodeString(parts[3])
		if err != nil {
			log.Warn().Str("path", s.path).Int("line", lineNo).Msg("skipping snapshot line with bad payload")
			continue
		}
		recs = append(recs, Record{
			Kind:    extensible.Kind(kind),
			Target:  parts[1],
			Key:     parts[2],
			Payload: payload,
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("persist: read snapshot: %w", err)
	}
	return recs, nil
}

// Close marks the store closed. The snapshot file stays on disk.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

var _ Store = (*FileStore)(nil)
