// Package store persists crawled link graphs as one compressed file per
// host under a root directory. It is a pure I/O layer; the file listing is
// the authority for which sites have been crawled.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/apetros/sitemapper/internal/codec"
	"github.com/apetros/sitemapper/internal/graph"
)

// Sentinel errors returned by Read.
var (
	// ErrNotFound means no graph file exists for the host under the
	// store's codec extension.
	ErrNotFound = errors.New("graph not found")
	// ErrCorrupt means the file exists but decompression or structural
	// parsing failed.
	ErrCorrupt = errors.New("graph corrupt")
)

// Store reads and writes compressed graph files under a root directory.
type Store struct {
	root  string
	codec codec.Codec
}

// New validates the root directory, creating it if missing, and returns a
// Store bound to the given codec.
func New(root string, c codec.Codec) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("store root is required")
	}
	info, err := os.Stat(root)
	switch {
	case err != nil && os.IsNotExist(err):
		if mkErr := os.MkdirAll(root, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create store root: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("stat store root: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("store root %s is not a directory", root)
	}

	testFile := filepath.Join(root, ".writable_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("store root is not writable: %w", err)
	}
	if err := os.Remove(testFile); err != nil {
		return nil, fmt.Errorf("clean up writable test file: %w", err)
	}

	return &Store{root: root, codec: c}, nil
}

// Root returns the store's root directory.
func (s *Store) Root() string { return s.root }

// Codec returns the codec every file in this store is written with.
func (s *Store) Codec() codec.Codec { return s.codec }

// Path returns the file path a host's graph is stored at.
func (s *Store) Path(host string) (string, error) {
	if err := validateHost(host); err != nil {
		return "", err
	}
	return filepath.Join(s.root, host+s.codec.Extension()), nil
}

// Write serializes g and writes it atomically to <root>/<host><ext>. The
// document is compressed through the store's codec and lands under its
// final name only after a complete write, so readers never observe a
// partial file.
func (s *Store) Write(host string, g *graph.Graph) error {
	path, err := s.Path(host)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(g.Document())
	if err != nil {
		return fmt.Errorf("marshal graph: %w", err)
	}

	tmp, err := os.CreateTemp(s.root, host+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp graph file: %w", err)
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()

	cw, err := s.codec.Compress(tmp)
	if err != nil {
		_ = tmp.Close()
		return fmt.Errorf("open compressor: %w", err)
	}
	if _, err := cw.Write(payload); err != nil {
		_ = cw.Close()
		_ = tmp.Close()
		return fmt.Errorf("write graph: %w", err)
	}
	if err := cw.Close(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("flush compressor: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp graph file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename graph file: %w", err)
	}
	return nil
}

// Read loads and decodes the graph stored for host. It returns ErrNotFound
// when no file exists and ErrCorrupt when the bytes cannot be decompressed
// or do not parse into a node/edge document.
func (s *Store) Read(host string) (*graph.Graph, error) {
	path, err := s.Path(host)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, host)
		}
		return nil, fmt.Errorf("open graph file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	doc, err := s.decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, host, err)
	}
	return graph.FromDocument(doc), nil
}

func (s *Store) decode(r io.Reader) (graph.Document, error) {
	cr, err := s.codec.Decompress(r)
	if err != nil {
		return graph.Document{}, err
	}
	defer func() {
		_ = cr.Close()
	}()
	raw, err := io.ReadAll(cr)
	if err != nil {
		return graph.Document{}, err
	}
	var doc graph.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return graph.Document{}, err
	}
	for _, e := range doc.Edges {
		if e[0] == "" || e[1] == "" {
			return graph.Document{}, errors.New("edge with empty endpoint")
		}
	}
	return doc, nil
}

// Has reports whether a graph file exists for host, without decoding it.
func (s *Store) Has(host string) bool {
	path, err := s.Path(host)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// List enumerates the hosts persisted under the store's codec extension.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("read store root: %w", err)
	}
	ext := s.codec.Extension()
	hosts := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ext) {
			continue
		}
		hosts = append(hosts, strings.TrimSuffix(name, ext))
	}
	return hosts, nil
}

// Remove deletes the stored graph for host. Removing an absent host is not
// an error.
func (s *Store) Remove(host string) error {
	path, err := s.Path(host)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove graph file: %w", err)
	}
	return nil
}

func validateHost(host string) error {
	if strings.TrimSpace(host) == "" {
		return fmt.Errorf("host is required")
	}
	if strings.ContainsAny(host, `/\`) || host == "." || host == ".." {
		return fmt.Errorf("invalid host %q", host)
	}
	return nil
}
