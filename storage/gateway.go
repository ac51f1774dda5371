// Package storage saves documents from the content into a sandbox directory
// and reads documents picked by the user.
package storage

import (
	"encoding/base64"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// DefaultMaxLoadBytes is the largest document Load accepts.
const DefaultMaxLoadBytes = 10240

// imagePrefixes are the data URL prefixes whose payload is decoded to binary.
var imagePrefixes = []string{
	"data:image/png;base64,",
	"data:image/jpeg;base64,",
	"data:image/gif;base64,",
	"data:image/webp;base64,",
	"data:image/svg+xml;base64,",
}

// Config locates the sandbox.
type Config struct {
	DownloadsDir string // must exist; plays the role of mounted storage
	Subdir       string // app directory below DownloadsDir
	MaxLoadBytes int64
}

// Gateway performs sandboxed saves and bounded loads.
type Gateway struct {
	root    string
	dir     string
	maxLoad int64
	log     *zap.Logger

	locks keyedMutex
}

// New creates a gateway. It does not touch the filesystem.
func New(cfg Config, log *zap.Logger) *Gateway {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.MaxLoadBytes <= 0 {
		cfg.MaxLoadBytes = DefaultMaxLoadBytes
	}
	return &Gateway{
		root:    cfg.DownloadsDir,
		dir:     filepath.Join(cfg.DownloadsDir, cfg.Subdir),
		maxLoad: cfg.MaxLoadBytes,
		log:     log,
		locks:   keyedMutex{held: make(map[string]*keyedEntry)},
	}
}

// Dir returns the sandbox directory.
func (g *Gateway) Dir() string { return g.dir }

// MaxLoadBytes returns the load ceiling.
func (g *Gateway) MaxLoadBytes() int64 { return g.maxLoad }

// EnsureDir creates the sandbox directory. A permission failure is reported as
// ErrPermissionDenied; the host keeps running without it.
func (g *Gateway) EnsureDir() error {
	if err := os.MkdirAll(g.dir, 0o755); err != nil {
		kind := ErrWriteFailed
		if errors.Is(err, fs.ErrPermission) {
			kind = ErrPermissionDenied
		}
		return &Error{Op: "mkdir", Path: g.dir, Kind: kind, Err: err}
	}
	return nil
}

// Save writes payload to <sandbox>/<filename> and returns the path. Existing
// files are never overwritten. A payload with a recognized base64 image data
// URL prefix is written as the decoded bytes, anything else verbatim.
func (g *Gateway) Save(filename, payload string) (string, error) {
	if err := g.available(); err != nil {
		return "", err
	}
	if !validName(filename) {
		return "", &Error{Op: "save", Path: filename, Kind: ErrInvalidName}
	}

	path := filepath.Join(g.dir, filename)
	unlock := g.locks.lock(filename)
	defer unlock()

	if fi, err := os.Stat(path); err == nil {
		if fi.IsDir() {
			return "", &Error{Op: "save", Path: path, Kind: ErrIsDirectory}
		}
		return "", &Error{Op: "save", Path: path, Kind: ErrAlreadyExists}
	}

	data, err := decodePayload(payload)
	if err != nil {
		return "", &Error{Op: "save", Path: path, Kind: ErrWriteFailed, Err: err}
	}

	// O_EXCL closes the gap to writers outside this process.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return "", &Error{Op: "save", Path: path, Kind: ErrAlreadyExists, Err: err}
		}
		return "", &Error{Op: "save", Path: path, Kind: ErrWriteFailed, Err: err}
	}
	_, werr := f.Write(data)
	cerr := f.Close()
	if werr == nil {
		werr = cerr
	}
	if werr != nil {
		_ = os.Remove(path)
		g.log.Error("save failed", zap.String("path", path), zap.Error(werr))
		return "", &Error{Op: "save", Path: path, Kind: ErrWriteFailed, Err: werr}
	}

	g.log.Info("file saved", zap.String("path", path), zap.Int("bytes", len(data)))
	return path, nil
}

// Opener opens the content behind a load reference.
type Opener func() (io.ReadCloser, error)

// OpenFile returns an Opener for a local path.
func OpenFile(path string) Opener {
	return func() (io.ReadCloser, error) { return os.Open(path) }
}

// Load reads a document whose size was reported by the reference's provider.
// The reported size is checked before the reference is opened, and the read
// itself is bounded by the same ceiling.
func (g *Gateway) Load(ref string, reportedSize int64, open Opener) (string, error) {
	if reportedSize > g.maxLoad {
		return "", &Error{Op: "load", Path: ref, Kind: ErrTooLarge}
	}

	rc, err := open()
	if err != nil {
		return "", &Error{Op: "load", Path: ref, Kind: ErrReadFailed, Err: err}
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, g.maxLoad+1))
	if err != nil {
		g.log.Error("load failed", zap.String("ref", ref), zap.Error(err))
		return "", &Error{Op: "load", Path: ref, Kind: ErrReadFailed, Err: err}
	}
	if int64(len(data)) > g.maxLoad {
		return "", &Error{Op: "load", Path: ref, Kind: ErrTooLarge}
	}
	return string(data), nil
}

func (g *Gateway) available() error {
	fi, err := os.Stat(g.root)
	if err != nil {
		return &Error{Op: "save", Path: g.root, Kind: ErrStorageUnavailable, Err: err}
	}
	if !fi.IsDir() {
		return &Error{Op: "save", Path: g.root, Kind: ErrStorageUnavailable}
	}
	return nil
}

func validName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return false
	}
	return filepath.Base(name) == name
}

func decodePayload(payload string) ([]byte, error) {
	for _, prefix := range imagePrefixes {
		if !strings.HasPrefix(payload, prefix) {
			continue
		}
		enc := strings.Map(func(r rune) rune {
			switch r {
			case ' ', '\n', '\r', '\t':
				return -1
			}
			return r
		}, payload[len(prefix):])
		if strings.HasSuffix(enc, "=") || len(enc)%4 == 0 {
			return base64.StdEncoding.DecodeString(enc)
		}
		return base64.RawStdEncoding.DecodeString(enc)
	}
	return []byte(payload), nil
}

// keyedMutex serializes operations per file name.
type keyedMutex struct {
	mu   sync.Mutex
	held map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	e, ok := k.held[key]
	if !ok {
		e = &keyedEntry{}
		k.held[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.held, key)
		}
		k.mu.Unlock()
	}
}
