package persist

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"pkt.systems/kryptograf"
	"pkt.systems/pslog"
	"pkt.systems/tabkeeper/internal/sessioncodec"
	"pkt.systems/tabkeeper/schema"
)

// Options configures a session Store.
type Options struct {
	// Path is the session file.
	Path string
	// KeyStore enables encryption at rest with the key store at this path.
	KeyStore string
	// DefaultZoomLevel and VirtualDesktops are passed to the codec.
	DefaultZoomLevel int
	VirtualDesktops  bool
	Logger           pslog.Logger
}

// Store persists the session file.
type Store struct {
	path     string
	keyStore string
	codec    sessioncodec.Options
	log      pslog.Logger
}

// NewStore constructs a store for opts.Path, creating its directory.
func NewStore(opts Options) (*Store, error) {
	if strings.TrimSpace(opts.Path) == "" {
		return nil, errors.New("session file path is required")
	}
	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o700); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	logger = logger.With("session_file", opts.Path)
	if opts.KeyStore != "" {
		if err := EnsureKeyStoreWithLogger(opts.KeyStore, logger); err != nil {
			return nil, err
		}
	}
	return &Store{
		path:     opts.Path,
		keyStore: opts.KeyStore,
		codec: sessioncodec.Options{
			DefaultZoomLevel: opts.DefaultZoomLevel,
			VirtualDesktops:  opts.VirtualDesktops,
			Logger:           logger,
		},
		log: logger,
	}, nil
}

// Path returns the session file path.
func (s *Store) Path() string {
	return s.path
}

// Encrypted reports whether saves are encrypted.
func (s *Store) Encrypted() bool {
	return s.keyStore != ""
}

// Load reads the session file. A missing, unsupported or corrupt file is an
// empty session; only I/O failures are returned.
func (s *Store) Load() (schema.Session, error) {
	data, err := s.readPlain()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.log.Debug("session load miss")
			return schema.Session{}, nil
		}
		s.log.Warn("session load failed", "err", err)
		return schema.Session{}, err
	}
	session, err := sessioncodec.DecodeBytes(data, s.codec)
	if err != nil {
		if sessioncodec.IsUnreadable(err) {
			s.log.Warn("session file ignored", "err", err)
			return schema.Session{}, nil
		}
		s.log.Warn("session load failed", "err", err)
		return schema.Session{}, err
	}
	s.log.Debug("session load ok", "version", session.Version, "windows", len(session.Windows), "tabs", session.TabCount())
	return session, nil
}

// readPlain returns the decrypted file contents. Unencrypted files are read
// as-is even when encryption is enabled, so they migrate on the next save.
func (s *Store) readPlain() ([]byte, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}
	if s.keyStore == "" || len(raw) == 0 {
		return raw, nil
	}
	if version, ok := sessioncodec.PeekVersion(raw); ok && sessioncodec.IsSupported(version) {
		s.log.Debug("session file is not encrypted")
		return raw, nil
	}
	material, root, err := sessionMaterial(s.keyStore)
	if err != nil {
		return nil, err
	}
	kg := kryptograf.New(root)
	reader, err := kg.DecryptReader(bytes.NewReader(raw), material)
	if err != nil {
		return nil, err
	}
	defer func() { _ = reader.Close() }()
	return io.ReadAll(reader)
}

// Save writes session in the current format, atomically.
func (s *Store) Save(session schema.Session) error {
	var buf bytes.Buffer
	if err := sessioncodec.Encode(&buf, session); err != nil {
		s.log.Warn("session save failed", "err", err)
		return err
	}
	if err := s.writeFile(s.path, buf.Bytes()); err != nil {
		s.log.Warn("session save failed", "err", err)
		return err
	}
	s.log.Trace("session save ok", "windows", len(session.Windows), "tabs", session.TabCount())
	return nil
}

// writeFile replaces path with data through a synced temp file, encrypting
// when a key store is configured.
func (s *Store) writeFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "session-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	fail := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		return fail(err)
	}
	if s.keyStore != "" {
		material, root, err := sessionMaterial(s.keyStore)
		if err != nil {
			return fail(err)
		}
		writer, err := kryptograf.New(root).EncryptWriter(tmp, material)
		if err != nil {
			return fail(err)
		}
		if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
			_ = writer.Close()
			return fail(err)
		}
		if err := writer.Close(); err != nil {
			return fail(err)
		}
	} else if _, err := tmp.Write(data); err != nil {
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}
