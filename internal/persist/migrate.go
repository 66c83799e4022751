package persist

import (
	"errors"
	"os"

	"pkt.systems/tabkeeper/internal/sessioncodec"
)

// BackupSuffix is appended to the session file path for the legacy copy
// kept by Migrate.
const BackupSuffix = ".v3.bak"

// Migrate rewrites a legacy session file in the current format, keeping the
// original next to it. It reports whether a migration happened.
func (s *Store) Migrate() (bool, error) {
	data, err := s.readPlain()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	version, ok := sessioncodec.PeekVersion(data)
	if !ok || !sessioncodec.IsLegacy(version) {
		return false, nil
	}
	session, err := sessioncodec.DecodeBytes(data, s.codec)
	if err != nil {
		s.log.Warn("session migrate skipped", "version", version, "err", err)
		return false, nil
	}
	backup := s.path + BackupSuffix
	if err := os.WriteFile(backup, data, 0o600); err != nil {
		s.log.Warn("session migrate failed", "err", err)
		return false, err
	}
	if err := s.Save(session); err != nil {
		return false, err
	}
	s.log.Info("session migrated", "from_version", version, "to_version", sessioncodec.CurrentVersion, "backup", backup)
	return true, nil
}
