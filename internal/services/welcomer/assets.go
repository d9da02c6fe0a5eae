package welcomer

import (
	"encoding/hex"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"

	"github.com/NordCoder/Welcomer/internal/domain/membership"
	"github.com/NordCoder/Welcomer/internal/obs"
)

const artifactExt = ".png"

var safeKey = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// AssetStore owns the transient card files. Every reservation gets a
// run-unique path, so two runs for the same member never share a file.
type AssetStore struct {
	dir   string
	newID func() string
	log   *zap.Logger

	mu   sync.Mutex
	live map[string]struct{}
}

func NewAssetStore(dir string, l *zap.Logger) *AssetStore {
	return &AssetStore{
		dir:   dir,
		newID: uuid.NewString,
		log:   obs.Component(l, "welcomer.assets"),
		live:  make(map[string]struct{}),
	}
}

func (s *AssetStore) Dir() string { return s.dir }

// MemberKey derives a filesystem-safe, stable key from a member id.
func MemberKey(memberID string) string {
	if safeKey.MatchString(memberID) {
		return memberID
	}
	h, _ := blake2b.New(16, nil)
	h.Write([]byte(memberID))
	return hex.EncodeToString(h.Sum(nil))
}

func (s *AssetStore) Reserve(memberID string) (membership.Artifact, error) {
	if strings.TrimSpace(memberID) == "" {
		return membership.Artifact{}, &membership.StorageError{Op: "reserve", Err: membership.ErrEmptyMemberID}
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return membership.Artifact{}, &membership.StorageError{Op: "mkdir", Path: s.dir, Err: err}
	}

	key := MemberKey(memberID) + "-" + s.newID()
	a := membership.Artifact{
		MemberID: memberID,
		Key:      key,
		Path:     filepath.Join(s.dir, key+artifactExt),
	}

	s.mu.Lock()
	if _, dup := s.live[a.Path]; dup {
		s.mu.Unlock()
		return membership.Artifact{}, &membership.StorageError{Op: "reserve", Path: a.Path, Err: fs.ErrExist}
	}
	s.live[a.Path] = struct{}{}
	s.mu.Unlock()

	s.log.Debug("asset reserved", zap.String("member_id", memberID), zap.String("path", a.Path))
	return a, nil
}

// Release deletes the artifact. Releasing twice, or releasing a file that is
// already gone, is a no-op.
func (s *AssetStore) Release(a membership.Artifact) error {
	if a.Path == "" {
		return nil
	}
	s.mu.Lock()
	delete(s.live, a.Path)
	s.mu.Unlock()

	if err := os.Remove(a.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &membership.StorageError{Op: "release", Path: a.Path, Err: err}
	}
	s.log.Debug("asset released", zap.String("member_id", a.MemberID), zap.String("path", a.Path))
	return nil
}

// Live reports how many reservations have not been released yet.
func (s *AssetStore) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

// Sweep removes card files older than olderThan that no current run owns.
// It is meant for startup, to clear leftovers of a crashed process.
func (s *AssetStore) Sweep(olderThan time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, &membership.StorageError{Op: "sweep", Path: s.dir, Err: err}
	}

	cutoff := time.Now().Add(-olderThan)
	removed := 0
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != artifactExt {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(s.dir, e.Name())

		s.mu.Lock()
		_, owned := s.live[path]
		s.mu.Unlock()
		if owned {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.log.Warn("sweep: remove failed", zap.String("path", path), zap.Error(err))
			continue
		}
		removed++
	}
	if removed > 0 {
		s.log.Info("stale artifacts swept", zap.Int("removed", removed), zap.String("dir", s.dir))
	}
	return removed, nil
}
