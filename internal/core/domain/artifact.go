// internal/core/domain/artifact.go
package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// Artifact is the build output handed from the build step to the deploy
// step: a database file created fresh on each run and uploaded at the end.
type Artifact struct {
	Path     string
	Size     int64
	Checksum string // hex-encoded sha256
}

// NewArtifact stats and checksums the file at path. It enforces the
// handoff invariant: the artifact must exist, be readable and be non-empty
// before the deploy step may begin.
func NewArtifact(path string) (*Artifact, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrArtifactMissing, path)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrArtifactMissing, path)
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrArtifactEmpty, path)
	}

	sum, err := checksumFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrArtifactUnreadable, path, err)
	}

	return &Artifact{
		Path:     path,
		Size:     info.Size(),
		Checksum: sum,
	}, nil
}

// Verify re-checks the handoff invariant against the filesystem.
func (a *Artifact) Verify() error {
	info, err := os.Stat(a.Path)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrArtifactMissing, a.Path)
	}
	if info.Size() == 0 {
		return fmt.Errorf("%w: %s", ErrArtifactEmpty, a.Path)
	}
	return nil
}

func checksumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
