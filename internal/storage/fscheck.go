package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// remoteFilesystems cannot be trusted with sqlite or flock locking.
var remoteFilesystems = map[string]struct{}{
	"afpfs":  {},
	"cifs":   {},
	"nfs":    {},
	"smb2":   {},
	"smbfs":  {},
	"webdav": {},
}

type fsDetector func(path string) (string, error)

// RequireLocalFilesystem fails when path (or its closest existing parent) sits on a
// network mount. purpose names the config field in the error, e.g. "audit.path".
func RequireLocalFilesystem(path, purpose string) error {
	return requireLocal(path, purpose, detectFilesystemType)
}

func requireLocal(path, purpose string, detect fsDetector) error {
	if path == "" {
		return fmt.Errorf("%s is empty", purpose)
	}

	existing, err := closestExisting(path)
	if err != nil {
		return fmt.Errorf("resolve %s %q: %w", purpose, path, err)
	}

	fsType, err := detect(existing)
	if err != nil {
		return fmt.Errorf("detect filesystem for %q: %w", existing, err)
	}

	if isRemote(fsType) {
		return fmt.Errorf("%s %q is on network filesystem %q; file locking is unreliable there, use a local path", purpose, path, fsType)
	}
	return nil
}

// closestExisting walks up from path until it finds something that exists.
func closestExisting(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	for p := abs; ; {
		_, err := os.Stat(p)
		switch {
		case err == nil:
			return p, nil
		case !errors.Is(err, os.ErrNotExist):
			return "", err
		}
		parent := filepath.Dir(p)
		if parent == p {
			return "", fmt.Errorf("no existing parent for %q", abs)
		}
		p = parent
	}
}

func isRemote(fsType string) bool {
	_, ok := remoteFilesystems[strings.ToLower(strings.TrimSpace(fsType))]
	return ok
}
