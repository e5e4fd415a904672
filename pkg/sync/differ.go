package sync

import (
	"crypto/sha1"
	"encoding/hex"
	"io"
	"os"
	"strings"

	"gitlab.com/tozd/go/errors"
)

// PageUnchanged reports whether the remote text already matches the
// local text. Only a byte-identical match counts: any remote edit,
// whitespace included, forces a re-upload.
func PageUnchanged(remoteText, localText string) bool {
	return remoteText == localText
}

// FileFingerprint streams the file through SHA-1 and returns the
// lowercase hex digest. The remote API reports the same digest for
// existing files, so equality means byte-equal content.
func FileFingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.Errorf("opening %q: %w", path, err)
	}
	defer f.Close()

	h := sha1.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", errors.Errorf("hashing %q: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// FileUnchanged compares content digests; filename metadata plays no
// part in the comparison.
func FileUnchanged(remoteFingerprint, localFingerprint string) bool {
	if remoteFingerprint == "" || localFingerprint == "" {
		return false
	}
	return strings.EqualFold(remoteFingerprint, localFingerprint)
}
