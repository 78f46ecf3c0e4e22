// Package integrity pins the host image the descriptor table was written
// against. Patching a different build would splice code at anchors that no
// longer mean the same thing, so a hash mismatch is recorded as a tamper
// event and patching is refused.
package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// TamperLogDir is the directory where tamper events are written.
// Override for testing.
var TamperLogDir = filepath.Join(os.TempDir(), "hostpatch")

var ErrInvalidHash = errors.New("integrity: invalid sha256 digest")

// MismatchError reports a host image that is not the pinned build.
type MismatchError struct {
	Image    string
	Expected string
	Actual   string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("integrity: host image %s checksum mismatch (expected %s, got %s)", e.Image, e.Expected, e.Actual)
}

// TamperEvent records a host image integrity violation.
type TamperEvent struct {
	Timestamp    string `json:"timestamp"`
	Image        string `json:"image"`
	ExpectedHash string `json:"expected_hash"`
	ActualHash   string `json:"actual_hash"`
	Hostname     string `json:"hostname"`
	Type         string `json:"type"`
}

// ParseHash normalizes a pinned digest: an optional "sha256:" prefix is
// dropped and hex is lowercased.
func ParseHash(s string) (string, error) {
	h := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "sha256:")))
	if len(h) != 64 || !isHex(h) {
		return "", fmt.Errorf("%w: %q", ErrInvalidHash, s)
	}
	return h, nil
}

// HashBytes returns the hex SHA-256 digest of data.
func HashBytes(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Check compares data against expected. An empty expected hash falls back
// to a checksum file next to the image (<image>.sha256); when neither exists
// the check is skipped and ok is false. On mismatch a tamper event is
// written before the *MismatchError is returned.
func Check(image string, data []byte, expected string) (ok bool, err error) {
	if expected == "" && image != "" {
		expected = loadChecksumFile(image + ".sha256")
	}
	if expected == "" {
		return false, nil
	}
	want, err := ParseHash(expected)
	if err != nil {
		return false, err
	}

	actual := HashBytes(data)
	if actual == want {
		return true, nil
	}

	event := TamperEvent{
		Timestamp:    time.Now().UTC().Format("2006-01-02T15:04:05.000Z"),
		Image:        image,
		ExpectedHash: want,
		ActualHash:   actual,
		Type:         "host_image_tamper",
	}
	event.Hostname, _ = os.Hostname()
	writeTamperEvent(event)

	return false, &MismatchError{Image: image, Expected: want, Actual: actual}
}

// HashSelf returns the SHA-256 hex digest of the running binary.
func HashSelf() (string, error) {
	exePath, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("integrity: cannot resolve executable path: %w", err)
	}
	return HashFile(exePath)
}

// HashFile returns the SHA-256 hex digest of the file at path.
func HashFile(path string) (string, error) {
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

// loadChecksumFile reads the expected hash from a checksum file.
// Returns empty string if the file is missing or does not hold a digest.
func loadChecksumFile(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	// sha256sum output: "<hex>  <name>"
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return ""
	}
	hash, err := ParseHash(fields[0])
	if err != nil {
		return ""
	}
	return hash
}

func isHex(s string) bool {
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}

// writeTamperEvent appends a tamper event to the tamper log and prints it
// to stderr for the service journal.
func writeTamperEvent(event TamperEvent) {
	line, err := json.Marshal(event)
	if err != nil {
		return
	}

	logPath := filepath.Join(TamperLogDir, "tamper.jsonl")
	if err := os.MkdirAll(TamperLogDir, 0700); err == nil {
		if f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600); err == nil {
			f.Write(append(line, '\n'))
			f.Sync()
			f.Close()
		}
	}

	fmt.Fprintf(os.Stderr, "TAMPER ALERT: %s\n", string(line))
}
