package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

var image = []byte("version: \"10.2.2\"\nmethods: []\n")

func digest(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}

func withTamperDir(t *testing.T) string {
	t.Helper()
	old := TamperLogDir
	TamperLogDir = filepath.Join(t.TempDir(), "tamper")
	t.Cleanup(func() { TamperLogDir = old })
	return TamperLogDir
}

func TestCheckSkipsWhenNothingPinned(t *testing.T) {
	ok, err := Check("", image, "")
	if err != nil {
		t.Fatalf("expected nil error without a pin, got %v", err)
	}
	if ok {
		t.Error("unpinned check must not report verified")
	}
}

func TestCheckPassesWithCorrectHash(t *testing.T) {
	for _, pin := range []string{digest(image), "sha256:" + digest(image), strings.ToUpper(digest(image))} {
		ok, err := Check("game.yaml", image, pin)
		if err != nil {
			t.Fatalf("pin %q: %v", pin, err)
		}
		if !ok {
			t.Errorf("pin %q: expected verified", pin)
		}
	}
}

func TestCheckFailsWithWrongHash(t *testing.T) {
	dir := withTamperDir(t)
	wrong := strings.Repeat("a", 64)

	_, err := Check("game.yaml", image, wrong)
	var mm *MismatchError
	if !errors.As(err, &mm) {
		t.Fatalf("expected *MismatchError, got %v", err)
	}
	if mm.Expected != wrong || mm.Actual != digest(image) {
		t.Errorf("unexpected mismatch fields: %+v", mm)
	}

	data, err := os.ReadFile(filepath.Join(dir, "tamper.jsonl"))
	if err != nil {
		t.Fatalf("expected tamper log to exist: %v", err)
	}
	var event TamperEvent
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(data))), &event); err != nil {
		t.Fatalf("failed to parse tamper event: %v", err)
	}
	if event.Type != "host_image_tamper" {
		t.Errorf("expected type host_image_tamper, got %s", event.Type)
	}
	if event.Image != "game.yaml" {
		t.Errorf("expected image game.yaml, got %s", event.Image)
	}
	if event.Timestamp == "" {
		t.Error("expected timestamp to be populated")
	}
}

func TestTamperLogPermissions(t *testing.T) {
	dir := withTamperDir(t)
	Check("game.yaml", image, strings.Repeat("b", 64))

	dirInfo, err := os.Stat(dir)
	if err != nil {
		t.Fatal(err)
	}
	if dirInfo.Mode().Perm() != 0700 {
		t.Errorf("expected dir perm 0700, got %04o", dirInfo.Mode().Perm())
	}
	fileInfo, err := os.Stat(filepath.Join(dir, "tamper.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	if fileInfo.Mode().Perm() != 0600 {
		t.Errorf("expected file perm 0600, got %04o", fileInfo.Mode().Perm())
	}
}

func TestCheckRejectsMalformedPin(t *testing.T) {
	_, err := Check("game.yaml", image, "deadbeef")
	if !errors.Is(err, ErrInvalidHash) {
		t.Fatalf("expected ErrInvalidHash, got %v", err)
	}
}

func TestCheckUsesChecksumFile(t *testing.T) {
	withTamperDir(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "game.yaml")
	if err := os.WriteFile(path+".sha256", []byte(digest(image)+"  game.yaml\n"), 0600); err != nil {
		t.Fatal(err)
	}

	ok, err := Check(path, image, "")
	if err != nil || !ok {
		t.Fatalf("expected verified via checksum file, got ok=%v err=%v", ok, err)
	}

	_, err = Check(path, append(image, '#'), "")
	if err == nil || !strings.Contains(err.Error(), "checksum mismatch") {
		t.Errorf("expected checksum mismatch, got %v", err)
	}
}

func TestLoadChecksumFileInvalidContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "game.yaml.sha256")
	os.WriteFile(path, []byte("not-a-valid-hash\n"), 0600)
	if got := loadChecksumFile(path); got != "" {
		t.Errorf("expected empty string for invalid hash, got %s", got)
	}
}

func TestHashSelfReturns64CharHex(t *testing.T) {
	h, err := HashSelf()
	if err != nil {
		t.Fatal(err)
	}
	if len(h) != 64 {
		t.Fatalf("expected 64 char hex, got %d: %s", len(h), h)
	}
}

func TestHashFileNonExistent(t *testing.T) {
	if _, err := HashFile("/nonexistent/path/to/image"); err == nil {
		t.Fatal("expected error for nonexistent file")
	}
}

func TestIsHex(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"abcdef0123456789", true},
		{"ABCDEF0123456789", true},
		{"abcdefg", false},
		{"", true},
		{"xyz", false},
	}
	for _, tt := range tests {
		if got := isHex(tt.in); got != tt.want {
			t.Errorf("isHex(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
