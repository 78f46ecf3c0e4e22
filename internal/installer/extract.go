package installer

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
)

var ErrUnsafePath = errors.New("installer: entry escapes the target directory")

// Layout is where extracted entries land.
type Layout struct {
	// AppData receives ABSOLUTE entries.
	AppData string
	// TargetFile is the host's managed assembly, replaced by GAME entries.
	TargetFile string
	Markup     Markup
}

// EntryResult records what happened to one archive entry.
type EntryResult struct {
	Name       string     `json:"name"`
	Resolution Resolution `json:"-"`
	Path       string     `json:"path,omitempty"`
	Skipped    string     `json:"skipped,omitempty"`
	Size       int64      `json:"size"`
}

// Extract streams a gzip-compressed tar archive into the layout. Entries
// whose name contains "example" are skipped, as are entries the markup
// cannot place. A failed file write is recorded and extraction continues;
// a corrupt archive or an unsafe path stops it.
func Extract(r io.Reader, l Layout, progress func(EntryResult)) ([]EntryResult, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer gz.Close()

	var out []EntryResult
	var errs []error
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if errors.Is(err, tar.ErrInsecurePath) {
			return out, fmt.Errorf("%w: %s", ErrUnsafePath, hdr.Name)
		}
		if err != nil {
			return out, fmt.Errorf("read archive: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		name := strings.TrimPrefix(filepath.ToSlash(hdr.Name), "./")
		res := EntryResult{Name: name, Size: hdr.Size}
		switch {
		case strings.Contains(strings.ToLower(name), "example"):
			res.Skipped = "example"
		default:
			res.Resolution = l.Markup.Resolve(name)
			switch res.Resolution {
			case Absolute:
				res.Path, err = within(l.AppData, name)
				if err != nil {
					return out, err
				}
			case Game:
				res.Path = l.TargetFile
			default:
				res.Skipped = "unresolved"
			}
		}

		if res.Path != "" {
			if err := writeFile(res.Path, tr); err != nil {
				errs = append(errs, fmt.Errorf("extract %s: %w", name, err))
				res.Skipped = "write failed"
			}
		}
		out = append(out, res)
		if progress != nil {
			progress(res)
		}
	}
	return out, errors.Join(errs...)
}

// within joins name under root and rejects results outside root.
func within(root, name string) (string, error) {
	p := filepath.Join(root, filepath.FromSlash(name))
	rel, err := filepath.Rel(root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(name) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	return p, nil
}

func writeFile(path string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
