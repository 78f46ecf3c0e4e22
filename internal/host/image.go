// Package host models the instrumented application: an Image of method
// bodies loaded from YAML and a Machine that executes them.
package host

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/hostpatch/internal/il"
)

var (
	ErrMethodNotFound = errors.New("host: method not found")
	ErrSealed         = errors.New("host: image is executing, methods can no longer be replaced")
)

// MethodSpec is one method as stored in an image file.
type MethodSpec struct {
	ID      string   `yaml:"id"`
	Params  int      `yaml:"params"`
	Returns bool     `yaml:"returns,omitempty"`
	Locals  []string `yaml:"locals,omitempty"`
	Code    string   `yaml:"code"`
}

type imageFile struct {
	Version string       `yaml:"version"`
	Methods []MethodSpec `yaml:"methods"`
}

// Image is the set of host method bodies. It implements the read/replace
// boundary the patch engine works through. Once a Machine starts executing
// the image it is sealed and ReplaceMethod fails.
type Image struct {
	mu      sync.RWMutex
	version string
	order   []il.MethodID
	methods map[il.MethodID]*il.Body
	sealed  bool
}

// ParseImage decodes an image from YAML.
func ParseImage(data []byte) (*Image, error) {
	var f imageFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("host: parse image: %w", err)
	}

	img := &Image{version: f.Version, methods: make(map[il.MethodID]*il.Body, len(f.Methods))}
	for _, spec := range f.Methods {
		if spec.ID == "" {
			return nil, fmt.Errorf("host: method without id")
		}
		id := il.MethodID(spec.ID)
		if _, dup := img.methods[id]; dup {
			return nil, fmt.Errorf("host: duplicate method %s", id)
		}
		code, err := il.Parse(spec.Code)
		if err != nil {
			return nil, fmt.Errorf("host: method %s: %w", id, err)
		}
		b := &il.Body{Method: id, Params: spec.Params, Returns: spec.Returns, Code: code}
		for _, typ := range spec.Locals {
			b.DeclareLocal(typ)
		}
		if _, err := il.Analyze(b); err != nil {
			return nil, fmt.Errorf("host: method %s does not verify: %w", id, err)
		}
		img.methods[id] = b
		img.order = append(img.order, id)
	}
	return img, nil
}

// LoadImage reads and parses the image file at path.
func LoadImage(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("host: read image: %w", err)
	}
	return ParseImage(data)
}

// Marshal encodes the image, including any replaced bodies, back to YAML.
func (img *Image) Marshal() ([]byte, error) {
	img.mu.RLock()
	defer img.mu.RUnlock()

	f := imageFile{Version: img.version}
	for _, id := range img.order {
		b := img.methods[id]
		spec := MethodSpec{ID: string(id), Params: b.Params, Returns: b.Returns, Code: il.Format(b.Code)}
		for _, l := range b.Locals {
			spec.Locals = append(spec.Locals, l.Type)
		}
		f.Methods = append(f.Methods, spec)
	}
	return yaml.Marshal(f)
}

// Version returns the host build the image describes.
func (img *Image) Version() string { return img.version }

// Methods lists method ids in file order.
func (img *Image) Methods() []il.MethodID {
	img.mu.RLock()
	defer img.mu.RUnlock()
	return append([]il.MethodID(nil), img.order...)
}

// ReadMethod returns a copy of the method's body.
func (img *Image) ReadMethod(id il.MethodID) (*il.Body, error) {
	img.mu.RLock()
	defer img.mu.RUnlock()
	b, ok := img.methods[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMethodNotFound, id)
	}
	return b.Clone(), nil
}

// ReplaceMethod swaps in a new body for an existing method.
func (img *Image) ReplaceMethod(body *il.Body) error {
	img.mu.Lock()
	defer img.mu.Unlock()
	if img.sealed {
		return ErrSealed
	}
	if _, ok := img.methods[body.Method]; !ok {
		return fmt.Errorf("%w: %s", ErrMethodNotFound, body.Method)
	}
	img.methods[body.Method] = body.Clone()
	return nil
}

// Seal forbids further replacement.
func (img *Image) Seal() {
	img.mu.Lock()
	img.sealed = true
	img.mu.Unlock()
}

// Sealed reports whether Seal was called.
func (img *Image) Sealed() bool {
	img.mu.RLock()
	defer img.mu.RUnlock()
	return img.sealed
}

// body returns the live body. Callers must not modify it.
func (img *Image) body(id il.MethodID) (*il.Body, bool) {
	img.mu.RLock()
	defer img.mu.RUnlock()
	b, ok := img.methods[id]
	return b, ok
}
