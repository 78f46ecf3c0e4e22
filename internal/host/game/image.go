// Package game is the simulated host application: an image of game methods,
// the world state they act on, and the native routines behind them.
package game

import (
	_ "embed"

	"github.com/ppiankov/hostpatch/internal/host"
)

//go:embed image.yaml
var imageYAML []byte

// ImageYAML returns the embedded host image source.
func ImageYAML() []byte { return append([]byte(nil), imageYAML...) }

// LoadImage parses a fresh copy of the embedded host image.
func LoadImage() (*host.Image, error) {
	return host.ParseImage(imageYAML)
}
