package installer

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Resolution tells where an archive entry is extracted.
type Resolution int

const (
	Undefined Resolution = iota
	// Absolute entries go under the app-data directory.
	Absolute
	// Game entries replace the host's managed assembly.
	Game
)

func (r Resolution) String() string {
	switch r {
	case Absolute:
		return "ABSOLUTE"
	case Game:
		return "GAME"
	}
	return "UNDEFINED"
}

func parseResolution(s string) Resolution {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ABSOLUTE":
		return Absolute
	case "GAME":
		return Game
	}
	return Undefined
}

//go:embed markup.yaml
var markupYAML []byte

// Markup maps entry names and top-level folders to resolutions.
type Markup map[string]Resolution

// DefaultMarkup returns the embedded markup.
func DefaultMarkup() Markup {
	m, err := ParseMarkup(markupYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded markup: %v", err))
	}
	return m
}

// ParseMarkup decodes a name: RESOLUTION mapping. Unknown resolutions map to
// Undefined, so their entries are reported as unresolved at extraction.
func ParseMarkup(data []byte) (Markup, error) {
	var raw map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse markup: %w", err)
	}
	m := make(Markup, len(raw))
	for k, v := range raw {
		m[k] = parseResolution(v)
	}
	return m, nil
}

// Resolve looks up an archive entry name ("/"-separated). Entries inside a
// folder match folder keys by their first path element; top-level entries
// match file keys.
func (m Markup) Resolve(name string) Resolution {
	first, _, inFolder := strings.Cut(name, "/")
	for key, r := range m {
		folder, isFolder := strings.CutSuffix(key, "/")
		switch {
		case inFolder && isFolder && strings.EqualFold(folder, first):
			return r
		case !inFolder && !isFolder && strings.EqualFold(key, name):
			return r
		}
	}
	return Undefined
}
