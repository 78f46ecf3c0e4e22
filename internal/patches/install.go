package patches

import (
	"github.com/ppiankov/hostpatch/internal/host"
	"github.com/ppiankov/hostpatch/internal/patch"
)

// Install applies the table to img and binds the carrier natives on m. On
// error nothing is bound and m must not run.
func Install(e *patch.Engine, img *host.Image, m *host.Machine, env Env) (*patch.Report, error) {
	report, err := e.Apply(img, Table()...)
	if err != nil {
		return report, err
	}
	Bind(m, env)
	return report, nil
}
