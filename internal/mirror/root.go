package mirror

import (
	"fmt"

	"github.com/openmined/mirrorbox/internal/state"
	"github.com/openmined/mirrorbox/internal/transform"
	"github.com/openmined/mirrorbox/internal/utils"
)

const (
	SourceName = "source"
	TargetName = "target"
)

// Root is one side of the mirror as seen by its reconciler: files appear
// under Path and are mirrored to the same relative location under Opposite.
type Root struct {
	Name      string
	Path      string
	Opposite  string
	State     *state.PathState
	Direction transform.Direction
	Transform transform.Func
}

// MirrorPath maps a path under the root to its counterpart under the
// opposite root.
func (r *Root) MirrorPath(from string) (string, error) {
	to, err := utils.Rebase(from, r.Path, r.Opposite)
	if err != nil {
		return "", fmt.Errorf("mirror path for %s: %w", from, err)
	}
	return to, nil
}

func (r *Root) String() string {
	return r.Name
}

// NewRoots builds the two mirror-image roots. The source side encodes on the
// way out, the target side decodes.
func NewRoots(sourceDir, targetDir string, store *state.Store, codec transform.Transformer) (*Root, *Root) {
	source := &Root{
		Name:      SourceName,
		Path:      sourceDir,
		Opposite:  targetDir,
		State:     store.FromSource,
		Direction: transform.Forward,
		Transform: codec.Func(transform.Forward),
	}
	target := &Root{
		Name:      TargetName,
		Path:      targetDir,
		Opposite:  sourceDir,
		State:     store.FromTarget,
		Direction: transform.Backward,
		Transform: codec.Func(transform.Backward),
	}
	return source, target
}
