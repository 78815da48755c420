package loader

import (
	"fmt"

	engerr "github.com/civiclens/spendengine/internal/errors"
)

// ChunkState is the load state of one chunk (a year in yearly mode, a month
// in monthly mode).
type ChunkState int

const (
	Unloaded ChunkState = iota
	Loading
	Loaded
)

func (s ChunkState) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	default:
		return fmt.Sprintf("ChunkState(%d)", int(s))
	}
}

// transition enforces the only legal moves: unloaded -> loading (begin),
// loading -> loaded (complete), loading -> unloaded (fail/retry-eligible).
func transition(from, to ChunkState) error {
	legal := (from == Unloaded && to == Loading) ||
		(from == Loading && to == Loaded) ||
		(from == Loading && to == Unloaded)
	if !legal {
		return engerr.New(engerr.ErrCategoryChunk, engerr.CodeIllegalTransit,
			fmt.Sprintf("illegal chunk state transition %s -> %s", from, to))
	}
	return nil
}
