package loader

import "testing"

func TestTransitionLegality(t *testing.T) {
	legal := []struct{ from, to ChunkState }{
		{Unloaded, Loading},
		{Loading, Loaded},
		{Loading, Unloaded},
	}
	for _, tt := range legal {
		if err := transition(tt.from, tt.to); err != nil {
			t.Errorf("%s -> %s should be legal: %v", tt.from, tt.to, err)
		}
	}

	illegal := []struct{ from, to ChunkState }{
		{Unloaded, Loaded},  // cannot skip loading
		{Loaded, Loading},   // loaded chunks are never refetched
		{Loaded, Unloaded},  // records are never evicted
		{Loading, Loading},  // one in-flight fetch per chunk
		{Unloaded, Unloaded},
	}
	for _, tt := range illegal {
		if err := transition(tt.from, tt.to); err == nil {
			t.Errorf("%s -> %s should be rejected", tt.from, tt.to)
		}
	}
}
