//go:build nompv

package playback

import (
	"fmt"

	"go.uber.org/zap"
)

// MPVOutput is unavailable in builds tagged nompv
type MPVOutput struct {
	MediaOutput
}

// NewMPVOutput always fails; rebuild without the nompv tag for libmpv playback
func NewMPVOutput(logger *zap.Logger) (*MPVOutput, error) {
	return nil, fmt.Errorf("mpv support not compiled in (built with -tags nompv)")
}
