//go:build !gst

package camera

import (
	"context"
	"errors"

	"daltonize-go/internal/types"
)

func Stream(_ context.Context, _ Settings) (<-chan types.Frame, error) {
	return nil, errors.New("camera capture not enabled; build with -tags gst")
}
