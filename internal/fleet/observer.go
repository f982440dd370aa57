package fleet

import (
	"context"

	"argus-master/internal/camera"
	"argus-master/pkg/models"
)

// Observer is told about fleet events. Implementations must not block for
// long; they run on the goroutine that issued the fleet command.
type Observer interface {
	OnDeviceCaptured(ctx context.Context, d *camera.Device, res CaptureResult)
}

// ObserverFunc adapts a plain function to Observer.
type ObserverFunc func(ctx context.Context, d *camera.Device, res CaptureResult)

func (f ObserverFunc) OnDeviceCaptured(ctx context.Context, d *camera.Device, res CaptureResult) {
	f(ctx, d, res)
}

// Registry is the source of camera descriptors.
// *client.RegistryClient satisfies it.
type Registry interface {
	ListCameras(ctx context.Context) []models.CameraDescriptor
}
