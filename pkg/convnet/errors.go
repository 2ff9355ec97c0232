package convnet

import "errors"

var (
	// ErrLayerNotFound is returned when a requested layer name does not
	// exist on the model.
	ErrLayerNotFound = errors.New("convnet: layer not found")

	// ErrShapeMismatch is returned when an input tensor does not match
	// the shape a layer expects.
	ErrShapeMismatch = errors.New("convnet: input shape mismatch")

	// ErrClassIndex is returned when a class index is outside the range
	// of the model's output vector.
	ErrClassIndex = errors.New("convnet: class index out of range")
)
