package messaging

import "errors"

var (
	ErrConnectionFailed = errors.New("mqtt connection failed")
	ErrPublishFailed    = errors.New("mqtt publish failed")
	ErrNotConnected     = errors.New("mqtt client not connected")
)
