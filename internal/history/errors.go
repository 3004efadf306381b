package history

import "errors"

var (
	ErrDisabled         = errors.New("influxdb history is disabled")
	ErrConnectionFailed = errors.New("influxdb connection failed")
)
