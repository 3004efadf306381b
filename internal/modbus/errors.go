package modbus

import "errors"

var (
	ErrTransportOpen = errors.New("modbus transport open failed")
	ErrRegisterRead  = errors.New("modbus register read failed")
	ErrShortResponse = errors.New("modbus short response")
	ErrNonFinite     = errors.New("register value is not finite")
)
