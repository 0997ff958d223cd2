package usbpro

import "errors"

var (
	// ErrInactive is returned by widget operations after Stop.
	ErrInactive = errors.New("usbpro: widget is not active")
	// ErrNeedMoreData means the input does not hold a complete frame yet.
	ErrNeedMoreData = errors.New("usbpro: need more data")
	// ErrFrameTooLarge means a frame length is above MaxPayloadSize. The
	// stream is out of sync and the connection should be reset.
	ErrFrameTooLarge = errors.New("usbpro: frame too large")
	// ErrBadEndOfMessage means the byte after the payload was not EOM.
	ErrBadEndOfMessage = errors.New("usbpro: missing end of message")
	// ErrSendFailed is returned by the facade when the engine could not transmit.
	ErrSendFailed = errors.New("usbpro: send failed")
)
