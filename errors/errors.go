package errors

import "fmt"

var (
	ErrUnknownReceiver  = fmt.Errorf("receiver does not exist")
	ErrUnknownUser      = fmt.Errorf("user does not exist")
	ErrSessionNotOpen   = fmt.Errorf("session is not open")
	ErrConnectionClosed = fmt.Errorf("connection closed")
	ErrSendBufferFull   = fmt.Errorf("connection send buffer full")
	ErrEmptyWords       = fmt.Errorf("no words have been found")
)
