package reactor

import "errors"

var (
	errCapacity      = errors.New("reactor: socket table exhausted (65536 live sockets)")
	errUnknownSocket = errors.New("reactor: socket id is not live")
)
