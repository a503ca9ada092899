package gateway

import (
	"io"

	"go.bug.st/serial"
)

// Port is the readable half of an open serial connection. Close must
// be safe to call concurrently with a blocked Read.
type Port interface {
	io.ReadCloser
}

// Opener abstracts serial port access so the adapter can be tested
// without hardware.
type Opener interface {
	Open(name string, baudRate int) (Port, error)
	List() ([]string, error)
}

// SerialOpener opens real serial ports.
type SerialOpener struct{}

func (SerialOpener) Open(name string, baudRate int) (Port, error) {
	return serial.Open(name, &serial.Mode{BaudRate: baudRate})
}

func (SerialOpener) List() ([]string, error) {
	return serial.GetPortsList()
}
