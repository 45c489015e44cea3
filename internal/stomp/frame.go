// Package stomp carries STOMP 1.2 frames one per WebSocket message, which is
// how Spring's simple broker speaks over its raw /websocket endpoint. Framing
// itself is go-stomp's; this package adds the frames the console and the mock
// broker exchange.
package stomp

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/go-stomp/stomp/v3/frame"
)

const (
	CmdConnect     = "CONNECT"
	CmdStomp       = "STOMP"
	CmdConnected   = "CONNECTED"
	CmdSend        = "SEND"
	CmdSubscribe   = "SUBSCRIBE"
	CmdUnsubscribe = "UNSUBSCRIBE"
	CmdDisconnect  = "DISCONNECT"
	CmdMessage     = "MESSAGE"
	CmdReceipt     = "RECEIPT"
	CmdError       = "ERROR"
)

const (
	HdrAcceptVersion = "accept-version"
	HdrVersion       = "version"
	HdrHost          = "host"
	HdrHeartBeat     = "heart-beat"
	HdrAuthorization = "Authorization"
	HdrDestination   = "destination"
	HdrID            = "id"
	HdrSubscription  = "subscription"
	HdrMessageID     = "message-id"
	HdrReceipt       = "receipt"
	HdrReceiptID     = "receipt-id"
	HdrMessage       = "message"
	HdrContentType   = "content-type"
	HdrContentLength = "content-length"
)

// ErrTruncated means a WebSocket message ended inside a frame.
var ErrTruncated = errors.New("stomp: truncated frame")

// Frame is go-stomp's frame. A repeated header resolves to its first value.
type Frame = frame.Frame

// New builds a frame from alternating key, value pairs.
func New(command string, kv ...string) *Frame {
	return frame.New(command, kv...)
}

// Encode renders f in wire format, adding content-length when f has a body
// and none was set.
func Encode(f *Frame) []byte {
	if len(f.Body) > 0 {
		if _, ok := f.Header.Contains(HdrContentLength); !ok {
			f.Header.Set(HdrContentLength, strconv.Itoa(len(f.Body)))
		}
	}
	var buf bytes.Buffer
	// A bytes.Buffer never fails a write.
	_ = frame.NewWriter(&buf).Write(f)
	return buf.Bytes()
}

// Decode parses the frame in one WebSocket message. Leading EOLs are
// heart-beats; a message holding nothing else yields (nil, nil).
func Decode(data []byte) (*Frame, error) {
	data = bytes.TrimLeft(data, "\r\n")
	if len(data) == 0 {
		return nil, nil
	}
	f, err := frame.NewReader(bytes.NewReader(data)).Read()
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return nil, ErrTruncated
	case err != nil:
		return nil, fmt.Errorf("stomp: %w", err)
	case f == nil:
		return nil, ErrTruncated
	}
	return f, nil
}
