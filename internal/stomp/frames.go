package stomp

import (
	"strings"

	"github.com/tidwall/gjson"
)

// Version is the only protocol version the console negotiates.
const Version = "1.2"

// Connect builds the CONNECT frame. An empty token omits Authorization.
func Connect(host, token string) *Frame {
	f := New(CmdConnect,
		HdrAcceptVersion, Version,
		HdrHost, host,
		HdrHeartBeat, "0,0",
	)
	if token != "" {
		f.Header.Set(HdrAuthorization, "Bearer "+token)
	}
	return f
}

func Connected(heartBeat string) *Frame {
	return New(CmdConnected, HdrVersion, Version, HdrHeartBeat, heartBeat)
}

func Subscribe(id, destination string) *Frame {
	return New(CmdSubscribe, HdrID, id, HdrDestination, destination)
}

func Disconnect(receipt string) *Frame {
	if receipt == "" {
		return New(CmdDisconnect)
	}
	return New(CmdDisconnect, HdrReceipt, receipt)
}

// Message builds a MESSAGE frame with a JSON body.
func Message(destination, subscription, messageID string, body []byte) *Frame {
	f := New(CmdMessage,
		HdrDestination, destination,
		HdrSubscription, subscription,
		HdrMessageID, messageID,
		HdrContentType, "application/json",
	)
	f.Body = body
	return f
}

func Error(message string, body []byte) *Frame {
	f := New(CmdError, HdrMessage, message)
	f.Body = body
	return f
}

// Bearer returns the token of an "Authorization: Bearer ..." header.
func Bearer(f *Frame) string {
	v := f.Header.Get(HdrAuthorization)
	if v == "" {
		v = f.Header.Get(strings.ToLower(HdrAuthorization))
	}
	token, ok := strings.CutPrefix(v, "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

// ErrorText describes an ERROR frame: the message header, else the error or
// message field of a JSON body, else the raw body.
func ErrorText(f *Frame) string {
	if m := f.Header.Get(HdrMessage); m != "" {
		return m
	}
	body := strings.TrimSpace(string(f.Body))
	if gjson.Valid(body) {
		for _, path := range []string{"error", "message"} {
			if r := gjson.Get(body, path); r.Exists() && r.String() != "" {
				return r.String()
			}
		}
	}
	if body == "" {
		return "unknown broker error"
	}
	return body
}
