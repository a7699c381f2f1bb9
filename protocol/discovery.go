package protocol

import (
	"bytes"
	"strings"
)

// Socket configuration
const (
	GroupAddress  = "228.4.2.8"
	DiscoveryPort = 4280
	GamePort      = 4281
	BufferSize    = 255
	GamePath      = "/ws"
)

// Control messages
const (
	QueryToken    = "HELO_SERVER?"
	ConnectPrefix = "BEAM_ME_UP "
	DefaultName   = "DEFAULT SERVER"
)

// DatagramKind classifies a discovery datagram
type DatagramKind int

const (
	KindName    DatagramKind = iota // a server advertising its name
	KindQuery                       // "who is listening?"
	KindConnect                     // directed connect-request
)

// Datagram returns msg as a discovery payload, cut to BufferSize
func Datagram(msg string) []byte {
	if len(msg) > BufferSize {
		msg = msg[:BufferSize]
	}
	return []byte(msg)
}

// ConnectRequest builds a connect-request naming the server at ip
func ConnectRequest(ip string) []byte {
	return Datagram(ConnectPrefix + ip)
}

// ParseDatagram classifies a received buffer. Trailing NUL padding and
// surrounding whitespace are ignored. For KindConnect the payload is the
// embedded address; for KindName it is the server name.
func ParseDatagram(buf []byte) (DatagramKind, string) {
	buf = bytes.TrimRight(buf, "\x00")
	raw := string(buf)
	switch {
	case strings.HasPrefix(raw, QueryToken):
		return KindQuery, ""
	case strings.HasPrefix(raw, ConnectPrefix):
		return KindConnect, strings.TrimSpace(raw[len(ConnectPrefix):])
	}
	return KindName, strings.TrimSpace(raw)
}

// IsReserved reports whether s starts with a control token
func IsReserved(s string) bool {
	return strings.HasPrefix(s, QueryToken) || strings.HasPrefix(s, ConnectPrefix)
}
