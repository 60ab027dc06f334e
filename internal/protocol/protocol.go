package protocol

import "encoding/json"

// Version is the live feed protocol version.
const Version = "1.0"

// Feed message types.
const (
	TypeSubscribe         = "SUBSCRIBE"
	TypeBacklog           = "BACKLOG"
	TypeConcoctionCreated = "CONCOCTION_CREATED"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
