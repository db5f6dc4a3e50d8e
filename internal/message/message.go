// Package message defines the wire-level tagged message exchanged between
// alertmesh peers, along with its JSON encoding.
package message

import "encoding/json"

// Kind identifies which protocol a Message belongs to.
type Kind string

const (
	KindAlert    Kind = "ALERT"
	KindDisaster Kind = "DISASTER"
	KindNational Kind = "NATIONAL"
	KindRequest  Kind = "REQUEST"
	KindReply    Kind = "REPLY"
	KindRelease  Kind = "RELEASE"
	KindPrepare  Kind = "PREPARE"
	KindCommit   Kind = "COMMIT"
	KindAbort    Kind = "ABORT"
	KindVoteYes  Kind = "VOTE_YES"
	KindVoteNo   Kind = "VOTE_NO"
	KindAck      Kind = "ACK"
	KindError    Kind = "ERROR"
)

// Message is the single wire envelope for every peer-to-peer exchange. It is
// modeled as a bag of optional fields on the wire (for compatibility with
// legacy payloads per spec §9); which of the optional fields a sender sets
// depends on its Kind.
type Message struct {
	Kind          Kind     `json:"kind"`
	SenderPort    int      `json:"sender_port"`
	SenderRegion  string   `json:"sender_region,omitempty"`
	LamportTime   int64    `json:"lamport_time"`
	Content       string   `json:"content,omitempty"`
	TransactionID string   `json:"transaction_id,omitempty"`
	TargetRegions []string `json:"target_regions,omitempty"`
	Writes        map[string]string `json:"writes,omitempty"`
	DisasterType  string   `json:"disaster_type,omitempty"`
	Severity      string   `json:"severity,omitempty"`
	Tips          []string `json:"tips,omitempty"`
}

// Encode serializes the message as one JSON object, the unit of framing for
// a single transport connection.
func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// Decode parses one JSON object into a Message. Unknown fields are ignored,
// which is what lets a legacy optional-bag payload round-trip through the
// current field set.
func Decode(data []byte) (Message, error) {
	var m Message
	err := json.Unmarshal(data, &m)
	return m, err
}

// ExpectsResponse reports whether this Kind's sender blocks for a reply on
// the same connection (PREPARE/COMMIT/ABORT get VOTE_*/ACK; everything else
// is fire-and-forget).
func (k Kind) ExpectsResponse() bool {
	switch k {
	case KindPrepare, KindCommit, KindAbort:
		return true
	default:
		return false
	}
}
