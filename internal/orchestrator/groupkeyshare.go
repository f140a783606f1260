package orchestrator

import (
	"encoding/json"
	"fmt"
)

// groupKeyShare is the payload encrypted to each recipient device when
// distributing a Megolm outbound session's inbound counterpart (spec
// §4.7's "export its inbound counterpart at index 0"). Its shape is an
// Orchestrator-internal detail, not a protocol wire format.
type groupKeyShare struct {
	RoomID     string              `json:"room_id"`
	Index      uint32              `json:"index"`
	Parts      [4][32]byte         `json:"parts"`
	SigningPub []byte              `json:"signing_pub"`
}

func (g groupKeyShare) encode() ([]byte, error) {
	out, err := json.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: encode group key share: %w", err)
	}
	return out, nil
}

func decodeGroupKeyShare(data []byte) (groupKeyShare, error) {
	var g groupKeyShare
	if err := json.Unmarshal(data, &g); err != nil {
		return groupKeyShare{}, fmt.Errorf("orchestrator: decode group key share: %w", err)
	}
	return g, nil
}
