package protocol

import (
	"encoding/json"
	"fmt"
)

type envelope struct {
	Cmd string `json:"cmd"`
}

// EncodeClientMessages serializes client messages into a single wire
// frame. The server accepts multiple commands per frame.
func EncodeClientMessages(msgs []ClientMessage) ([]byte, error) {
	b, err := json.Marshal(msgs)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize client messages: %v", err)
	}
	return b, nil
}

// DecodeServerMessages parses one wire frame into typed server
// messages. Commands this client does not understand are returned as
// Unknown so that callers can skip them.
func DecodeServerMessages(data []byte) ([]ServerMessage, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("failed to deserialize server frame: %v", err)
	}

	msgs := make([]ServerMessage, 0, len(raws))
	for _, raw := range raws {
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, fmt.Errorf("failed to deserialize command envelope: %v", err)
		}

		var msg ServerMessage
		switch env.Cmd {
		case CmdRoomInfo:
			msg = &RoomInfo{}
		case CmdDataPackage:
			msg = &DataPackage{}
		case CmdConnected:
			msg = &Connected{}
		case CmdConnectionRefused:
			msg = &ConnectionRefused{}
		case CmdReceivedItems:
			msg = &ReceivedItems{}
		case CmdPrintJSON:
			msg = &PrintJSON{}
		case CmdBounced:
			msg = &Bounced{}
		default:
			msgs = append(msgs, &Unknown{Cmd: env.Cmd, Raw: raw})
			continue
		}

		if err := json.Unmarshal(raw, msg); err != nil {
			return nil, fmt.Errorf("failed to deserialize %s message: %v", env.Cmd, err)
		}
		msgs = append(msgs, msg)
	}

	return msgs, nil
}
