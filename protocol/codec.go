package protocol

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// EncodeSnapshot serializes a snapshot for a binary frame
func EncodeSnapshot(s *Snapshot) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("protocol: encode nil snapshot")
	}
	return msgpack.Marshal(s)
}

// DecodeSnapshot parses a binary snapshot frame
func DecodeSnapshot(b []byte) (*Snapshot, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("protocol: empty snapshot frame")
	}
	var s Snapshot
	if err := msgpack.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("protocol: decode snapshot: %w", err)
	}
	return &s, nil
}

// Encode packs the input record into its 2-byte frame
func (in Input) Encode() []byte {
	var flags byte
	set := func(on bool, f byte) {
		if on {
			flags |= f
		}
	}
	set(in.Left, flagLeft)
	set(in.Right, flagRight)
	set(in.Forward, flagForward)
	set(in.Fire, flagFire)
	set(in.Jump, flagJump)
	set(in.Restart, flagRestart)
	set(in.Exit, flagExit)
	return []byte{MsgInput, flags}
}

// DecodeInput unpacks a 2-byte input frame. ok is false for any other shape.
func DecodeInput(msg []byte) (in Input, ok bool) {
	if len(msg) != InputSize || msg[0] != MsgInput {
		return Input{}, false
	}
	flags := msg[1]
	return Input{
		Left:    flags&flagLeft != 0,
		Right:   flags&flagRight != 0,
		Forward: flags&flagForward != 0,
		Fire:    flags&flagFire != 0,
		Jump:    flags&flagJump != 0,
		Restart: flags&flagRestart != 0,
		Exit:    flags&flagExit != 0,
	}, true
}
