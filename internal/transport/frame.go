package transport

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// maxFrameSize caps a single frame's payload. Frames carry task parameters,
// not task data, so anything larger indicates a corrupt stream.
const maxFrameSize = 16 << 20

// taskRef is a task serialized by kind for the trip across the process
// boundary.
type taskRef struct {
	Kind    string `msgpack:"kind"`
	Payload []byte `msgpack:"payload"`
}

// taskFrame is one coordinator-to-worker message. The shutdown sentinel is
// a frame whose Kind field says so; it is recognized structurally since
// nothing about object identity survives serialization.
type taskFrame struct {
	Kind string   `msgpack:"kind"`
	ID   uint64   `msgpack:"id,omitempty"`
	Task *taskRef `msgpack:"task,omitempty"`
}

// resultFrame is one worker-to-coordinator message.
type resultFrame struct {
	ID     uint64      `msgpack:"id"`
	Layers [][]taskRef `msgpack:"layers,omitempty"`
	Err    string      `msgpack:"err,omitempty"`
}

// writeFrame marshals v and writes it as a length-prefixed frame.
func writeFrame(w io.Writer, v any) error {
	payload, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal frame: %w", err)
	}
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err = w.Write(payload)
	return err
}

// readFrame reads one length-prefixed frame and unmarshals it into v.
func readFrame(r io.Reader, v any) error {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return err
	}
	size := binary.BigEndian.Uint32(header[:])
	if size > maxFrameSize {
		return fmt.Errorf("frame of %d bytes exceeds limit", size)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return err
	}
	if err := msgpack.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("failed to unmarshal frame: %w", err)
	}
	return nil
}
