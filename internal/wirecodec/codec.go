// Package wirecodec registers a gob-based grpc/encoding.Codec standing in
// for protobuf codegen, which this build environment has no protoc to
// produce. It carries the hand-written pkg/replaypb message types over a
// real google.golang.org/grpc transport unchanged.
package wirecodec

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

// Name is registered with encoding.RegisterCodec and must match the
// content-subtype negotiated by both client and server.
const Name = "gob"

type codec struct{}

func (codec) Marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("wirecodec: marshal: %w", err)
	}
	return buf.Bytes(), nil
}

func (codec) Unmarshal(data []byte, v interface{}) error {
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(v); err != nil {
		return fmt.Errorf("wirecodec: unmarshal: %w", err)
	}
	return nil
}

func (codec) Name() string { return Name }

// Register installs the gob codec under Name. Call once at process start,
// before dialing or serving.
func Register() {
	encoding.RegisterCodec(codec{})
}

// ServerOption forces the server to encode/decode every message with the
// gob codec, regardless of content-subtype negotiation.
func ServerOption() grpc.ServerOption {
	return grpc.ForceServerCodec(codec{})
}

// DialOption forces the client to do the same.
func DialOption() grpc.DialOption {
	return grpc.WithDefaultCallOptions(grpc.ForceCodec(codec{}))
}
