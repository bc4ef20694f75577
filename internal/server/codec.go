package server

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// jsonCodec lets LedgerService exchange plain Go structs. Clients select it
// with grpc.CallContentSubtype(codecName); protobuf services such as health
// keep the default codec.
type jsonCodec struct{}

const codecName = "json"

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// CodecName is the content subtype clients pass to reach LedgerService.
const CodecName = codecName
