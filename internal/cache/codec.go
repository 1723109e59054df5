package cache

import (
	"github.com/goccy/go-json"
	"github.com/hyp3rd/ewrap"
	"github.com/shamaton/msgpack/v2"

	"perfstore/internal/hdr"
)

// Codec encodes cached documents.
type Codec interface {
	Marshal(data *hdr.HdrData) ([]byte, error)
	Unmarshal(b []byte) (*hdr.HdrData, error)
}

// MsgpackCodec encodes documents with msgpack.
type MsgpackCodec struct{}

func (MsgpackCodec) Marshal(data *hdr.HdrData) ([]byte, error) {
	b, err := msgpack.Marshal(data)
	if err != nil {
		return nil, ewrap.Wrap(err, "failed to marshal msgpack")
	}

	return b, nil
}

func (MsgpackCodec) Unmarshal(b []byte) (*hdr.HdrData, error) {
	var data hdr.HdrData
	if err := msgpack.Unmarshal(b, &data); err != nil {
		return nil, ewrap.Wrap(err, "failed to unmarshal msgpack")
	}

	return &data, nil
}

// JSONCodec encodes documents with go-json.
type JSONCodec struct{}

func (JSONCodec) Marshal(data *hdr.HdrData) ([]byte, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return nil, ewrap.Wrap(err, "failed to marshal json")
	}

	return b, nil
}

func (JSONCodec) Unmarshal(b []byte) (*hdr.HdrData, error) {
	var data hdr.HdrData
	if err := json.Unmarshal(b, &data); err != nil {
		return nil, ewrap.Wrap(err, "failed to unmarshal json")
	}

	return &data, nil
}
