package invalidation

import (
	"encoding/json"
	"fmt"
	"mime"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/vmihailenco/msgpack/v5"
)

// Codec reads and writes events in one wire format.
type Codec interface {
	ContentType() string
	Encode(Event) ([]byte, error)
	Decode([]byte) (Event, error)
}

type JSON struct{}

func (JSON) ContentType() string { return "application/json" }

func (JSON) Encode(e Event) ([]byte, error) { return json.Marshal(e) }

func (JSON) Decode(b []byte) (Event, error) {
	var e Event
	err := json.Unmarshal(b, &e)
	return e, err
}

type Msgpack struct{}

func (Msgpack) ContentType() string { return "application/msgpack" }

func (Msgpack) Encode(e Event) ([]byte, error) { return msgpack.Marshal(e) }

func (Msgpack) Decode(b []byte) (Event, error) {
	var e Event
	err := msgpack.Unmarshal(b, &e)
	return e, err
}

// CBOR uses preferred (unsorted) encoding and RFC 3339 timestamps.
type CBOR struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

func NewCBOR() (CBOR, error) {
	eo := cbor.PreferredUnsortedEncOptions()
	eo.Time = cbor.TimeRFC3339Nano
	em, err := eo.EncMode()
	if err != nil {
		return CBOR{}, err
	}
	dm, err := (cbor.DecOptions{}).DecMode()
	if err != nil {
		return CBOR{}, err
	}
	return CBOR{enc: em, dec: dm}, nil
}

func (CBOR) ContentType() string { return "application/cbor" }

func (c CBOR) Encode(e Event) ([]byte, error) { return c.enc.Marshal(e) }

func (c CBOR) Decode(b []byte) (Event, error) {
	var e Event
	err := c.dec.Unmarshal(b, &e)
	return e, err
}

// Codecs picks a codec by content type. An empty content type means JSON.
type Codecs struct {
	byType map[string]Codec
}

func NewCodecs() (*Codecs, error) {
	cb, err := NewCBOR()
	if err != nil {
		return nil, fmt.Errorf("cbor codec: %w", err)
	}
	cs := &Codecs{byType: map[string]Codec{}}
	for _, c := range []Codec{JSON{}, Msgpack{}, cb} {
		cs.byType[c.ContentType()] = c
	}
	cs.byType["application/x-msgpack"] = Msgpack{}
	return cs, nil
}

func (cs *Codecs) For(contentType string) (Codec, error) {
	if strings.TrimSpace(contentType) == "" {
		return JSON{}, nil
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, fmt.Errorf("%w: content type %q: %v", ErrInvalidEvent, contentType, err)
	}
	c, ok := cs.byType[mt]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported content type %q", ErrInvalidEvent, mt)
	}
	return c, nil
}

// Decode decodes and validates one event.
func (cs *Codecs) Decode(contentType string, b []byte) (Event, error) {
	c, err := cs.For(contentType)
	if err != nil {
		return Event{}, err
	}
	e, err := c.Decode(b)
	if err != nil {
		return Event{}, fmt.Errorf("%w: decode %s: %v", ErrInvalidEvent, c.ContentType(), err)
	}
	if err := e.Validate(); err != nil {
		return Event{}, err
	}
	return e, nil
}
