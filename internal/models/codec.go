package models

import (
	"bytes"
	"encoding/json"

	"github.com/pliu/socialsync/internal/errors"
)

// Envelope is the wire form of a record: the store server, the push
// channel and the SQL adapter all exchange records this way.
type Envelope struct {
	Collection Collection      `json:"collection"`
	ID         string          `json:"id"`
	Record     json.RawMessage `json:"record"`
}

// NewRecord returns an empty record for the collection.
func NewRecord(c Collection) (Record, error) {
	switch c {
	case CollectionUsers:
		return &User{}, nil
	case CollectionPosts:
		return &Post{}, nil
	case CollectionComments:
		return &Comment{}, nil
	case CollectionMessages:
		return &Message{}, nil
	case CollectionServers:
		return &Server{}, nil
	case CollectionServerMessages:
		return &ServerMessage{}, nil
	}
	return nil, errors.Newf(errors.ErrValidation, "unknown collection %q", c)
}

func Encode(r Record) (Envelope, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return Envelope{}, errors.Wrap(errors.ErrInternal, "encode record", err)
	}
	return Envelope{Collection: r.Collection(), ID: r.RecordID(), Record: data}, nil
}

func Decode(env Envelope) (Record, error) {
	r, err := DecodeRecord(env.Collection, env.Record)
	if err != nil {
		return nil, err
	}
	if env.ID != "" && env.ID != r.RecordID() {
		return nil, errors.Newf(errors.ErrValidation, "envelope id %q does not match record id %q", env.ID, r.RecordID())
	}
	return r, nil
}

// DecodeRecord unmarshals a record body belonging to collection c.
func DecodeRecord(c Collection, data []byte) (Record, error) {
	r, err := NewRecord(c)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, r); err != nil {
		return nil, errors.Wrap(errors.ErrValidation, "decode "+string(c)+" record", err)
	}
	return r, nil
}

// Equal reports whether two records have the same wire value.
func Equal(a, b Record) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Collection() != b.Collection() {
		return false
	}
	ad, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bd, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ad, bd)
}

// Arrays used as sets. They keep insertion order and always return a new
// slice so a record already handed out is never modified.

func ContainsID(set []string, id string) bool {
	for _, v := range set {
		if v == id {
			return true
		}
	}
	return false
}

func AddID(set []string, id string) []string {
	out := append(make([]string, 0, len(set)+1), set...)
	if ContainsID(set, id) {
		return out
	}
	return append(out, id)
}

func RemoveID(set []string, id string) []string {
	out := make([]string, 0, len(set))
	for _, v := range set {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
