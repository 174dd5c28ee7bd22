// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wsclient

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Version is the JSON-RPC protocol version carried by every envelope.
const Version = "2.0"

// Codec encodes outbound envelopes and decodes inbound frames.
type Codec interface {
	Encode(v interface{}) ([]byte, error)
	Decode(data []byte, v interface{}) error
}

// JSONCodec is a JSON-based codec
type JSONCodec struct{}

func (JSONCodec) Encode(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONCodec) Decode(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

// defaultCodec is used when no codec is specified
var defaultCodec Codec = JSONCodec{}

// Request is an outbound call that expects a correlated response.
type Request struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      string      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// Notification is a one-way message. The client sends them to subscribe and
// unsubscribe; the server sends them to deliver events.
type Notification struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// Message is the union of every inbound envelope shape. Whether it is a
// response or a notification depends on the pending requests of the engine
// that receives it.
type Message struct {
	JSONRPC string          `json:"jsonrpc,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   json.RawMessage `json:"error,omitempty"`
}

// RequestID returns the id of m when it is a JSON string.
func (m *Message) RequestID() (string, bool) {
	if len(m.ID) == 0 || m.ID[0] != '"' {
		return "", false
	}
	var id string
	if err := json.Unmarshal(m.ID, &id); err != nil {
		return "", false
	}
	return id, true
}

// truthy reports whether a raw JSON value is present and not one of null,
// false, 0 or "". Empty arrays and objects are truthy.
func truthy(raw json.RawMessage) bool {
	v := bytes.TrimSpace(raw)
	if len(v) == 0 {
		return false
	}
	switch string(v) {
	case "null", "false", `""`:
		return false
	}
	if v[0] == '-' || (v[0] >= '0' && v[0] <= '9') {
		f, err := strconv.ParseFloat(string(v), 64)
		return err != nil || f != 0
	}
	return true
}
