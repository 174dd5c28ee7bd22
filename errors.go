// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wsclient

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/creachadair/jrpc2"
)

var (
	ErrNotConnected     = errors.New("wsclient: not connected")
	ErrClosed           = errors.New("wsclient: client closed")
	ErrUnknownTransport = errors.New("wsclient: unknown transport")
	ErrInvalidClientID  = errors.New("wsclient: invalid client id response")
)

// ResponseError is the error object of a response, as sent by the server.
// Raw holds the object verbatim; the other fields are decoded from it when
// it has the usual shape. The workspace master reports the code either as
// "code" or, in older revisions, as "number".
type ResponseError struct {
	Code    jrpc2.Code      `json:"code"`
	Number  int             `json:"number,omitempty"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
	Raw     json.RawMessage `json:"-"`
}

func (e *ResponseError) Error() string {
	code := e.Code
	if code == 0 && e.Number != 0 {
		code = jrpc2.Code(e.Number)
	}
	if e.Message == "" {
		return fmt.Sprintf("jsonrpc: %v", code)
	}
	return fmt.Sprintf("jsonrpc: [%d] %s", code, e.Message)
}

// ErrorCode returns the error code, preferring "code" over "number".
func (e *ResponseError) ErrorCode() jrpc2.Code {
	if e.Code != 0 {
		return e.Code
	}
	return jrpc2.Code(e.Number)
}

func newResponseError(raw json.RawMessage) *ResponseError {
	e := &ResponseError{}
	if err := json.Unmarshal(raw, e); err != nil {
		var msg string
		if json.Unmarshal(raw, &msg) == nil {
			e.Message = msg
		} else {
			e.Message = string(raw)
		}
	}
	e.Raw = append(json.RawMessage(nil), raw...)
	return e
}
