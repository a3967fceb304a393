package coap

import (
	"encoding/binary"
	"errors"
)

// Codec limits.
const (
	// MaxPathLength bounds the encoded resource path.
	MaxPathLength = 255

	// requestHeaderSize is code + path length + content format.
	requestHeaderSize = 1 + 1 + 2

	// responseHeaderSize is code + content format.
	responseHeaderSize = 1 + 2
)

// Codec errors. These are framing errors: the caller must treat them as
// connection-fatal, never as a panic condition.
var (
	ErrTruncated   = errors.New("coap: truncated message")
	ErrPathTooLong = errors.New("coap: path too long")
	ErrInvalidCode = errors.New("coap: invalid code")
)

// EncodeRequest serializes a request into the characteristic framing:
//
//	code (1) | path length (1) | path | content format (2, big endian) | payload
func EncodeRequest(req *Request) ([]byte, error) {
	if !req.Code.IsRequest() {
		return nil, ErrInvalidCode
	}
	if len(req.Path) > MaxPathLength {
		return nil, ErrPathTooLong
	}

	buf := make([]byte, 0, requestHeaderSize+len(req.Path)+len(req.Payload))
	buf = append(buf, byte(req.Code), byte(len(req.Path)))
	buf = append(buf, req.Path...)
	buf = binary.BigEndian.AppendUint16(buf, req.ContentFormat)
	buf = append(buf, req.Payload...)
	return buf, nil
}

// DecodeRequest parses a request from the characteristic framing.
// All length fields are validated before use; attacker-supplied input
// yields an error, never a slice panic.
func DecodeRequest(data []byte) (*Request, error) {
	if len(data) < requestHeaderSize {
		return nil, ErrTruncated
	}

	code := Code(data[0])
	if !code.IsRequest() {
		return nil, ErrInvalidCode
	}

	pathLen := int(data[1])
	if len(data) < requestHeaderSize+pathLen {
		return nil, ErrTruncated
	}

	path := string(data[2 : 2+pathLen])
	cf := binary.BigEndian.Uint16(data[2+pathLen : 4+pathLen])
	payload := data[4+pathLen:]

	req := &Request{
		Code:          code,
		Path:          path,
		ContentFormat: cf,
	}
	if len(payload) > 0 {
		req.Payload = append([]byte(nil), payload...)
	}
	return req, nil
}

// EncodeResponse serializes a response:
//
//	code (1) | content format (2, big endian) | payload
func EncodeResponse(resp *Response) ([]byte, error) {
	if resp.Code.IsRequest() || resp.Code == CodeEmpty {
		return nil, ErrInvalidCode
	}

	buf := make([]byte, 0, responseHeaderSize+len(resp.Payload))
	buf = append(buf, byte(resp.Code))
	buf = binary.BigEndian.AppendUint16(buf, resp.ContentFormat)
	buf = append(buf, resp.Payload...)
	return buf, nil
}

// DecodeResponse parses a response from the characteristic framing.
func DecodeResponse(data []byte) (*Response, error) {
	if len(data) < responseHeaderSize {
		return nil, ErrTruncated
	}

	code := Code(data[0])
	if code.IsRequest() || code == CodeEmpty {
		return nil, ErrInvalidCode
	}

	resp := &Response{
		Code:          code,
		ContentFormat: binary.BigEndian.Uint16(data[1:3]),
	}
	if len(data) > responseHeaderSize {
		resp.Payload = append([]byte(nil), data[responseHeaderSize:]...)
	}
	return resp, nil
}
