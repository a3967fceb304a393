// Package coap provides the request/response message model used between
// the characteristic transport and the resource layer.
//
// Full CoAP option processing is out of scope for this core; the wire
// codec here is the compact framing used by the characteristic protocol,
// carrying exactly the fields the resource layer needs (code, path,
// content format, payload).
package coap

// Request is an inbound application request on one connection.
type Request struct {
	// Code is the request method (GET/POST/PUT/DELETE).
	Code Code

	// Path is the requested resource path, without a leading slash,
	// e.g. "temp".
	Path string

	// ContentFormat describes Payload, or ContentFormatNone.
	ContentFormat uint16

	// Payload is the request body (may be empty).
	Payload []byte
}

// Response is the reply to one Request.
type Response struct {
	// Code is the response code (class 2, 4 or 5).
	Code Code

	// ContentFormat describes Payload, or ContentFormatNone.
	ContentFormat uint16

	// Payload is the response body (may be empty).
	Payload []byte
}

// NewResponse creates a payload-less response with the given code.
func NewResponse(code Code) *Response {
	return &Response{Code: code, ContentFormat: ContentFormatNone}
}
