package coap

import "fmt"

// Code is a CoAP method or response code in the usual class.detail
// encoding (class in the top 3 bits, detail in the bottom 5).
type Code uint8

// Request codes.
const (
	CodeEmpty  Code = 0x00
	CodeGET    Code = 0x01
	CodePOST   Code = 0x02
	CodePUT    Code = 0x03
	CodeDELETE Code = 0x04
)

// Response codes.
const (
	CodeCreated Code = 0x41 // 2.01
	CodeDeleted Code = 0x42 // 2.02
	CodeValid   Code = 0x43 // 2.03
	CodeChanged Code = 0x44 // 2.04
	CodeContent Code = 0x45 // 2.05

	CodeBadRequest       Code = 0x80 // 4.00
	CodeUnauthorized     Code = 0x81 // 4.01
	CodeBadOption        Code = 0x82 // 4.02
	CodeForbidden        Code = 0x83 // 4.03
	CodeNotFound         Code = 0x84 // 4.04
	CodeMethodNotAllowed Code = 0x85 // 4.05

	CodeInternalServerError Code = 0xA0 // 5.00
	CodeServiceUnavailable  Code = 0xA3 // 5.03
)

// Class returns the code class (0 for requests, 2/4/5 for responses).
func (c Code) Class() uint8 {
	return uint8(c) >> 5
}

// Detail returns the code detail (the dd in c.dd).
func (c Code) Detail() uint8 {
	return uint8(c) & 0x1F
}

// IsRequest returns true for method codes (class 0, excluding Empty).
func (c Code) IsRequest() bool {
	return c.Class() == 0 && c != CodeEmpty
}

// IsSuccess returns true for class 2 response codes.
func (c Code) IsSuccess() bool {
	return c.Class() == 2
}

// String returns the dotted-decimal form, with method names for requests.
func (c Code) String() string {
	switch c {
	case CodeGET:
		return "GET"
	case CodePOST:
		return "POST"
	case CodePUT:
		return "PUT"
	case CodeDELETE:
		return "DELETE"
	}
	return fmt.Sprintf("%d.%02d", c.Class(), c.Detail())
}

// Content format identifiers used by the device.
const (
	// ContentFormatLinkFormat is application/link-format (RFC 6690).
	ContentFormatLinkFormat uint16 = 40

	// ContentFormatCBOR is application/cbor.
	ContentFormatCBOR uint16 = 60

	// ContentFormatACECBOR is application/ace+cbor (RFC 9200).
	ContentFormatACECBOR uint16 = 19

	// ContentFormatNone marks the absence of a content format.
	ContentFormatNone uint16 = 0xFFFF
)
