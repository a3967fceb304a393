package coap

import (
	"bytes"
	"errors"
	"testing"
)

func TestRequestRoundTrip(t *testing.T) {
	req := &Request{
		Code:          CodePUT,
		Path:          "/leds",
		ContentFormat: ContentFormatCBOR,
		Payload:       []byte{0x02},
	}

	data, err := EncodeRequest(req)
	if err != nil {
		t.Fatalf("EncodeRequest() error = %v", err)
	}

	got, err := DecodeRequest(data)
	if err != nil {
		t.Fatalf("DecodeRequest() error = %v", err)
	}
	if got.Code != req.Code {
		t.Errorf("Code = %v, want %v", got.Code, req.Code)
	}
	if got.Path != req.Path {
		t.Errorf("Path = %q, want %q", got.Path, req.Path)
	}
	if got.ContentFormat != req.ContentFormat {
		t.Errorf("ContentFormat = %d, want %d", got.ContentFormat, req.ContentFormat)
	}
	if !bytes.Equal(got.Payload, req.Payload) {
		t.Errorf("Payload = %x, want %x", got.Payload, req.Payload)
	}
}

func TestDecodeRequest_Malformed(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		if _, err := DecodeRequest(nil); !errors.Is(err, ErrTruncated) {
			t.Errorf("error = %v, want ErrTruncated", err)
		}
	})

	t.Run("path length exceeds data", func(t *testing.T) {
		// Claims a 200-byte path but carries none.
		data := []byte{byte(CodeGET), 200, 0, 0}
		if _, err := DecodeRequest(data); !errors.Is(err, ErrTruncated) {
			t.Errorf("error = %v, want ErrTruncated", err)
		}
	})

	t.Run("response code in request", func(t *testing.T) {
		data := []byte{byte(CodeContent), 0, 0, 0}
		if _, err := DecodeRequest(data); !errors.Is(err, ErrInvalidCode) {
			t.Errorf("error = %v, want ErrInvalidCode", err)
		}
	})

	t.Run("empty code", func(t *testing.T) {
		data := []byte{0, 0, 0, 0}
		if _, err := DecodeRequest(data); !errors.Is(err, ErrInvalidCode) {
			t.Errorf("error = %v, want ErrInvalidCode", err)
		}
	})
}

func TestEncodeRequest_PathTooLong(t *testing.T) {
	long := make([]byte, MaxPathLength+1)
	for i := range long {
		long[i] = 'a'
	}
	_, err := EncodeRequest(&Request{Code: CodeGET, Path: string(long), ContentFormat: ContentFormatNone})
	if !errors.Is(err, ErrPathTooLong) {
		t.Errorf("error = %v, want ErrPathTooLong", err)
	}
}

func TestResponseRoundTrip(t *testing.T) {
	resp := &Response{
		Code:          CodeContent,
		ContentFormat: ContentFormatCBOR,
		Payload:       []byte{0x18, 0x2A},
	}

	data, err := EncodeResponse(resp)
	if err != nil {
		t.Fatalf("EncodeResponse() error = %v", err)
	}

	got, err := DecodeResponse(data)
	if err != nil {
		t.Fatalf("DecodeResponse() error = %v", err)
	}
	if got.Code != resp.Code {
		t.Errorf("Code = %v, want %v", got.Code, resp.Code)
	}
	if !bytes.Equal(got.Payload, resp.Payload) {
		t.Errorf("Payload = %x, want %x", got.Payload, resp.Payload)
	}
}

func TestEncodeResponse_RejectsRequestCode(t *testing.T) {
	if _, err := EncodeResponse(&Response{Code: CodeGET}); !errors.Is(err, ErrInvalidCode) {
		t.Errorf("error = %v, want ErrInvalidCode", err)
	}
}

func TestCodeClassification(t *testing.T) {
	cases := []struct {
		code      Code
		isRequest bool
		isSuccess bool
		str       string
	}{
		{CodeGET, true, false, "GET"},
		{CodePOST, true, false, "POST"},
		{CodeContent, false, true, "2.05"},
		{CodeChanged, false, true, "2.04"},
		{CodeUnauthorized, false, false, "4.01"},
		{CodeForbidden, false, false, "4.03"},
		{CodeNotFound, false, false, "4.04"},
		{CodeInternalServerError, false, false, "5.00"},
	}

	for _, tc := range cases {
		t.Run(tc.str, func(t *testing.T) {
			if tc.code.IsRequest() != tc.isRequest {
				t.Errorf("IsRequest() = %v, want %v", tc.code.IsRequest(), tc.isRequest)
			}
			if tc.code.IsSuccess() != tc.isSuccess {
				t.Errorf("IsSuccess() = %v, want %v", tc.code.IsSuccess(), tc.isSuccess)
			}
			if tc.code.String() != tc.str {
				t.Errorf("String() = %q, want %q", tc.code.String(), tc.str)
			}
		})
	}
}
