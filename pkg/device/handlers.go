package device

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/coap-ace/acegatt/pkg/authz"
	"github.com/coap-ace/acegatt/pkg/coap"
	"github.com/coap-ace/acegatt/pkg/resource"
	"github.com/coap-ace/acegatt/pkg/session"
	"github.com/coap-ace/acegatt/pkg/token"
)

// Resource paths.
const (
	PathTemp      = "temp"
	PathLEDs      = "leds"
	PathIdentify  = "identify"
	PathTime      = "time"
	PathAuthzInfo = "authz-info"
	PathEDHOC     = ".well-known/edhoc"
	PathCore      = ".well-known/core"
)

// descriptors is the device's resource table. Handshake and token
// submission are ordinary resources open to unauthorized peers; the
// sensor and actuator resources demand a granted scope.
func (d *Device) descriptors() []authz.Descriptor {
	return []authz.Descriptor{
		{
			Path:          PathTemp,
			Methods:       map[coap.Code]session.Scope{coap.CodeGET: session.ScopeRead},
			ResourceType:  "core.s.temperature",
			ContentFormat: coap.ContentFormatCBOR,
		},
		{
			Path: PathLEDs,
			Methods: map[coap.Code]session.Scope{
				coap.CodeGET: session.ScopeRead,
				coap.CodePUT: session.ScopeControl,
			},
			ContentFormat: coap.ContentFormatCBOR,
		},
		{
			Path:    PathIdentify,
			Methods: map[coap.Code]session.Scope{coap.CodePOST: session.ScopeControl},
		},
		{
			Path: PathTime,
			Methods: map[coap.Code]session.Scope{
				coap.CodeGET: session.ScopeNone,
				coap.CodePUT: session.ScopeNone,
			},
			ContentFormat: coap.ContentFormatCBOR,
		},
		{
			Path:          PathAuthzInfo,
			Methods:       map[coap.Code]session.Scope{coap.CodePOST: session.ScopeNone},
			ResourceType:  "ace.ai",
			ContentFormat: coap.ContentFormatACECBOR,
		},
		{
			Path:         PathEDHOC,
			Methods:      map[coap.Code]session.Scope{coap.CodePOST: session.ScopeNone},
			ResourceType: "core.edhoc",
		},
		{
			Path:          PathCore,
			Methods:       map[coap.Code]session.Scope{coap.CodeGET: session.ScopeNone},
			ContentFormat: coap.ContentFormatLinkFormat,
		},
	}
}

func (d *Device) handlers() map[string]resource.Handler {
	return map[string]resource.Handler{
		PathTemp:      resource.HandlerFunc(d.serveTemp),
		PathLEDs:      resource.HandlerFunc(d.serveLEDs),
		PathIdentify:  resource.HandlerFunc(d.serveIdentify),
		PathTime:      resource.HandlerFunc(d.serveTime),
		PathAuthzInfo: resource.HandlerFunc(d.serveAuthzInfo),
		PathEDHOC:     resource.HandlerFunc(d.serveEDHOC),
		PathCore:      resource.HandlerFunc(d.serveCore),
	}
}

func (d *Device) serveTemp(sess *session.Session, req *coap.Request) *coap.Response {
	payload, err := d.thermometer.ReadCBOR()
	if err != nil {
		d.log.Errorf("encode temperature: %v", err)
		return coap.NewResponse(coap.CodeInternalServerError)
	}
	return &coap.Response{
		Code:          coap.CodeContent,
		ContentFormat: coap.ContentFormatCBOR,
		Payload:       payload,
	}
}

func (d *Device) serveLEDs(sess *session.Session, req *coap.Request) *coap.Response {
	switch req.Code {
	case coap.CodeGET:
		payload, err := cbor.Marshal(d.leds.Lit())
		if err != nil {
			return coap.NewResponse(coap.CodeInternalServerError)
		}
		return &coap.Response{
			Code:          coap.CodeContent,
			ContentFormat: coap.ContentFormatCBOR,
			Payload:       payload,
		}
	default: // PUT per the descriptor
		var n int
		if err := cbor.Unmarshal(req.Payload, &n); err != nil {
			return coap.NewResponse(coap.CodeBadRequest)
		}
		if err := d.leds.SetLit(n); err != nil {
			return coap.NewResponse(coap.CodeBadRequest)
		}
		return coap.NewResponse(coap.CodeChanged)
	}
}

func (d *Device) serveIdentify(sess *session.Session, req *coap.Request) *coap.Response {
	d.leds.Identify()
	return coap.NewResponse(coap.CodeChanged)
}

// serveTime reads or sets the device clock. GET reports CBOR null while
// the clock is unset.
func (d *Device) serveTime(sess *session.Session, req *coap.Request) *coap.Response {
	switch req.Code {
	case coap.CodeGET:
		var value interface{}
		if now, set := d.clock.Now(); set {
			value = uint64(now.Unix())
		}
		payload, err := cbor.Marshal(value)
		if err != nil {
			return coap.NewResponse(coap.CodeInternalServerError)
		}
		return &coap.Response{
			Code:          coap.CodeContent,
			ContentFormat: coap.ContentFormatCBOR,
			Payload:       payload,
		}
	default: // PUT per the descriptor
		var unix uint64
		if err := cbor.Unmarshal(req.Payload, &unix); err != nil {
			return coap.NewResponse(coap.CodeBadRequest)
		}
		if unix > math.MaxInt64 {
			// Would wrap negative and anchor the clock in the past.
			return coap.NewResponse(coap.CodeBadRequest)
		}
		d.clock.Set(time.Unix(int64(unix), 0))
		return coap.NewResponse(coap.CodeChanged)
	}
}

// serveAuthzInfo accepts an access token. A valid token becomes the
// session's grant; any defect leaves the session untouched.
func (d *Device) serveAuthzInfo(sess *session.Session, req *coap.Request) *coap.Response {
	if _, err := d.processor.Submit(sess, req.Payload); err != nil {
		if errors.Is(err, token.ErrMalformed) {
			return coap.NewResponse(coap.CodeBadRequest)
		}
		return coap.NewResponse(coap.CodeUnauthorized)
	}
	return coap.NewResponse(coap.CodeCreated)
}

func (d *Device) serveEDHOC(sess *session.Session, req *coap.Request) *coap.Response {
	payload, err := d.coordinator.HandleMessage(sess.Connection(), req.Payload)
	if err != nil {
		return coap.NewResponse(coap.CodeBadRequest)
	}
	return &coap.Response{
		Code:    coap.CodeChanged,
		Payload: payload,
	}
}

// serveCore renders the resource table as application/link-format.
func (d *Device) serveCore(sess *session.Session, req *coap.Request) *coap.Response {
	var sb strings.Builder
	table := d.table

	for i, path := range table.Paths() {
		desc, _ := table.Lookup(path)
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "</%s>", path)
		if desc.ResourceType != "" {
			fmt.Fprintf(&sb, `;rt="%s"`, desc.ResourceType)
		}
		if desc.ContentFormat != 0 && desc.ContentFormat != coap.ContentFormatNone {
			fmt.Fprintf(&sb, ";ct=%d", desc.ContentFormat)
		}
	}

	return &coap.Response{
		Code:          coap.CodeContent,
		ContentFormat: coap.ContentFormatLinkFormat,
		Payload:       []byte(sb.String()),
	}
}
