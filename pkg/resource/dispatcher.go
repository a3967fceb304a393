// Package resource routes authorized requests to resource handlers.
// The dispatcher sits behind the decision point: a handler only ever
// runs after the session's grant has been checked for that exact
// request, and denials are answered without touching handler code.
package resource

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/pion/logging"

	"github.com/coap-ace/acegatt/pkg/authz"
	"github.com/coap-ace/acegatt/pkg/coap"
	"github.com/coap-ace/acegatt/pkg/session"
)

// Handler serves requests for one resource. Serve is only invoked for
// requests the decision point has allowed.
type Handler interface {
	Serve(sess *session.Session, req *coap.Request) *coap.Response
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(sess *session.Session, req *coap.Request) *coap.Response

// Serve calls f.
func (f HandlerFunc) Serve(sess *session.Session, req *coap.Request) *coap.Response {
	return f(sess, req)
}

// Hints are the request-creation hints returned alongside Unauthorized
// responses, telling the peer which authorization server can issue a
// token for this device.
type Hints struct {
	AuthorizationServer string `cbor:"1,keyasint,omitempty"`
	Audience            string `cbor:"5,keyasint,omitempty"`
}

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	// Checker is the authorization decision point. Required.
	Checker *authz.Checker

	// Handlers maps resource paths to their handlers. Every path in the
	// checker's table must have a handler and vice versa.
	Handlers map[string]Handler

	// Hints, when non-nil, is attached to Unauthorized responses.
	Hints *Hints

	// LoggerFactory customizes logging (default: pion defaults).
	LoggerFactory logging.LoggerFactory
}

// Dispatcher answers requests on established sessions.
type Dispatcher struct {
	checker  *authz.Checker
	handlers map[string]Handler
	hints    []byte
	log      logging.LeveledLogger
}

// NewDispatcher validates the handler set against the checker's table.
func NewDispatcher(config DispatcherConfig) (*Dispatcher, error) {
	if config.Checker == nil {
		return nil, errors.New("resource: Checker is required")
	}
	if config.LoggerFactory == nil {
		config.LoggerFactory = logging.NewDefaultLoggerFactory()
	}

	table := config.Checker.Table()
	for _, path := range table.Paths() {
		if _, ok := config.Handlers[path]; !ok {
			return nil, fmt.Errorf("resource: no handler for %q", path)
		}
	}
	for path := range config.Handlers {
		if _, ok := table.Lookup(path); !ok {
			return nil, fmt.Errorf("resource: handler for %q has no descriptor", path)
		}
	}

	handlers := make(map[string]Handler, len(config.Handlers))
	for path, h := range config.Handlers {
		handlers[path] = h
	}

	var hints []byte
	if config.Hints != nil {
		var err error
		hints, err = cbor.Marshal(config.Hints)
		if err != nil {
			return nil, fmt.Errorf("resource: encode hints: %w", err)
		}
	}

	return &Dispatcher{
		checker:  config.Checker,
		handlers: handlers,
		hints:    hints,
		log:      config.LoggerFactory.NewLogger("resource"),
	}, nil
}

// Dispatch checks and serves one request. Denials carry the response
// code for their reason; an allowed request runs the resource handler
// with panic containment.
func (d *Dispatcher) Dispatch(sess *session.Session, req *coap.Request) *coap.Response {
	decision := d.checker.Check(sess, req.Path, req.Code)
	if !decision.Allow {
		d.log.Debugf("deny %v /%s: %v", req.Code, req.Path, decision.Reason)
		return d.denial(decision)
	}

	return d.serve(sess, req)
}

func (d *Dispatcher) denial(decision authz.Decision) *coap.Response {
	switch decision.Reason {
	case authz.ReasonNotFound:
		return coap.NewResponse(coap.CodeNotFound)
	case authz.ReasonMethodNotAllowed:
		return coap.NewResponse(coap.CodeMethodNotAllowed)
	case authz.ReasonInsufficientScope:
		return coap.NewResponse(coap.CodeForbidden)
	default:
		resp := coap.NewResponse(coap.CodeUnauthorized)
		if d.hints != nil {
			resp.ContentFormat = coap.ContentFormatACECBOR
			resp.Payload = d.hints
		}
		return resp
	}
}

// serve runs the handler. A panicking handler yields a plain 5.00; the
// connection stays up.
func (d *Dispatcher) serve(sess *session.Session, req *coap.Request) (resp *coap.Response) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Errorf("handler /%s panic: %v", req.Path, r)
			resp = coap.NewResponse(coap.CodeInternalServerError)
		}
	}()

	handler := d.handlers[req.Path]
	resp = handler.Serve(sess, req)
	if resp == nil {
		d.log.Errorf("handler /%s returned no response", req.Path)
		resp = coap.NewResponse(coap.CodeInternalServerError)
	}
	return resp
}
