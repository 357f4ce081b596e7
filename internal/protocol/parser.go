package protocol

import (
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/ggeimport/ggeimport/internal/errs"
)

// extPattern matches "%<tag>%1%0%<payload>", optionally preceded by the
// "%xt" envelope the live server adds.
var extPattern = regexp.MustCompile(`(?s)^(?:%xt)?%(\w+)%1%0%(.*)$`)

// requestPattern matches a rendered client request: "%xt%<room>%<tag>%1%<json>%".
var requestPattern = regexp.MustCompile(`(?s)^%xt%([^%]+)%(\w+)%1%(.*)%$`)

// Classify maps a received frame to its message variant. It never fails:
// frames outside the grammar are returned as Unrecognized with the original
// text preserved.
func Classify(raw string) Message {
	if raw == "" {
		return Message{Kind: KindEmpty}
	}

	m := extPattern.FindStringSubmatch(raw)
	if m == nil {
		return Message{Kind: KindUnrecognized, Payload: raw}
	}

	tag := Tag(m[1])
	return Message{
		Kind:    KindForTag(tag),
		Tag:     tag,
		Payload: strings.TrimSuffix(m[2], "%"),
	}
}

// Structured parses the payload as JSON. Gbd, Gdi and Gaa payloads that are
// not valid JSON are protocol violations.
func (m Message) Structured() (gjson.Result, error) {
	if !gjson.Valid(m.Payload) {
		return gjson.Result{}, errs.New(errs.KindProtocol, "protocol.structured:"+m.Kind.String(), errs.ErrMalformedPayload)
	}
	return gjson.Parse(m.Payload), nil
}

// ParseRequest decodes a client request frame as produced by Render. It is
// the server-side inverse used by the local test server.
func ParseRequest(frame string) (string, Request, error) {
	const op = "protocol.parse_request"

	m := requestPattern.FindStringSubmatch(frame)
	if m == nil {
		return "", nil, errs.Protocolf(op, "not a request frame: %q", frame)
	}
	room, tag, body := m[1], Tag(m[2]), m[3]
	if !gjson.Valid(body) {
		return "", nil, errs.New(errs.KindProtocol, op, errs.ErrMalformedPayload)
	}
	res := gjson.Parse(body)

	switch tag {
	case TagLogin:
		return room, nil, errs.Protocolf(op, "login frame is not a request")
	case TagGdi:
		return room, DetailRequest{OccupantID: res.Get("PID").Int()}, nil
	case TagGaa:
		return room, RegionQuery{
			Region: int(res.Get("KID").Int()),
			X1:     res.Get("AX1").Int(),
			Y1:     res.Get("AY1").Int(),
			X2:     res.Get("AX2").Int(),
			Y2:     res.Get("AY2").Int(),
		}, nil
	default:
		return room, nil, errs.Protocolf(op, "unsupported request tag %q", tag)
	}
}

// ParseLoginCode decodes the lli frame produced by BuildLoginCode.
func ParseLoginCode(frame string) (string, Credentials, error) {
	const op = "protocol.parse_login"

	m := requestPattern.FindStringSubmatch(frame)
	if m == nil || Tag(m[2]) != TagLogin {
		return "", Credentials{}, errs.Protocolf(op, "not a login frame: %q", frame)
	}
	if !gjson.Valid(m[3]) {
		return "", Credentials{}, errs.New(errs.KindProtocol, op, errs.ErrMalformedPayload)
	}
	res := gjson.Parse(m[3])
	return m[1], Credentials{
		Username: res.Get("NOM").String(),
		Password: res.Get("PW").String(),
	}, nil
}
