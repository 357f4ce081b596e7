package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// FrameBuilder constructs text frames for sending to the game server. The
// terminating NUL is added by the transport, not by the builder.
type FrameBuilder struct {
	buf strings.Builder
}

// NewFrameBuilder creates a new FrameBuilder.
func NewFrameBuilder() *FrameBuilder {
	return &FrameBuilder{}
}

// Reset clears the builder for reuse.
func (b *FrameBuilder) Reset() {
	b.buf.Reset()
}

// WriteString writes raw text.
func (b *FrameBuilder) WriteString(s string) *FrameBuilder {
	b.buf.WriteString(s)
	return b
}

// WriteField writes a percent-prefixed field.
func (b *FrameBuilder) WriteField(s string) *FrameBuilder {
	b.buf.WriteByte('%')
	b.buf.WriteString(s)
	return b
}

// WriteJSON writes v as a percent-prefixed JSON field.
func (b *FrameBuilder) WriteJSON(v any) (*FrameBuilder, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return b, fmt.Errorf("failed to encode frame payload: %w", err)
	}
	return b.WriteField(string(data)), nil
}

// WriteCDATA writes s wrapped in a CDATA section.
func (b *FrameBuilder) WriteCDATA(s string) *FrameBuilder {
	b.buf.WriteString("<![CDATA[")
	b.buf.WriteString(s)
	b.buf.WriteString("]]>")
	return b
}

// Build returns the constructed frame.
func (b *FrameBuilder) Build() string {
	return b.buf.String()
}

// Len returns the current size of the frame being built.
func (b *FrameBuilder) Len() int {
	return b.buf.Len()
}

// ---- Client requests ----

// Request is a client-originated extension message. The set is closed:
// DetailRequest and RegionQuery are the only implementations.
type Request interface {
	Tag() Tag
	payload() any
}

// DetailRequest asks for one player's detail (answered with gdi).
type DetailRequest struct {
	OccupantID int64
}

// Tag implements Request.
func (DetailRequest) Tag() Tag { return TagGdi }

func (r DetailRequest) payload() any {
	return map[string]int64{"PID": r.OccupantID}
}

// RegionQuery asks for every entity inside a rectangle of one world
// (answered with gaa).
type RegionQuery struct {
	Region int   `json:"KID"`
	X1     int64 `json:"AX1"`
	Y1     int64 `json:"AY1"`
	X2     int64 `json:"AX2"`
	Y2     int64 `json:"AY2"`
}

// Tag implements Request.
func (RegionQuery) Tag() Tag { return TagGaa }

func (r RegionQuery) payload() any {
	return r
}

// Render builds the wire text for req in room:
// "%xt%<room>%<tag>%1%<json>%".
func Render(room string, req Request) (string, error) {
	b := NewFrameBuilder()
	b.WriteField("xt").WriteField(room).WriteField(string(req.Tag())).WriteField("1")
	if _, err := b.WriteJSON(req.payload()); err != nil {
		return "", err
	}
	b.WriteString("%")
	return b.Build(), nil
}

// ServerFrame renders an extension message the way the server sends it:
// "%xt%<tag>%1%0%<payload>%".
func ServerFrame(tag Tag, payload string) string {
	b := NewFrameBuilder()
	b.WriteField("xt").WriteField(string(tag)).WriteField("1").WriteField("0").WriteField(payload)
	b.WriteString("%")
	return b.Build()
}

// ---- Handshake / Login ----

// BuildVersionCheck returns the version check frame that opens every session.
func BuildVersionCheck() string {
	return VersionCheck
}

// IsVersionAccepted reports whether frame is the server's handshake
// acceptance.
func IsVersionAccepted(frame string) bool {
	return frame == VersionAccepted
}

// Credentials identify the player logging in.
type Credentials struct {
	Username string
	Password string
}

// CredentialToken returns the time-stamped token placed in the login
// password field: "<unix millis>%<lang>%".
func CredentialToken(now time.Time, lang string) string {
	return fmt.Sprintf("%d%%%s%%", now.UnixMilli(), lang)
}

// BuildLoginXML creates the system login frame for room. The nick is left
// empty; the real credentials follow in the login code frame.
func BuildLoginXML(room, token string) string {
	b := NewFrameBuilder()
	b.WriteString("<msg t='sys'><body action='login' r='0'><login z='").WriteString(room).WriteString("'>")
	b.WriteString("<nick>").WriteCDATA("").WriteString("</nick>")
	b.WriteString("<pword>").WriteCDATA(token).WriteString("</pword>")
	b.WriteString("</login></body></msg>")
	return b.Build()
}

// loginCode is the JSON body of the lli extension frame.
type loginCode struct {
	ConM     int    `json:"CONM"`
	KID      string `json:"KID"`
	DID      string `json:"DID"`
	ID       int    `json:"ID"`
	Password string `json:"PW"`
	AID      string `json:"AID"`
	Name     string `json:"NOM"`
	RTM      int    `json:"RTM"`
	Lang     string `json:"LANG"`
}

// loginAccountID is the fixed client account id the web client sends.
const loginAccountID = "1456064275209394654"

// BuildLoginCode creates the extension frame carrying username and password.
func BuildLoginCode(room, lang string, creds Credentials) (string, error) {
	b := NewFrameBuilder()
	b.WriteField("xt").WriteField(room).WriteField(string(TagLogin)).WriteField("1")
	_, err := b.WriteJSON(loginCode{
		ConM:     413,
		Password: creds.Password,
		AID:      loginAccountID,
		Name:     creds.Username,
		RTM:      129,
		Lang:     lang,
	})
	if err != nil {
		return "", err
	}
	b.WriteString("%")
	return b.Build(), nil
}
