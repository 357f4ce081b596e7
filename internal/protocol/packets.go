// Package protocol implements the text codec for the game server's
// SmartFox-style protocol: the system handshake literals, classification of
// received frames into tagged messages and rendering of client requests.
// Every frame on the wire is terminated by a single NUL byte.
package protocol

// FrameDelimiter terminates every frame after the handshake.
const FrameDelimiter byte = 0x00

// Handshake literals, sent and compared without the trailing NUL.
const (
	VersionCheck    = "<msg t='sys'><body action='verChk' r='0'><ver v='166' /></body></msg>"
	VersionAccepted = "<msg t='sys'><body action='apiOK' r='0'></body></msg>"
)

// Defaults for the public Dutch server and the local test double.
const (
	DefaultServerAddr = "37.48.88.129:443"
	LocalServerAddr   = "127.0.0.1:8081"
	DefaultRoom       = "EmpireEx_11"
	DefaultLanguage   = "nl"
)

// Tag is the identifier between the first pair of percent signs of an
// extension message.
type Tag string

// Server-originated tags.
const (
	TagKpi     Tag = "kpi"      // keep-alive / telemetry
	TagGam     Tag = "gam"      // movements
	TagGbd     Tag = "gbd"      // primary bulk data after login
	TagGdi     Tag = "gdi"      // per-player detail
	TagSei     Tag = "sei"      // events
	TagIrc     Tag = "irc"      // chat
	TagNfo     Tag = "nfo"      // server info
	TagCoreGpi Tag = "core_gpi" // player info
	TagGaa     Tag = "gaa"      // region query result
)

// Client-originated tags.
const (
	TagLogin Tag = "lli"
)

// Kind selects the message variant.
type Kind int

const (
	KindEmpty Kind = iota
	KindUnrecognized
	KindKpi
	KindGam
	KindGbd
	KindGdi
	KindSei
	KindIrc
	KindNfo
	KindCoreGpi
	KindGaa
)

var kindByTag = map[Tag]Kind{
	TagKpi:     KindKpi,
	TagGam:     KindGam,
	TagGbd:     KindGbd,
	TagGdi:     KindGdi,
	TagSei:     KindSei,
	TagIrc:     KindIrc,
	TagNfo:     KindNfo,
	TagCoreGpi: KindCoreGpi,
	TagGaa:     KindGaa,
}

var kindStrings = map[Kind]string{
	KindEmpty:        "empty",
	KindUnrecognized: "unrecognized",
	KindKpi:          "kpi",
	KindGam:          "gam",
	KindGbd:          "gbd",
	KindGdi:          "gdi",
	KindSei:          "sei",
	KindIrc:          "irc",
	KindNfo:          "nfo",
	KindCoreGpi:      "core_gpi",
	KindGaa:          "gaa",
}

// String returns the string representation of Kind.
func (k Kind) String() string {
	if s, ok := kindStrings[k]; ok {
		return s
	}
	return "unknown"
}

// MarshalJSON serializes Kind as a JSON string (e.g. "gbd").
func (k Kind) MarshalJSON() ([]byte, error) {
	return []byte(`"` + k.String() + `"`), nil
}

// KindForTag returns the variant for a wire tag. Unknown tags map to
// KindUnrecognized.
func KindForTag(tag Tag) Kind {
	if k, ok := kindByTag[tag]; ok {
		return k
	}
	return KindUnrecognized
}

// Message is one classified server frame. Tag is empty for Empty messages
// and for Unrecognized frames that did not match the extension grammar.
type Message struct {
	Kind    Kind   `json:"kind"`
	Tag     Tag    `json:"tag,omitempty"`
	Payload string `json:"payload"`
}

// IsNoise reports whether the message is keep-alive or chat traffic that
// extractors never look at.
func (m Message) IsNoise() bool {
	return m.Kind == KindKpi || m.Kind == KindIrc
}

// IsStructured reports whether the payload of this kind is expected to be
// JSON.
func (m Message) IsStructured() bool {
	switch m.Kind {
	case KindGbd, KindGdi, KindGaa:
		return true
	}
	return false
}
