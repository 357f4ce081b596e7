package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ggeimport/ggeimport/internal/errs"
)

func TestClassifyEmpty(t *testing.T) {
	msg := Classify("")
	assert.Equal(t, KindEmpty, msg.Kind)
	assert.Empty(t, msg.Tag)
	assert.Empty(t, msg.Payload)
}

func TestClassifyKnownTags(t *testing.T) {
	tests := []struct {
		raw     string
		kind    Kind
		payload string
	}{
		{"%xt%kpi%1%0%", KindKpi, ""},
		{"%xt%gam%1%0%{\"M\":[]}%", KindGam, `{"M":[]}`},
		{"%gbd%1%0%{\"ain\":{}}%", KindGbd, `{"ain":{}}`},
		{"%xt%gdi%1%0%{\"O\":{\"OID\":7}}", KindGdi, `{"O":{"OID":7}}`},
		{"%xt%sei%1%0%{}%", KindSei, "{}"},
		{"%xt%irc%1%0%hello%world%", KindIrc, "hello%world"},
		{"%xt%nfo%1%0%{}%", KindNfo, "{}"},
		{"%xt%core_gpi%1%0%{}%", KindCoreGpi, "{}"},
		{"%xt%gaa%1%0%{\"KID\":0}%", KindGaa, `{"KID":0}`},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			msg := Classify(tt.raw)
			assert.Equal(t, tt.kind, msg.Kind)
			assert.Equal(t, Tag(tt.kind.String()), msg.Tag)
			assert.Equal(t, tt.payload, msg.Payload)
		})
	}
}

func TestClassifyTrimsOnlyOneTrailingPercent(t *testing.T) {
	msg := Classify("%xt%gbd%1%0%abc%%")
	assert.Equal(t, KindGbd, msg.Kind)
	assert.Equal(t, "abc%", msg.Payload)
}

func TestClassifyMultilinePayload(t *testing.T) {
	msg := Classify("%xt%gbd%1%0%{\n\"a\": 1\n}%")
	assert.Equal(t, KindGbd, msg.Kind)
	assert.Equal(t, "{\n\"a\": 1\n}", msg.Payload)
}

func TestClassifyUnknownTag(t *testing.T) {
	msg := Classify("%xt%xyz%1%0%data%")
	assert.Equal(t, KindUnrecognized, msg.Kind)
	assert.Equal(t, Tag("xyz"), msg.Tag)
	assert.Equal(t, "data", msg.Payload)
}

func TestClassifyNonMatchingPreservesText(t *testing.T) {
	inputs := []string{
		VersionAccepted,
		"hello",
		"%xt%gbd%2%0%{}",
		"%gbd%1%1%{}",
		"xt%gbd%1%0%{}",
		"%%1%0%{}",
	}

	for _, raw := range inputs {
		msg := Classify(raw)
		assert.Equal(t, KindUnrecognized, msg.Kind, raw)
		assert.Empty(t, msg.Tag, raw)
		assert.Equal(t, raw, msg.Payload, raw)
	}
}

func TestMessageFilters(t *testing.T) {
	assert.True(t, Classify("%xt%kpi%1%0%").IsNoise())
	assert.True(t, Classify("%xt%irc%1%0%hi%").IsNoise())
	assert.False(t, Classify("%xt%gbd%1%0%{}%").IsNoise())

	assert.True(t, Message{Kind: KindGbd}.IsStructured())
	assert.True(t, Message{Kind: KindGdi}.IsStructured())
	assert.True(t, Message{Kind: KindGaa}.IsStructured())
	assert.False(t, Message{Kind: KindSei}.IsStructured())
}

func TestStructured(t *testing.T) {
	msg := Classify(`%xt%gbd%1%0%{"ain":{"A":{"M":[{"OID":5,"N":"bob"}]}}}%`)
	res, err := msg.Structured()
	require.NoError(t, err)
	assert.Equal(t, int64(5), res.Get("ain.A.M.0.OID").Int())
	assert.Equal(t, "bob", res.Get("ain.A.M.0.N").String())
}

func TestStructuredMalformed(t *testing.T) {
	msg := Classify("%xt%gbd%1%0%{not json%")
	_, err := msg.Structured()
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrMalformedPayload)
	assert.True(t, errs.IsKind(err, errs.KindProtocol))
	assert.Contains(t, err.Error(), "gbd")
}

func TestKindStringAndJSON(t *testing.T) {
	assert.Equal(t, "core_gpi", KindCoreGpi.String())
	assert.Equal(t, "unknown", Kind(99).String())

	data, err := json.Marshal(Message{Kind: KindGaa, Tag: TagGaa, Payload: "{}"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"gaa","tag":"gaa","payload":"{}"}`, string(data))
}

func TestRenderDetailRequest(t *testing.T) {
	frame, err := Render(DefaultRoom, DetailRequest{OccupantID: 1234})
	require.NoError(t, err)
	assert.Equal(t, `%xt%EmpireEx_11%gdi%1%{"PID":1234}%`, frame)
}

func TestRenderRegionQuery(t *testing.T) {
	frame, err := Render(DefaultRoom, RegionQuery{Region: 2, X1: 0, Y1: 10, X2: 12, Y2: 22})
	require.NoError(t, err)
	assert.Equal(t, `%xt%EmpireEx_11%gaa%1%{"KID":2,"AX1":0,"AY1":10,"AX2":12,"AY2":22}%`, frame)
}

func TestCredentialToken(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	assert.Equal(t, "1700000000123%nl%", CredentialToken(now, "nl"))
}

func TestBuildLoginXML(t *testing.T) {
	xml := BuildLoginXML("EmpireEx_11", "1700000000123%nl%")
	assert.Equal(t,
		"<msg t='sys'><body action='login' r='0'><login z='EmpireEx_11'>"+
			"<nick><![CDATA[]]></nick><pword><![CDATA[1700000000123%nl%]]></pword>"+
			"</login></body></msg>",
		xml)
}

func TestBuildLoginCode(t *testing.T) {
	frame, err := BuildLoginCode(DefaultRoom, "nl", Credentials{Username: "alice", Password: "s3cret"})
	require.NoError(t, err)

	require.True(t, len(frame) > len("%xt%EmpireEx_11%lli%1%"))
	assert.Equal(t, "%xt%EmpireEx_11%lli%1%", frame[:len("%xt%EmpireEx_11%lli%1%")])
	assert.Equal(t, byte('%'), frame[len(frame)-1])

	body := frame[len("%xt%EmpireEx_11%lli%1%") : len(frame)-1]
	assert.JSONEq(t, `{
		"CONM":413,"KID":"","DID":"","ID":0,"PW":"s3cret",
		"AID":"1456064275209394654","NOM":"alice","RTM":129,"LANG":"nl"
	}`, body)
}

func TestVersionCheckLiterals(t *testing.T) {
	assert.Equal(t, "<msg t='sys'><body action='verChk' r='0'><ver v='166' /></body></msg>", BuildVersionCheck())
	assert.True(t, IsVersionAccepted("<msg t='sys'><body action='apiOK' r='0'></body></msg>"))
	assert.False(t, IsVersionAccepted("<msg t='sys'><body action='apiKO' r='0'></body></msg>"))
}

func TestFrameBuilderReset(t *testing.T) {
	b := NewFrameBuilder()
	b.WriteField("a").WriteField("b")
	assert.Equal(t, "%a%b", b.Build())
	assert.Equal(t, 4, b.Len())

	b.Reset()
	assert.Equal(t, 0, b.Len())
	_, err := b.WriteJSON(func() {})
	assert.Error(t, err)
}

func TestServerFrameRoundTrip(t *testing.T) {
	frame := ServerFrame(TagGbd, `{"a":1}`)
	assert.Equal(t, `%xt%gbd%1%0%{"a":1}%`, frame)

	msg := Classify(frame)
	assert.Equal(t, KindGbd, msg.Kind)
	assert.Equal(t, `{"a":1}`, msg.Payload)
}

func TestParseRequest(t *testing.T) {
	reqs := []Request{
		DetailRequest{OccupantID: 77},
		RegionQuery{Region: 1, X1: 546, Y1: 676, X2: 558, Y2: 688},
	}
	for _, req := range reqs {
		frame, err := Render("EmpireEx_3", req)
		require.NoError(t, err)

		room, got, err := ParseRequest(frame)
		require.NoError(t, err)
		assert.Equal(t, "EmpireEx_3", room)
		assert.Equal(t, req, got)
	}
}

func TestParseRequestRejects(t *testing.T) {
	_, _, err := ParseRequest("hello")
	assert.True(t, errs.IsKind(err, errs.KindProtocol))

	_, _, err = ParseRequest(`%xt%EmpireEx_11%gdi%1%{oops%`)
	assert.ErrorIs(t, err, errs.ErrMalformedPayload)

	_, _, err = ParseRequest(`%xt%EmpireEx_11%zzz%1%{}%`)
	assert.Error(t, err)
}

func TestParseLoginCode(t *testing.T) {
	creds := Credentials{Username: "alice", Password: "pa%ss"}
	frame, err := BuildLoginCode("EmpireEx_11", "nl", creds)
	require.NoError(t, err)

	room, got, err := ParseLoginCode(frame)
	require.NoError(t, err)
	assert.Equal(t, "EmpireEx_11", room)
	assert.Equal(t, creds, got)

	_, _, err = ParseLoginCode(`%xt%EmpireEx_11%gdi%1%{"PID":1}%`)
	assert.Error(t, err)
}
