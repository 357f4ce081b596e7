package fakeserver

import "github.com/ggeimport/ggeimport/internal/protocol"

// Sample player and castle ids used by SampleScript.
const (
	SampleAllyJansen    int64 = 1001
	SampleAllyPietersen int64 = 1002
	SampleStranger      int64 = 2001
)

const sampleGbd = `{
  "gpi": {"PN": "tester", "PID": 1001},
  "acl": {"M": ["chat is dropped"]},
  "ain": {"A": {"AID": 77, "N": "De Lage Landen", "M": [
    {"OID": 1001, "N": "Jansen",
     "AP": [[0, 5001, 546, 680, 1], [1, 5002, 100, 200, 1], [4, 9]],
     "VP": [[0, 5003, 550, 690]]},
    {"OID": 1002, "N": "Pietersen",
     "AP": [[0, 5010, 560, 677, 1]],
     "VP": []}
  ]}}
}`

const sampleGdiJansen = `{
  "O": {"OID": 1001, "N": "Jansen"},
  "gcl": {"C": [
    {"KID": 0, "AI": [
      {"AI": [1, 546, 680, 5001, 1001, 0, "Burcht Jansen", 0, 0, 0]},
      {"AI": [1, 550, 690, 5003, 1001, 0, 0, 0, 0, 0, "Uitpost Noord", 0, 0, 0, 0, 0, 0, 0]}
    ]},
    {"KID": 1, "AI": [
      {"AI": [1, 100, 200, 5002, 1001, 0, "Zandkasteel", 0, 0, 0]}
    ]}
  ]}
}`

const sampleGdiPietersen = `{
  "O": {"OID": 1002, "N": "Pietersen"},
  "gcl": {"C": [
    {"KID": 0, "AI": [
      {"AI": [1, 560, 677, 5010, 1002, 0, "Pietersburg", 0, 0, 0]}
    ]}
  ]}
}`

const sampleGaaGrass = `{
  "KID": 0,
  "OI": [
    {"OID": 2001, "N": "Vreemdeling", "AP": [[0, 6001, 552, 681]], "VP": [[0, 6002]]}
  ],
  "AI": [
    [1, 552, 681, 6001, 2001, 0, "Vreemde Burcht", 0, 0, 0],
    [2, 553, 682],
    [1, 546, 680, 5001, 1001, 0, "Burcht Jansen", 0, 0, 0]
  ]
}`

// SampleScript returns a small consistent data set: two alliance members
// with three and one castles, one stranger found by a region query on the
// grass world, and the keep-alive, chat and info traffic the real server
// mixes in.
func SampleScript() Script {
	return Script{
		OnLogin: []string{
			protocol.ServerFrame(protocol.TagNfo, `{"XP":1}`),
			protocol.ServerFrame(protocol.TagCoreGpi, `{"PID":1001}`),
			protocol.ServerFrame(protocol.TagGbd, sampleGbd),
			protocol.ServerFrame(protocol.TagKpi, ""),
			protocol.ServerFrame(protocol.TagIrc, `hallo%iedereen`),
			protocol.ServerFrame(protocol.TagSei, `{"E":[]}`),
			protocol.ServerFrame(protocol.TagGam, `{"M":[]}`),
			protocol.ServerFrame("xyz", `{}`),
		},
		Details: map[int64]string{
			SampleAllyJansen:    sampleGdiJansen,
			SampleAllyPietersen: sampleGdiPietersen,
		},
		Regions: map[int]string{
			0: sampleGaaGrass,
		},
	}
}
