package kittycmd

import (
	"encoding/base64"
	"strings"
	"testing"
)

// TestTransmitChunking verifies scenario S3: a 10,000-byte payload encodes
// to 13,336 base64 bytes, which max_command_size=4096 splits into four
// envelopes whose concatenated base64 payloads reconstitute the original
// encoding.
func TestTransmitChunking(t *testing.T) {
	payload := make([]byte, 10000)
	for i := range payload {
		payload[i] = byte(i % 251)
	}
	tr := Transmit{ImageID: 7, Format: FormatRGBA, Medium: MediumDirect, Payload: payload}

	chunks := tr.Serialize(4096)
	if len(chunks) != 4 {
		t.Fatalf("got %d chunks, want 4", len(chunks))
	}

	if !strings.Contains(chunks[0], "a=t") || !strings.Contains(chunks[0], "i=7") || !strings.Contains(chunks[0], "m=1") {
		t.Errorf("first chunk missing expected attrs: %q", chunks[0])
	}
	if !strings.Contains(chunks[1], "m=1") || strings.Contains(chunks[1], "a=t") {
		t.Errorf("middle chunk should carry only continuation attrs: %q", chunks[1])
	}
	if !strings.Contains(chunks[len(chunks)-1], "m=0") {
		t.Errorf("final chunk must carry m=0: %q", chunks[len(chunks)-1])
	}

	want := base64.StdEncoding.EncodeToString(payload)
	var got strings.Builder
	for _, c := range chunks {
		body := c[len(ESC) : len(c)-len(ST)]
		_, payloadPart, _ := strings.Cut(body, ";")
		got.WriteString(payloadPart)
	}
	if got.String() != want {
		t.Errorf("concatenated base64 payload mismatch")
	}
}

// TestMultiplexerWrap verifies scenario S4.
func TestMultiplexerWrap(t *testing.T) {
	put := DisplayPut{ImageID: 3, Put: Put{Cols: 2, Rows: 2}}
	chunks := put.Serialize(0)
	if len(chunks) != 1 {
		t.Fatalf("expected a single unchunked Put envelope, got %d", len(chunks))
	}
	inner := chunks[0]

	wrapped := WrapMultiplexer(inner, 1)
	if !strings.HasPrefix(wrapped, "\x1bPtmux;") || !strings.HasSuffix(wrapped, ST) {
		t.Fatalf("wrapped sequence missing tmux passthrough envelope: %q", wrapped)
	}
	body := wrapped[len("\x1bPtmux;") : len(wrapped)-len(ST)]
	wantBody := strings.ReplaceAll(inner, "\x1b", "\x1b\x1b")
	if body != wantBody {
		t.Errorf("tmux body = %q, want every ESC doubled: %q", body, wantBody)
	}
}

func TestMultiplexerWrapMultipleLayers(t *testing.T) {
	inner := envelope("a=d,d=a", "")
	wrapped := WrapMultiplexer(inner, 2)
	// Two layers must nest: stripping one tmux envelope should reveal a
	// sequence whose ESC bytes, once un-doubled, are themselves wrapped
	// again.
	if strings.Count(wrapped, "Ptmux;") != 2 {
		t.Fatalf("expected 2 nested tmux passthrough prefixes, got sequence %q", wrapped)
	}
}

func TestDisplayPutAttributes(t *testing.T) {
	put := DisplayPut{ImageID: 42, Quiet: QuietNoOK, Put: Put{PlacementID: 9, Cols: 10, Rows: 5, Virtual: true, DoNotMoveCursor: true}}
	got := put.Serialize(0)[0]
	for _, want := range []string{"a=p", "i=42", "p=9", "c=10", "r=5", "U=1", "C=1", "q=1"} {
		if !strings.Contains(got, want) {
			t.Errorf("serialized Put %q missing attr %q", got, want)
		}
	}
}

func TestDeleteByIDWithData(t *testing.T) {
	d := Delete{What: DeleteByID, FreeData: true, ImageID: 5}
	got := d.Serialize(0)[0]
	if !strings.Contains(got, "a=d") || !strings.Contains(got, "d=I") || !strings.Contains(got, "i=5") {
		t.Errorf("serialized Delete %q missing expected attrs", got)
	}
}

func TestDeleteAllNoData(t *testing.T) {
	d := Delete{What: DeleteAll}
	got := d.Serialize(0)[0]
	if !strings.Contains(got, "d=a") {
		t.Errorf("serialized Delete %q missing d=a", got)
	}
}

func TestTransmitWithEmbeddedPut(t *testing.T) {
	tr := Transmit{
		ImageID: 1, Format: FormatPNG, Medium: MediumDirect,
		Payload:   []byte("fakepngbytes"),
		Placement: &Put{Cols: 4, Rows: 2, Virtual: true},
	}
	chunks := tr.Serialize(4096)
	if len(chunks) != 1 {
		t.Fatalf("small payload should not be chunked, got %d chunks", len(chunks))
	}
	if !strings.Contains(chunks[0], "a=T") {
		t.Errorf("embedded placement should use action a=T, got %q", chunks[0])
	}
}

func TestTransmitFileMediumCarriesPathVerbatim(t *testing.T) {
	tr := Transmit{ImageID: 2, Format: FormatPNG, Medium: MediumFile, Payload: []byte("/tmp/img.png")}
	chunks := tr.Serialize(4096)
	if len(chunks) != 1 {
		t.Fatalf("file medium should never be chunked, got %d chunks", len(chunks))
	}
	if !strings.Contains(chunks[0], ";/tmp/img.png") {
		t.Errorf("file medium payload should be the raw path, got %q", chunks[0])
	}
	if !strings.Contains(chunks[0], "t=f") {
		t.Errorf("file medium should set t=f, got %q", chunks[0])
	}
}

// TestResponseRoundTrip verifies invariant 7: parsing a response produced
// by this code's own serializer reproduces the same structured fields.
func TestResponseRoundTrip(t *testing.T) {
	cases := []Response{
		{ImageID: 7, PlacementID: 2, Message: "OK", IsOK: true},
		{ImageID: 9, Message: "ENOENT: no such image", IsOK: false},
	}
	for _, want := range cases {
		wire := FormatResponse(want)
		got := ParseResponse([]byte(wire))
		if !got.IsValid {
			t.Fatalf("ParseResponse(%q): not valid", wire)
		}
		if got.ImageID != want.ImageID || got.PlacementID != want.PlacementID || got.Message != want.Message || got.IsOK != want.IsOK {
			t.Errorf("round trip mismatch: got %+v, want %+v", got, want)
		}
	}
}

func TestParseResponsePreservesNonResponseBytes(t *testing.T) {
	junk := []byte("garbage-before-response")
	wire := append(append([]byte{}, junk...), []byte(FormatResponse(Response{ImageID: 1, IsOK: true}))...)
	got := ParseResponse(wire)
	if !got.IsValid {
		t.Fatal("expected a valid response after the junk prefix")
	}
	if string(got.NonResponse) != string(junk) {
		t.Errorf("NonResponse = %q, want %q", got.NonResponse, junk)
	}
}

func TestParseResponseInvalidOnMissingTerminator(t *testing.T) {
	got := ParseResponse([]byte(ESC + "i=1;OK"))
	if got.IsValid {
		t.Fatal("expected IsValid=false for a response missing its ST terminator")
	}
}
