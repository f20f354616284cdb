package kittycmd

import (
	"strconv"
	"strings"
)

// Response is the parsed structured form of a terminal's reply envelope
// (`ESC _ G <attrs> ; <message> ESC \`).
type Response struct {
	ImageID     uint32
	ImageNumber uint32
	PlacementID uint32
	Message     string
	IsOK        bool
	IsValid     bool
	// NonResponse holds any bytes that preceded the recognized response
	// header; these are never discarded.
	NonResponse []byte
}

// ParseResponse scans buf for one `ESC _ G ... ESC \` response envelope.
// Bytes before the envelope are returned as NonResponse. If no complete
// envelope is found, the result has IsValid = false and NonResponse holds
// the entire buffer.
func ParseResponse(buf []byte) Response {
	start := strings.Index(string(buf), ESC)
	if start < 0 {
		return Response{IsValid: false, NonResponse: buf}
	}
	rest := buf[start+len(ESC):]
	end := strings.Index(string(rest), ST)
	if end < 0 {
		return Response{IsValid: false, NonResponse: buf}
	}

	body := string(rest[:end])
	nonResponse := buf[:start]

	var controlData, message string
	if sep := strings.IndexByte(body, ';'); sep >= 0 {
		controlData, message = body[:sep], body[sep+1:]
	} else {
		controlData = body
	}

	resp := Response{IsValid: true, Message: message, NonResponse: nonResponse}
	if controlData != "" {
		for _, pair := range strings.Split(controlData, ",") {
			k, v, ok := strings.Cut(pair, "=")
			if !ok {
				continue
			}
			n, _ := strconv.ParseUint(v, 10, 32)
			switch k {
			case "i":
				resp.ImageID = uint32(n)
			case "I":
				resp.ImageNumber = uint32(n)
			case "p":
				resp.PlacementID = uint32(n)
			}
		}
	}
	resp.IsOK = resp.Message == "OK"
	return resp
}

// FormatResponse serializes a structured response back onto the wire.
// Used by tests exercising the round-trip property, and by test doubles
// standing in for a terminal.
func FormatResponse(r Response) string {
	var attrs []string
	if r.ImageID != 0 {
		attrs = append(attrs, "i="+strconv.FormatUint(uint64(r.ImageID), 10))
	}
	if r.ImageNumber != 0 {
		attrs = append(attrs, "I="+strconv.FormatUint(uint64(r.ImageNumber), 10))
	}
	if r.PlacementID != 0 {
		attrs = append(attrs, "p="+strconv.FormatUint(uint64(r.PlacementID), 10))
	}
	msg := r.Message
	if msg == "" && r.IsOK {
		msg = "OK"
	}
	return ESC + strings.Join(attrs, ",") + ";" + msg + ST
}
