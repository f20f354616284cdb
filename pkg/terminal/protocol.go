package terminal

import (
	"os"
	"strings"
)

// GraphicsProtocol identifies whether the Kitty graphics protocol can be
// used against the detected terminal. tupimage has no fallback rendering
// path (no sixel, no iterm2 images, no halfblocks): either the terminal
// speaks Kitty graphics or it doesn't.
type GraphicsProtocol int

const (
	ProtocolNone  GraphicsProtocol = iota // No Kitty graphics support
	ProtocolKitty                         // Kitty graphics protocol (Ghostty, Kitty, WezTerm)
)

// protocolNames maps GraphicsProtocol values to human-readable strings.
var protocolNames = [...]string{
	ProtocolNone:  "none",
	ProtocolKitty: "kitty",
}

// String returns the human-readable name of the graphics protocol.
func (p GraphicsProtocol) String() string {
	if int(p) < len(protocolNames) {
		return protocolNames[p]
	}
	return "unknown"
}

// SelectProtocol reports whether term can receive Kitty graphics protocol
// commands. SSH sessions are not degraded: unlike richer TUI rendering,
// tupimage's job is to put bytes on the wire, and the Kitty protocol
// tunnels over SSH and tmux passthrough just fine.
func SelectProtocol(term Terminal) GraphicsProtocol {
	if term.SupportsKittyGraphics() {
		return ProtocolKitty
	}
	return ProtocolNone
}

// SelectProtocolWithOverride allows user configuration to force the
// graphics protocol decision. If override is empty, detection proceeds
// normally. Valid override values: "kitty", "none".
func SelectProtocolWithOverride(term Terminal, override string) GraphicsProtocol {
	if override == "" {
		return SelectProtocol(term)
	}
	switch strings.ToLower(override) {
	case "kitty":
		return ProtocolKitty
	case "none", "off", "disabled":
		return ProtocolNone
	default:
		// Unknown override, fall back to detection.
		return SelectProtocol(term)
	}
}

// isSSH reports whether the current session is running over SSH.
func isSSH() bool {
	return os.Getenv("SSH_TTY") != "" ||
		os.Getenv("SSH_CONNECTION") != "" ||
		os.Getenv("SSH_CLIENT") != ""
}
