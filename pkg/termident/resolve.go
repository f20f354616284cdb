package termident

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
)

// identityKey is the Store key a resolved terminal identity is cached
// under, scoped by the signal that produced it.
func identityKey(scope, value string) string {
	return "terminal-id:" + scope + ":" + value
}

// Resolve returns a stable terminal_id for the current process's
// controlling terminal. It prefers, in order: $KITTY_WINDOW_ID (stable
// across the lifetime of a Kitty OS window), $WINDOWID (X11), then the tty
// device path backing outFd. Whichever signal is used, the resulting id is
// cached in store so that repeated resolutions for the same signal value
// return the same terminal_id even if a fresh random suffix would
// otherwise be generated.
func Resolve(store *Store, outFd uintptr) (string, error) {
	if v := os.Getenv("KITTY_WINDOW_ID"); v != "" {
		return resolveScoped(store, "kitty-window", v)
	}
	if v := os.Getenv("WINDOWID"); v != "" {
		return resolveScoped(store, "x11-window", v)
	}
	if outFd != 0 && isatty.IsTerminal(outFd) {
		if path, err := ttyPath(outFd); err == nil && path != "" {
			return resolveScoped(store, "tty-path", path)
		}
	}
	return resolveScoped(store, "pid", fmt.Sprintf("%d", os.Getpid()))
}

func resolveScoped(store *Store, scope, value string) (string, error) {
	key := identityKey(scope, value)
	if id, ok := GetTyped[string](store, key); ok {
		return id, nil
	}
	id, err := randomTerminalID()
	if err != nil {
		return "", err
	}
	if err := PutTypedWithTTL(store, key, id, 0); err != nil {
		return "", fmt.Errorf("termident: persist terminal id: %w", err)
	}
	return id, nil
}

func randomTerminalID() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("termident: generate terminal id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// ttyPath resolves the device path backing fd by reading its /proc/self/fd
// symlink. Not supported on platforms without /proc.
func ttyPath(fd uintptr) (string, error) {
	link := fmt.Sprintf("/proc/self/fd/%d", fd)
	target, err := os.Readlink(link)
	if err != nil {
		return "", err
	}
	return target, nil
}
