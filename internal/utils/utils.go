// Package utils holds small helpers shared by the CLI commands
package utils

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goombaio/namegenerator"
)

// GenerateDeviceName creates a memorable device name like "wispy-dust-fyntra".
// The hostname is used as the suffix when available.
func GenerateDeviceName() string {
	seed := time.Now().UTC().UnixNano()
	nameGenerator := namegenerator.NewNameGenerator(seed)

	// Some names have underscores; convert to hyphens for consistency
	name := strings.ReplaceAll(nameGenerator.Generate(), "_", "-")

	host, err := os.Hostname()
	if err != nil || host == "" {
		return name + "-fyntra"
	}
	return name + "-" + SanitizeName(host)
}

// SanitizeName lowercases s and collapses anything that is not a letter or
// digit into single hyphens
func SanitizeName(s string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			lastHyphen = false
			continue
		}
		if !lastHyphen {
			b.WriteByte('-')
			lastHyphen = true
		}
	}
	return strings.Trim(b.String(), "-")
}

// Truncate shortens s to max runes, ending with an ellipsis when cut
func Truncate(s string, max int) string {
	runes := []rune(s)
	if max <= 0 || len(runes) <= max {
		return s
	}
	if max == 1 {
		return "…"
	}
	return string(runes[:max-1]) + "…"
}

// FormatRelativeTime renders t relative to now, e.g. "5m ago"
func FormatRelativeTime(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}

	d := now.Sub(t)
	switch {
	case d < 0:
		return t.Local().Format(time.DateTime)
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return t.Local().Format(time.DateOnly)
	}
}
