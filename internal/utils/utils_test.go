package utils

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGenerateDeviceName(t *testing.T) {
	name := GenerateDeviceName()
	assert.NotEmpty(t, name)
	assert.NotContains(t, name, "_")
	assert.NotContains(t, name, " ")
	assert.GreaterOrEqual(t, strings.Count(name, "-"), 2)
}

func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "work-laptop", SanitizeName("Work Laptop"))
	assert.Equal(t, "mac-local", SanitizeName("  Mac.local!! "))
	assert.Equal(t, "a-b", SanitizeName("a__--__b"))
	assert.Empty(t, SanitizeName("---"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "Fuga", Truncate("Fuga", 10))
	assert.Equal(t, "Ascens…", Truncate("Ascensor parado", 7))
	assert.Equal(t, "Cañ…", Truncate("Cañería rota", 4))
	assert.Equal(t, "abc", Truncate("abc", 0))
}

func TestFormatRelativeTime(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, "never", FormatRelativeTime(time.Time{}, now))
	assert.Equal(t, "just now", FormatRelativeTime(now.Add(-30*time.Second), now))
	assert.Equal(t, "5m ago", FormatRelativeTime(now.Add(-5*time.Minute), now))
	assert.Equal(t, "3h ago", FormatRelativeTime(now.Add(-3*time.Hour), now))
	assert.Equal(t, "2d ago", FormatRelativeTime(now.Add(-50*time.Hour), now))
}

func TestPrintTable(t *testing.T) {
	var buf bytes.Buffer
	prev := Output
	Output = &buf
	t.Cleanup(func() { Output = prev })

	PrintTable([]string{"ID", "Título"}, [][]string{{"12", "Ascensor parado"}}, TableOptions{Title: "Incidencias"})
	out := buf.String()
	assert.Contains(t, out, "Incidencias")
	assert.Contains(t, out, "Ascensor parado")

	buf.Reset()
	PrintTable([]string{"ID"}, nil)
	assert.Contains(t, buf.String(), "No records found.")
}

func TestStatusColor(t *testing.T) {
	assert.Equal(t, Theme.Success, StatusColor("synced"))
	assert.Equal(t, Theme.Warning, StatusColor("pending"))
	assert.Equal(t, Theme.Error, StatusColor("error"))
	assert.Equal(t, Theme.Subtle, StatusColor("whatever"))
}
