package utils

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Gruvbox-inspired palette
var (
	gruvboxFgDark      = text.Colors{text.FgHiBlack}
	gruvboxFgLight     = text.Colors{text.FgWhite}
	gruvboxRed         = text.Colors{text.FgRed}
	gruvboxGreen       = text.Colors{text.FgGreen}
	gruvboxYellow      = text.Colors{text.FgYellow}
	gruvboxBlue        = text.Colors{text.FgBlue}
	gruvboxAqua        = text.Colors{text.FgCyan}
	gruvboxBlueBright  = text.Colors{text.FgHiBlue}
	gruvboxAquaBright  = text.Colors{text.FgHiCyan}
	gruvboxBold        = text.Colors{text.Bold}
	gruvboxYellowBadge = text.Colors{text.FgHiYellow, text.Bold}
)

// Theme - exported theme colors for consistent UI
var Theme = struct {
	Success text.Colors
	Info    text.Colors
	Warning text.Colors
	Error   text.Colors
	Heading text.Colors
	Subtle  text.Colors
	Accent  text.Colors

	Title       text.Colors
	TableHeader text.Colors
	TableBorder text.Colors
	TableRow    text.Colors
	TableAltRow text.Colors
	Badge       text.Colors
}{
	Success: gruvboxGreen,
	Info:    gruvboxBlue,
	Warning: gruvboxYellow,
	Error:   gruvboxRed,
	Heading: append(text.Colors{}, append(gruvboxAquaBright, text.Bold)...),
	Subtle:  gruvboxFgDark,
	Accent:  gruvboxAqua,

	Title:       append(text.Colors{}, append(gruvboxAquaBright, text.Bold)...),
	TableHeader: append(text.Colors{}, append(gruvboxBlueBright, text.Bold)...),
	TableBorder: gruvboxBlue,
	TableRow:    gruvboxFgLight,
	TableAltRow: text.Colors{text.FgWhite, text.Faint},
	Badge:       gruvboxYellowBadge,
}

// Output is where the Print helpers write; tests swap it
var Output io.Writer = os.Stdout

// PrintHeading prints a formatted heading
func PrintHeading(title string) {
	fmt.Fprintln(Output, Theme.Heading.Sprint(title))
}

// PrintSuccess prints a success message
func PrintSuccess(message string) {
	fmt.Fprintln(Output, Theme.Success.Sprint("✓ ")+message)
}

// PrintInfo prints an info message
func PrintInfo(message string) {
	fmt.Fprintln(Output, Theme.Info.Sprint("ℹ ")+message)
}

// PrintWarning prints a warning message
func PrintWarning(message string) {
	fmt.Fprintln(Output, Theme.Warning.Sprint("⚠ ")+message)
}

// PrintError prints an error message
func PrintError(message string) {
	fmt.Fprintln(Output, Theme.Error.Sprint("✗ ")+message)
}

// PrintKeyValue prints a key-value pair
func PrintKeyValue(key, value string) {
	fmt.Fprintf(Output, "%s: %s\n", gruvboxBold.Sprint(key), value)
}

// Highlight renders a path or identifier in the accent color
func Highlight(s string) string {
	return color.YellowString("%s", s)
}

// Command renders a command name for hints like "run fyntra sync run"
func Command(s string) string {
	return color.CyanString("%s", s)
}

// StatusColor picks the color for a sync or queue status
func StatusColor(status string) text.Colors {
	switch status {
	case "synced", "completed", "online":
		return Theme.Success
	case "pending", "syncing":
		return Theme.Warning
	case "error", "offline", "no_connectivity":
		return Theme.Error
	default:
		return Theme.Subtle
	}
}

// ColorStatus renders status in its status color
func ColorStatus(status string) string {
	return StatusColor(status).Sprint(status)
}

// TableOptions defines options for table creation
type TableOptions struct {
	Title string
	Style table.Style
}

// DefaultTableOptions returns default table options with the Gruvbox theme
func DefaultTableOptions() TableOptions {
	return TableOptions{
		Title: "Fyntra",
		Style: table.StyleDouble,
	}
}

// CreateTable creates a new table with default styling
func CreateTable(options ...TableOptions) table.Writer {
	opts := DefaultTableOptions()
	if len(options) > 0 {
		opts = options[0]
	}

	t := table.NewWriter()
	t.SetOutputMirror(Output)

	if opts.Title != "" {
		t.SetTitle(opts.Title)
	}

	style := opts.Style
	style.Color.Header = Theme.TableHeader
	style.Color.Border = Theme.TableBorder
	style.Color.Row = Theme.TableRow
	style.Color.RowAlternate = Theme.TableAltRow
	style.Title.Colors = Theme.Title
	style.Title.Align = text.AlignCenter
	style.Options.DrawBorder = true
	style.Options.SeparateColumns = true
	style.Options.SeparateHeader = true
	style.Options.SeparateRows = false
	style.Box.PaddingLeft = " "
	style.Box.PaddingRight = " "
	t.SetStyle(style)

	return t
}

// PrintTable prints a table with headers and rows
func PrintTable(headers []string, rows [][]string, options ...TableOptions) {
	t := CreateTable(options...)

	headerRow := table.Row{}
	for _, header := range headers {
		headerRow = append(headerRow, header)
	}
	t.AppendHeader(headerRow)

	for _, row := range rows {
		tableRow := table.Row{}
		for _, cell := range row {
			tableRow = append(tableRow, cell)
		}
		t.AppendRow(tableRow)
	}

	configs := make([]table.ColumnConfig, 0, len(headers))
	for i := range headers {
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       text.AlignLeft,
			AlignHeader: text.AlignCenter,
		})
	}
	t.SetColumnConfigs(configs)

	t.Render()

	if len(rows) == 0 {
		fmt.Fprintln(Output, Theme.Subtle.Sprint("No records found."))
	}
}
