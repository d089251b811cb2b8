/**
 * Terminal Menu.
 *
 * The minimal interactive surface sentinelctl runs on: a numbered
 * option loop plus prompt and table helpers. Deliberately plain
 * stdin/stdout, no terminal library.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

// this is super simple for now, i might decie to do a full GUI later

package cli

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

const banner = `
╔═══════════════════════════════════════════════════════════╗
║                       Sentinel v0.1                        ║
║          Network Traffic Analysis & Monitoring             ║
╚═══════════════════════════════════════════════════════════╝
`

// Menu is one screen of numbered options. Display loops until the user
// picks the Exit entry.
type Menu struct {
	Title   string
	Options []MenuOption
	reader  *bufio.Reader
}

// MenuOption pairs a label with the action it runs when selected.
type MenuOption struct {
	Label  string
	Action func() error
}

func NewMenu(title string) *Menu {
	return &Menu{
		Title:  title,
		reader: bufio.NewReader(os.Stdin),
	}
}

func (m *Menu) AddOption(label string, action func() error) {
	m.Options = append(m.Options, MenuOption{Label: label, Action: action})
}

// Display renders the menu, reads a selection, and runs its action,
// looping until Exit is chosen. An action error is shown and the loop
// continues; only input stream errors end the loop early.
func (m *Menu) Display() error {
	for {
		ClearScreen()
		fmt.Print(banner)

		if m.Title != "" {
			fmt.Println(m.Title)
			fmt.Println(strings.Repeat("━", 60))
		}
		for i, opt := range m.Options {
			fmt.Printf("  %d. %s\n", i+1, opt.Label)
		}
		fmt.Printf("\nSelect option [1-%d]: ", len(m.Options))

		choice, err := m.readInt()
		if err != nil || choice < 1 || choice > len(m.Options) {
			fmt.Print("\n⚠️  Invalid option. Press Enter to continue...")
			m.reader.ReadString('\n')
			continue
		}

		selected := m.Options[choice-1]
		if selected.Label == "Exit" {
			return nil
		}
		if err := selected.Action(); err != nil {
			fmt.Printf("\n❌ Error: %v\n", err)
			fmt.Print("Press Enter to continue...")
			m.reader.ReadString('\n')
		}
	}
}

func (m *Menu) readInt() (int, error) {
	input, err := m.reader.ReadString('\n')
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(input))
}

// Prompt prints message and returns the trimmed line the user enters.
func Prompt(message string) (string, error) {
	fmt.Print(message)
	input, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(input), nil
}

// PromptInt prompts and parses the reply as an integer.
func PromptInt(message string) (int, error) {
	input, err := Prompt(message)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(input)
}

// PressEnterToContinue blocks until the user presses Enter.
func PressEnterToContinue() {
	fmt.Print("\nPress Enter to continue...")
	bufio.NewReader(os.Stdin).ReadString('\n')
}

// ShowMessage prints message and pauses.
func ShowMessage(message string) {
	fmt.Println("\n" + message)
	PressEnterToContinue()
}

// ClearScreen resets the terminal via ANSI escapes.
func ClearScreen() {
	fmt.Print("\033[H\033[2J")
}

// Table prints headers and rows with columns padded to the widest cell.
func Table(headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	fmt.Println()
	for i, h := range headers {
		fmt.Printf("%-*s  ", widths[i], h)
	}
	fmt.Println()
	for _, w := range widths {
		fmt.Print(strings.Repeat("━", w) + "  ")
	}
	fmt.Println()
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) {
				fmt.Printf("%-*s  ", widths[i], cell)
			}
		}
		fmt.Println()
	}
	fmt.Println()
}
