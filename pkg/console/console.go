package console

import (
	"fmt"
	"sort"
	"strings"

	"github.com/voltgrid/voltgrid/pkg/cvars"
)

// ErrQuit is returned by Execute when the user asks to leave. The host owns
// process lifetime, so it decides what quitting means.
type ErrQuit struct{}

func (e *ErrQuit) Error() string {
	return "quit requested"
}

// ErrParse means the line could not be split into a command shape the
// console understands.
type ErrParse struct {
	Line string
}

func (e *ErrParse) Error() string {
	return fmt.Sprintf("could not parse %q", e.Line)
}

// ErrUnknownCommand means the first word is neither a builtin nor a cvar.
type ErrUnknownCommand struct {
	Name string
}

func (e *ErrUnknownCommand) Error() string {
	return fmt.Sprintf("unknown command %q", e.Name)
}

const helpText = `Type 'list' to see the available variables.
Get a value with 'varname', set it with 'varname value'.
Other commands: help, quit.`

// Console turns lines of text into registry reads and writes. Commands are
// dispatched with a plain switch; anything that is not a builtin falls back
// to the cvar get/set forms.
type Console struct {
	registry *cvars.Registry
}

func NewConsole(registry *cvars.Registry) *Console {
	return &Console{registry: registry}
}

// Greeting is printed once when an interactive console opens.
func (c *Console) Greeting() string {
	return "Type 'help' for a list of commands."
}

// Execute runs one line and returns its output. An empty line is a no-op.
func (c *Console) Execute(line string) (string, error) {
	fields := strings.Fields(line)
	switch len(fields) {
	case 0:
		return "", nil
	case 1:
		return c.executeWord(fields[0])
	case 2:
		return c.set(fields[0], fields[1])
	default:
		return "", &ErrParse{Line: line}
	}
}

func (c *Console) executeWord(word string) (string, error) {
	switch word {
	case "help", "?":
		return helpText, nil
	case "list":
		return c.list(), nil
	case "quit", "exit":
		return "", &ErrQuit{}
	default:
		return c.get(word)
	}
}

func (c *Console) get(name string) (string, error) {
	value, err := c.registry.String(name)
	if err != nil {
		if cvars.IsNotFound(err) {
			return "", &ErrUnknownCommand{Name: name}
		}
		return "", err
	}
	return fmt.Sprintf("%s = %s", name, value), nil
}

func (c *Console) set(name, value string) (string, error) {
	if err := c.registry.SetString(name, value); err != nil {
		if cvars.IsNotFound(err) {
			return "", &ErrUnknownCommand{Name: name}
		}
		return "", err
	}
	return fmt.Sprintf("%s = %s", name, value), nil
}

func (c *Console) list() string {
	infos := c.registry.List()
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })

	var b strings.Builder
	for i, info := range infos {
		if i > 0 {
			b.WriteByte('\n')
		}
		value, err := c.registry.String(info.Name)
		if err != nil {
			value = "?"
		}
		fmt.Fprintf(&b, "%s = %s", info.Name, value)
	}
	return b.String()
}
