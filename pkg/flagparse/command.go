package flagparse

import (
	"fmt"
	"slices"
	"strings"

	"github.com/paulschiretz/holland/pkg/util"
)

// Command is the subcommand to execute.
type Command int

const (
	None Command = iota
	Backup
	ListBackups
	ListPlugins
	ListCommands
	Purge
	MkConfig
	Help
	Version
)

var commandToString = map[Command]string{
	None:         "none",
	Backup:       "backup",
	ListBackups:  "list-backups",
	ListPlugins:  "list-plugins",
	ListCommands: "list-commands",
	Purge:        "purge",
	MkConfig:     "mk-config",
	Help:         "help",
	Version:      "version",
}

var stringToCommand map[string]Command

// commandAliases are the short names accepted in place of a command.
var commandAliases = map[string]Command{
	"bk": Backup,
	"lb": ListBackups,
	"lp": ListPlugins,
	"lc": ListCommands,
	"mc": MkConfig,
}

var commandSummaries = map[Command]string{
	Backup:       "Run backups for the named backupsets, or the defaults from holland.conf",
	ListBackups:  "List the backups in the spool",
	ListPlugins:  "List the available backup and hook plugins",
	ListCommands: "List the available commands",
	Purge:        "Remove backups or trim backupsets to their retention",
	MkConfig:     "Generate a backupset config for a plugin",
	Help:         "Show help for a command",
	Version:      "Print the version",
}

func init() {
	stringToCommand = util.InvertMap(commandToString)
	delete(stringToCommand, "none")
}

func (c Command) String() string {
	if str, ok := commandToString[c]; ok {
		return str
	}
	return fmt.Sprintf("unknown_command(%d)", c)
}

// Summary is the one-line description of the command.
func (c Command) Summary() string {
	return commandSummaries[c]
}

// Aliases returns the short names of the command, sorted.
func (c Command) Aliases() []string {
	var out []string
	for alias, cmd := range commandAliases {
		if cmd == c {
			out = append(out, alias)
		}
	}
	slices.Sort(out)
	return out
}

// Commands returns every runnable command in display order.
func Commands() []Command {
	return []Command{Backup, ListBackups, ListPlugins, ListCommands, Purge, MkConfig, Help, Version}
}

func ParseCommand(s string) (Command, error) {
	s = strings.ToLower(s)
	if command, ok := stringToCommand[s]; ok {
		return command, nil
	}
	if command, ok := commandAliases[s]; ok {
		return command, nil
	}
	names := make([]string, 0, len(Commands()))
	for _, c := range Commands() {
		names = append(names, c.String())
	}
	return None, fmt.Errorf("invalid command: %q. Must be one of %s", s, strings.Join(names, ", "))
}
