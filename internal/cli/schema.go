// Package cli describes the kbd command tree as JSON for scripts and agents that drive kbd.
package cli

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const helpJSONFlag = "help-json"

type FlagSchema struct {
	Name        string `json:"name"`
	Shorthand   string `json:"shorthand,omitempty"`
	Type        string `json:"type"`
	Default     string `json:"default,omitempty"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required"`
	Inherited   bool   `json:"inherited,omitempty"`
}

// CommandSchema mirrors one cobra command. Args is the positional part of Use, e.g. "<file>...".
type CommandSchema struct {
	Name        string          `json:"name"`
	Path        string          `json:"path"`
	Args        string          `json:"args,omitempty"`
	Aliases     []string        `json:"aliases,omitempty"`
	Description string          `json:"description,omitempty"`
	Long        string          `json:"long,omitempty"`
	Flags       []FlagSchema    `json:"flags,omitempty"`
	Subcommands []CommandSchema `json:"subcommands,omitempty"`
}

// GenerateSchema describes cmd and its visible subcommands.
func GenerateSchema(cmd *cobra.Command) CommandSchema {
	schema := CommandSchema{
		Name:        cmd.Name(),
		Path:        cmd.CommandPath(),
		Aliases:     cmd.Aliases,
		Description: cmd.Short,
		Long:        cmd.Long,
	}
	if _, args, ok := strings.Cut(cmd.Use, " "); ok {
		schema.Args = strings.TrimSpace(args)
	}

	cmd.LocalFlags().VisitAll(func(f *pflag.Flag) {
		if f.Name != helpJSONFlag && f.Name != "help" {
			schema.Flags = append(schema.Flags, describeFlag(f, false))
		}
	})
	cmd.InheritedFlags().VisitAll(func(f *pflag.Flag) {
		if f.Name != helpJSONFlag && f.Name != "help" {
			schema.Flags = append(schema.Flags, describeFlag(f, true))
		}
	})

	for _, sub := range cmd.Commands() {
		if sub.IsAvailableCommand() {
			schema.Subcommands = append(schema.Subcommands, GenerateSchema(sub))
		}
	}
	return schema
}

func describeFlag(f *pflag.Flag, inherited bool) FlagSchema {
	required := f.Annotations[cobra.BashCompOneRequiredFlag]
	return FlagSchema{
		Name:        f.Name,
		Shorthand:   f.Shorthand,
		Type:        f.Value.Type(),
		Default:     f.DefValue,
		Description: f.Usage,
		Required:    len(required) > 0 && required[0] == "true",
		Inherited:   inherited,
	}
}

// WriteSchema writes the schema of cmd as indented JSON.
func WriteSchema(w io.Writer, cmd *cobra.Command) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(GenerateSchema(cmd))
}

// AddHelpJSONFlag registers --help-json on cmd and every command below it.
func AddHelpJSONFlag(cmd *cobra.Command) {
	cmd.PersistentFlags().Bool(helpJSONFlag, false, "Print the command schema as JSON and exit")
}

// HelpJSONPath reports whether args ask for --help-json and returns the command words before the
// flag. It runs ahead of cobra so required args and flags do not get in the way.
func HelpJSONPath(args []string) ([]string, bool) {
	for i, arg := range args {
		if arg == "--"+helpJSONFlag {
			return args[:i], true
		}
	}
	return nil, false
}

// FindTargetCommand walks args down the command tree and returns the deepest match. The first
// argument that names no subcommand stops the walk.
func FindTargetCommand(cmd *cobra.Command, args []string) *cobra.Command {
	for len(args) > 0 {
		next := findSub(cmd, args[0])
		if next == nil {
			break
		}
		cmd, args = next, args[1:]
	}
	return cmd
}

func findSub(cmd *cobra.Command, name string) *cobra.Command {
	for _, sub := range cmd.Commands() {
		if sub.Name() == name || sub.HasAlias(name) {
			return sub
		}
	}
	return nil
}
