package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTree() *cobra.Command {
	root := &cobra.Command{Use: "kbd", Short: "root"}
	AddHelpJSONFlag(root)

	search := &cobra.Command{Use: "search <query>", Short: "Search", Run: func(*cobra.Command, []string) {}}
	search.Flags().IntP("top-k", "k", 5, "Number of matches")
	search.Flags().String("source", "", "Partition filter")
	_ = search.MarkFlagRequired("source")

	migrate := &cobra.Command{Use: "migrate", Short: "Migrations"}
	migrate.AddCommand(&cobra.Command{Use: "down", Aliases: []string{"rollback"}, Short: "Roll back", Run: func(*cobra.Command, []string) {}})

	hidden := &cobra.Command{Use: "secret", Hidden: true, Run: func(*cobra.Command, []string) {}}

	root.AddCommand(search, migrate, hidden)
	return root
}

func TestGenerateSchema(t *testing.T) {
	schema := GenerateSchema(testTree())

	assert.Equal(t, "kbd", schema.Name)
	require.Len(t, schema.Subcommands, 2)

	var search CommandSchema
	for _, sub := range schema.Subcommands {
		assert.NotEqual(t, "secret", sub.Name)
		if sub.Name == "search" {
			search = sub
		}
	}
	require.Len(t, search.Flags, 2)

	byName := map[string]FlagSchema{}
	for _, f := range search.Flags {
		byName[f.Name] = f
	}
	assert.Equal(t, "k", byName["top-k"].Shorthand)
	assert.Equal(t, "int", byName["top-k"].Type)
	assert.Equal(t, "5", byName["top-k"].Default)
	assert.False(t, byName["top-k"].Required)
	assert.True(t, byName["source"].Required)
	assert.Equal(t, "<query>", search.Args)
	assert.Equal(t, "kbd search", search.Path)
}

func TestGenerateSchema_InheritedFlags(t *testing.T) {
	root := testTree()
	root.PersistentFlags().StringP("output", "o", "text", "Output format")

	schema := GenerateSchema(FindTargetCommand(root, []string{"migrate", "down"}))
	require.Len(t, schema.Flags, 1)
	assert.Equal(t, "output", schema.Flags[0].Name)
	assert.True(t, schema.Flags[0].Inherited)
	assert.Equal(t, []string{"rollback"}, schema.Aliases)
}

func TestHelpJSONPath(t *testing.T) {
	path, ok := HelpJSONPath([]string{"migrate", "down", "--help-json"})
	assert.True(t, ok)
	assert.Equal(t, []string{"migrate", "down"}, path)

	_, ok = HelpJSONPath([]string{"search", "refunds"})
	assert.False(t, ok)
}

func TestWriteSchema(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSchema(&buf, testTree()))

	var decoded CommandSchema
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "kbd", decoded.Name)
	for _, f := range decoded.Flags {
		assert.NotEqual(t, "help-json", f.Name)
	}
}

func TestFindTargetCommand(t *testing.T) {
	root := testTree()

	assert.Equal(t, "kbd", FindTargetCommand(root, nil).Name())
	assert.Equal(t, "search", FindTargetCommand(root, []string{"search"}).Name())
	assert.Equal(t, "down", FindTargetCommand(root, []string{"migrate", "rollback"}).Name())
	assert.Equal(t, "migrate", FindTargetCommand(root, []string{"migrate", "--steps"}).Name())
	assert.Equal(t, "kbd", FindTargetCommand(root, []string{"unknown"}).Name())
}
