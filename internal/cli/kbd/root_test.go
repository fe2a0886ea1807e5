package kbd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRootCmd_RegistersSubcommands(t *testing.T) {
	root := NewRootCmd()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "ingest", "search", "backfill", "embed-dim", "watch", "migrate"}, names)

	migrate, _, err := root.Find([]string{"migrate", "down"})
	require.NoError(t, err)
	assert.Equal(t, "down", migrate.Name())
	assert.NotNil(t, migrate.Flags().Lookup("steps"))
}

func execute(t *testing.T, args ...string) error {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	return root.Execute()
}

func TestIngest_TitleNeedsSingleFile(t *testing.T) {
	err := execute(t, "ingest", "--title", "Pricing", "a.pdf", "b.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "single file")
}

func TestIngest_RequiresFile(t *testing.T) {
	assert.Error(t, execute(t, "ingest"))
}

func TestMigrateDown_RejectsNonPositiveSteps(t *testing.T) {
	err := execute(t, "migrate", "down", "--steps", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--steps")
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "short text", snippet("short \n\n text"))

	long := strings.Repeat("é", 200)
	got := snippet(long)
	assert.Len(t, []rune(got), snippetLen)
	assert.True(t, strings.HasSuffix(got, "..."))
}
