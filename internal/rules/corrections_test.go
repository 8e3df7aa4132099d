package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"havoice/internal/domain"
)

func TestWordAndRegexRules(t *testing.T) {
	t.Parallel()

	c, err := Parse(`
# recognizer slips
turn of => turn off
s/\bliving\s*room\b/living room/g
`, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())

	got := c.Correct(domain.ModeCommandListening, "Turn of the livingroom lights")
	assert.Equal(t, "turn off the living room lights", got)
}

func TestWordRulesRespectWordBoundaries(t *testing.T) {
	t.Parallel()

	c, err := Parse("of => off", 0)
	require.NoError(t, err)

	assert.Equal(t, "turn off the office", c.Correct(domain.ModeCommandListening, "turn of the office"))
}

func TestRulesIterateUntilStable(t *testing.T) {
	t.Parallel()

	c, err := Parse("a => b\nb => c\n", 5)
	require.NoError(t, err)

	assert.Equal(t, "c", c.Correct(domain.ModeCommandListening, "a"))
}

func TestPassLimitStopsCycles(t *testing.T) {
	t.Parallel()

	c, err := Parse("ping => pong\npong => ping\n", 3)
	require.NoError(t, err)

	assert.Contains(t, []string{"ping", "pong"}, c.Correct(domain.ModeCommandListening, "ping"))
}

func TestScopedRules(t *testing.T) {
	t.Parallel()

	c, err := Parse(`
[wake] hey assistance => hey assistant
[command] lamp => light
`, 0)
	require.NoError(t, err)

	assert.Equal(t, "hey assistant", c.Correct(domain.ModeWakeWordListening, "hey assistance"))
	assert.Equal(t, "hey assistance", c.Correct(domain.ModeCommandListening, "hey assistance"))
	assert.Equal(t, "turn on the light", c.Correct(domain.ModeCommandListening, "turn on the lamp"))
	assert.Equal(t, "lamp", c.Correct(domain.ModeWakeWordListening, "lamp"))
}

func TestRegexFirstMatchOnlyWithoutGlobalFlag(t *testing.T) {
	t.Parallel()

	c, err := Parse(`s/(\d+) percent/$1%/`, 1)
	require.NoError(t, err)

	assert.Equal(t, "set to 50% then 20 percent", c.Correct(domain.ModeCommandListening, "set to 50 percent then 20 percent"))
}

func TestRuleStartingWithSIsWordRule(t *testing.T) {
	t.Parallel()

	c, err := Parse("sealing fan => ceiling fan", 0)
	require.NoError(t, err)

	assert.Equal(t, "start the ceiling fan", c.Correct(domain.ModeCommandListening, "start the sealing fan"))
}

func TestParseErrorsNameTheLine(t *testing.T) {
	t.Parallel()

	_, err := Parse("ok => fine\nnonsense\n", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")

	_, err = Parse("s/open/", 0)
	assert.Error(t, err)

	_, err = Parse("s/a/b/x", 0)
	assert.Error(t, err)

	_, err = Parse(" => empty", 0)
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "substitutions.rules")
	require.NoError(t, os.WriteFile(path, []byte("kitchen like => kitchen light\n"), 0o600))

	c, err := Load(path, 0)
	require.NoError(t, err)
	assert.Equal(t, "dim the kitchen light", c.Correct(domain.ModeCommandListening, "dim the kitchen like"))

	missing, err := Load(filepath.Join(dir, "missing.rules"), 0)
	require.NoError(t, err)
	assert.Zero(t, missing.Len())
	assert.Equal(t, "as is", missing.Correct(domain.ModeCommandListening, "as is"))

	var none *Corrections
	assert.Zero(t, none.Len())
}
