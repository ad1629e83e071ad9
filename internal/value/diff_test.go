package value_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"recordsync/internal/value"
)

func mustParse(t *testing.T, s string) value.Value {
	t.Helper()
	v, err := value.Parse([]byte(s))
	require.NoError(t, err)
	return v
}

func TestDiffScalars(t *testing.T) {
	require.True(t, value.Diff(value.NewString("a"), value.NewString("a")).Empty())
	c := value.Diff(value.NewString("a"), value.NewString("b"))
	require.Equal(t, value.Replaced, c.Kind)
	require.Equal(t, `{"old":"a","new":"b"}`, c.ToValue().String())
}

func TestDiffKindChangeIsReplacement(t *testing.T) {
	c := value.Diff(value.NewString("1"), value.NewInt(1))
	require.Equal(t, value.Replaced, c.Kind)
	require.Equal(t, []string{"$"}, c.Paths())
}

func TestDiffSequencesAsSets(t *testing.T) {
	old := mustParse(t, `["a","b","c"]`)
	reordered := mustParse(t, `["c","a","b"]`)
	require.True(t, value.Diff(old, reordered).Empty())

	c := value.Diff(old, mustParse(t, `["b","d","a"]`))
	require.Equal(t, value.SetChanged, c.Kind)
	require.Equal(t, `{"added":["d"],"removed":["c"]}`, c.ToValue().String())
}

func TestDiffSequenceMembersIgnoreKeyOrder(t *testing.T) {
	old := mustParse(t, `[{"x":1,"y":2}]`)
	new := mustParse(t, `[{"y":2,"x":1}]`)
	require.True(t, value.Equivalent(old, new))
}

func TestDiffSequenceDuplicatesIgnored(t *testing.T) {
	require.True(t, value.Equivalent(mustParse(t, `["a","a"]`), mustParse(t, `["a"]`)))

	c := value.Diff(mustParse(t, `{"tags":["a","a","b"]}`), mustParse(t, `{"tags":["b","a"]}`))
	require.True(t, c.Empty(), "unexpected diff %s", c.ToValue().String())

	c = value.Diff(mustParse(t, `["a","a","b"]`), mustParse(t, `["b","c","c"]`))
	require.Equal(t, value.SetChanged, c.Kind)
	require.Equal(t, `{"added":["c"],"removed":["a"]}`, c.ToValue().String())
}

func TestDiffMappings(t *testing.T) {
	old := mustParse(t, `{"title":"Old","tags":["a"],"meta":{"views":1,"lang":"en"},"gone":true}`)
	new := mustParse(t, `{"title":"New","tags":["a","b"],"meta":{"views":2,"lang":"en"},"fresh":0}`)

	c := value.Diff(old, new)
	require.Equal(t, value.FieldsChanged, c.Kind)
	require.Equal(t, []string{"gone"}, c.RemovedKeys)
	require.Equal(t, []string{"fresh"}, c.AddedKeys)
	require.Equal(t, []string{"fresh", "gone", "meta.views", "tags[]", "title"}, c.Paths())
	require.Equal(t,
		`{"title":{"old":"Old","new":"New"},"tags":{"added":["b"]},"meta":{"views":{"old":1,"new":2}},"gone":{"old":true},"fresh":{"new":0}}`,
		c.ToValue().String())
}

func TestDiffMappingKeyOrderOnly(t *testing.T) {
	require.True(t, value.Equivalent(mustParse(t, `{"a":1,"b":2}`), mustParse(t, `{"b":2,"a":1}`)))
}

func TestDiffNullToValue(t *testing.T) {
	c := value.Diff(mustParse(t, `{"a":null}`), mustParse(t, `{"a":"set"}`))
	require.Equal(t, `{"a":{"old":null,"new":"set"}}`, c.ToValue().String())
}
