package value_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"recordsync/internal/value"
)

func TestParsePreservesKeyOrderAndNumbers(t *testing.T) {
	v, err := value.Parse([]byte(`{"b": 1.50, "a": [true, null, "x"], "c": {"z": 1, "y": 2}}`))
	require.NoError(t, err)
	require.Equal(t, value.Mapping, v.Kind())
	require.Equal(t, []string{"b", "a", "c"}, v.Keys())
	require.Equal(t, `{"b":1.50,"a":[true,null,"x"],"c":{"z":1,"y":2}}`, v.String())
	require.Equal(t, `{"a":[true,null,"x"],"b":1.50,"c":{"y":2,"z":1}}`, v.Canonical())
}

func TestParseRejectsTrailingData(t *testing.T) {
	_, err := value.Parse([]byte(`{"a":1} {"b":2}`))
	require.Error(t, err)
	_, err = value.Parse([]byte(`{"a":`))
	require.Error(t, err)
}

func TestDuplicateKeyKeepsFirstPositionLastValue(t *testing.T) {
	v, err := value.Parse([]byte(`{"a":1,"b":2,"a":3}`))
	require.NoError(t, err)
	require.Equal(t, `{"a":3,"b":2}`, v.String())
}

func TestStringEscaping(t *testing.T) {
	v := value.NewMapping(value.Field{Key: "html", Value: value.NewString("<b>\"quoted\"\n</b>")})
	require.Equal(t, `{"html":"<b>\"quoted\"\n</b>"}`, v.String())

	var back any
	require.NoError(t, json.Unmarshal([]byte(v.String()), &back))
	require.Equal(t, map[string]any{"html": "<b>\"quoted\"\n</b>"}, back)
}

func TestUnmarshalJSONField(t *testing.T) {
	var doc struct {
		ID      string      `json:"id"`
		Payload value.Value `json:"payload"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"id":"v1","payload":{"z":1,"a":2}}`), &doc))
	require.Equal(t, []string{"z", "a"}, doc.Payload.Keys())

	out, err := json.Marshal(doc)
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"v1","payload":{"z":1,"a":2}}`, string(out))
}

func TestFromAnySortsMapKeys(t *testing.T) {
	v, err := value.FromAny(map[string]any{"b": 2, "a": []any{"x", 1.5}})
	require.NoError(t, err)
	require.Equal(t, `{"a":["x",1.5],"b":2}`, v.String())

	_, err = value.FromAny(struct{}{})
	require.Error(t, err)
}

func TestParseYAMLKeepsOrder(t *testing.T) {
	v, err := value.ParseYAML([]byte("title: Hello\ncount: 3\nratio: 0.5\nlive: true\nnothing: ~\ntags:\n  - b\n  - a\n"))
	require.NoError(t, err)
	require.Equal(t, `{"title":"Hello","count":3,"ratio":0.5,"live":true,"nothing":null,"tags":["b","a"]}`, v.String())
}

func TestAccessors(t *testing.T) {
	v, err := value.Parse([]byte(`{"id":"x","n":42,"list":[1,2]}`))
	require.NoError(t, err)

	id, ok := v.Get("id")
	require.True(t, ok)
	s, ok := id.Str()
	require.True(t, ok)
	require.Equal(t, "x", s)

	n, _ := v.Get("n")
	i, ok := n.Int()
	require.True(t, ok)
	require.EqualValues(t, 42, i)

	list, _ := v.Get("list")
	require.Equal(t, 2, list.Len())
	_, ok = list.Get("id")
	require.False(t, ok)
}

func TestIndentRoundTrip(t *testing.T) {
	v, err := value.Parse([]byte(`{"b":1,"a":{"c":[1,2]}}`))
	require.NoError(t, err)
	indented, err := v.Indent()
	require.NoError(t, err)
	back, err := value.Parse(indented)
	require.NoError(t, err)
	require.Equal(t, v.String(), back.String())
}
