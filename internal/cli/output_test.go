package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgesync/edgesync/record"
)

func TestRenderJSONWithoutFilter(t *testing.T) {
	out, err := renderJSON(record.Record{"id": 1, "title": "a"}, "")
	require.NoError(t, err)
	assert.Contains(t, out, `"title": "a"`)
}

func TestRenderJSONWithFilter(t *testing.T) {
	out, err := renderJSON([]record.Record{{"id": 1}, {"id": 2}}, ".[] | .id")
	require.NoError(t, err)
	assert.Equal(t, "1\n2", out)
}

func TestRenderJSONInvalidFilter(t *testing.T) {
	_, err := renderJSON(record.Record{"id": 1}, "{{{not valid")
	assert.Error(t, err)
}
