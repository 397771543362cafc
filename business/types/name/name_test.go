package name_test

import (
	"strings"
	"testing"

	"github.com/jpcouto/vitrine/business/types/name"
	"github.com/stretchr/testify/require"
)

func Test_Parse(t *testing.T) {
	valid := []string{
		"Sales",
		"Acme Corp",
		"O'Neill Analytics",
		"Workspace-2026",
		strings.Repeat("a", 100),
	}

	for _, v := range valid {
		n, err := name.Parse(v)
		require.NoError(t, err, v)
		require.Equal(t, v, n.String())
	}

	invalid := []string{
		"",
		"ab",
		"bad_name",
		"percent%",
		strings.Repeat("a", 101),
	}

	for _, v := range invalid {
		_, err := name.Parse(v)
		require.Error(t, err, v)
	}
}

func Test_MustParsePanics(t *testing.T) {
	require.Panics(t, func() {
		name.MustParse("x")
	})
}
