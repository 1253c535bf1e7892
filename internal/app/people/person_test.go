package people

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatroster/internal/pkg/errs"
)

func TestNewPersonRequiresClientIDAndName(t *testing.T) {
	cases := map[string]PersonParams{
		"missing client id": {Name: "Alice"},
		"missing name":      {ClientID: "c0"},
		"blank name":        {ClientID: "c0", Name: "   "},
		"empty":             {},
	}

	for name, params := range cases {
		t.Run(name, func(t *testing.T) {
			p, err := NewPerson(params)
			assert.Nil(t, p)
			require.Error(t, err)
			assert.True(t, errs.Is(err, errs.ErrPersonInvalid))
		})
	}
}

func TestNewPersonTrimsName(t *testing.T) {
	p, err := NewPerson(PersonParams{ClientID: "c0", Name: "  Alice "})
	require.NoError(t, err)
	assert.Equal(t, "Alice", p.Name)
}

func TestNewPersonKeepsFields(t *testing.T) {
	presentation := Presentation{"top": 1}

	p, err := NewPerson(PersonParams{ClientID: "c0", ServerID: "s1", Name: "Alice", Presentation: presentation})
	require.NoError(t, err)

	assert.Equal(t, "c0", p.ClientID)
	assert.Equal(t, "s1", p.ServerID)
	assert.Equal(t, "Alice", p.Name)
	assert.Equal(t, presentation, p.Presentation)
	assert.True(t, p.IsConfirmed())

	unconfirmed, err := NewPerson(PersonParams{ClientID: "c1", Name: "Bob"})
	require.NoError(t, err)
	assert.False(t, unconfirmed.IsConfirmed())
}
