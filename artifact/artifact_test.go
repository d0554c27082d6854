package artifact

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseType(t *testing.T) {
	got, err := ParseType(" Persona ")
	require.NoError(t, err)
	assert.Equal(t, TypePersona, got)

	_, err = ParseType("architect")
	assert.ErrorContains(t, err, `unknown artifact type "architect"`)
}

func TestClone_IsDeep(t *testing.T) {
	src := &Assembler{
		Meta:      Meta{ID: "tutorial", Truths: []Truth{{Text: "short intros", Weight: 0.5}}},
		WriterIDs: []string{"prose"},
	}
	c := Clone(src).(*Assembler)
	c.Truths[0].Weight = 0.9
	c.WriterIDs[0] = "code"
	c.ID = "other"

	assert.Equal(t, 0.5, src.Truths[0].Weight)
	assert.Equal(t, "prose", src.WriterIDs[0])
	assert.Equal(t, "tutorial", src.ID)
	assert.Equal(t, Key{Type: TypeAssembler, ID: "other"}, KeyOf(c))
}

func TestSortedTruths(t *testing.T) {
	in := []Truth{{"b", 0.3}, {"a", 0.3}, {"c", 0.9}}
	assert.Equal(t, []Truth{{"c", 0.9}, {"a", 0.3}, {"b", 0.3}}, SortedTruths(in))
	assert.Equal(t, "b", in[0].Text)
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "go-generics-in-practice", Slug("  Go Generics: in Practice! "))
	assert.Equal(t, "madrid-native", Slug("Madrid native"))
	assert.Equal(t, "", Slug("!!!"))
}
