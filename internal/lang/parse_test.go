package lang

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompile_TrailingDecimalPoint(t *testing.T) {
	cf := Compile("3.", nil)
	require.True(t, cf.Valid)
	assert.Equal(t, NodeNumberLiteral, cf.Root.Kind)
	assert.Equal(t, 3.0, cf.Root.Number)
}

func TestCompile_AtIdentifierRoundTrip(t *testing.T) {
	cf := Compile("@Rate * thisRow.Qty", nil)
	require.True(t, cf.Valid)
	left := cf.Root.Children[0]
	assert.Equal(t, NodeAtIdentifier, left.Kind)
	assert.Equal(t, "Rate", left.Name)
}

func TestCompile_AtSigilNotRewrittenInsideStringLiteral(t *testing.T) {
	cf := Compile(`"reach @Rate"`, nil)
	require.True(t, cf.Valid)
	assert.Equal(t, NodeStringLiteral, cf.Root.Kind)
	assert.Equal(t, "reach @Rate", cf.Root.Str)
}

func TestCompile_BoolKeywordsAreCaseInsensitive(t *testing.T) {
	cf := Compile("TRUE && !False", nil)
	require.True(t, cf.Valid)
	assert.Equal(t, NodeBinary, cf.Root.Kind)
	assert.Equal(t, NodeBoolLiteral, cf.Root.Children[0].Kind)
	assert.True(t, cf.Root.Children[0].Bool)
}

func TestCompile_IdentifierEndingInDigitBeforeMemberAccess(t *testing.T) {
	cf := Compile("thisRow2.Col + 1", nil)
	require.True(t, cf.Valid)
	left := cf.Root.Children[0]
	assert.Equal(t, NodeMember, left.Kind)
	assert.Equal(t, "Col", left.Member)
}

func TestCompile_ConditionalPrecedence(t *testing.T) {
	cf := Compile(`thisRow.A > 0 ? "pos" : "non-pos"`, nil)
	require.True(t, cf.Valid)
	assert.Equal(t, NodeConditional, cf.Root.Kind)
}

func TestCompile_UnbalancedOuterParensPreserved(t *testing.T) {
	cf := Compile("=(a+b)*(c+d)", nil)
	require.True(t, cf.Valid)
	assert.Equal(t, NodeBinary, cf.Root.Kind)
	assert.Equal(t, "*", cf.Root.Op)
}

func TestCompile_UnsupportedOperatorRejected(t *testing.T) {
	cf := Compile("2 ** 3", nil)
	assert.False(t, cf.Valid)
}

func TestCompile_ComputedMemberAccessRejected(t *testing.T) {
	cf := Compile(`thisRow[someColumn]`, nil)
	assert.False(t, cf.Valid)
}

func TestCompile_TrailingTokenIsParseError(t *testing.T) {
	cf := Compile("1 + 2 3", nil)
	assert.False(t, cf.Valid)
}

func TestTypeCheck_RejectsUnknownOperator(t *testing.T) {
	n := &Node{Kind: NodeBinary, Op: "**", Children: []*Node{
		{Kind: NodeNumberLiteral, Number: 2},
		{Kind: NodeNumberLiteral, Number: 3},
	}}
	err := TypeCheck(n)
	assert.Error(t, err)
}
