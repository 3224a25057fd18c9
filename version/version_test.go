package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in       string
		epoch    uint32
		upstream string
		revision string
	}{
		{"1.2.3", 0, "1.2.3", ""},
		{"1.2.3-4", 0, "1.2.3", "4"},
		{"2:1.2.3-4", 2, "1.2.3", "4"},
		{"2:1.2.3", 2, "1.2.3", ""},
		{"1.0-rc1-2", 0, "1.0-rc1", "2"},
		{"1.35.1-1~noble", 0, "1.35.1", "1~noble"},
		{"3:1.0~beta1~svn1245-1", 3, "1.0~beta1~svn1245", "1"},
		{"1.0-0ubuntu1", 0, "1.0", "0ubuntu1"},
		{"1.2.3-4~bpo11+1", 0, "1.2.3", "4~bpo11+1"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			v, err := Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.epoch, v.Epoch)
			assert.Equal(t, tt.upstream, v.Upstream)
			assert.Equal(t, tt.revision, v.Revision)
			assert.Equal(t, tt.in, v.String())
		})
	}
}

func TestParseInvalid(t *testing.T) {
	for _, in := range []string{"", "1.0_beta", "a:1.0-1", "1.0 beta"} {
		_, err := Parse(in)
		assert.ErrorIs(t, err, ErrInvalidVersion, in)
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.2.3-1", "1.2.3-2", -1},
		{"1:0-1", "2-1", -1},
		{"1.0~rc1-1", "1.0-1", -1},
		{"1.0-1", "1.0-1", 0},
		{"2.0-1", "1.0-1", 1},
		{"1.0", "1.0-0", 0},
		{"1.0-0", "1.0", 0},
		{"1.0a", "1.0", 1},
		{"1.0~", "1.0", -1},
	}

	for _, tt := range tests {
		t.Run(tt.a+"_vs_"+tt.b, func(t *testing.T) {
			a := MustParse(tt.a)
			b := MustParse(tt.b)
			assert.Equal(t, tt.want, Compare(a, b))
			assert.Equal(t, -tt.want, Compare(b, a))
		})
	}
}

func TestCompareTotalOrder(t *testing.T) {
	// P1: total ordering over a representative chain of versions.
	chain := []string{
		"1.0~rc1-1",
		"1.0-1",
		"1.0-2",
		"1.0-2ubuntu1",
		"1.1-1",
		"1:0.1-1",
		"2:0.1-1",
	}
	for i := 0; i < len(chain); i++ {
		for j := i + 1; j < len(chain); j++ {
			a, b := MustParse(chain[i]), MustParse(chain[j])
			assert.True(t, Compare(a, b) < 0, "%s should sort before %s", chain[i], chain[j])
		}
	}
}

func TestConstraintMeets(t *testing.T) {
	tests := []struct {
		op        Operator
		against   string
		candidate string
		want      bool
	}{
		{OpStrictlyLess, "1.0-1", "0.9-1", true},
		{OpStrictlyLess, "1.0-1", "1.0-1", false},
		{OpLessOrEqual, "1.0-1", "1.0-1", true},
		{OpEqual, "1.0-1", "1.0-1", true},
		{OpEqual, "1.0-1", "1.0-2", false},
		{OpGreaterOrEqual, "1.0-1", "1.0-1", true},
		{OpStrictlyGreater, "1.0-1", "1.0-2", true},
	}

	for _, tt := range tests {
		c := Constraint{Op: tt.op, Version: MustParse(tt.against)}
		assert.Equal(t, tt.want, c.Meets(MustParse(tt.candidate)))
	}
}

func TestParseOperatorInvalid(t *testing.T) {
	_, err := ParseOperator("~=")
	assert.ErrorIs(t, err, ErrInvalidOperator)
}

func TestDependencyListString(t *testing.T) {
	dl := NewDependencyList([]AlternativeGroup{
		{{Name: "libc6", Constraint: &Constraint{Op: OpGreaterOrEqual, Version: MustParse("2.31-1")}}},
		{}, // elided
		{{Name: "foo"}, {Name: "bar"}, {Name: "foo"}}, // "foo" deduped
	})

	require.Equal(t, 2, dl.Len())
	assert.Equal(t, "libc6 (>= 2.31-1), foo | bar", dl.String())
}
