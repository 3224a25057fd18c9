package specfile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSupportedOn(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		machine string
		want    bool
	}{
		{"empty means all", "", "amd64", true},
		{"all keyword", "all", "arm64", true},
		{"positive match", "amd64 arm64", "amd64", true},
		{"positive miss", "amd64 arm64", "riscv64", false},
		{"negative excludes", "!arm64", "arm64", false},
		{"negative allows others", "!arm64", "amd64", true},
		{"only negatives means all but excluded", "!arm64 !riscv64", "amd64", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, supportedOn(tt.raw, tt.machine))
		})
	}
}

func TestPruneDepGroupsDropsFilteredAlternatives(t *testing.T) {
	o := pruneOptions{TrueTerms: map[string]bool{"static": false}, Machine: "amd64"}

	raw := []rawDepGroup{
		{Alternatives: []rawDepPkg{
			{Name: "libfoo1", If: "static"},
			{Name: "libfoo1-dyn", SupportedOn: "!arm64"},
		}},
		{Alternatives: []rawDepPkg{
			{Name: "arm-only", SupportedOn: "arm64"},
		}},
	}

	groups, err := pruneDepGroups(raw, o)
	assert.NoError(t, err)
	assert.Len(t, groups, 1, "the all-arm64 group has no surviving alternative on amd64 and is elided")
	assert.Len(t, groups[0], 1)
	assert.Equal(t, "libfoo1-dyn", groups[0][0].Name)
}

func TestPackageEnabledOverrides(t *testing.T) {
	o := pruneOptions{
		TrueTerms: map[string]bool{},
		Enable:    map[string]bool{"forced-on": true},
		Disable:   map[string]bool{"forced-off": true},
	}

	ok, err := o.packageEnabled("forced-on", "false")
	assert.NoError(t, err)
	assert.True(t, ok)

	ok, err = o.packageEnabled("forced-off", "true")
	assert.NoError(t, err)
	assert.False(t, ok)

	ok, err = o.packageEnabled("normal", "true")
	assert.NoError(t, err)
	assert.True(t, ok)
}
