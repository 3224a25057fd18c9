package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateBuildFor(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "target", cfg: Config{BuildFor: "target"}},
		{name: "tools", cfg: Config{BuildFor: "tools"}},
		{name: "cross-tools", cfg: Config{BuildFor: "cross-tools"}},
		{name: "empty is invalid before defaults run", cfg: Config{}, wantErr: true},
		{name: "unknown value", cfg: Config{BuildFor: "bogus"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validate(&tt.cfg)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrBuildForInvalid)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
