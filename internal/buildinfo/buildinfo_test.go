package buildinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContext(t *testing.T) {
	tests := []struct {
		name        string
		ctx         *Context
		wantVersion string
		wantDate    string
	}{
		{"nil context", nil, UnknownValue, UnknownValue},
		{"empty values", NewContext("", "", ""), UnknownValue, UnknownValue},
		{"populated", NewContext("1.4.0", "2026-09-30", "runner-1"), "1.4.0", "2026-09-30"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantVersion, tt.ctx.GetVersion())
			assert.Equal(t, tt.wantDate, tt.ctx.GetBuildDate())
		})
	}
}

func TestRelease(t *testing.T) {
	assert.Equal(t, "dispatch-migrate@1.4.0", NewContext("1.4.0", "", "").Release())
	assert.Equal(t, "dispatch-migrate@unknown", NewContext("", "", "").Release())
	assert.Equal(t, "dispatch-migrate 1.4.0 (built unknown)", NewContext("1.4.0", "", "").String())
}

func TestCurrent(t *testing.T) {
	ctx := Current()
	assert.NotNil(t, ctx)
	assert.NotEmpty(t, ctx.GetVersion())
}
