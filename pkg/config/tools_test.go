package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToolFilter(t *testing.T) {
	f, err := NewToolFilter([]string{"drag_and_drop", "*_tab", " ", "scroll_*"})
	require.NoError(t, err)

	tests := []struct {
		tool     string
		disabled bool
	}{
		{"drag_and_drop", true},
		{"new_tab", true},
		{"close_tab", true},
		{"list_tabs", false},
		{"scroll_at", true},
		{"scroll_document", true},
		{"click_at", false},
		{"drag_and_drop_extra", false},
	}
	for _, tt := range tests {
		t.Run(tt.tool, func(t *testing.T) {
			assert.Equal(t, tt.disabled, f.Disabled(tt.tool))
		})
	}

	assert.Equal(t, []string{"drag_and_drop", "*_tab", "scroll_*"}, f.Patterns())
}

func TestToolFilterNil(t *testing.T) {
	var f *ToolFilter
	assert.False(t, f.Disabled("click_at"))
	assert.Nil(t, f.Patterns())
}

func TestToolFilterInvalidPattern(t *testing.T) {
	_, err := NewToolFilter([]string{"click_[at"})
	assert.Error(t, err)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitList(" a ,, b ,"))
	assert.Nil(t, splitList(""))
}
