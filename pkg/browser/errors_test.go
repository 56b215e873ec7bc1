package browser

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMatchesKindAndCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewError(ErrSessionInit, "webdriver.NewSession", cause)

	assert.ErrorIs(t, err, ErrSessionInit)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrLaunchTimeout)
	assert.Equal(t, "webdriver.NewSession: session init failed: connection refused", err.Error())

	wrapped := fmt.Errorf("open browser: %w", err)
	assert.ErrorIs(t, wrapped, ErrSessionInit)
	assert.Equal(t, ErrSessionInit, KindOf(wrapped))
}

func TestErrorFormatting(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{"kind only", NewError(ErrNoActiveTab, "", nil), "no active tab"},
		{"kind and op", NewError(ErrNoActiveTab, "click_at", nil), "click_at: no active tab"},
		{"kind and cause", Errorf(ErrTabNotFound, "", "index %d", 3), "tab not found: index 3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestKindOfPlainError(t *testing.T) {
	assert.Nil(t, KindOf(errors.New("boom")))
	assert.Nil(t, KindOf(nil))
}

func TestNormalizeKey(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"ctrl", KeyControl, false},
		{"Control", KeyControl, false},
		{"cmd", KeyMeta, false},
		{"Return", KeyEnter, false},
		{"a", "a", false},
		{"A", "A", false},
		{" ", " ", false},
		{"f5", "F5", false},
		{"F12", "F12", false},
		{"f13", "", true},
		{"f1x", "", true},
		{"hyper", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeKey(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseKindAndMode(t *testing.T) {
	k, err := ParseKind("Chromium")
	assert.NoError(t, err)
	assert.Equal(t, KindChrome, k)
	assert.True(t, k.Chromium())

	_, err = ParseKind("opera")
	assert.Error(t, err)

	m, err := ParseConnectionMode("CDP")
	assert.NoError(t, err)
	assert.Equal(t, ModeCDP, m)

	_, err = ParseConnectionMode("telnet")
	assert.Error(t, err)
}
