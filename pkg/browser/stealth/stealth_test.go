package stealth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/webpilot/pkg/browser/browsertest"
)

func patchNames() []string {
	names := make([]string, 0, len(Patches))
	for _, p := range Patches {
		names = append(names, p.Name)
	}
	return names
}

func TestPatchOrder(t *testing.T) {
	assert.Equal(t, []string{"webdriver", "chrome-runtime", "plugins", "languages", "permissions", "webgl-vendor"}, patchNames())
}

func TestPatchScriptIsGuarded(t *testing.T) {
	for _, p := range Patches {
		script := p.Script()
		assert.True(t, strings.HasPrefix(script, "(() => {"), p.Name)
		assert.Contains(t, script, `"__wp_stealth_`+p.Name+`"`)
		assert.True(t, strings.HasSuffix(script, "})()"), p.Name)
	}
}

func TestApply_Disabled(t *testing.T) {
	s := browsertest.NewSession()
	p := New(false, nil)

	assert.Nil(t, p.Apply(context.Background(), s))
	assert.Empty(t, s.Calls)
}

func TestApply_RegistersAndEvaluates(t *testing.T) {
	s := browsertest.NewSession()
	p := New(true, nil)

	applied := p.Apply(context.Background(), s)
	assert.Equal(t, patchNames(), applied)
	assert.Len(t, s.InitScripts, len(Patches))
	assert.Len(t, s.Evaluated, len(Patches))
}

func TestApply_TwiceEqualsOnce(t *testing.T) {
	s := browsertest.NewSession()
	p := New(true, nil)

	first := p.Apply(context.Background(), s)
	second := p.Apply(context.Background(), s)

	assert.Equal(t, first, second)
	assert.Len(t, s.InitScripts, len(Patches), "init scripts must not be registered twice")
	assert.Len(t, s.Evaluated, 2*len(Patches), "current document is re-evaluated; the page marker makes it a no-op")
}

func TestApply_FailingPatchIsSkipped(t *testing.T) {
	s := browsertest.NewSession()
	s.Fail("AddInitScript", fmt.Errorf("boom"))
	s.EvalFunc = func(expr string) (any, error) {
		if strings.Contains(expr, "__wp_stealth_languages") {
			return nil, errors.New("evaluation failed")
		}
		return true, nil
	}
	p := New(true, nil)

	applied := p.Apply(context.Background(), s)
	assert.NotContains(t, applied, "webdriver")
	assert.NotContains(t, applied, "languages")
	assert.Contains(t, applied, "webgl-vendor")
	assert.Len(t, applied, len(Patches)-2)

	// The failed registration is retried on the next application.
	p.Apply(context.Background(), s)
	assert.Len(t, s.InitScripts, len(Patches))
}

func TestApply_UnsupportedInitScripts(t *testing.T) {
	s := browsertest.NewSession()
	for range Patches {
		s.Fail("AddInitScript", fmt.Errorf("firefox: %w", errors.ErrUnsupported))
	}
	p := New(true, nil)

	applied := p.Apply(context.Background(), s)
	assert.Equal(t, patchNames(), applied)
	assert.Len(t, s.Evaluated, len(Patches))
}

func TestForget(t *testing.T) {
	s := browsertest.NewSession()
	p := New(true, nil)

	p.Apply(context.Background(), s)
	p.Forget(s.ID())
	p.Apply(context.Background(), s)
	require.Len(t, s.InitScripts, 2*len(Patches))
}
