package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/entrhq/webpilot/pkg/logging"
)

// LookupFunc reads one variable, reporting whether it was set.
type LookupFunc func(key string) (string, bool)

// envReader applies MCP_* variables onto settings. Invalid values are logged
// and the current value is kept.
type envReader struct {
	lookup LookupFunc
	logger *logging.Logger
}

func (r envReader) str(key string, dst *string) {
	if v, ok := r.lookup(key); ok {
		*dst = strings.TrimSpace(v)
	}
}

func (r envReader) boolean(key string, dst *bool) {
	v, ok := r.lookup(key)
	if !ok {
		return
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes":
		*dst = true
	case "false", "0", "no":
		*dst = false
	default:
		r.logger.Warnf("Invalid %s '%s', using default %t", key, v, *dst)
	}
}

func (r envReader) integer(key string, dst *int) {
	v, ok := r.lookup(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 0 {
		r.logger.Warnf("Invalid %s '%s', using default %d", key, v, *dst)
		return
	}
	*dst = n
}

// duration accepts Go durations ("90s") or a plain number of seconds.
func (r envReader) duration(key string, dst *time.Duration) {
	v, ok := r.lookup(key)
	if !ok {
		return
	}
	v = strings.TrimSpace(v)
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		*dst = time.Duration(secs) * time.Second
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		r.logger.Warnf("Invalid %s '%s', using default %s", key, v, *dst)
		return
	}
	*dst = d
}

// ApplyEnv overlays MCP_* variables onto s.
func ApplyEnv(s *Settings, lookup LookupFunc, logger *logging.Logger) {
	if logger == nil {
		logger = logging.Discard()
	}
	r := envReader{lookup: lookup, logger: logger}

	r.str("MCP_BROWSER_TYPE", &s.Browser.Kind)
	r.str("MCP_BROWSER_BINARY_PATH", &s.Browser.BinaryPath)
	r.str("MCP_BROWSER_PATH", &s.Browser.BinaryPath)
	r.boolean("MCP_HEADLESS", &s.Browser.Headless)
	r.integer("MCP_SCREEN_WIDTH", &s.Browser.Width)
	r.integer("MCP_SCREEN_HEIGHT", &s.Browser.Height)
	r.str("MCP_INITIAL_URL", &s.Browser.InitialURL)
	r.str("MCP_SEARCH_ENGINE_URL", &s.Browser.SearchURL)
	r.boolean("MCP_HIGHLIGHT_MOUSE", &s.Browser.HighlightMouse)
	r.boolean("MCP_UNDETECTED", &s.Browser.Undetected)
	if v, ok := lookup("MCP_BROWSER_ARGS"); ok {
		s.Browser.ExtraArgs = splitList(v)
	}

	r.str("MCP_DRIVER_PATH", &s.Driver.Path)
	r.integer("MCP_DRIVER_PORT", &s.Driver.Port)
	r.boolean("MCP_AUTO_START", &s.Driver.AutoStart)
	r.boolean("MCP_AUTO_DOWNLOAD_DRIVER", &s.Driver.AutoDownload)
	r.str("MCP_WEBDRIVER_URL", &s.Driver.WebDriverURL)
	r.str("MCP_DRIVER_CACHE_DIR", &s.Driver.CacheDir)
	r.duration("MCP_LAUNCH_TIMEOUT", &s.Driver.LaunchTimeout)

	if v, ok := lookup("MCP_CONNECTION_MODE"); ok {
		s.Session.Mode = strings.ToLower(strings.TrimSpace(v))
	}
	r.integer("MCP_CDP_PORT", &s.Session.CDPPort)
	r.str("MCP_CDP_URL", &s.Session.CDPURL)
	r.boolean("MCP_OPEN_BROWSER_ON_START", &s.Session.OpenOnStart)
	r.duration("MCP_IDLE_TIMEOUT", &s.Session.IdleTimeout)

	if v, ok := lookup("MCP_TRANSPORT"); ok {
		s.Server.Transport = strings.ToLower(strings.TrimSpace(v))
	}
	r.str("MCP_HTTP_HOST", &s.Server.Host)
	r.integer("MCP_HTTP_PORT", &s.Server.Port)
	r.integer("MCP_HTTP_MAX_CONNS", &s.Server.MaxConns)
	r.str("MCP_LOG_LEVEL", &s.Server.LogLevel)

	if v, ok := lookup("MCP_DISABLED_TOOLS"); ok {
		s.Tools.Disabled = splitList(v)
	}
}
