package browser

import "fmt"

// StealthLaunchFlags hide the most visible automation markers at the
// browser level. They complement the in-page patches.
var StealthLaunchFlags = []string{
	"--disable-blink-features=AutomationControlled",
	"--disable-infobars",
	"--disable-notifications",
}

// ChromiumArgs returns the command line flags for a Chromium-family browser
// described by spec, excluding any flag specific to the connection mode.
func ChromiumArgs(spec BrowserSpec) []string {
	args := []string{
		"--disable-extensions",
		"--disable-plugins",
		"--disable-dev-shm-usage",
		"--disable-background-networking",
		"--disable-default-apps",
		"--disable-sync",
		"--no-first-run",
		"--disable-popup-blocking",
		fmt.Sprintf("--window-size=%d,%d", spec.Window.Width, spec.Window.Height),
	}
	if spec.Headless {
		args = append(args, "--headless=new", "--no-sandbox")
	}
	if spec.Stealth {
		args = append(args, StealthLaunchFlags...)
	}
	return append(args, spec.ExtraArgs...)
}

// FirefoxArgs returns the command line flags for Firefox.
func FirefoxArgs(spec BrowserSpec) []string {
	args := []string{
		fmt.Sprintf("--width=%d", spec.Window.Width),
		fmt.Sprintf("--height=%d", spec.Window.Height),
	}
	if spec.Headless {
		args = append(args, "-headless")
	}
	return append(args, spec.ExtraArgs...)
}
