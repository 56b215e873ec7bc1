package stealth

import "fmt"

// Patch is one in-page evasion. Body runs inside a function and may return
// early.
type Patch struct {
	Name string
	Body string
}

// markerPrefix names the non-enumerable window properties that record which
// patches already ran in a document.
const markerPrefix = "__wp_stealth_"

// Script wraps the patch body in a guard so it runs at most once per
// document. The result is a single expression that evaluates to true when
// the patch ran and false when it had already been applied.
func (p Patch) Script() string {
	return fmt.Sprintf(`(() => {
  const marker = %q;
  if (Object.prototype.hasOwnProperty.call(window, marker)) return false;
  Object.defineProperty(window, marker, { value: true, enumerable: false });
  try {
%s
  } catch (e) {}
  return true;
})()`, markerPrefix+p.Name, p.Body)
}

// Patches are applied in this order.
var Patches = []Patch{
	{
		Name: "webdriver",
		Body: `
    Object.defineProperty(Navigator.prototype, 'webdriver', {
      get: () => undefined, configurable: true, enumerable: true,
    });`,
	},
	{
		Name: "chrome-runtime",
		Body: `
    if (!window.chrome) {
      Object.defineProperty(window, 'chrome', { value: {}, writable: true, configurable: true });
    }
    if (!window.chrome.runtime) {
      window.chrome.runtime = {
        onConnect: undefined,
        onMessage: undefined,
        sendMessage: function () {},
        connect: function () {
          return { onMessage: { addListener: function () {} }, postMessage: function () {} };
        },
      };
    }`,
	},
	{
		Name: "plugins",
		Body: `
    const plugins = [
      { name: 'Chrome PDF Plugin', filename: 'internal-pdf-viewer', description: 'Portable Document Format' },
      { name: 'Chrome PDF Viewer', filename: 'mhjfbmdgcfjbbpaeojofohoefgiehjai', description: '' },
      { name: 'Native Client', filename: 'internal-nacl-plugin', description: '' },
    ];
    const arr = Object.create(PluginArray.prototype);
    plugins.forEach((p, i) => {
      const plugin = Object.create(Plugin.prototype);
      Object.defineProperties(plugin, {
        name: { value: p.name, enumerable: true },
        filename: { value: p.filename, enumerable: true },
        description: { value: p.description, enumerable: true },
        length: { value: 1, enumerable: true },
      });
      arr[i] = plugin;
    });
    Object.defineProperty(arr, 'length', { value: plugins.length, enumerable: true });
    arr.item = function (i) { return this[i] || null; };
    arr.namedItem = function (name) {
      for (let i = 0; i < this.length; i++) if (this[i].name === name) return this[i];
      return null;
    };
    arr.refresh = function () {};
    Object.defineProperty(Navigator.prototype, 'plugins', {
      get: () => arr, configurable: true, enumerable: true,
    });`,
	},
	{
		Name: "languages",
		Body: `
    Object.defineProperty(Navigator.prototype, 'languages', {
      get: () => ['en-US', 'en'], configurable: true, enumerable: true,
    });`,
	},
	{
		Name: "permissions",
		Body: `
    if (navigator.permissions && navigator.permissions.query) {
      const query = navigator.permissions.query.bind(navigator.permissions);
      navigator.permissions.query = (params) =>
        params && params.name === 'notifications'
          ? Promise.resolve({ state: Notification.permission, onchange: null })
          : query(params);
    }`,
	},
	{
		Name: "webgl-vendor",
		Body: `
    const UNMASKED_VENDOR = 37445;
    const UNMASKED_RENDERER = 37446;
    for (const ctor of [window.WebGLRenderingContext, window.WebGL2RenderingContext]) {
      if (!ctor) continue;
      const getParameter = ctor.prototype.getParameter;
      ctor.prototype.getParameter = function (param) {
        if (param === UNMASKED_VENDOR) return 'Intel Inc.';
        if (param === UNMASKED_RENDERER) return 'Intel Iris OpenGL Engine';
        return getParameter.call(this, param);
      };
    }`,
	},
}
