package sandbox

// prelude installs the console and the helpers the executor calls into.
// __emit is bound from Go before this runs.
const prelude = `
(function (g) {
  function fmt(v) {
    if (typeof v === "string") return v;
    if (v === undefined) return "undefined";
    if (typeof v === "function") return String(v);
    try {
      var s = JSON.stringify(v);
      return s === undefined ? String(v) : s;
    } catch (e) {
      return String(v);
    }
  }
  function sink(level) {
    return function () {
      var parts = [];
      for (var i = 0; i < arguments.length; i++) parts.push(fmt(arguments[i]));
      __emit(level, parts.join(" "));
    };
  }
  g.console = {
    log: sink("log"),
    info: sink("info"),
    warn: sink("warn"),
    error: sink("error"),
    debug: sink("debug")
  };
})(this);
`

// compileFn turns a fragment into a fresh function taking df and columns.
// Strict mode keeps undeclared assignments from leaking into globals.
const compileFn = `(function (src) {
  return new Function("df", "columns", '"use strict";\n' + src);
})`

// settleFn serializes a fragment's return value. Values JSON cannot
// represent become null.
const settleFn = `(function (v) {
  if (v === undefined || typeof v === "function" || typeof v === "symbol") return "null";
  var s = JSON.stringify(v);
  return s === undefined ? "null" : s;
})`
