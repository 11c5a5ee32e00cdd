// Package command_run implements the agent's command engine: the
// whitelist-composition rule and the bounded, timeout-guarded subprocess
// executor (spec.md §4.5).
package command_run

import "runtime"

// invocation is a fixed OS command line a builtin token maps to.
type invocation struct {
	path string
	args []string
}

// builtinTable maps a builtin token to its per-GOOS invocation. Tokens not
// present for the running GOOS are unsupported there.
var builtinTable = map[string]map[string]invocation{
	"shutdown": {
		"windows": {"shutdown", []string{"/s", "/t", "0"}},
		"darwin":  {"shutdown", []string{"-h", "now"}},
		"linux":   {"shutdown", []string{"-h", "now"}},
	},
	"restart": {
		"windows": {"shutdown", []string{"/r", "/t", "0"}},
		"darwin":  {"shutdown", []string{"-r", "now"}},
		"linux":   {"shutdown", []string{"-r", "now"}},
	},
	"sleep": {
		"windows": {"rundll32.exe", []string{"powrprof.dll,SetSuspendState", "0,1,0"}},
		"darwin":  {"pmset", []string{"sleepnow"}},
		"linux":   {"systemctl", []string{"suspend"}},
	},
	"lock": {
		"windows": {"rundll32.exe", []string{"user32.dll,LockWorkStation"}},
		"darwin":  {"pmset", []string{"displaysleepnow"}},
		"linux":   {"loginctl", []string{"lock-session"}},
	},
	"systeminfo": {
		"windows": {"systeminfo", nil},
		"darwin":  {"system_profiler", []string{"SPHardwareDataType"}},
		"linux":   {"uname", []string{"-a"}},
	},
	"ipconfig": {
		"windows": {"ipconfig", nil},
		"darwin":  {"ifconfig", nil},
		"linux":   {"ip", []string{"addr"}},
	},
}

// builtinInvocation resolves token to its invocation on the running
// platform. ok is false when the token is unknown or unsupported here.
func builtinInvocation(token string) (invocation, bool) {
	byOS, ok := builtinTable[token]
	if !ok {
		return invocation{}, false
	}
	inv, ok := byOS[runtime.GOOS]
	return inv, ok
}

// isBuiltin reports whether token names a builtin regardless of platform
// support. The whitelist check in Allows does not call it: it matches the
// name against the whitelist and custom_commands lists directly.
func isBuiltin(token string) bool {
	_, ok := builtinTable[token]
	return ok
}
