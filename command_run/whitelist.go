package command_run

import "errors"

// customToken is the master-switch whitelist entry that enables free-form
// command execution (spec.md §4.5).
const customToken = "custom"

// ErrNotAllowed is returned when a requested command fails the whitelist
// check.
var ErrNotAllowed = errors.New("command_not_allowed")

// Request is a raw command request as received over the wire.
type Request struct {
	Command string
	Args    []string
}

// Resolved is a Request after the custom-command unpacking rule has been
// applied: Name/Args are always the real command to execute.
type Resolved struct {
	Name string
	Args []string
}

// Resolve applies the free-form unpacking rule (spec.md §4.5): when
// Command is "custom", the first argument is the real command name and
// the remainder is its argument list.
func Resolve(req Request) (Resolved, error) {
	if req.Command != customToken {
		return Resolved{Name: req.Command, Args: req.Args}, nil
	}
	if len(req.Args) == 0 {
		return Resolved{}, errors.New("command_run: custom command requires a real command as its first argument")
	}
	return Resolved{Name: req.Args[0], Args: req.Args[1:]}, nil
}

// Allows implements the whitelist composition rule (spec.md §4.5, §8
// invariant 8):
//
//	custom request: allowed iff "custom" ∈ whitelist AND (real command ∈
//	whitelist OR real command ∈ customCommands).
//	direct request: allowed iff command ∈ whitelist.
func Allows(req Request, whitelist, customCommands []string) bool {
	if req.Command == customToken {
		if !contains(whitelist, customToken) {
			return false
		}
		resolved, err := Resolve(req)
		if err != nil {
			return false
		}
		return contains(whitelist, resolved.Name) || contains(customCommands, resolved.Name)
	}
	return contains(whitelist, req.Command)
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
