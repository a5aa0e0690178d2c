// Package env reads process wide switches from a command's environment.
package env

import "oss.terrastruct.com/xos"

// Debug reports whether $DEBUG enables debug logging. 0 and false disable it.
func Debug(e *xos.Env) bool {
	switch e.Getenv("DEBUG") {
	case "", "0", "false":
		return false
	}
	return true
}

// CI reports whether we are running under a CI system where nobody can answer prompts.
func CI(e *xos.Env) bool {
	return e.Getenv("CI") != "" || e.Getenv("GITHUB_ACTIONS") != ""
}
