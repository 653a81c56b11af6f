package domain

import (
	"runtime"
	"slices"
	"strings"
)

// foldKeys makes variable names case-insensitive, as they are on Windows
// where os.Environ reports "Path" but callers ask for "PATH".
var foldKeys = runtime.GOOS == "windows"

func canonicalKey(name string) string {
	if foldKeys {
		return strings.ToUpper(name)
	}
	return name
}

type variable struct {
	name  string
	value string
}

// Environment is an immutable mapping from variable name to value.
// Every mutating method returns a new value; the receiver is never changed.
type Environment struct {
	vars map[string]variable
}

// NewEnvironment builds an Environment from "KEY=VALUE" pairs, as returned by
// os.Environ. Later duplicates win. Entries without '=' are ignored.
func NewEnvironment(pairs []string) Environment {
	vars := make(map[string]variable, len(pairs))
	for _, kv := range pairs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		vars[canonicalKey(k)] = variable{name: k, value: v}
	}
	return Environment{vars: vars}
}

// Get returns the value of key and whether it is set.
func (e Environment) Get(key string) (string, bool) {
	v, ok := e.vars[canonicalKey(key)]
	return v.value, ok
}

// With returns a copy of e with key set to value. Where names are
// case-insensitive an existing variable keeps its original spelling.
func (e Environment) With(key, value string) Environment {
	vars := make(map[string]variable, len(e.vars)+1)
	for k, v := range e.vars {
		vars[k] = v
	}
	ck := canonicalKey(key)
	name := key
	if prev, ok := vars[ck]; ok {
		name = prev.name
	}
	vars[ck] = variable{name: name, value: value}
	return Environment{vars: vars}
}

// Len returns the number of variables.
func (e Environment) Len() int {
	return len(e.vars)
}

// Pairs returns the variables as sorted "KEY=VALUE" strings, ready for exec.Cmd.Env.
// The returned slice is a fresh copy.
func (e Environment) Pairs() []string {
	out := make([]string, 0, len(e.vars))
	for _, v := range e.vars {
		out = append(out, v.name+"="+v.value)
	}
	slices.Sort(out)
	return out
}
