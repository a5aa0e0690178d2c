package xmain

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/pflag"
	"oss.terrastruct.com/xos"
)

// Opts registers flags whose defaults may come from environment variables.
// Flags always win over the environment.
type Opts struct {
	Args  []string
	Flags *pflag.FlagSet

	env  *xos.Env
	envs []string
}

func NewOpts(env *xos.Env, args []string) *Opts {
	flags := pflag.NewFlagSet("", pflag.ContinueOnError)
	flags.SortFlags = false
	flags.Usage = func() {}
	flags.SetOutput(io.Discard)
	return &Opts{
		Args:  args,
		Flags: flags,
		env:   env,
	}
}

// Defaults formats the flag defaults and the environment variables backing them for
// help output.
func (o *Opts) Defaults() string {
	b := &strings.Builder{}
	o.Flags.SetOutput(b)
	o.Flags.PrintDefaults()
	o.Flags.SetOutput(io.Discard)

	if len(o.envs) == 0 {
		return b.String()
	}
	b.WriteString("\nYou may persistently set the following as environment variables (flags take precedent):\n")
	lines := make([]string, len(o.envs))
	for i, k := range o.envs {
		lines[i] = "- $" + k
	}
	b.WriteString(strings.Join(lines, "\n"))
	return b.String()
}

// lookup registers envKey for Defaults and returns its value. An empty envKey means
// the flag has no environment variable.
func (o *Opts) lookup(envKey string) (string, bool) {
	if envKey == "" {
		return "", false
	}
	o.envs = append(o.envs, envKey)
	if o.env == nil {
		return "", false
	}
	v := o.env.Getenv(envKey)
	return v, v != ""
}

func (o *Opts) String(envKey, flag, shortFlag string, defaultVal, usage string) *string {
	if v, ok := o.lookup(envKey); ok {
		defaultVal = v
	}
	return o.Flags.StringP(flag, shortFlag, defaultVal, usage)
}

// Bool accepts 0, 1, false and true from the environment.
func (o *Opts) Bool(envKey, flag, shortFlag string, defaultVal bool, usage string) (*bool, error) {
	if v, ok := o.lookup(envKey); ok {
		switch v {
		case "1", "true":
			defaultVal = true
		case "0", "false":
			defaultVal = false
		default:
			return nil, fmt.Errorf(`invalid environment variable %s. Expected bool. Found "%s".`, envKey, v)
		}
	}
	return o.Flags.BoolP(flag, shortFlag, defaultVal, usage), nil
}
