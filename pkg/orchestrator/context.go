package orchestrator

import (
	"regexp"
	"strings"
	"sync"

	"crewgen/pkg/envelope"
)

// Context holds the inputs and completed phase results that prompt
// templates are resolved against.
type Context struct {
	mu           sync.RWMutex
	Inputs       map[string]string
	PhaseResults map[string]*envelope.Envelope
}

func NewContext(inputs map[string]string) *Context {
	if inputs == nil {
		inputs = make(map[string]string)
	}
	return &Context{
		Inputs:       inputs,
		PhaseResults: make(map[string]*envelope.Envelope),
	}
}

var varPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Resolve expands ${inputs.NAME} and ${phases.NAME.FIELD} references, where
// FIELD is output, status, model or output_ref. Unknown references are left
// as written. Substituted values are not expanded again.
func (c *Context) Resolve(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		ref := match[2 : len(match)-1] // Strip ${ and }
		parts := strings.Split(ref, ".")

		switch parts[0] {
		case "inputs":
			if len(parts) == 2 {
				c.mu.RLock()
				v, ok := c.Inputs[parts[1]]
				c.mu.RUnlock()
				if ok {
					return v
				}
			}
		case "phases":
			if len(parts) == 3 {
				env, ok := c.GetResult(parts[1])
				if !ok {
					break
				}
				switch parts[2] {
				case "output":
					return env.Output
				case "status":
					return string(env.Status)
				case "model":
					return env.Model
				case "output_ref":
					return env.OutputRef
				}
			}
		}
		return match // Leave unresolved
	})
}

func (c *Context) SetResult(name string, env *envelope.Envelope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.PhaseResults[name] = env
}

// GetResult safely retrieves a phase result with proper locking.
func (c *Context) GetResult(name string) (*envelope.Envelope, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	env, ok := c.PhaseResults[name]
	return env, ok
}
