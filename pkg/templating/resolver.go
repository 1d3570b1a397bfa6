/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package templating

import (
	"bytes"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"
	"text/template"

	"github.com/Masterminds/sprig/v3"

	"github.com/telekom/mailgun-notifier/pkg/signal"
)

// Resolver evaluates a property template against a signal.
type Resolver interface {
	Resolve(tmpl string, sig signal.Signal) (string, error)
}

// ResolverFunc adapts a plain function to the Resolver interface.
type ResolverFunc func(tmpl string, sig signal.Signal) (string, error)

// Resolve calls f(tmpl, sig).
func (f ResolverFunc) Resolve(tmpl string, sig signal.Signal) (string, error) {
	return f(tmpl, sig)
}

// ResolutionError is returned when a template cannot be evaluated against a signal.
type ResolutionError struct {
	Template string
	Err      error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("failed to resolve %q: %v", e.Template, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// LookupFunc returns the value of a deployment variable.
type LookupFunc func(name string) (string, bool)

var (
	variablePattern = regexp.MustCompile(`\[\[\s*([A-Za-z_][A-Za-z0-9_]*)\s*\]\]`)
	actionPattern   = regexp.MustCompile(`(?s)\{\{.*?\}\}`)
	// {{ email }}, {{- user.name -}}
	bareFieldPattern = regexp.MustCompile(`^\{\{(-?\s*)([A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z_][A-Za-z0-9_]*)*)(\s*-?)\}\}$`)
	dollarPattern    = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)
	declaredPattern  = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)\s*(?::=|=[^=]|,)`)
)

// identifiers that must keep their template meaning when written bare
var keywords = map[string]bool{
	"end": true, "else": true, "nil": true, "true": true, "false": true,
	"break": true, "continue": true,
}

// Engine is the default Resolver. It is safe for concurrent use.
type Engine struct {
	funcs  template.FuncMap
	lookup LookupFunc
	cache  sync.Map // rewritten template text -> *template.Template
}

// Option configures an Engine.
type Option func(*Engine)

// WithLookup replaces the variable lookup used for [[NAME]] placeholders.
func WithLookup(fn LookupFunc) Option {
	return func(e *Engine) {
		if fn != nil {
			e.lookup = fn
		}
	}
}

// WithVariables resolves [[NAME]] from vars first and the process environment second.
func WithVariables(vars map[string]string) Option {
	return WithLookup(func(name string) (string, bool) {
		if v, ok := vars[name]; ok {
			return v, true
		}
		return os.LookupEnv(name)
	})
}

// WithFuncs adds template functions on top of the Sprig set.
func WithFuncs(fm template.FuncMap) Option {
	return func(e *Engine) {
		for k, v := range fm {
			e.funcs[k] = v
		}
	}
}

// NewEngine creates a template engine with Sprig functions and environment
// variable lookup.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		funcs:  sprig.TxtFuncMap(),
		lookup: os.LookupEnv,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Resolve evaluates tmpl with the signal fields as template data. Referencing a
// field the signal does not carry is an error; a field set to null renders as
// "". An empty template resolves to "".
func (e *Engine) Resolve(tmpl string, sig signal.Signal) (string, error) {
	if tmpl == "" {
		return "", nil
	}

	text, err := e.substituteVariables(tmpl)
	if err != nil {
		return "", &ResolutionError{Template: tmpl, Err: err}
	}

	t, err := e.parse(text)
	if err != nil {
		return "", &ResolutionError{Template: tmpl, Err: err}
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, templateData(sig)); err != nil {
		return "", &ResolutionError{Template: tmpl, Err: err}
	}
	return buf.String(), nil
}

func (e *Engine) substituteVariables(tmpl string) (string, error) {
	var missing string
	out := variablePattern.ReplaceAllStringFunc(tmpl, func(m string) string {
		name := variablePattern.FindStringSubmatch(m)[1]
		v, ok := e.lookup(name)
		if !ok {
			if missing == "" {
				missing = name
			}
			return m
		}
		return v
	})
	if missing != "" {
		return "", fmt.Errorf("variable %s is not defined", missing)
	}
	return out, nil
}

func (e *Engine) parse(text string) (*template.Template, error) {
	if cached, ok := e.cache.Load(text); ok {
		return cached.(*template.Template), nil
	}

	t, err := template.New("property").
		Funcs(e.funcs).
		Option("missingkey=error").
		Parse(e.rewriteShorthand(text))
	if err != nil {
		return nil, fmt.Errorf("template syntax error: %w", err)
	}

	actual, _ := e.cache.LoadOrStore(text, t)
	return actual.(*template.Template), nil
}

// rewriteShorthand turns "$field" references and bare "{{ field }}" actions
// into field accesses. A bare identifier naming a template function or keyword
// is left alone, as is a $variable the template declares itself.
func (e *Engine) rewriteShorthand(text string) string {
	declared := map[string]bool{}
	for _, action := range actionPattern.FindAllString(text, -1) {
		outsideLiterals(action, func(code string) string {
			for _, m := range declaredPattern.FindAllStringSubmatch(code, -1) {
				declared[m[1]] = true
			}
			return code
		})
	}

	return actionPattern.ReplaceAllStringFunc(text, func(action string) string {
		if g := bareFieldPattern.FindStringSubmatch(action); g != nil {
			open, ident, closing := g[1], g[2], g[3]
			root := ident
			if i := strings.IndexByte(ident, '.'); i >= 0 {
				root = ident[:i]
			}
			_, isFunc := e.funcs[root]
			if !keywords[root] && !isFunc {
				return "{{" + open + "." + ident + closing + "}}"
			}
			return action
		}

		return outsideLiterals(action, func(code string) string {
			return dollarPattern.ReplaceAllStringFunc(code, func(ref string) string {
				name := ref[1:]
				if declared[name] {
					return ref
				}
				return "." + name
			})
		})
	})
}

// outsideLiterals applies fn to the parts of action that are not string, raw
// string or rune literals. Literals are copied unchanged.
func outsideLiterals(action string, fn func(string) string) string {
	var b strings.Builder
	start := 0
	for i := 0; i < len(action); i++ {
		quote := action[i]
		if quote != '"' && quote != '`' && quote != '\'' {
			continue
		}
		b.WriteString(fn(action[start:i]))

		j := i + 1
		for j < len(action) && action[j] != quote {
			if action[j] == '\\' && quote != '`' {
				j++
			}
			j++
		}
		end := min(j+1, len(action))
		b.WriteString(action[i:end])
		start = end
		i = end - 1
	}
	b.WriteString(fn(action[start:]))
	return b.String()
}

// templateData exposes the signal fields to templates. Null values become
// empty strings so they never render as "<no value>".
func templateData(sig signal.Signal) map[string]any {
	data := make(map[string]any, len(sig))
	for k, v := range sig {
		data[k] = emptyNulls(v)
	}
	return data
}

func emptyNulls(v any) any {
	switch t := v.(type) {
	case nil:
		return ""
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = emptyNulls(e)
		}
		return out
	case signal.Signal:
		return emptyNulls(map[string]any(t))
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = emptyNulls(e)
		}
		return out
	default:
		return v
	}
}
