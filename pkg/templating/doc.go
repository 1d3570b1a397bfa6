// Package templating resolves per-signal property templates. Templates use Go
// template syntax extended with Sprig functions, a "{{ $field }}" shorthand for
// signal fields and "[[NAME]]" placeholders for deployment variables.
package templating
