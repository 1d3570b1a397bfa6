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

package signal

// Enricher merges the fields of a result into the signal it was derived from.
// Implementations must not mutate either argument.
type Enricher interface {
	Enrich(original, result Signal) Signal
}

// EnricherFunc adapts a plain function to the Enricher interface.
type EnricherFunc func(original, result Signal) Signal

// Enrich calls f(original, result).
func (f EnricherFunc) Enrich(original, result Signal) Signal {
	return f(original, result)
}

// EnrichConfig controls how results are combined with incoming signals.
type EnrichConfig struct {
	// ExcludeExisting drops every field of the incoming signal and emits only
	// the result fields.
	ExcludeExisting bool `yaml:"excludeExisting" json:"excludeExisting"`
	// EnrichField, when set, nests the result under this key of a copy of the
	// incoming signal instead of merging the result keys at the top level.
	EnrichField string `yaml:"enrichField" json:"enrichField"`
}

// DefaultEnrichConfig emits result fields only.
func DefaultEnrichConfig() EnrichConfig {
	return EnrichConfig{ExcludeExisting: true}
}

// NewEnricher returns the Enricher described by cfg.
func NewEnricher(cfg EnrichConfig) Enricher {
	switch {
	case cfg.ExcludeExisting:
		return EnricherFunc(excludeExisting)
	case cfg.EnrichField != "":
		field := cfg.EnrichField
		return EnricherFunc(func(original, result Signal) Signal {
			out := original.Clone()
			out[field] = map[string]any(result.Clone())
			return out
		})
	default:
		return EnricherFunc(mergeResult)
	}
}

func excludeExisting(_ Signal, result Signal) Signal {
	return result.Clone()
}

// mergeResult overlays result keys onto a copy of the original signal.
func mergeResult(original, result Signal) Signal {
	out := original.Clone()
	for k, v := range result {
		out[k] = v
	}
	return out
}
