// Package model provides capability-based model selection for the
// verification pipeline. Callers specify capabilities ("generate",
// "validate") and the registry resolves them to configured models with an
// explicit, statically-declared preference order.
package model

// Capability represents a semantic capability for model selection.
type Capability string

const (
	// CapabilityGenerate is the fast draft producer.
	CapabilityGenerate Capability = "generate"

	// CapabilityValidate is the slower, more careful corrector.
	CapabilityValidate Capability = "validate"
)

// IsValid checks if a capability string is a known capability.
func (c Capability) IsValid() bool {
	switch c {
	case CapabilityGenerate, CapabilityValidate:
		return true
	}
	return false
}

// ParseCapability converts a string to a Capability.
// Returns empty Capability for unknown strings.
func ParseCapability(s string) Capability {
	c := Capability(s)
	if c.IsValid() {
		return c
	}
	return ""
}
