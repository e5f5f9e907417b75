package observe

import "strings"

// ProducerMeta identifies a cached producer for telemetry purposes.
type ProducerMeta struct {
	ID        string // Full producer ID, e.g. "reports.DailyTotals"
	Namespace string // Everything before the last dot (may be empty)
	Name      string // Final segment of the ID (required)
	Backing   string // Store backing serving the call (optional)
}

// ParseProducerID splits a producer ID into namespace and name at the last
// dot that follows the last slash, so import paths such as
// "github.com/acme/reports.Daily" keep their dots in the namespace.
func ParseProducerID(id string) ProducerMeta {
	meta := ProducerMeta{ID: id, Name: id}
	slash := strings.LastIndex(id, "/")
	if dot := strings.LastIndex(id[slash+1:], "."); dot >= 0 {
		cut := slash + 1 + dot
		meta.Namespace = id[:cut]
		meta.Name = id[cut+1:]
	}
	return meta
}

// ProducerID returns the fully qualified producer identifier.
// If ID is set it is returned; otherwise it is built from namespace and name.
func (m ProducerMeta) ProducerID() string {
	if m.ID != "" {
		return m.ID
	}
	if m.Namespace != "" {
		return m.Namespace + "." + m.Name
	}
	return m.Name
}

// SpanName returns the deterministic span name for one producer invocation.
// Format: cache.produce.<producer id>
func (m ProducerMeta) SpanName() string {
	return "cache.produce." + m.ProducerID()
}

// Validate checks the metadata carries a name.
func (m ProducerMeta) Validate() error {
	if m.Name == "" && m.ID == "" {
		return ErrMissingProducerName
	}
	return nil
}
