package melcloud

import "fmt"

// writeRule binds a writable property to its state field mutation and
// its EffectiveFlags contribution. Every property owns distinct bits so
// simultaneously pending properties compose by OR without interference.
type writeRule struct {
	flag  uint64
	apply func(d *Device, state map[string]any, value any) error
}

// writeTable is a device type's catalogue of writable properties.
// The bit assignments are part of the wire protocol and must not change.
type writeTable map[string]writeRule

// applyWrite encodes one property onto a state record and accumulates
// its flag bits. The accumulator is seeded from the record's existing
// EffectiveFlags so unrelated in-flight bits are preserved.
//
// Passing a scratch record validates a property without touching
// device state.
func (d *Device) applyWrite(state map[string]any, key string, value any) error {
	rule, ok := d.writes[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedProperty, key)
	}
	if err := rule.apply(d, state, value); err != nil {
		return err
	}
	setRecordFlags(state, recordFlags(state)|rule.flag)
	return nil
}

// enumCodec is a bidirectional integer/label table for an enumerated
// property.
//
// Decoding an unknown integer yields the sentinel label because the
// service is observed to emit values outside the known enumeration;
// encoding an unknown label is an error.
type enumCodec struct {
	labels   map[int]string
	sentinel string
}

func (c enumCodec) decode(code int) string {
	if label, ok := c.labels[code]; ok {
		return label
	}
	return c.sentinel
}

func (c enumCodec) encode(label string) (int, error) {
	for code, l := range c.labels {
		if l == label {
			return code, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidEnumValue, label)
}

// requireFloat validates a numeric property value.
func requireFloat(key string, value any) (float64, error) {
	f, ok := asFloat(value)
	if !ok {
		return 0, fmt.Errorf("%w: %s requires a number", ErrInvalidProperty, key)
	}
	return f, nil
}

// requireString validates an enumerated property value.
func requireString(key string, value any) (string, error) {
	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s requires a label", ErrInvalidProperty, key)
	}
	return s, nil
}
