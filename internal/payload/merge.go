package payload

// Merge folds incoming into existing:
//   - a null incoming value never overwrites existing
//   - when both sides are maps, keys merge recursively
//   - any other incoming value (scalar, list, or map over a non-map) replaces existing
//
// Neither argument is modified.
func Merge(existing, incoming Value) Value {
	if incoming.kind == KindNull {
		return existing
	}
	if existing.kind != KindMap || incoming.kind != KindMap {
		return incoming
	}

	merged := make(map[string]Value, len(existing.fields)+len(incoming.fields))
	for k, f := range existing.fields {
		merged[k] = f
	}
	for k, in := range incoming.fields {
		if in.kind == KindNull {
			continue
		}
		if cur, ok := merged[k]; ok {
			merged[k] = Merge(cur, in)
			continue
		}
		merged[k] = in
	}
	return Value{kind: KindMap, fields: merged}
}
