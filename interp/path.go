package interp

// Navigate applies already-evaluated path parts to a base value.
// Null propagation lives here (and in the evaluator's walker, which
// shares these helpers): a null at any point makes the whole path
// null.  An unknown field on a non-null opaque object is a
// ResolveError.
func Navigate(base Value, parts []PathPart) (Value, error) {
	v := base
	for _, p := range parts {
		if v.IsNull() {
			return Null, nil
		}
		if p.Index != nil {
			next, err := indexValue(v, *p.Index, 0)
			if err != nil {
				return Null, err
			}
			v = next
			continue
		}
		next, err := attrValue(v, p.Name, 0)
		if err != nil {
			return Null, err
		}
		v = next
	}
	return v, nil
}
