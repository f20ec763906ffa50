package resolve

// DeepMerge overlays override on base and returns the result. Two objects
// merge key by key; any other combination is replaced by override. A nil
// override keeps base, which also applies to null values inside objects.
// Neither argument is modified, but the result may share unchanged
// sub-objects with them.
func DeepMerge(base, override interface{}) interface{} {
	if override == nil {
		return base
	}

	b, baseIsObject := base.(map[string]interface{})
	o, overrideIsObject := override.(map[string]interface{})
	if !baseIsObject || !overrideIsObject {
		// arrays and primitives replace
		return override
	}

	out := make(map[string]interface{}, len(b)+len(o))
	for k, v := range b {
		out[k] = v
	}
	for k, v := range o {
		out[k] = DeepMerge(b[k], v)
	}
	return out
}
