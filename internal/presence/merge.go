package presence

// DeepMerge merges one or more patch documents into a base document and
// returns a new document; neither input is modified.
//
// For every key present in a patch: if both the existing value and the
// patch value are documents, they are merged recursively with the patch
// winning on leaf conflicts; otherwise the patch value replaces the
// existing value wholesale, including a document replacing a scalar or
// vice versa. Patches apply left to right, so later patches win.
//
// No key is ever deleted. Clearing a field requires the patch to set it
// to an explicit null, which survives as a nil value in the result;
// omitted fields never override stored values. This is what makes merge
// (PATCH) semantics differ from replace (PUT) semantics: callers build
// patch documents containing only the fields they explicitly set.
func DeepMerge(base map[string]any, patches ...map[string]any) map[string]any {
	merged := deepCopyDoc(base)
	if merged == nil {
		merged = make(map[string]any)
	}
	for _, patch := range patches {
		for k, v := range patch {
			existing, ok := merged[k].(map[string]any)
			patchDoc, isDoc := v.(map[string]any)
			if ok && isDoc {
				merged[k] = DeepMerge(existing, patchDoc)
				continue
			}
			merged[k] = deepCopyValue(v)
		}
	}
	return merged
}

// deepCopyDoc creates an independent copy of a document. Nested
// documents and slices are recursively copied so mutations of the copy
// never leak into the original.
func deepCopyDoc(doc map[string]any) map[string]any {
	if doc == nil {
		return nil
	}
	cpy := make(map[string]any, len(doc))
	for k, v := range doc {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

// deepCopyValue recursively copies a value, handling nested documents
// and slices. Primitives are safe to copy by value.
func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyDoc(val)
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = deepCopyValue(elem)
		}
		return cpy
	default:
		return v
	}
}
