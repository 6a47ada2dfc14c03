package mapping

// DeepCopy copia recursivamente un documento JSON-like (mapas y slices).
func DeepCopy(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return DeepCopy(t)
	case []any:
		cp := make([]any, len(t))
		for i, e := range t {
			cp[i] = copyValue(e)
		}
		return cp
	default:
		return v
	}
}

// Merge combina over sobre base sin modificar ninguno: los objetos se combinan
// recursivamente y el resto de valores de over pisa a base.
func Merge(base, over map[string]any) map[string]any {
	out := DeepCopy(base)
	if out == nil {
		out = map[string]any{}
	}
	for k, v := range over {
		if bm, ok := out[k].(map[string]any); ok {
			if om, ok := v.(map[string]any); ok {
				out[k] = Merge(bm, om)
				continue
			}
		}
		out[k] = copyValue(v)
	}
	return out
}

// Normalize quita un wrapper de tipo ("_doc") si el mapping lo trae.
func Normalize(m map[string]any) map[string]any {
	if doc, ok := m["_doc"].(map[string]any); ok && len(m) == 1 {
		return doc
	}
	return m
}
