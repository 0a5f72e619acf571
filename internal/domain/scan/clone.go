package scan

// Clone returns a deep copy of the scan result. Details values that are
// maps, slices or primitives produced by the probes are copied; anything
// else is shared, which is safe because probes only store immutable values.
func (s ScanResult) Clone() ScanResult {
	out := ScanResult{
		OverallScore: s.OverallScore,
		Timestamp:    s.Timestamp,
	}
	if s.Probes != nil {
		out.Probes = make(map[ProbeName]ProbeResult, len(s.Probes))
		for name, r := range s.Probes {
			out.Probes[name] = r.Clone()
		}
	}
	return out
}

// Clone returns a deep copy of the probe result.
func (r ProbeResult) Clone() ProbeResult {
	out := ProbeResult{
		Score: r.Score,
		Error: r.Error,
	}
	if r.Findings != nil {
		out.Findings = append([]Finding(nil), r.Findings...)
		if out.Findings == nil {
			out.Findings = []Finding{}
		}
	}
	if r.Details != nil {
		out.Details = cloneMap(r.Details)
	}
	return out
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case map[string]string:
		c := make(map[string]string, len(t))
		for k, s := range t {
			c[k] = s
		}
		return c
	case []any:
		c := make([]any, len(t))
		for i, e := range t {
			c[i] = cloneValue(e)
		}
		return c
	case []string:
		return append([]string{}, t...)
	case []int:
		return append([]int{}, t...)
	default:
		return v
	}
}
