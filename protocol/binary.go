package protocol

import erro "github.com/relaysix/relaysix/internal/errors"

const (
	ErrAttachmentMismatch erro.String = "protocol: attachment count mismatch"
	ErrTooDeep            erro.String = "protocol: binary data graph too deep"
)

// maxGraphDepth bounds the placeholder walk so a self-referential value
// built by hand (JSON decoding itself never produces cycles) fails
// loudly with ErrTooDeep instead of recursing forever (spec.md §9,
// "Graph-with-binary-placeholders... must handle cycles defensively").
const maxGraphDepth = 64

type placeholder struct {
	Placeholder bool `json:"_placeholder"`
	Num         int  `json:"num"`
}

// splitBinary walks v, replacing every []byte leaf with a placeholder
// object and collecting the removed bytes into attachments, in the
// order encountered (spec.md §4.1, "Binary handling").
func splitBinary(v interface{}) (cleaned interface{}, attachments [][]byte, err error) {
	attachments = [][]byte{}
	cleaned, err = walkSplit(v, 0, &attachments)
	return cleaned, attachments, err
}

func walkSplit(v interface{}, depth int, out *[][]byte) (interface{}, error) {
	if depth > maxGraphDepth {
		return nil, ErrTooDeep
	}
	switch x := v.(type) {
	case []byte:
		idx := len(*out)
		*out = append(*out, x)
		return placeholder{Placeholder: true, Num: idx}, nil
	case map[string]interface{}:
		out2 := make(map[string]interface{}, len(x))
		for k, val := range x {
			nv, err := walkSplit(val, depth+1, out)
			if err != nil {
				return nil, err
			}
			out2[k] = nv
		}
		return out2, nil
	case []interface{}:
		out2 := make([]interface{}, len(x))
		for i, val := range x {
			nv, err := walkSplit(val, depth+1, out)
			if err != nil {
				return nil, err
			}
			out2[i] = nv
		}
		return out2, nil
	default:
		return v, nil
	}
}

// joinBinary is the symmetric reconstruction: every placeholder object
// is replaced by the attachment it references, once all of them have
// arrived (spec.md §4.1, "The decoder accumulates attachments...").
func joinBinary(v interface{}, attachments [][]byte) (interface{}, error) {
	return walkJoin(v, 0, attachments)
}

func walkJoin(v interface{}, depth int, attachments [][]byte) (interface{}, error) {
	if depth > maxGraphDepth {
		return nil, ErrTooDeep
	}
	switch x := v.(type) {
	case map[string]interface{}:
		if isPlaceholder, num := asPlaceholder(x); isPlaceholder {
			if num < 0 || num >= len(attachments) {
				return nil, ErrAttachmentMismatch
			}
			return attachments[num], nil
		}
		out := make(map[string]interface{}, len(x))
		for k, val := range x {
			nv, err := walkJoin(val, depth+1, attachments)
			if err != nil {
				return nil, err
			}
			out[k] = nv
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(x))
		for i, val := range x {
			nv, err := walkJoin(val, depth+1, attachments)
			if err != nil {
				return nil, err
			}
			out[i] = nv
		}
		return out, nil
	default:
		return v, nil
	}
}

func asPlaceholder(m map[string]interface{}) (bool, int) {
	ph, ok := m["_placeholder"].(bool)
	if !ok || !ph {
		return false, 0
	}
	switch n := m["num"].(type) {
	case float64:
		return true, int(n)
	case int:
		return true, n
	}
	return false, 0
}
