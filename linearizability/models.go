package linearizability

// RegisterInput is the input for one operation against a replicated
// register-per-key store: get or put (spec.md defines exactly these two
// client operations; there is no append).
type RegisterInput struct {
	Op    uint8  // 0 => get, 1 => put
	Key   string // Key in the key-value store
	Value string // Value to write, for put
}

// RegisterOutput is the observed output of an operation: the value read
// back by a get (ignored for put).
type RegisterOutput struct {
	Value string
}

// RegisterModel returns a Model for a linearizable register-per-key store,
// the abstraction spec.md §1 promises clients. This replaces the teacher's
// KvModel (linearizability/models.go), dropping the append operation the
// teacher's kvraft supported but this spec does not define.
func RegisterModel() Model {
	return Model{
		// Partition by key: each key's operations form an independent
		// register history, since puts to one key never affect another.
		Partition: func(history []Operation) [][]Operation {
			m := make(map[string][]Operation)
			for _, v := range history {
				key := v.Input.(RegisterInput).Key
				m[key] = append(m[key], v)
			}
			var ret [][]Operation
			for _, v := range m {
				ret = append(ret, v)
			}
			return ret
		},
		// Init: an unwritten key reads as "" (spec.md §9.4: missing and
		// explicitly-empty are indistinguishable).
		Init: func() interface{} {
			return ""
		},
		Step: func(state, input, output interface{}) (bool, interface{}) {
			inp := input.(RegisterInput)
			out := output.(RegisterOutput)
			st := state.(string)
			switch inp.Op {
			case 0: // get
				return out.Value == st, state
			case 1: // put
				return true, inp.Value
			}
			return false, state
		},
		Equal: ShallowEqual,
	}
}
