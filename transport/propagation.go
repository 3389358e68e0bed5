package transport

import "github.com/cvsouth/reticulum-go/riface"

// propagationMatrix encodes spec.md §6's announce propagation table:
// whether an announce received on an interface of mode `from` is eligible
// to be re-emitted on an interface of mode `to`. GATEWAY is treated as
// FULL for this table, matching the reference table's four named rows
// (gateway nodes are full nodes that additionally answer path requests).
var propagationMatrix = map[riface.Mode]map[riface.Mode]bool{
	riface.Full: {
		riface.Full:     true,
		riface.AP:       false,
		riface.Boundary: true,
		riface.Roaming:  true,
	},
	riface.AP: {
		riface.Full:     false,
		riface.AP:       false,
		riface.Boundary: false,
		riface.Roaming:  true,
	},
	riface.Roaming: {
		riface.Full:     true,
		riface.AP:       false,
		riface.Boundary: false,
		riface.Roaming:  false,
	},
	riface.Boundary: {
		riface.Full:     true,
		riface.AP:       false,
		riface.Boundary: true,
		riface.Roaming:  false,
	},
}

// normalizeMode folds GATEWAY into FULL for propagation-matrix purposes.
func normalizeMode(m riface.Mode) riface.Mode {
	if m == riface.Gateway {
		return riface.Full
	}
	return m
}

// EligibleToForward reports whether an announce received on an interface
// of mode `from` may be re-emitted on an interface of mode `to` (spec.md
// §6 propagation matrix, scenario S6).
func EligibleToForward(from, to riface.Mode) bool {
	row, ok := propagationMatrix[normalizeMode(from)]
	if !ok {
		return false
	}
	return row[normalizeMode(to)]
}
