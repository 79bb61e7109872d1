package program

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

type ShapeSummary struct {
	TotalNodes           int            `json:"total_nodes"`
	TotalCalls           int            `json:"total_calls"`
	TotalTerminals       int            `json:"total_terminals"`
	Depth                int            `json:"depth"`
	FunctionDistribution map[string]int `json:"function_distribution"`
}

type Signature struct {
	Fingerprint string       `json:"fingerprint"`
	Summary     ShapeSummary `json:"summary"`
}

// ComputeSignature derives a canonical fingerprint for duplicate
// detection plus a coarse shape summary for diagnostics. Structurally
// equal programs always share a fingerprint.
func ComputeSignature(p *Program) Signature {
	fnDist := make(map[string]int)
	calls := 0
	var walk func(node *Node)
	walk = func(node *Node) {
		if node.Kind == KindCall {
			calls++
			fnDist[node.Fn.Name]++
		}
		for _, child := range node.Children {
			walk(child)
		}
	}
	walk(p.Root())

	summary := ShapeSummary{
		TotalNodes:           p.Size(),
		TotalCalls:           calls,
		TotalTerminals:       p.Size() - calls,
		Depth:                p.Depth(),
		FunctionDistribution: fnDist,
	}

	parts := []string{
		fmt.Sprintf("t=%s", p.RootType()),
		fmt.Sprintf("n=%d", summary.TotalNodes),
		fmt.Sprintf("d=%d", summary.Depth),
		"expr=" + p.Render(),
	}
	keys := make([]string, 0, len(fnDist))
	for k := range fnDist {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("fn:%s=%d", k, fnDist[k]))
	}

	digest := sha1.Sum([]byte(strings.Join(parts, "|")))
	return Signature{
		Fingerprint: hex.EncodeToString(digest[:8]),
		Summary:     summary,
	}
}
