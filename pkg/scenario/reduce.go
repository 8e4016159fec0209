package scenario

import (
	"sort"

	"github.com/sipeed/picoclaw/pkg/model"
)

// Reduce merges per-scenario MapResults into a single ToolsContext:
// results are first stably sorted by scenario name, then facts merge
// first-writer-wins in that order (the alphabetically-first scenario
// keeps its value on key collision) and instruction blocks concatenate
// in that order, each scenario's own blocks kept in sequence. Nil
// results (gated-out scenarios) are skipped.
func Reduce(results []*MapResult) *model.ToolsContext {
	ctx := model.NewToolsContext()

	ordered := make([]*MapResult, 0, len(results))
	for _, r := range results {
		if r != nil {
			ordered = append(ordered, r)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].ScenarioName < ordered[j].ScenarioName })

	for _, r := range ordered {
		for key, value := range r.Facts {
			if _, exists := ctx.Facts[key]; !exists {
				ctx.Facts[key] = value
			}
		}
		ctx.InstructionBlocks = append(ctx.InstructionBlocks, r.InstructionBlocks...)
	}

	return ctx
}
