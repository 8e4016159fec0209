package scenario

import "github.com/sipeed/picoclaw/pkg/model"

func makeBlocks(n int) []model.InstructionBlock {
	out := make([]model.InstructionBlock, n)
	for i := range out {
		out[i] = model.InstructionBlock{ID: "b", Kind: model.KindRaw, Target: model.TargetAgent}
	}
	return out
}
