package stages

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/fableworks/fableflow/pkg/models"
	"github.com/fableworks/fableflow/pkg/orchestrator"
)

const excerptRunes = 60

// Scripted produces deterministic placeholder output for the generation
// stages. Deployments wire LLM-backed handlers in its place; the scripted
// handler keeps local runs and demos working end to end.
type Scripted struct {
	stage models.Stage
}

func NewScripted(stage models.Stage) *Scripted {
	return &Scripted{stage: stage}
}

func (h *Scripted) Execute(_ context.Context, input orchestrator.StageInput) (map[string]any, error) {
	excerpt := excerptOf(input.Prompt)

	switch h.stage {
	case models.StageStoryOutline:
		return map[string]any{
			"outline": fmt.Sprintf("基于素材「%s」的三幕式大纲：开端、发展、结局。", excerpt),
		}, nil

	case models.StageCharacterProfiles:
		return map[string]any{
			"characters": []any{
				map[string]any{"name": "主角", "role": "protagonist"},
				map[string]any{"name": "对手", "role": "antagonist"},
			},
		}, nil

	case models.StageMajorPlotPoints:
		return map[string]any{
			"plot_points": []any{"主角登场", "冲突爆发", "最终对决"},
		}, nil

	case models.StageDetailedPlotPoints:
		return map[string]any{
			"plot_points": []any{
				map[string]any{"scene": 1, "description": "主角登场，交代背景"},
				map[string]any{"scene": 2, "description": "冲突爆发，局势升级"},
				map[string]any{"scene": 3, "description": "最终对决，尘埃落定"},
			},
		}, nil

	case models.StageMindMap:
		return map[string]any{
			"nodes": []any{
				map[string]any{"id": "root", "label": "故事", "children": []any{"outline", "characters"}},
				map[string]any{"id": "outline", "label": "大纲"},
				map[string]any{"id": "characters", "label": "人物"},
			},
		}, nil
	}

	return nil, fmt.Errorf("no scripted output for stage: %s", h.stage)
}

func excerptOf(prompt string) string {
	if utf8.RuneCountInString(prompt) <= excerptRunes {
		return prompt
	}

	return string([]rune(prompt)[:excerptRunes]) + "…"
}
