package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fableworks/fableflow/pkg/models"
	"github.com/fableworks/fableflow/pkg/orchestrator"
)

// sectionOrder lists the generation stages whose output appears in the
// final document, with their section headings.
var sectionOrder = []struct {
	stage   models.Stage
	key     string
	heading string
}{
	{models.StageStoryOutline, "outline", "故事大纲"},
	{models.StageCharacterProfiles, "characters", "人物设定"},
	{models.StageMajorPlotPoints, "plot_points", "主要情节"},
	{models.StageDetailedPlotPoints, "plot_points", "详细情节"},
	{models.StageMindMap, "nodes", "思维导图"},
}

// ResultFormatting assembles the outputs of all prior stages into the final
// document in the run's configured output format.
type ResultFormatting struct{}

func NewResultFormatting() *ResultFormatting {
	return &ResultFormatting{}
}

func (h *ResultFormatting) Execute(_ context.Context, input orchestrator.StageInput) (map[string]any, error) {
	format := input.State.Config.OutputFormat
	if format == "" {
		format = "markdown"
	}

	var (
		document string
		err      error
	)

	switch format {
	case "markdown":
		document = h.renderMarkdown(input.State)
	case "plain":
		document = h.renderPlain(input.State)
	case "json":
		document, err = h.renderJSON(input.State)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}

	return map[string]any{
		"document": document,
		"format":   format,
	}, nil
}

func (h *ResultFormatting) renderMarkdown(state *models.WorkflowState) string {
	var sb strings.Builder

	for _, section := range sectionOrder {
		result, ok := state.Result(section.stage)
		if !ok || result.Status != models.StageStatusCompleted {
			continue
		}

		sb.WriteString("## ")
		sb.WriteString(section.heading)
		sb.WriteString("\n\n")
		sb.WriteString(renderValue(result.Output[section.key]))
		sb.WriteString("\n\n")
	}

	return strings.TrimSpace(sb.String())
}

func (h *ResultFormatting) renderPlain(state *models.WorkflowState) string {
	var sb strings.Builder

	for _, section := range sectionOrder {
		result, ok := state.Result(section.stage)
		if !ok || result.Status != models.StageStatusCompleted {
			continue
		}

		sb.WriteString(section.heading)
		sb.WriteString("\n")
		sb.WriteString(renderValue(result.Output[section.key]))
		sb.WriteString("\n\n")
	}

	return strings.TrimSpace(sb.String())
}

func (h *ResultFormatting) renderJSON(state *models.WorkflowState) (string, error) {
	sections := make(map[string]any)

	for _, section := range sectionOrder {
		result, ok := state.Result(section.stage)
		if !ok || result.Status != models.StageStatusCompleted {
			continue
		}

		sections[string(section.stage)] = result.Output[section.key]
	}

	data, err := json.MarshalIndent(sections, "", "  ")
	if err != nil {
		return "", err
	}

	return string(data), nil
}

func renderValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []any:
		var sb strings.Builder
		for _, item := range v {
			sb.WriteString("- ")
			sb.WriteString(renderValue(item))
			sb.WriteString("\n")
		}

		return strings.TrimRight(sb.String(), "\n")
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}

		return string(data)
	}
}
