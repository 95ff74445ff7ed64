package orchestrator

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/fableworks/fableflow/pkg/models"
)

const maxSnapshotRunes = 120

// summarize builds the short human-readable snapshot carried by success
// events. Events never carry the full stage payload.
func summarize(stage models.Stage, output map[string]any) string {
	switch stage {
	case models.StageInputValidation:
		return "输入校验通过"

	case models.StageTextPreprocessing:
		return fmt.Sprintf("预处理完成：%d 个片段，共 %d 字",
			intValue(output, "chunk_count"), intValue(output, "char_count"))

	case models.StageStoryOutline:
		return fmt.Sprintf("故事大纲生成完成：%d 字", runeCount(output, "outline"))

	case models.StageCharacterProfiles:
		return fmt.Sprintf("人物设定生成完成：%d 个角色", listLen(output, "characters"))

	case models.StageMajorPlotPoints:
		return fmt.Sprintf("主要情节生成完成：%d 个情节点", listLen(output, "plot_points"))

	case models.StageDetailedPlotPoints:
		return fmt.Sprintf("详细情节生成完成：%d 个情节点", listLen(output, "plot_points"))

	case models.StageMindMap:
		return fmt.Sprintf("思维导图生成完成：%d 个节点", listLen(output, "nodes"))

	case models.StageResultFormatting:
		if format, ok := output["format"].(string); ok {
			return "结果格式化完成：" + format
		}

		return "结果格式化完成"
	}

	return truncatedJSON(output)
}

func intValue(output map[string]any, key string) int {
	switch v := output[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}

	return 0
}

func runeCount(output map[string]any, key string) int {
	if text, ok := output[key].(string); ok {
		return utf8.RuneCountInString(text)
	}

	return 0
}

func listLen(output map[string]any, key string) int {
	if items, ok := output[key].([]any); ok {
		return len(items)
	}

	return 0
}

func truncatedJSON(output map[string]any) string {
	data, err := json.Marshal(output)
	if err != nil {
		return ""
	}

	text := string(data)
	if utf8.RuneCountInString(text) <= maxSnapshotRunes {
		return text
	}

	runes := []rune(text)

	return string(runes[:maxSnapshotRunes]) + "..."
}
