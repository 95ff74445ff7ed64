// Package models defines the core domain models for the story-generation pipeline.
package models

// Stage identifies one ordered step of the generation pipeline.
type Stage string

const (
	StageInputValidation    Stage = "input_validation"
	StageTextPreprocessing  Stage = "text_preprocessing"
	StageStoryOutline       Stage = "story_outline"
	StageCharacterProfiles  Stage = "character_profiles"
	StageMajorPlotPoints    Stage = "major_plot_points"
	StageDetailedPlotPoints Stage = "detailed_plot_points"
	StageMindMap            Stage = "mind_map"
	StageResultFormatting   Stage = "result_formatting"

	// Terminal pseudo-stages.
	StageCompleted Stage = "completed"
	StageFailed    Stage = "failed"
	StageCancelled Stage = "cancelled"
)

// stageOrder is the canonical execution order of the pipeline.
var stageOrder = []Stage{
	StageInputValidation,
	StageTextPreprocessing,
	StageStoryOutline,
	StageCharacterProfiles,
	StageMajorPlotPoints,
	StageDetailedPlotPoints,
	StageMindMap,
	StageResultFormatting,
}

// stageLabels maps each stage to the node label shown in the UI.
var stageLabels = map[Stage]string{
	StageInputValidation:    "输入校验",
	StageTextPreprocessing:  "文本预处理",
	StageStoryOutline:       "故事大纲",
	StageCharacterProfiles:  "人物设定",
	StageMajorPlotPoints:    "主要情节",
	StageDetailedPlotPoints: "详细情节",
	StageMindMap:            "思维导图",
	StageResultFormatting:   "结果格式化",
}

// StageOrder returns a copy of the canonical stage order.
func StageOrder() []Stage {
	order := make([]Stage, len(stageOrder))
	copy(order, stageOrder)

	return order
}

// FirstStage returns the first stage of the pipeline.
func FirstStage() Stage {
	return stageOrder[0]
}

// TotalStages returns the number of non-terminal stages.
func TotalStages() int {
	return len(stageOrder)
}

// Index returns the position of the stage in the canonical order,
// or -1 for terminal and unknown stages.
func (s Stage) Index() int {
	for i, stage := range stageOrder {
		if stage == s {
			return i
		}
	}

	return -1
}

// IsValid reports whether the stage is a member of the canonical order
// or a terminal value.
func (s Stage) IsValid() bool {
	return s.Index() >= 0 || s.IsTerminal()
}

// IsTerminal reports whether the stage is a terminal pseudo-stage.
func (s Stage) IsTerminal() bool {
	return s == StageCompleted || s == StageFailed || s == StageCancelled
}

// Next returns the successor of the stage in canonical order. The second
// return value is false when no stage remains.
func (s Stage) Next() (Stage, bool) {
	idx := s.Index()
	if idx < 0 || idx+1 >= len(stageOrder) {
		return "", false
	}

	return stageOrder[idx+1], true
}

// NodeName returns the UI node identifier for the stage. Node names map
// 1:1 to stages.
func (s Stage) NodeName() string {
	return string(s)
}

// Label returns the human-readable UI label for the stage.
func (s Stage) Label() string {
	if label, ok := stageLabels[s]; ok {
		return label
	}

	return string(s)
}
