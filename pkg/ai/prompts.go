package ai

import (
	"fmt"
	"strings"
)

// StudyType names a kind of generated study material.
type StudyType string

const (
	StudyTypeFlashcard StudyType = "Flashcard"
	StudyTypeQuiz      StudyType = "Quiz"
	StudyTypeMindMap   StudyType = "MindMap"
)

// ParseStudyType matches s case-insensitively against the known study types.
func ParseStudyType(s string) (StudyType, error) {
	for _, t := range []StudyType{StudyTypeFlashcard, StudyTypeQuiz, StudyTypeMindMap} {
		if strings.EqualFold(strings.TrimSpace(s), string(t)) {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown study type %q", s)
}

// MindMapDocument is the structured output requested for mind maps. Its JSON
// form is the {nodes, connections} shape the mindmap package normalizes.
type MindMapDocument struct {
	Nodes       []MindMapNode       `json:"nodes" jsonschema:"description=All concepts of the mind map"`
	Connections []MindMapConnection `json:"connections" jsonschema:"description=Parent to child links between node ids"`
}

type MindMapNode struct {
	ID          string `json:"id" jsonschema:"description=Unique node id"`
	Label       string `json:"label" jsonschema:"description=Concise concept name"`
	Type        string `json:"type" jsonschema:"enum=main,enum=primary,enum=secondary,enum=tertiary"`
	Description string `json:"description" jsonschema:"description=One or two sentences explaining the concept"`
}

type MindMapConnection struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

const FlashcardPrompt = `Generate the flashcard on topic : %s in JSON format with front back content, Maximum (%s * 3) flashcards`

const QuizPrompt = `Generate Quiz on topic : %s with Question and Options along with correct answer in JSON format, (Max %s * 3)`

const MindMapPrompt = `Generate a comprehensive hierarchical mind map on topic: %s.

The mind map should have:
1. A central main topic node
2. Multiple primary branches (at least 5-7 main concepts)
3. Secondary branches from each primary branch (2-3 subtopics per main concept)
4. Tertiary branches where appropriate (deeper details)

Each node should have a concise label and a brief description explaining the concept.

Return in JSON format with the following structure:
{
  "nodes": [
    {"id": "1", "label": "Main Topic", "type": "main", "description": "Detailed description of the main topic"},
    {"id": "2", "label": "Primary Branch 1", "type": "primary", "description": "Description of this main concept"},
    {"id": "3", "label": "Secondary Branch 1.1", "type": "secondary", "description": "More detailed information about this subtopic"},
    {"id": "4", "label": "Tertiary Branch 1.1.1", "type": "tertiary", "description": "Specific details about this concept"}
  ],
  "connections": [
    {"source": "1", "target": "2"},
    {"source": "2", "target": "3"},
    {"source": "3", "target": "4"}
  ]
}

Ensure all nodes have unique IDs and that connections properly represent the hierarchical relationship between concepts.`

// BuildStudyPrompt returns the generation prompt for one study type.
// chapters is the comma separated chapter list, courseLength the course size
// hint used to cap the number of flashcards and questions.
func BuildStudyPrompt(studyType StudyType, chapters, courseLength string) string {
	switch studyType {
	case StudyTypeFlashcard:
		return fmt.Sprintf(FlashcardPrompt, chapters, courseLength)
	case StudyTypeMindMap:
		return fmt.Sprintf(MindMapPrompt, chapters)
	default:
		return fmt.Sprintf(QuizPrompt, chapters, courseLength)
	}
}
