package trivia

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

//go:embed questions.yaml
var defaultBank []byte

// Question is immutable once loaded.
type Question struct {
	Prompt  string   `yaml:"question"`
	Image   string   `yaml:"image,omitempty"`
	Theme   string   `yaml:"theme,omitempty"`
	Answers []string `yaml:"answers"`
	Aliases []string `yaml:"aliases,omitempty"`
}

// Bank is a read-only set of questions, indexed by theme.
type Bank struct {
	questions []Question
	byTheme   map[string][]Question
}

// NewBank validates the questions and indexes them by theme.
func NewBank(questions []Question) (*Bank, error) {
	if len(questions) == 0 {
		return nil, ErrEmptyBank
	}

	for i, q := range questions {
		if strings.TrimSpace(q.Prompt) == "" {
			return nil, fmt.Errorf("question %d: missing prompt", i)
		}
		if len(q.Answers) == 0 {
			return nil, fmt.Errorf("question %d (%q): no answers", i, q.Prompt)
		}
	}

	return &Bank{
		questions: questions,
		byTheme: lo.GroupBy(questions, func(q Question) string {
			return themeKey(q.Theme)
		}),
	}, nil
}

// ParseBank decodes a YAML list of questions.
func ParseBank(data []byte) (*Bank, error) {
	var questions []Question
	if err := yaml.Unmarshal(data, &questions); err != nil {
		return nil, fmt.Errorf("decode question bank: %w", err)
	}

	return NewBank(questions)
}

// LoadBank reads a YAML bank from path, or the embedded bank when path is empty.
func LoadBank(path string) (*Bank, error) {
	if path == "" {
		return ParseBank(defaultBank)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read question bank: %w", err)
	}

	return ParseBank(data)
}

// Pick chooses a question uniformly at random among those of theme, or among
// the whole bank when the theme is empty or unknown.
func (b *Bank) Pick(theme string, intn func(int) int) Question {
	pool := b.questions
	if themed, ok := b.byTheme[themeKey(theme)]; ok && theme != "" {
		pool = themed
	}

	return pool[intn(len(pool))]
}

func (b *Bank) Len() int {
	return len(b.questions)
}

func themeKey(theme string) string {
	return Normalize(theme)
}
