package trivia

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Lionel Messi!", "lionel messi"},
		{"  FRANÇA  ", "franca"},
		{"São Paulo", "sao paulo"},
		{"Leonardo da Vinci.", "leonardo da vinci"},
		{"under_score", "under_score"},
		{"R2-D2", "r2d2"},
		{"", ""},
		{"?!", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.input))
		})
	}
}

func TestCheckAnswer(t *testing.T) {
	q := Question{
		Prompt:  "Quem é este jogador?",
		Answers: []string{"Lionel Messi"},
		Aliases: []string{"messi"},
	}
	france := Question{
		Prompt:  "Qual país venceu a Copa de 2018?",
		Answers: []string{"franca", "frança"},
	}

	tests := []struct {
		name  string
		raw   string
		q     Question
		match bool
	}{
		{"exact canonical", "lionel messi", q, true},
		{"punctuation and case", "Lionel Messi!", q, true},
		{"alias", "MESSI", q, true},
		{"accented alias", "Méssi", q, true},
		{"surrounding spaces", "  messi ", q, true},
		{"partial is not enough", "lionel", q, false},
		{"wrong answer", "cristiano ronaldo", q, false},
		{"empty", "", q, false},
		{"cedilla folded", "França", france, true},
		{"plain spelling", "franca", france, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.match, CheckAnswer(tt.raw, tt.q))
		})
	}
}

func TestCheckAnswerIgnoresCaseAccentsAndPunctuation(t *testing.T) {
	questions := []Question{
		{Answers: []string{"lionel messi"}},
		{Answers: []string{"pelé"}, Aliases: []string{"edson"}},
		{Answers: []string{"something else"}},
	}

	for _, q := range questions {
		assert.Equal(t, CheckAnswer("lionel messi", q), CheckAnswer("Lionel Messi!", q))
		assert.Equal(t, CheckAnswer("pele", q), CheckAnswer("PELÉ?", q))
	}
}

func TestComputePoints(t *testing.T) {
	tests := []struct {
		name                                string
		timeRemaining, questionTime, points int
		want                                int
	}{
		{"full time", 15, 15, 20, 20},
		{"no time", 0, 15, 20, 0},
		{"rounds down", 7, 15, 20, 9},
		{"rounds up", 5, 15, 20, 7},
		{"ten seconds", 10, 15, 20, 13},
		{"clamped above", 30, 15, 20, 20},
		{"clamped below", -3, 15, 20, 0},
		{"zero question time", 5, 0, 20, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComputePoints(tt.timeRemaining, tt.questionTime, tt.points))
		})
	}
}
