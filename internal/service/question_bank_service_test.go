package service

import (
	"bytes"
	"mooc_exam_backend/internal/model"
	"mooc_exam_backend/internal/util"
	"mooc_exam_backend/pkg/storage"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeQuestionShapes(t *testing.T) {
	cases := []struct {
		name string
		in   QuestionInput
		ok   bool
	}{
		{"single choice", QuestionInput{Stem: "q", Type: model.QuestionSingleChoice, Difficulty: model.DifficultyEasy,
			Options: []OptionInput{{IsCorrect: true}, {}, {}}}, true},
		{"single choice two correct", QuestionInput{Stem: "q", Type: model.QuestionSingleChoice, Difficulty: model.DifficultyEasy,
			Options: []OptionInput{{IsCorrect: true}, {IsCorrect: true}}}, false},
		{"single choice one option", QuestionInput{Stem: "q", Type: model.QuestionSingleChoice, Difficulty: model.DifficultyEasy,
			Options: []OptionInput{{IsCorrect: true}}}, false},
		{"true false", QuestionInput{Stem: "q", Type: model.QuestionTrueFalse, Difficulty: model.DifficultyMedium,
			Options: []OptionInput{{Label: "T", IsCorrect: true}, {Label: "F"}}}, true},
		{"true false three options", QuestionInput{Stem: "q", Type: model.QuestionTrueFalse, Difficulty: model.DifficultyMedium,
			Options: []OptionInput{{IsCorrect: true}, {}, {}}}, false},
		{"essay", QuestionInput{Stem: "q", Type: model.QuestionEssay, Difficulty: model.DifficultyHard}, true},
		{"essay with options", QuestionInput{Stem: "q", Type: model.QuestionEssay, Difficulty: model.DifficultyHard,
			Options: []OptionInput{{IsCorrect: true}}}, false},
		{"duplicate labels", QuestionInput{Stem: "q", Type: model.QuestionSingleChoice, Difficulty: model.DifficultyEasy,
			Options: []OptionInput{{Label: "a", IsCorrect: true}, {Label: "A"}}}, false},
		{"blank stem", QuestionInput{Stem: "  ", Type: model.QuestionEssay, Difficulty: model.DifficultyEasy}, false},
		{"unknown difficulty", QuestionInput{Stem: "q", Type: model.QuestionEssay, Difficulty: "brutal"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := normalize(tc.in)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Equal(t, util.KindValidation, util.KindOf(err))
			}
		})
	}
}

func TestNormalizeFillsLabelsAndPoints(t *testing.T) {
	out, err := normalize(QuestionInput{
		Stem:       " stem ",
		Type:       model.QuestionSingleChoice,
		Difficulty: model.DifficultyEasy,
		Options:    []OptionInput{{IsCorrect: true}, {}, {Label: "x"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "stem", out.Stem)
	assert.Equal(t, 1.0, out.Points)
	assert.Equal(t, "A", out.Options[0].Label)
	assert.Equal(t, "B", out.Options[1].Label)
	assert.Equal(t, "X", out.Options[2].Label)
}

func TestUpdateQuestionLockedAfterSubmission(t *testing.T) {
	f := newFixture(t, tenEasy(3, model.RevealImmediately))
	res := f.start(learnerID)
	qid := res.Questions[0]

	edit := QuestionInput{
		Stem:       "rewritten",
		Type:       model.QuestionSingleChoice,
		Difficulty: model.DifficultyEasy,
		Options:    []OptionInput{{Content: "yes", IsCorrect: true}, {Content: "no"}},
	}

	// an open attempt does not lock the question yet
	q, err := f.bank.Update(f.ctx, qid, edit)
	require.NoError(t, err)
	assert.Equal(t, 2, q.Version)

	_, err = f.manager.Submit(f.ctx, learnerID, res.InstanceID)
	require.NoError(t, err)

	_, err = f.bank.Update(f.ctx, qid, edit)
	assertKind(t, err, util.KindStateConflict, util.ErrQuestionLocked)

	err = f.bank.Delete(f.ctx, qid)
	assertKind(t, err, util.KindStateConflict, util.ErrQuestionInUse)
}

func TestUpdateQuestionKeepsSavedAnswersOfOpenAttempt(t *testing.T) {
	f := newFixture(t, tenEasy(3, model.RevealImmediately))
	res := f.start(learnerID)
	f.answer(learnerID, res, 10)
	qid := res.Questions[0]

	// stem typo fix with the same answer key
	q, err := f.bank.Update(f.ctx, qid, QuestionInput{
		Stem:       "unit 1 question, reworded",
		Type:       model.QuestionSingleChoice,
		Difficulty: model.DifficultyEasy,
		Options:    []OptionInput{{Content: "right", IsCorrect: true}, {Content: "wrong"}},
	})
	require.NoError(t, err)
	require.Len(t, q.Options, 2)
	assert.Equal(t, f.correct[qid], q.Options[0].ID)
	assert.Equal(t, f.wrong[qid], q.Options[1].ID)

	view, err := f.manager.GetInstance(f.ctx, learnerID, res.InstanceID)
	require.NoError(t, err)
	assert.Equal(t, "unit 1 question, reworded", view.Questions[0].Stem)
	assert.Equal(t, []uint{f.correct[qid]}, view.Questions[0].Selected)

	out, err := f.manager.Submit(f.ctx, learnerID, res.InstanceID)
	require.NoError(t, err)
	assert.Equal(t, 10, out.CorrectCount)
	assert.Equal(t, 100.0, out.Percentage)
}

func TestUpdateQuestionReconcilesOptionsByLabel(t *testing.T) {
	f := newFixture(t, tenEasy(3, model.RevealImmediately))
	q, err := f.bank.Create(f.ctx, f.units[1].ID, QuestionInput{
		Stem:       "pick one",
		Type:       model.QuestionSingleChoice,
		Difficulty: model.DifficultyMedium,
		Options:    []OptionInput{{Content: "a", IsCorrect: true}, {Content: "b"}, {Content: "c"}},
	})
	require.NoError(t, err)
	ids := map[string]uint{}
	for _, o := range q.Options {
		ids[o.Label] = o.ID
	}

	// B becomes correct, C is dropped, D is new
	_, err = f.bank.Update(f.ctx, q.ID, QuestionInput{
		Stem:       "pick one",
		Type:       model.QuestionSingleChoice,
		Difficulty: model.DifficultyMedium,
		Options: []OptionInput{
			{Label: "A", Content: "a"},
			{Label: "B", Content: "b", IsCorrect: true},
			{Label: "D", Content: "d"},
		},
	})
	require.NoError(t, err)

	reloaded, err := f.bank.Questions.FindByID(f.ctx, q.ID)
	require.NoError(t, err)
	require.Len(t, reloaded.Options, 3)
	assert.Equal(t, ids["A"], reloaded.Options[0].ID)
	assert.False(t, reloaded.Options[0].IsCorrect)
	assert.Equal(t, ids["B"], reloaded.Options[1].ID)
	assert.True(t, reloaded.Options[1].IsCorrect)
	assert.Equal(t, "D", reloaded.Options[2].Label)
	assert.NotEqual(t, ids["C"], reloaded.Options[2].ID)
}

func TestDeleteUnusedQuestion(t *testing.T) {
	f := newFixture(t, tenEasy(3, model.RevealImmediately))
	q, err := f.bank.Create(f.ctx, f.units[1].ID, QuestionInput{
		Stem:       "spare",
		Type:       model.QuestionEssay,
		Difficulty: model.DifficultyHard,
	})
	require.NoError(t, err)

	require.NoError(t, f.bank.Delete(f.ctx, q.ID))

	err = f.bank.Delete(f.ctx, q.ID)
	assertKind(t, err, util.KindNotFound, util.ErrQuestionNotFound)
}

func TestCreateQuestionUnknownUnit(t *testing.T) {
	f := newFixture(t, tenEasy(3, model.RevealImmediately))
	_, err := f.bank.Create(f.ctx, 9999, QuestionInput{Stem: "q", Type: model.QuestionEssay, Difficulty: model.DifficultyEasy})
	assertKind(t, err, util.KindNotFound, util.ErrUnitNotFound)
}

const yamlBank = `questions:
  - stem: What does GOMAXPROCS limit?
    type: single_choice
    difficulty: medium
    points: 2
    options:
      - content: OS threads executing Go code
        is_correct: true
      - content: Number of goroutines
  - stem: A nil map can be read from.
    type: true_false
    difficulty: easy
    options:
      - label: T
        content: "True"
        is_correct: true
      - label: F
        content: "False"
`

func TestUploadAndImportBank(t *testing.T) {
	f := newFixture(t, tenEasy(3, model.RevealImmediately))
	f.bank.Storage = &storage.LocalProvider{Root: t.TempDir()}
	unit := f.units[1].ID

	key, err := f.bank.Upload(f.ctx, unit, "../../bank.yaml", strings.NewReader(yamlBank), int64(len(yamlBank)))
	require.NoError(t, err)
	assert.Equal(t, "question-banks/unit-2/bank.yaml", key)

	res, err := f.bank.Import(f.ctx, unit, key)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Imported)

	list, err := f.bank.List(f.ctx, unit)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, model.DifficultyMedium, list[0].Difficulty)
	assert.Equal(t, 2.0, list[0].Points)
	require.Len(t, list[0].Options, 2)
	assert.Equal(t, "A", list[0].Options[0].Label)
	assert.True(t, list[0].Options[0].IsCorrect)
	assert.Equal(t, model.QuestionTrueFalse, list[1].Type)
}

func TestImportRejectsWholeFileOnInvalidQuestion(t *testing.T) {
	f := newFixture(t, tenEasy(3, model.RevealImmediately))
	f.bank.Storage = &storage.LocalProvider{Root: t.TempDir()}
	unit := f.units[1].ID

	bank := `{"questions":[
		{"stem":"ok","type":"essay","difficulty":"easy"},
		{"stem":"bad","type":"single_choice","difficulty":"easy","options":[{"content":"only","isCorrect":true}]}
	]}`
	key, err := f.bank.Upload(f.ctx, unit, "bank.json", bytes.NewBufferString(bank), int64(len(bank)))
	require.NoError(t, err)

	_, err = f.bank.Import(f.ctx, unit, key)
	assert.Equal(t, util.KindValidation, util.KindOf(err))

	list, err := f.bank.List(f.ctx, unit)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = f.bank.Import(f.ctx, unit, "question-banks/unit-2/missing.json")
	assert.Equal(t, util.KindNotFound, util.KindOf(err))
}
