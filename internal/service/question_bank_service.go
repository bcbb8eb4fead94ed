package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mooc_exam_backend/internal/model"
	"mooc_exam_backend/internal/repository"
	"mooc_exam_backend/internal/util"
	"mooc_exam_backend/pkg/logger"
	"mooc_exam_backend/pkg/storage"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

type OptionInput struct {
	Label     string `json:"label" yaml:"label"`
	Content   string `json:"content" yaml:"content"`
	IsCorrect bool   `json:"isCorrect" yaml:"is_correct"`
}

type QuestionInput struct {
	Stem       string             `json:"stem" yaml:"stem" binding:"required"`
	Type       model.QuestionType `json:"type" yaml:"type" binding:"required"`
	Difficulty model.Difficulty   `json:"difficulty" yaml:"difficulty" binding:"required"`
	Points     float64            `json:"points" yaml:"points"`
	Options    []OptionInput      `json:"options" yaml:"options"`
}

// BankFile is the import format, accepted as JSON or YAML.
type BankFile struct {
	Questions []QuestionInput `json:"questions" yaml:"questions"`
}

type ImportResult struct {
	Key      string `json:"key"`
	Imported int    `json:"imported"`
}

// QuestionBankService manages the unit question pools exams are sampled from.
// A question frozen into a submitted attempt can no longer change, so grading history stays stable.
type QuestionBankService struct {
	DB        *gorm.DB
	Questions *repository.QuestionRepository
	Exams     *repository.ExamRepository
	Storage   storage.Provider
}

func NewQuestionBankService(db *gorm.DB, questions *repository.QuestionRepository, exams *repository.ExamRepository, store storage.Provider) *QuestionBankService {
	return &QuestionBankService{DB: db, Questions: questions, Exams: exams, Storage: store}
}

var optionLabels = []string{"A", "B", "C", "D", "E", "F", "G", "H"}

// normalize checks the option layout against the question type and fills defaults.
func normalize(in QuestionInput) (QuestionInput, error) {
	in.Stem = strings.TrimSpace(in.Stem)
	if in.Stem == "" {
		return in, util.NewErrorf(util.KindValidation, util.ErrInvalidInput, "question stem is required")
	}
	if !in.Type.Valid() {
		return in, util.NewErrorf(util.KindValidation, util.ErrInvalidInput, "unknown question type %q", in.Type)
	}
	if !in.Difficulty.Valid() {
		return in, util.NewErrorf(util.KindValidation, util.ErrInvalidInput, "unknown difficulty %q", in.Difficulty)
	}
	if in.Points == 0 {
		in.Points = 1
	}
	if in.Points < 0 {
		return in, util.NewErrorf(util.KindValidation, util.ErrInvalidInput, "points must be positive")
	}

	correct := 0
	seen := make(map[string]bool, len(in.Options))
	for i := range in.Options {
		if in.Options[i].Label == "" && i < len(optionLabels) {
			in.Options[i].Label = optionLabels[i]
		}
		label := strings.ToUpper(strings.TrimSpace(in.Options[i].Label))
		if label == "" || seen[label] {
			return in, util.NewErrorf(util.KindValidation, util.ErrInvalidQuestionShape, "option labels must be unique")
		}
		seen[label] = true
		in.Options[i].Label = label
		if in.Options[i].IsCorrect {
			correct++
		}
	}

	switch in.Type {
	case model.QuestionSingleChoice:
		if len(in.Options) < 2 || correct != 1 {
			return in, util.NewErrorf(util.KindValidation, util.ErrInvalidQuestionShape,
				"single choice questions need at least two options and exactly one correct")
		}
	case model.QuestionTrueFalse:
		if len(in.Options) != 2 || correct != 1 {
			return in, util.NewErrorf(util.KindValidation, util.ErrInvalidQuestionShape,
				"true/false questions need exactly two options, one correct")
		}
	case model.QuestionEssay:
		if len(in.Options) != 0 {
			return in, util.NewErrorf(util.KindValidation, util.ErrInvalidQuestionShape, "essay questions take no options")
		}
	}
	return in, nil
}

func toOptions(in []OptionInput) []model.QuestionOption {
	out := make([]model.QuestionOption, 0, len(in))
	for _, o := range in {
		out = append(out, model.QuestionOption{Label: o.Label, Content: o.Content, IsCorrect: o.IsCorrect})
	}
	return out
}

func (s *QuestionBankService) requireUnit(ctx context.Context, unitID uint) error {
	if _, err := s.Exams.FindUnit(ctx, unitID); err != nil {
		return notFoundOr(err, util.ErrUnitNotFound)
	}
	return nil
}

func (s *QuestionBankService) Create(ctx context.Context, unitID uint, in QuestionInput) (*model.Question, error) {
	if err := s.requireUnit(ctx, unitID); err != nil {
		return nil, err
	}
	in, err := normalize(in)
	if err != nil {
		return nil, err
	}
	q := &model.Question{
		UnitID:     unitID,
		Stem:       in.Stem,
		Type:       in.Type,
		Difficulty: in.Difficulty,
		Points:     in.Points,
		Version:    1,
		Options:    toOptions(in.Options),
	}
	if err := s.Questions.Create(ctx, q); err != nil {
		return nil, fmt.Errorf("create question: %w", err)
	}
	return q, nil
}

func (s *QuestionBankService) List(ctx context.Context, unitID uint) ([]model.Question, error) {
	if err := s.requireUnit(ctx, unitID); err != nil {
		return nil, err
	}
	return s.Questions.ListByUnit(ctx, unitID)
}

// Update rewrites a question and bumps its version.
func (s *QuestionBankService) Update(ctx context.Context, id uint, in QuestionInput) (*model.Question, error) {
	q, err := s.Questions.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, util.ErrQuestionNotFound)
	}
	refs, err := s.Questions.CountReferences(ctx, id, true)
	if err != nil {
		return nil, err
	}
	if refs > 0 {
		return nil, util.Conflict(util.ErrQuestionLocked)
	}
	in, err = normalize(in)
	if err != nil {
		return nil, err
	}

	q.Stem = in.Stem
	q.Type = in.Type
	q.Difficulty = in.Difficulty
	q.Points = in.Points
	q.Version++
	if err := s.Questions.Update(ctx, q, toOptions(in.Options)); err != nil {
		return nil, fmt.Errorf("update question: %w", err)
	}
	return q, nil
}

func (s *QuestionBankService) Delete(ctx context.Context, id uint) error {
	if _, err := s.Questions.FindByID(ctx, id); err != nil {
		return notFoundOr(err, util.ErrQuestionNotFound)
	}
	refs, err := s.Questions.CountReferences(ctx, id, false)
	if err != nil {
		return err
	}
	if refs > 0 {
		return util.Conflict(util.ErrQuestionInUse)
	}
	return s.Questions.Delete(ctx, id)
}

// DecodeBank parses a bank file; the key's extension selects YAML, anything else is JSON.
func DecodeBank(key string, r io.Reader) (*BankFile, error) {
	var bank BankFile
	switch strings.ToLower(filepath.Ext(key)) {
	case ".yaml", ".yml":
		if err := yaml.NewDecoder(r).Decode(&bank); err != nil {
			return nil, util.NewErrorf(util.KindValidation, util.ErrInvalidInput, "invalid bank file: %v", err)
		}
	default:
		if err := json.NewDecoder(r).Decode(&bank); err != nil {
			return nil, util.NewErrorf(util.KindValidation, util.ErrInvalidInput, "invalid bank file: %v", err)
		}
	}
	return &bank, nil
}

// Upload stores a bank file under the unit's import prefix and returns its key.
func (s *QuestionBankService) Upload(ctx context.Context, unitID uint, filename string, r io.Reader, size int64) (string, error) {
	key := fmt.Sprintf("question-banks/unit-%d/%s", unitID, filepath.Base(filename))
	contentType := "application/json"
	if ext := strings.ToLower(filepath.Ext(filename)); ext == ".yaml" || ext == ".yml" {
		contentType = "application/yaml"
	}
	if err := s.Storage.Put(ctx, key, r, size, contentType); err != nil {
		return "", fmt.Errorf("store bank file: %w", err)
	}
	return key, nil
}

// Import reads a bank file from object storage and inserts every question in one transaction.
// One invalid question rejects the whole file.
func (s *QuestionBankService) Import(ctx context.Context, unitID uint, key string) (*ImportResult, error) {
	if err := s.requireUnit(ctx, unitID); err != nil {
		return nil, err
	}

	rc, err := s.Storage.Open(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, util.NewErrorf(util.KindNotFound, err, "bank file %q not found", key)
		}
		return nil, err
	}
	defer rc.Close()

	bank, err := DecodeBank(key, rc)
	if err != nil {
		return nil, err
	}

	questions := make([]model.Question, 0, len(bank.Questions))
	for i, in := range bank.Questions {
		in, err := normalize(in)
		if err != nil {
			return nil, util.NewErrorf(util.KindValidation, err, "question %d: %v", i+1, err)
		}
		questions = append(questions, model.Question{
			UnitID:     unitID,
			Stem:       in.Stem,
			Type:       in.Type,
			Difficulty: in.Difficulty,
			Points:     in.Points,
			Version:    1,
			Options:    toOptions(in.Options),
		})
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.Questions.WithTx(tx)
		for i := range questions {
			if err := repo.Create(ctx, &questions[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("import bank: %w", err)
	}

	logger.Log.Info("question bank imported",
		zap.Uint("unit_id", unitID),
		zap.String("key", key),
		zap.Int("questions", len(questions)),
	)
	return &ImportResult{Key: key, Imported: len(questions)}, nil
}
