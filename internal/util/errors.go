package util

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput = errors.New("invalid input")

	ErrExamNotFound     = errors.New("exam not found")
	ErrUnitNotFound     = errors.New("course unit not found")
	ErrQuestionNotFound = errors.New("question not found")
	ErrInstanceNotFound = errors.New("exam instance not found")

	ErrNotificationNotFound = errors.New("notification not found")

	ErrNotEnrolled          = errors.New("learner is not enrolled in this course")
	ErrLessonsIncomplete    = errors.New("all lessons of the unit must be completed before the exam")
	ErrAttemptsExhausted    = errors.New("no attempts left for this exam")
	ErrCooldownActive       = errors.New("exam cooldown is still active")
	ErrAttemptInProgress    = errors.New("an attempt for this exam is already in progress")
	ErrInstanceNotActive    = errors.New("exam instance is not in progress")
	ErrInstanceStillOpen    = errors.New("exam instance has not been submitted yet")
	ErrQuestionNotInExam    = errors.New("question does not belong to this exam instance")
	ErrOptionNotInQuestion  = errors.New("selected option does not belong to the question")
	ErrTimeExceeded         = errors.New("exam time limit exceeded")
	ErrInstanceForbidden    = errors.New("exam instance belongs to another learner")
	ErrQuestionLocked       = errors.New("question is referenced by submitted attempts and cannot be changed")
	ErrQuestionInUse        = errors.New("question is referenced by exam attempts and cannot be deleted")
	ErrInvalidQuestionShape = errors.New("question options are inconsistent with its type")
)

// ErrorKind classifies service errors for the HTTP boundary.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindPrecondition
	KindNotFound
	KindStateConflict
	KindTimeExceeded
	KindUnauthorized
	KindValidation
)

func (k ErrorKind) String() string {
	switch k {
	case KindPrecondition:
		return "precondition_failed"
	case KindNotFound:
		return "not_found"
	case KindStateConflict:
		return "state_conflict"
	case KindTimeExceeded:
		return "time_exceeded"
	case KindUnauthorized:
		return "unauthorized"
	case KindValidation:
		return "validation"
	}
	return "internal"
}

// ExamError carries a kind plus the sentinel it wraps, so callers can use errors.Is on either.
type ExamError struct {
	Kind ErrorKind
	Err  error
	Msg  string
}

func (e *ExamError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.String()
}

func (e *ExamError) Unwrap() error { return e.Err }

func NewError(kind ErrorKind, err error) *ExamError {
	return &ExamError{Kind: kind, Err: err}
}

func NewErrorf(kind ErrorKind, err error, format string, args ...interface{}) *ExamError {
	return &ExamError{Kind: kind, Err: err, Msg: fmt.Sprintf(format, args...)}
}

func Precondition(err error) *ExamError { return NewError(KindPrecondition, err) }
func NotFound(err error) *ExamError { return NewError(KindNotFound, err) }
func Conflict(err error) *ExamError { return NewError(KindStateConflict, err) }
func Unauthorized(err error) *ExamError { return NewError(KindUnauthorized, err) }
func Validation(err error) *ExamError { return NewError(KindValidation, err) }
func TimeExceeded(err error) *ExamError { return NewError(KindTimeExceeded, err) }

// KindOf returns the kind of the first ExamError in the chain, KindInternal otherwise.
func KindOf(err error) ErrorKind {
	var ee *ExamError
	if errors.As(err, &ee) {
		return ee.Kind
	}
	return KindInternal
}
