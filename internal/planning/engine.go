package planning

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"tidibe/api/internal/store"
)

// Store is the persistence surface the engine needs. *store.PostgresStore
// satisfies it.
type Store interface {
	ModuleInstanceID(ctx context.Context, m store.ModuleSchema, ideaID int64) (int64, error)
	CategoryName(ctx context.Context, m store.ModuleSchema, categoryID int64) (string, error)
	ListAnswers(ctx context.Context, m store.ModuleSchema, instanceID, categoryID int64) ([]store.ModuleAnswer, error)
	ListQuestions(ctx context.Context, m store.ModuleSchema, categoryID int64) ([]store.ModuleQuestion, error)
	InsertAnswer(ctx context.Context, m store.ModuleSchema, answer store.ModuleAnswer) (int64, error)
	ApproveAnswer(ctx context.Context, m store.ModuleSchema, answerID int64, content string) (bool, error)
	ListAnsweredQuestions(ctx context.Context, m store.ModuleSchema, instanceID int64) ([]store.QuestionAnswer, error)
	ListTasks(ctx context.Context, m store.ModuleSchema, instanceID, ideaID int64) ([]store.ModuleTask, error)
	InsertTask(ctx context.Context, m store.ModuleSchema, instanceID, ideaID int64, description string) (int64, error)
	GetTask(ctx context.Context, m store.ModuleSchema, ideaID, taskID int64) (store.ModuleTask, error)
	MarkTaskComplete(ctx context.Context, m store.ModuleSchema, ideaID, taskID int64) error
	TaskCounts(ctx context.Context, m store.ModuleSchema, instanceID int64) (total, completed int, err error)
	SetModuleProgress(ctx context.Context, m store.ModuleSchema, instanceID int64, progress float64) error
	ListModuleProgress(ctx context.Context, m store.ModuleSchema, ideaID int64) ([]float64, error)
	SetStageProgress(ctx context.Context, ideaID int64, stageID int, progress float64) error
	AverageStageProgress(ctx context.Context, ideaID int64) (float64, error)
	SetIdeaProgress(ctx context.Context, ideaID int64, progress float64) error
	ListCategoryLinks(ctx context.Context, m store.ModuleSchema, ideaID int64) ([]store.CategoryLink, error)
}

// Generator produces text for a prompt. The OpenAI-backed client in
// internal/generate satisfies it.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Engine runs the per-module planning operations: answer generation and
// caching, task synthesis, task completion and the progress rollup.
type Engine struct {
	store   Store
	gen     Generator
	timeout time.Duration
}

func NewEngine(st Store, gen Generator, timeout time.Duration) *Engine {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Engine{store: st, gen: gen, timeout: timeout}
}

// Progress reports the three rollup levels after a task state change.
type Progress struct {
	Module float64 `json:"module_progress"`
	Stage  float64 `json:"stage_progress"`
	Idea   float64 `json:"idea_progress"`
}

func (e *Engine) generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	text, err := e.gen.Generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	return text, nil
}

func notFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// Answers returns the category name and its cached answer set, generating and
// persisting one answer per bank question on first request. A repeat call
// returns the stored rows without touching the generator.
func (e *Engine) Answers(ctx context.Context, m Module, idea store.BusinessIdea, categoryID int64) (string, []store.ModuleAnswer, error) {
	category, err := e.store.CategoryName(ctx, m.Schema, categoryID)
	if err != nil {
		if notFound(err) {
			return "", nil, fmt.Errorf("%w: %s category %d", ErrNotFound, m.Kind, categoryID)
		}
		return "", nil, err
	}

	instanceID, err := e.store.ModuleInstanceID(ctx, m.Schema, idea.ID)
	if err != nil {
		if notFound(err) {
			return "", nil, fmt.Errorf("%w: %s instance for idea %d", ErrNotFound, m.Kind, idea.ID)
		}
		return "", nil, err
	}

	existing, err := e.store.ListAnswers(ctx, m.Schema, instanceID, categoryID)
	if err != nil {
		return "", nil, err
	}
	if len(existing) > 0 {
		return category, existing, nil
	}

	questions, err := e.store.ListQuestions(ctx, m.Schema, categoryID)
	if err != nil {
		return "", nil, err
	}
	if len(questions) == 0 {
		return "", nil, fmt.Errorf("%w: no questions configured for %s category %d", ErrNotFound, m.Kind, categoryID)
	}

	// Generate the full batch before writing anything, so a generator
	// failure persists no rows and the next request starts clean. Only an
	// insert-phase failure can leave a partial set behind.
	answers := make([]store.ModuleAnswer, 0, len(questions))
	for _, q := range questions {
		text, err := e.generate(ctx, answerPrompt(idea, category, q.Text))
		if err != nil {
			return "", nil, err
		}
		answers = append(answers, store.ModuleAnswer{
			QuestionID: q.ID,
			InstanceID: instanceID,
			CategoryID: categoryID,
			Question:   q.Text,
			Answer:     text,
			Status:     "generated",
		})
	}
	for i := range answers {
		id, err := e.store.InsertAnswer(ctx, m.Schema, answers[i])
		if err != nil {
			return "", nil, err
		}
		answers[i].AnswerID = id
	}
	return category, answers, nil
}

// ApproveAnswer stores the edited content and flips the row to approved.
// Approving has no effect on progress.
func (e *Engine) ApproveAnswer(ctx context.Context, m Module, answerID int64, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return fmt.Errorf("%w: answer content is required", ErrInvalidInput)
	}
	ok, err := e.store.ApproveAnswer(ctx, m.Schema, answerID, content)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s answer %d", ErrNotFound, m.Kind, answerID)
	}
	return nil
}

// Tasks returns the instance's task list, synthesizing it from the module's
// answer transcript on first request. A repeat call returns the stored tasks
// without touching the generator. At least one answer must exist before tasks
// can be generated.
func (e *Engine) Tasks(ctx context.Context, m Module, idea store.BusinessIdea) (int64, []store.ModuleTask, error) {
	instanceID, err := e.store.ModuleInstanceID(ctx, m.Schema, idea.ID)
	if err != nil {
		if notFound(err) {
			return 0, nil, fmt.Errorf("%w: %s instance for idea %d", ErrNotFound, m.Kind, idea.ID)
		}
		return 0, nil, err
	}

	existing, err := e.store.ListTasks(ctx, m.Schema, instanceID, idea.ID)
	if err != nil {
		return 0, nil, err
	}
	if len(existing) > 0 {
		return instanceID, existing, nil
	}

	answered, err := e.store.ListAnsweredQuestions(ctx, m.Schema, instanceID)
	if err != nil {
		return 0, nil, err
	}
	if len(answered) == 0 {
		return 0, nil, ErrNoAnswers
	}

	text, err := e.generate(ctx, taskPrompt(idea, answered))
	if err != nil {
		return 0, nil, err
	}
	for _, desc := range ParseTasks(text) {
		if _, err := e.store.InsertTask(ctx, m.Schema, instanceID, idea.ID, desc); err != nil {
			return 0, nil, err
		}
	}
	tasks, err := e.store.ListTasks(ctx, m.Schema, instanceID, idea.ID)
	if err != nil {
		return 0, nil, err
	}
	return instanceID, tasks, nil
}

// AddTask stores a user-authored task for the module instance.
func (e *Engine) AddTask(ctx context.Context, m Module, idea store.BusinessIdea, description string) (store.ModuleTask, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return store.ModuleTask{}, fmt.Errorf("%w: task description is required", ErrInvalidInput)
	}
	instanceID, err := e.store.ModuleInstanceID(ctx, m.Schema, idea.ID)
	if err != nil {
		if notFound(err) {
			return store.ModuleTask{}, fmt.Errorf("%w: %s instance for idea %d", ErrNotFound, m.Kind, idea.ID)
		}
		return store.ModuleTask{}, err
	}
	taskID, err := e.store.InsertTask(ctx, m.Schema, instanceID, idea.ID, description)
	if err != nil {
		return store.ModuleTask{}, err
	}
	return store.ModuleTask{ID: taskID, InstanceID: instanceID, IdeaID: idea.ID, Description: description}, nil
}

// CompleteTask marks a task done and recomputes the three progress levels.
// Completing an already-complete task succeeds and leaves progress unchanged.
func (e *Engine) CompleteTask(ctx context.Context, m Module, idea store.BusinessIdea, taskID int64) (Progress, error) {
	task, err := e.store.GetTask(ctx, m.Schema, idea.ID, taskID)
	if err != nil {
		if notFound(err) {
			return Progress{}, fmt.Errorf("%w: %s task %d", ErrNotFound, m.Kind, taskID)
		}
		return Progress{}, err
	}
	if err := e.store.MarkTaskComplete(ctx, m.Schema, idea.ID, taskID); err != nil {
		return Progress{}, err
	}
	return e.rollup(ctx, m, idea.ID, task.InstanceID)
}

// rollup recomputes module, stage and idea progress bottom-up after a task
// state change.
func (e *Engine) rollup(ctx context.Context, m Module, ideaID, instanceID int64) (Progress, error) {
	total, completed, err := e.store.TaskCounts(ctx, m.Schema, instanceID)
	if err != nil {
		return Progress{}, err
	}
	var moduleProgress float64
	if total > 0 {
		moduleProgress = 100 * float64(completed) / float64(total)
	}
	if err := e.store.SetModuleProgress(ctx, m.Schema, instanceID, moduleProgress); err != nil {
		return Progress{}, err
	}

	values, err := e.store.ListModuleProgress(ctx, m.Schema, ideaID)
	if err != nil {
		return Progress{}, err
	}
	var stageProgress float64
	if len(values) > 0 {
		var sum float64
		for _, v := range values {
			sum += v
		}
		stageProgress = sum / float64(len(values))
		if err := e.store.SetStageProgress(ctx, ideaID, m.StageID, stageProgress); err != nil {
			return Progress{}, err
		}
	}

	ideaProgress, err := e.store.AverageStageProgress(ctx, ideaID)
	if err != nil {
		return Progress{}, err
	}
	if err := e.store.SetIdeaProgress(ctx, ideaID, ideaProgress); err != nil {
		return Progress{}, err
	}

	return Progress{Module: moduleProgress, Stage: stageProgress, Idea: ideaProgress}, nil
}

// Categories lists the category links of the idea's module instance.
func (e *Engine) Categories(ctx context.Context, m Module, idea store.BusinessIdea) ([]store.CategoryLink, error) {
	return e.store.ListCategoryLinks(ctx, m.Schema, idea.ID)
}

// ListTasks returns the current task list without generating anything.
func (e *Engine) ListTasks(ctx context.Context, m Module, idea store.BusinessIdea) ([]store.ModuleTask, error) {
	instanceID, err := e.store.ModuleInstanceID(ctx, m.Schema, idea.ID)
	if err != nil {
		if notFound(err) {
			return nil, fmt.Errorf("%w: %s instance for idea %d", ErrNotFound, m.Kind, idea.ID)
		}
		return nil, err
	}
	return e.store.ListTasks(ctx, m.Schema, instanceID, idea.ID)
}

// AnswerSheet returns the answered transcript for export and vault snapshots.
func (e *Engine) AnswerSheet(ctx context.Context, m Module, idea store.BusinessIdea) ([]store.QuestionAnswer, error) {
	instanceID, err := e.store.ModuleInstanceID(ctx, m.Schema, idea.ID)
	if err != nil {
		if notFound(err) {
			return nil, fmt.Errorf("%w: %s instance for idea %d", ErrNotFound, m.Kind, idea.ID)
		}
		return nil, err
	}
	return e.store.ListAnsweredQuestions(ctx, m.Schema, instanceID)
}
