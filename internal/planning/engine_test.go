package planning

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"tidibe/api/internal/store"
)

type fakeStore struct {
	moduleInstanceID      func(ctx context.Context, m store.ModuleSchema, ideaID int64) (int64, error)
	categoryName          func(ctx context.Context, m store.ModuleSchema, categoryID int64) (string, error)
	listAnswers           func(ctx context.Context, m store.ModuleSchema, instanceID, categoryID int64) ([]store.ModuleAnswer, error)
	listQuestions         func(ctx context.Context, m store.ModuleSchema, categoryID int64) ([]store.ModuleQuestion, error)
	insertAnswer          func(ctx context.Context, m store.ModuleSchema, answer store.ModuleAnswer) (int64, error)
	approveAnswer         func(ctx context.Context, m store.ModuleSchema, answerID int64, content string) (bool, error)
	listAnsweredQuestions func(ctx context.Context, m store.ModuleSchema, instanceID int64) ([]store.QuestionAnswer, error)
	listTasks             func(ctx context.Context, m store.ModuleSchema, instanceID, ideaID int64) ([]store.ModuleTask, error)
	insertTask            func(ctx context.Context, m store.ModuleSchema, instanceID, ideaID int64, description string) (int64, error)
	getTask               func(ctx context.Context, m store.ModuleSchema, ideaID, taskID int64) (store.ModuleTask, error)
	markTaskComplete      func(ctx context.Context, m store.ModuleSchema, ideaID, taskID int64) error
	taskCounts            func(ctx context.Context, m store.ModuleSchema, instanceID int64) (int, int, error)
	setModuleProgress     func(ctx context.Context, m store.ModuleSchema, instanceID int64, progress float64) error
	listModuleProgress    func(ctx context.Context, m store.ModuleSchema, ideaID int64) ([]float64, error)
	setStageProgress      func(ctx context.Context, ideaID int64, stageID int, progress float64) error
	averageStageProgress  func(ctx context.Context, ideaID int64) (float64, error)
	setIdeaProgress       func(ctx context.Context, ideaID int64, progress float64) error
	listCategoryLinks     func(ctx context.Context, m store.ModuleSchema, ideaID int64) ([]store.CategoryLink, error)
}

func (f *fakeStore) ModuleInstanceID(ctx context.Context, m store.ModuleSchema, ideaID int64) (int64, error) {
	if f.moduleInstanceID != nil {
		return f.moduleInstanceID(ctx, m, ideaID)
	}
	return 1, nil
}

func (f *fakeStore) CategoryName(ctx context.Context, m store.ModuleSchema, categoryID int64) (string, error) {
	if f.categoryName != nil {
		return f.categoryName(ctx, m, categoryID)
	}
	return "Value Proposition", nil
}

func (f *fakeStore) ListAnswers(ctx context.Context, m store.ModuleSchema, instanceID, categoryID int64) ([]store.ModuleAnswer, error) {
	if f.listAnswers != nil {
		return f.listAnswers(ctx, m, instanceID, categoryID)
	}
	return nil, nil
}

func (f *fakeStore) ListQuestions(ctx context.Context, m store.ModuleSchema, categoryID int64) ([]store.ModuleQuestion, error) {
	if f.listQuestions != nil {
		return f.listQuestions(ctx, m, categoryID)
	}
	return nil, nil
}

func (f *fakeStore) InsertAnswer(ctx context.Context, m store.ModuleSchema, answer store.ModuleAnswer) (int64, error) {
	if f.insertAnswer != nil {
		return f.insertAnswer(ctx, m, answer)
	}
	return 1, nil
}

func (f *fakeStore) ApproveAnswer(ctx context.Context, m store.ModuleSchema, answerID int64, content string) (bool, error) {
	if f.approveAnswer != nil {
		return f.approveAnswer(ctx, m, answerID, content)
	}
	return true, nil
}

func (f *fakeStore) ListAnsweredQuestions(ctx context.Context, m store.ModuleSchema, instanceID int64) ([]store.QuestionAnswer, error) {
	if f.listAnsweredQuestions != nil {
		return f.listAnsweredQuestions(ctx, m, instanceID)
	}
	return nil, nil
}

func (f *fakeStore) ListTasks(ctx context.Context, m store.ModuleSchema, instanceID, ideaID int64) ([]store.ModuleTask, error) {
	if f.listTasks != nil {
		return f.listTasks(ctx, m, instanceID, ideaID)
	}
	return nil, nil
}

func (f *fakeStore) InsertTask(ctx context.Context, m store.ModuleSchema, instanceID, ideaID int64, description string) (int64, error) {
	if f.insertTask != nil {
		return f.insertTask(ctx, m, instanceID, ideaID, description)
	}
	return 1, nil
}

func (f *fakeStore) GetTask(ctx context.Context, m store.ModuleSchema, ideaID, taskID int64) (store.ModuleTask, error) {
	if f.getTask != nil {
		return f.getTask(ctx, m, ideaID, taskID)
	}
	return store.ModuleTask{ID: taskID, InstanceID: 1, IdeaID: ideaID}, nil
}

func (f *fakeStore) MarkTaskComplete(ctx context.Context, m store.ModuleSchema, ideaID, taskID int64) error {
	if f.markTaskComplete != nil {
		return f.markTaskComplete(ctx, m, ideaID, taskID)
	}
	return nil
}

func (f *fakeStore) TaskCounts(ctx context.Context, m store.ModuleSchema, instanceID int64) (int, int, error) {
	if f.taskCounts != nil {
		return f.taskCounts(ctx, m, instanceID)
	}
	return 0, 0, nil
}

func (f *fakeStore) SetModuleProgress(ctx context.Context, m store.ModuleSchema, instanceID int64, progress float64) error {
	if f.setModuleProgress != nil {
		return f.setModuleProgress(ctx, m, instanceID, progress)
	}
	return nil
}

func (f *fakeStore) ListModuleProgress(ctx context.Context, m store.ModuleSchema, ideaID int64) ([]float64, error) {
	if f.listModuleProgress != nil {
		return f.listModuleProgress(ctx, m, ideaID)
	}
	return nil, nil
}

func (f *fakeStore) SetStageProgress(ctx context.Context, ideaID int64, stageID int, progress float64) error {
	if f.setStageProgress != nil {
		return f.setStageProgress(ctx, ideaID, stageID, progress)
	}
	return nil
}

func (f *fakeStore) AverageStageProgress(ctx context.Context, ideaID int64) (float64, error) {
	if f.averageStageProgress != nil {
		return f.averageStageProgress(ctx, ideaID)
	}
	return 0, nil
}

func (f *fakeStore) SetIdeaProgress(ctx context.Context, ideaID int64, progress float64) error {
	if f.setIdeaProgress != nil {
		return f.setIdeaProgress(ctx, ideaID, progress)
	}
	return nil
}

func (f *fakeStore) ListCategoryLinks(ctx context.Context, m store.ModuleSchema, ideaID int64) ([]store.CategoryLink, error) {
	if f.listCategoryLinks != nil {
		return f.listCategoryLinks(ctx, m, ideaID)
	}
	return nil, nil
}

type fakeGenerator struct {
	calls  int
	reply  string
	err    error
	failOn int // when set, only this call number fails
}

func (g *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.calls++
	if g.err != nil && (g.failOn == 0 || g.calls == g.failOn) {
		return "", g.err
	}
	return g.reply, nil
}

func testIdea() store.BusinessIdea {
	return store.BusinessIdea{
		ID:               7,
		UserID:           3,
		IdeaName:         "Tidibe",
		IdeaFoundation:   "Guided business planning",
		ProblemStatement: "Founders stall on planning",
		UniqueSolution:   "Stage-by-stage AI coaching",
		TargetLocation:   "Berlin",
	}
}

func mustModule(t *testing.T, kind string) Module {
	t.Helper()
	m, err := Lookup(kind)
	if err != nil {
		t.Fatalf("Lookup(%q): %v", kind, err)
	}
	return m
}

func TestLookupUnknownKind(t *testing.T) {
	if _, err := Lookup("finance"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestRegistryStageIDs(t *testing.T) {
	want := map[Kind]int{
		KindConcept: 1, KindResearch: 2, KindBrand: 3,
		KindMarketing: 4, KindBudget: 5, KindEnvc: 6,
	}
	for kind, stageID := range want {
		m, err := Lookup(string(kind))
		if err != nil {
			t.Fatalf("Lookup(%q): %v", kind, err)
		}
		if m.StageID != stageID {
			t.Errorf("%s stage id = %d, want %d", kind, m.StageID, stageID)
		}
	}
}

func TestAnswersGeneratesOnePerQuestion(t *testing.T) {
	inserted := make([]store.ModuleAnswer, 0)
	st := &fakeStore{
		listQuestions: func(ctx context.Context, m store.ModuleSchema, categoryID int64) ([]store.ModuleQuestion, error) {
			return []store.ModuleQuestion{{ID: 11, Text: "Who is the customer?"}, {ID: 12, Text: "What do they pay for today?"}}, nil
		},
		insertAnswer: func(ctx context.Context, m store.ModuleSchema, answer store.ModuleAnswer) (int64, error) {
			inserted = append(inserted, answer)
			return int64(100 + len(inserted)), nil
		},
	}
	gen := &fakeGenerator{reply: "- a\n- b\n- c\n- d"}
	e := NewEngine(st, gen, 0)

	category, answers, err := e.Answers(context.Background(), mustModule(t, "concept"), testIdea(), 5)
	if err != nil {
		t.Fatalf("Answers: %v", err)
	}
	if category != "Value Proposition" {
		t.Errorf("category = %q, want %q", category, "Value Proposition")
	}
	if len(answers) != 2 || gen.calls != 2 {
		t.Fatalf("got %d answers, %d generator calls, want 2 and 2", len(answers), gen.calls)
	}
	if answers[0].Status != "generated" || answers[0].AnswerID != 101 {
		t.Errorf("unexpected first answer: %+v", answers[0])
	}
	if inserted[1].QuestionID != 12 || inserted[1].CategoryID != 5 || inserted[1].InstanceID != 1 {
		t.Errorf("unexpected second insert: %+v", inserted[1])
	}
}

func TestAnswersCacheHitSkipsGenerator(t *testing.T) {
	st := &fakeStore{
		listAnswers: func(ctx context.Context, m store.ModuleSchema, instanceID, categoryID int64) ([]store.ModuleAnswer, error) {
			return []store.ModuleAnswer{{AnswerID: 9, Answer: "cached", Status: "approved"}}, nil
		},
	}
	gen := &fakeGenerator{reply: "fresh"}
	e := NewEngine(st, gen, 0)

	_, answers, err := e.Answers(context.Background(), mustModule(t, "research"), testIdea(), 2)
	if err != nil {
		t.Fatalf("Answers: %v", err)
	}
	if len(answers) != 1 || answers[0].Answer != "cached" {
		t.Fatalf("expected cached row back, got %+v", answers)
	}
	if gen.calls != 0 {
		t.Fatalf("generator called %d times on cache hit", gen.calls)
	}
}

func TestAnswersUnknownCategory(t *testing.T) {
	st := &fakeStore{
		categoryName: func(ctx context.Context, m store.ModuleSchema, categoryID int64) (string, error) {
			return "", sql.ErrNoRows
		},
	}
	e := NewEngine(st, &fakeGenerator{}, 0)

	if _, _, err := e.Answers(context.Background(), mustModule(t, "budget"), testIdea(), 99); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAnswersNoQuestionsConfigured(t *testing.T) {
	gen := &fakeGenerator{reply: "unused"}
	e := NewEngine(&fakeStore{}, gen, 0)

	if _, _, err := e.Answers(context.Background(), mustModule(t, "concept"), testIdea(), 5); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if gen.calls != 0 {
		t.Fatalf("generator called %d times with no questions", gen.calls)
	}
}

func TestAnswersGeneratorFailure(t *testing.T) {
	st := &fakeStore{
		listQuestions: func(ctx context.Context, m store.ModuleSchema, categoryID int64) ([]store.ModuleQuestion, error) {
			return []store.ModuleQuestion{{ID: 1, Text: "q"}}, nil
		},
	}
	e := NewEngine(st, &fakeGenerator{err: errors.New("upstream 500")}, 0)

	if _, _, err := e.Answers(context.Background(), mustModule(t, "brand"), testIdea(), 1); !errors.Is(err, ErrGeneration) {
		t.Fatalf("expected ErrGeneration, got %v", err)
	}
}

func TestAnswersMidBatchFailurePersistsNothing(t *testing.T) {
	questions := []store.ModuleQuestion{
		{ID: 11, Text: "Who is the customer?"},
		{ID: 12, Text: "What do they pay for today?"},
		{ID: 13, Text: "Why switch?"},
	}
	inserted := make([]store.ModuleAnswer, 0)
	st := &fakeStore{
		listQuestions: func(ctx context.Context, m store.ModuleSchema, categoryID int64) ([]store.ModuleQuestion, error) {
			return questions, nil
		},
		listAnswers: func(ctx context.Context, m store.ModuleSchema, instanceID, categoryID int64) ([]store.ModuleAnswer, error) {
			return inserted, nil
		},
		insertAnswer: func(ctx context.Context, m store.ModuleSchema, answer store.ModuleAnswer) (int64, error) {
			inserted = append(inserted, answer)
			return int64(100 + len(inserted)), nil
		},
	}
	gen := &fakeGenerator{reply: "- a\n- b", err: errors.New("upstream timeout"), failOn: 2}
	e := NewEngine(st, gen, 0)

	if _, _, err := e.Answers(context.Background(), mustModule(t, "concept"), testIdea(), 5); !errors.Is(err, ErrGeneration) {
		t.Fatalf("expected ErrGeneration, got %v", err)
	}
	if len(inserted) != 0 {
		t.Fatalf("%d answers persisted after failed batch, want 0", len(inserted))
	}

	// next call starts clean and regenerates the whole category
	_, answers, err := e.Answers(context.Background(), mustModule(t, "concept"), testIdea(), 5)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if len(answers) != len(questions) || len(inserted) != len(questions) {
		t.Fatalf("retry produced %d answers (%d persisted), want %d", len(answers), len(inserted), len(questions))
	}
	if gen.calls != 2+len(questions) {
		t.Fatalf("generator calls = %d, want %d", gen.calls, 2+len(questions))
	}
}

func TestTasksRequireAnswers(t *testing.T) {
	e := NewEngine(&fakeStore{}, &fakeGenerator{reply: "- do a thing"}, 0)

	if _, _, err := e.Tasks(context.Background(), mustModule(t, "marketing"), testIdea()); !errors.Is(err, ErrNoAnswers) {
		t.Fatalf("expected ErrNoAnswers, got %v", err)
	}
}

func TestTasksCacheHitSkipsGenerator(t *testing.T) {
	st := &fakeStore{
		listTasks: func(ctx context.Context, m store.ModuleSchema, instanceID, ideaID int64) ([]store.ModuleTask, error) {
			return []store.ModuleTask{{ID: 4, InstanceID: instanceID, IdeaID: ideaID, Description: "cached task"}}, nil
		},
	}
	gen := &fakeGenerator{reply: "- fresh"}
	e := NewEngine(st, gen, 0)

	instanceID, tasks, err := e.Tasks(context.Background(), mustModule(t, "marketing"), testIdea())
	if err != nil {
		t.Fatalf("Tasks: %v", err)
	}
	if instanceID != 1 {
		t.Errorf("instance id = %d, want 1", instanceID)
	}
	if len(tasks) != 1 || tasks[0].Description != "cached task" {
		t.Fatalf("expected cached task back, got %+v", tasks)
	}
	if gen.calls != 0 {
		t.Fatalf("generator called %d times on cache hit", gen.calls)
	}
}

func TestTasksParsesGeneratedLines(t *testing.T) {
	stored := make([]string, 0)
	st := &fakeStore{
		listAnsweredQuestions: func(ctx context.Context, m store.ModuleSchema, instanceID int64) ([]store.QuestionAnswer, error) {
			return []store.QuestionAnswer{{QuestionID: 1, Question: "q", Answer: "a"}}, nil
		},
		insertTask: func(ctx context.Context, m store.ModuleSchema, instanceID, ideaID int64, description string) (int64, error) {
			stored = append(stored, description)
			return int64(len(stored)), nil
		},
		listTasks: func(ctx context.Context, m store.ModuleSchema, instanceID, ideaID int64) ([]store.ModuleTask, error) {
			tasks := make([]store.ModuleTask, len(stored))
			for i, desc := range stored {
				tasks[i] = store.ModuleTask{ID: int64(i + 1), InstanceID: instanceID, IdeaID: ideaID, Description: desc}
			}
			return tasks, nil
		},
	}
	e := NewEngine(st, &fakeGenerator{reply: "- Interview 5 customers\n\n- Draft a landing page\n- Price the MVP\n"}, 0)

	instanceID, tasks, err := e.Tasks(context.Background(), mustModule(t, "envc"), testIdea())
	if err != nil {
		t.Fatalf("Tasks: %v", err)
	}
	if instanceID != 1 {
		t.Errorf("instance id = %d, want 1", instanceID)
	}
	want := []string{"Interview 5 customers", "Draft a landing page", "Price the MVP"}
	if len(tasks) != len(want) {
		t.Fatalf("got %d tasks, want %d", len(tasks), len(want))
	}
	for i, desc := range want {
		if tasks[i].Description != desc {
			t.Errorf("task %d = %q, want %q", i, tasks[i].Description, desc)
		}
	}
}

func TestAddTaskRejectsBlank(t *testing.T) {
	e := NewEngine(&fakeStore{}, &fakeGenerator{}, 0)

	if _, err := e.AddTask(context.Background(), mustModule(t, "concept"), testIdea(), "   "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestCompleteTaskRollsUpProgress(t *testing.T) {
	var moduleSet, stageSet, ideaSet float64
	st := &fakeStore{
		taskCounts: func(ctx context.Context, m store.ModuleSchema, instanceID int64) (int, int, error) {
			return 4, 1, nil
		},
		setModuleProgress: func(ctx context.Context, m store.ModuleSchema, instanceID int64, progress float64) error {
			moduleSet = progress
			return nil
		},
		listModuleProgress: func(ctx context.Context, m store.ModuleSchema, ideaID int64) ([]float64, error) {
			return []float64{25}, nil
		},
		setStageProgress: func(ctx context.Context, ideaID int64, stageID int, progress float64) error {
			if stageID != 5 {
				t.Errorf("stage id = %d, want 5", stageID)
			}
			stageSet = progress
			return nil
		},
		averageStageProgress: func(ctx context.Context, ideaID int64) (float64, error) {
			return 25.0 / 6, nil
		},
		setIdeaProgress: func(ctx context.Context, ideaID int64, progress float64) error {
			ideaSet = progress
			return nil
		},
	}
	e := NewEngine(st, &fakeGenerator{}, 0)

	p, err := e.CompleteTask(context.Background(), mustModule(t, "budget"), testIdea(), 3)
	if err != nil {
		t.Fatalf("CompleteTask: %v", err)
	}
	if moduleSet != 25 || p.Module != 25 {
		t.Errorf("module progress = %v (stored %v), want 25", p.Module, moduleSet)
	}
	if stageSet != 25 || p.Stage != 25 {
		t.Errorf("stage progress = %v (stored %v), want 25", p.Stage, stageSet)
	}
	if ideaSet != p.Idea || p.Idea != 25.0/6 {
		t.Errorf("idea progress = %v (stored %v), want %v", p.Idea, ideaSet, 25.0/6)
	}
}

func TestCompleteTaskZeroTasksClampsToZero(t *testing.T) {
	st := &fakeStore{
		taskCounts: func(ctx context.Context, m store.ModuleSchema, instanceID int64) (int, int, error) {
			return 0, 0, nil
		},
		setStageProgress: func(ctx context.Context, ideaID int64, stageID int, progress float64) error {
			t.Error("stage progress written with no instances")
			return nil
		},
	}
	e := NewEngine(st, &fakeGenerator{}, 0)

	p, err := e.CompleteTask(context.Background(), mustModule(t, "concept"), testIdea(), 1)
	if err != nil {
		t.Fatalf("CompleteTask: %v", err)
	}
	if p.Module != 0 {
		t.Errorf("module progress = %v, want 0", p.Module)
	}
}

func TestCompleteTaskAlreadyComplete(t *testing.T) {
	st := &fakeStore{
		getTask: func(ctx context.Context, m store.ModuleSchema, ideaID, taskID int64) (store.ModuleTask, error) {
			return store.ModuleTask{ID: taskID, InstanceID: 1, IdeaID: ideaID, Completed: true}, nil
		},
		taskCounts: func(ctx context.Context, m store.ModuleSchema, instanceID int64) (int, int, error) {
			return 2, 2, nil
		},
		listModuleProgress: func(ctx context.Context, m store.ModuleSchema, ideaID int64) ([]float64, error) {
			return []float64{100}, nil
		},
		averageStageProgress: func(ctx context.Context, ideaID int64) (float64, error) {
			return 100.0 / 6, nil
		},
	}
	e := NewEngine(st, &fakeGenerator{}, 0)

	p, err := e.CompleteTask(context.Background(), mustModule(t, "research"), testIdea(), 2)
	if err != nil {
		t.Fatalf("re-complete should succeed, got %v", err)
	}
	if p.Module != 100 {
		t.Errorf("module progress = %v, want 100", p.Module)
	}
}

func TestCompleteTaskUnknown(t *testing.T) {
	st := &fakeStore{
		getTask: func(ctx context.Context, m store.ModuleSchema, ideaID, taskID int64) (store.ModuleTask, error) {
			return store.ModuleTask{}, sql.ErrNoRows
		},
	}
	e := NewEngine(st, &fakeGenerator{}, 0)

	if _, err := e.CompleteTask(context.Background(), mustModule(t, "brand"), testIdea(), 404); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestApproveAnswerUnknown(t *testing.T) {
	st := &fakeStore{
		approveAnswer: func(ctx context.Context, m store.ModuleSchema, answerID int64, content string) (bool, error) {
			return false, nil
		},
	}
	e := NewEngine(st, &fakeGenerator{}, 0)

	if err := e.ApproveAnswer(context.Background(), mustModule(t, "envc"), 404, "edited"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestApproveAnswerRejectsBlank(t *testing.T) {
	e := NewEngine(&fakeStore{}, &fakeGenerator{}, 0)

	if err := e.ApproveAnswer(context.Background(), mustModule(t, "concept"), 1, "  \n "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestAnswerPromptIncludesContext(t *testing.T) {
	idea := testIdea()
	prompt := answerPrompt(idea, "Value Proposition", "Who is the customer?")
	for _, want := range []string{"Senior Business Consultant", idea.IdeaName, idea.ProblemStatement, idea.TargetLocation, "4 bullet points", "Who is the customer?"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestTaskPromptIncludesTranscript(t *testing.T) {
	prompt := taskPrompt(testIdea(), []store.QuestionAnswer{{Question: "q1", Answer: "a1"}})
	for _, want := range []string{"3 concrete tasks", "q1", "a1"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}
