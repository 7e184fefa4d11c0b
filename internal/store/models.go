package store

import "time"

type User struct {
	ID           int64     `json:"user_id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

type BusinessIdea struct {
	ID               int64     `json:"business_idea_id"`
	UserID           int64     `json:"user_id"`
	IdeaName         string    `json:"idea_name"`
	IdeaFoundation   string    `json:"idea_foundation"`
	ProblemStatement string    `json:"problem_statement"`
	UniqueSolution   string    `json:"unique_solution"`
	TargetLocation   string    `json:"target_location"`
	Progress         float64   `json:"idea_progress"`
	CreatedAt        time.Time `json:"created_at"`
}

type StageProgress struct {
	StageID   int     `json:"stage_id"`
	StageName string  `json:"stage_name"`
	Progress  float64 `json:"progress"`
	Completed bool    `json:"completed"`
}

// ModuleSchema names the tables and key columns of one planning module kind.
// Every identifier comes from the static module registry, never from request
// input, so it is safe to splice into SQL text.
type ModuleSchema struct {
	Table            string
	IDColumn         string
	CategoriesTable  string
	CategoryIDColumn string
	ConnectTable     string
	QuestionsTable   string
	QuestionIDColumn string
	AnswersTable     string
	AnswerIDColumn   string
	TasksTable       string
	TaskIDColumn     string
}

// ModuleDef pairs a module schema with its stage id for idea bootstrap.
type ModuleDef struct {
	StageID int
	Schema  ModuleSchema
}

type ModuleQuestion struct {
	ID   int64  `json:"question_id"`
	Text string `json:"question"`
}

type ModuleAnswer struct {
	AnswerID   int64  `json:"answer_id"`
	QuestionID int64  `json:"question_id"`
	InstanceID int64  `json:"instance_id"`
	CategoryID int64  `json:"category_id"`
	Question   string `json:"question"`
	Answer     string `json:"answer"`
	Status     string `json:"answer_status"`
}

type ModuleTask struct {
	ID          int64  `json:"task_id"`
	InstanceID  int64  `json:"instance_id"`
	IdeaID      int64  `json:"business_idea_id"`
	Description string `json:"task_description"`
	Completed   bool   `json:"task_status"`
}

type QuestionAnswer struct {
	QuestionID int64  `json:"question_id"`
	Question   string `json:"question"`
	Answer     string `json:"answer"`
}

type CategoryLink struct {
	InstanceID int64  `json:"instance_id"`
	CategoryID int64  `json:"category_id"`
	Name       string `json:"category_name"`
}
