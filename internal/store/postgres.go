package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ---- users ----

func (s *PostgresStore) CreateUser(ctx context.Context, email, passwordHash string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (email, password_hash)
		VALUES ($1, $2)
		RETURNING user_id, email, password_hash, created_at
	`, email, passwordHash).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, email, password_hash, created_at FROM users WHERE email = $1
	`, email).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID int64) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, email, password_hash, created_at FROM users WHERE user_id = $1
	`, userID).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID int64, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash = $1 WHERE user_id = $2`, passwordHash, userID)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// ---- password resets ----

func (s *PostgresStore) CreatePasswordReset(ctx context.Context, userID int64, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO password_resets (token, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token) DO NOTHING
	`, token, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("insert password reset: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPasswordReset(ctx context.Context, token string) (int64, error) {
	var userID int64
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id FROM password_resets
		WHERE token = $1 AND used_at IS NULL AND expires_at > NOW()
	`, token).Scan(&userID)
	if err != nil {
		return 0, err
	}
	return userID, nil
}

func (s *PostgresStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE password_resets SET used_at = NOW() WHERE token = $1`, token)
	if err != nil {
		return fmt.Errorf("mark reset used: %w", err)
	}
	return nil
}

// ---- refresh sessions (Postgres fallback when Redis is not configured) ----

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash string, user User, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, user.ID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT u.user_id, u.email, u.password_hash, u.created_at
		FROM refresh_sessions rs
		JOIN users u ON u.user_id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`, tokenHash).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

// ---- business ideas ----

// CreateBusinessIdea inserts the idea plus, in the same transaction, the six
// business_stages rows, one module instance per kind at progress zero, and the
// category links for every category that exists at creation time.
func (s *PostgresStore) CreateBusinessIdea(ctx context.Context, idea BusinessIdea, modules []ModuleDef) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin create idea tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var ideaID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO business_ideas (user_id, idea_name, idea_foundation, problem_statement, unique_solution, target_location, idea_progress)
		VALUES ($1, $2, $3, $4, $5, $6, 0)
		RETURNING business_idea_id
	`, idea.UserID, idea.IdeaName, idea.IdeaFoundation, idea.ProblemStatement, idea.UniqueSolution, idea.TargetLocation).Scan(&ideaID)
	if err != nil {
		return 0, fmt.Errorf("insert business idea: %w", err)
	}

	for _, def := range modules {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO business_stages (business_idea_id, stage_id, progress, completed)
			VALUES ($1, $2, 0, FALSE)
		`, ideaID, def.StageID); err != nil {
			return 0, fmt.Errorf("insert business stage %d: %w", def.StageID, err)
		}

		var instanceID int64
		insertInstance := fmt.Sprintf(
			`INSERT INTO %s (business_idea_id, progress) VALUES ($1, 0) RETURNING %s`,
			def.Schema.Table, def.Schema.IDColumn,
		)
		if err := tx.QueryRowContext(ctx, insertInstance, ideaID).Scan(&instanceID); err != nil {
			return 0, fmt.Errorf("insert %s instance: %w", def.Schema.Table, err)
		}

		connect := fmt.Sprintf(
			`INSERT INTO %s (%s, %s) SELECT $1, %s FROM %s`,
			def.Schema.ConnectTable, def.Schema.IDColumn, def.Schema.CategoryIDColumn,
			def.Schema.CategoryIDColumn, def.Schema.CategoriesTable,
		)
		if _, err := tx.ExecContext(ctx, connect, instanceID); err != nil {
			return 0, fmt.Errorf("link %s categories: %w", def.Schema.Table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit create idea tx: %w", err)
	}
	return ideaID, nil
}

func (s *PostgresStore) GetBusinessIdea(ctx context.Context, ideaID int64) (BusinessIdea, error) {
	var idea BusinessIdea
	err := s.db.QueryRowContext(ctx, `
		SELECT business_idea_id, user_id, idea_name, idea_foundation, problem_statement, unique_solution, target_location, idea_progress, created_at
		FROM business_ideas WHERE business_idea_id = $1
	`, ideaID).Scan(&idea.ID, &idea.UserID, &idea.IdeaName, &idea.IdeaFoundation, &idea.ProblemStatement, &idea.UniqueSolution, &idea.TargetLocation, &idea.Progress, &idea.CreatedAt)
	if err != nil {
		return BusinessIdea{}, err
	}
	return idea, nil
}

func (s *PostgresStore) GetBusinessIdeaForUser(ctx context.Context, userID, ideaID int64) (BusinessIdea, error) {
	idea, err := s.GetBusinessIdea(ctx, ideaID)
	if err != nil {
		return BusinessIdea{}, err
	}
	if idea.UserID != userID {
		return BusinessIdea{}, sql.ErrNoRows
	}
	return idea, nil
}

func (s *PostgresStore) ListBusinessIdeas(ctx context.Context, userID int64) ([]BusinessIdea, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT business_idea_id, user_id, idea_name, idea_foundation, problem_statement, unique_solution, target_location, idea_progress, created_at
		FROM business_ideas WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list business ideas: %w", err)
	}
	defer rows.Close()

	items := make([]BusinessIdea, 0)
	for rows.Next() {
		var idea BusinessIdea
		if err := rows.Scan(&idea.ID, &idea.UserID, &idea.IdeaName, &idea.IdeaFoundation, &idea.ProblemStatement, &idea.UniqueSolution, &idea.TargetLocation, &idea.Progress, &idea.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan business idea: %w", err)
		}
		items = append(items, idea)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate business ideas: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListIdeaStages(ctx context.Context, ideaID int64) ([]StageProgress, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT st.stage_id, st.stage_name, bs.progress, bs.completed
		FROM business_stages bs
		JOIN stages st ON st.stage_id = bs.stage_id
		WHERE bs.business_idea_id = $1
		ORDER BY st.stage_id
	`, ideaID)
	if err != nil {
		return nil, fmt.Errorf("list idea stages: %w", err)
	}
	defer rows.Close()

	items := make([]StageProgress, 0)
	for rows.Next() {
		var item StageProgress
		if err := rows.Scan(&item.StageID, &item.StageName, &item.Progress, &item.Completed); err != nil {
			return nil, fmt.Errorf("scan idea stage: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate idea stages: %w", err)
	}
	return items, nil
}

// ---- generic module queries, parameterized by ModuleSchema ----

func (s *PostgresStore) ModuleInstanceID(ctx context.Context, m ModuleSchema, ideaID int64) (int64, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE business_idea_id = $1`, m.IDColumn, m.Table)
	var instanceID int64
	if err := s.db.QueryRowContext(ctx, query, ideaID).Scan(&instanceID); err != nil {
		return 0, err
	}
	return instanceID, nil
}

func (s *PostgresStore) CategoryName(ctx context.Context, m ModuleSchema, categoryID int64) (string, error) {
	query := fmt.Sprintf(`SELECT category_name FROM %s WHERE %s = $1`, m.CategoriesTable, m.CategoryIDColumn)
	var name string
	if err := s.db.QueryRowContext(ctx, query, categoryID).Scan(&name); err != nil {
		return "", err
	}
	return name, nil
}

func (s *PostgresStore) ListAnswers(ctx context.Context, m ModuleSchema, instanceID, categoryID int64) ([]ModuleAnswer, error) {
	query := fmt.Sprintf(`
		SELECT a.%s, a.%s, a.%s, a.%s, q.question, a.answer, a.answer_status
		FROM %s a
		JOIN %s q ON a.%s = q.%s
		WHERE a.%s = $1 AND a.%s = $2
		ORDER BY a.%s
	`, m.AnswerIDColumn, m.QuestionIDColumn, m.IDColumn, m.CategoryIDColumn,
		m.AnswersTable, m.QuestionsTable, m.QuestionIDColumn, m.QuestionIDColumn,
		m.IDColumn, m.CategoryIDColumn, m.AnswerIDColumn)

	rows, err := s.db.QueryContext(ctx, query, instanceID, categoryID)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", m.AnswersTable, err)
	}
	defer rows.Close()

	items := make([]ModuleAnswer, 0)
	for rows.Next() {
		var item ModuleAnswer
		if err := rows.Scan(&item.AnswerID, &item.QuestionID, &item.InstanceID, &item.CategoryID, &item.Question, &item.Answer, &item.Status); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", m.AnswersTable, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", m.AnswersTable, err)
	}
	return items, nil
}

func (s *PostgresStore) ListQuestions(ctx context.Context, m ModuleSchema, categoryID int64) ([]ModuleQuestion, error) {
	query := fmt.Sprintf(`SELECT %s, question FROM %s WHERE %s = $1 ORDER BY %s`,
		m.QuestionIDColumn, m.QuestionsTable, m.CategoryIDColumn, m.QuestionIDColumn)

	rows, err := s.db.QueryContext(ctx, query, categoryID)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", m.QuestionsTable, err)
	}
	defer rows.Close()

	items := make([]ModuleQuestion, 0)
	for rows.Next() {
		var item ModuleQuestion
		if err := rows.Scan(&item.ID, &item.Text); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", m.QuestionsTable, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", m.QuestionsTable, err)
	}
	return items, nil
}

func (s *PostgresStore) InsertAnswer(ctx context.Context, m ModuleSchema, answer ModuleAnswer) (int64, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s (%s, %s, %s, answer, answer_status)
		VALUES ($1, $2, $3, $4, 'generated')
		RETURNING %s
	`, m.AnswersTable, m.QuestionIDColumn, m.IDColumn, m.CategoryIDColumn, m.AnswerIDColumn)

	var id int64
	err := s.db.QueryRowContext(ctx, query, answer.QuestionID, answer.InstanceID, answer.CategoryID, answer.Answer).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert %s row: %w", m.AnswersTable, err)
	}
	return id, nil
}

func (s *PostgresStore) ApproveAnswer(ctx context.Context, m ModuleSchema, answerID int64, content string) (bool, error) {
	query := fmt.Sprintf(`UPDATE %s SET answer = $1, answer_status = 'approved' WHERE %s = $2`,
		m.AnswersTable, m.AnswerIDColumn)
	result, err := s.db.ExecContext(ctx, query, content, answerID)
	if err != nil {
		return false, fmt.Errorf("approve %s row: %w", m.AnswersTable, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("approve %s rows affected: %w", m.AnswersTable, err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) ListAnsweredQuestions(ctx context.Context, m ModuleSchema, instanceID int64) ([]QuestionAnswer, error) {
	query := fmt.Sprintf(`
		SELECT q.%s, q.question, a.answer
		FROM %s q
		JOIN %s a ON a.%s = q.%s
		WHERE a.%s = $1
		ORDER BY a.%s
	`, m.QuestionIDColumn, m.QuestionsTable, m.AnswersTable,
		m.QuestionIDColumn, m.QuestionIDColumn, m.IDColumn, m.AnswerIDColumn)

	rows, err := s.db.QueryContext(ctx, query, instanceID)
	if err != nil {
		return nil, fmt.Errorf("list answered %s: %w", m.QuestionsTable, err)
	}
	defer rows.Close()

	items := make([]QuestionAnswer, 0)
	for rows.Next() {
		var item QuestionAnswer
		if err := rows.Scan(&item.QuestionID, &item.Question, &item.Answer); err != nil {
			return nil, fmt.Errorf("scan answered %s row: %w", m.QuestionsTable, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate answered %s: %w", m.QuestionsTable, err)
	}
	return items, nil
}

func (s *PostgresStore) ListTasks(ctx context.Context, m ModuleSchema, instanceID, ideaID int64) ([]ModuleTask, error) {
	query := fmt.Sprintf(`
		SELECT %s, %s, business_idea_id, task_description, task_status
		FROM %s WHERE %s = $1 AND business_idea_id = $2
		ORDER BY %s
	`, m.TaskIDColumn, m.IDColumn, m.TasksTable, m.IDColumn, m.TaskIDColumn)

	rows, err := s.db.QueryContext(ctx, query, instanceID, ideaID)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", m.TasksTable, err)
	}
	defer rows.Close()

	items := make([]ModuleTask, 0)
	for rows.Next() {
		var item ModuleTask
		if err := rows.Scan(&item.ID, &item.InstanceID, &item.IdeaID, &item.Description, &item.Completed); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", m.TasksTable, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", m.TasksTable, err)
	}
	return items, nil
}

func (s *PostgresStore) InsertTask(ctx context.Context, m ModuleSchema, instanceID, ideaID int64, description string) (int64, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s (%s, business_idea_id, task_description, task_status)
		VALUES ($1, $2, $3, FALSE)
		RETURNING %s
	`, m.TasksTable, m.IDColumn, m.TaskIDColumn)

	var id int64
	if err := s.db.QueryRowContext(ctx, query, instanceID, ideaID, description).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert %s row: %w", m.TasksTable, err)
	}
	return id, nil
}

func (s *PostgresStore) GetTask(ctx context.Context, m ModuleSchema, ideaID, taskID int64) (ModuleTask, error) {
	query := fmt.Sprintf(`
		SELECT %s, %s, business_idea_id, task_description, task_status
		FROM %s WHERE business_idea_id = $1 AND %s = $2
	`, m.TaskIDColumn, m.IDColumn, m.TasksTable, m.TaskIDColumn)

	var item ModuleTask
	err := s.db.QueryRowContext(ctx, query, ideaID, taskID).Scan(&item.ID, &item.InstanceID, &item.IdeaID, &item.Description, &item.Completed)
	if err != nil {
		return ModuleTask{}, err
	}
	return item, nil
}

func (s *PostgresStore) MarkTaskComplete(ctx context.Context, m ModuleSchema, ideaID, taskID int64) error {
	query := fmt.Sprintf(`UPDATE %s SET task_status = TRUE WHERE business_idea_id = $1 AND %s = $2`,
		m.TasksTable, m.TaskIDColumn)
	if _, err := s.db.ExecContext(ctx, query, ideaID, taskID); err != nil {
		return fmt.Errorf("complete %s row: %w", m.TasksTable, err)
	}
	return nil
}

func (s *PostgresStore) TaskCounts(ctx context.Context, m ModuleSchema, instanceID int64) (total, completed int, err error) {
	query := fmt.Sprintf(`
		SELECT COUNT(*), COUNT(*) FILTER (WHERE task_status) FROM %s WHERE %s = $1
	`, m.TasksTable, m.IDColumn)
	if err := s.db.QueryRowContext(ctx, query, instanceID).Scan(&total, &completed); err != nil {
		return 0, 0, fmt.Errorf("count %s: %w", m.TasksTable, err)
	}
	return total, completed, nil
}

func (s *PostgresStore) SetModuleProgress(ctx context.Context, m ModuleSchema, instanceID int64, progress float64) error {
	query := fmt.Sprintf(`UPDATE %s SET progress = $1 WHERE %s = $2`, m.Table, m.IDColumn)
	if _, err := s.db.ExecContext(ctx, query, progress, instanceID); err != nil {
		return fmt.Errorf("set %s progress: %w", m.Table, err)
	}
	return nil
}

func (s *PostgresStore) ModuleProgress(ctx context.Context, m ModuleSchema, ideaID int64) (float64, error) {
	query := fmt.Sprintf(`SELECT progress FROM %s WHERE business_idea_id = $1`, m.Table)
	var progress float64
	if err := s.db.QueryRowContext(ctx, query, ideaID).Scan(&progress); err != nil {
		return 0, err
	}
	return progress, nil
}

func (s *PostgresStore) ListModuleProgress(ctx context.Context, m ModuleSchema, ideaID int64) ([]float64, error) {
	query := fmt.Sprintf(`SELECT progress FROM %s WHERE business_idea_id = $1`, m.Table)
	rows, err := s.db.QueryContext(ctx, query, ideaID)
	if err != nil {
		return nil, fmt.Errorf("list %s progress: %w", m.Table, err)
	}
	defer rows.Close()

	values := make([]float64, 0, 1)
	for rows.Next() {
		var value float64
		if err := rows.Scan(&value); err != nil {
			return nil, fmt.Errorf("scan %s progress: %w", m.Table, err)
		}
		values = append(values, value)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s progress: %w", m.Table, err)
	}
	return values, nil
}

func (s *PostgresStore) SetStageProgress(ctx context.Context, ideaID int64, stageID int, progress float64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE business_stages SET progress = $1 WHERE business_idea_id = $2 AND stage_id = $3
	`, progress, ideaID, stageID)
	if err != nil {
		return fmt.Errorf("set stage progress: %w", err)
	}
	return nil
}

func (s *PostgresStore) AverageStageProgress(ctx context.Context, ideaID int64) (float64, error) {
	var avg sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT AVG(progress) FROM business_stages WHERE business_idea_id = $1
	`, ideaID).Scan(&avg)
	if err != nil {
		return 0, fmt.Errorf("average stage progress: %w", err)
	}
	if !avg.Valid {
		return 0, nil
	}
	return avg.Float64, nil
}

func (s *PostgresStore) SetIdeaProgress(ctx context.Context, ideaID int64, progress float64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE business_ideas SET idea_progress = $1 WHERE business_idea_id = $2
	`, progress, ideaID)
	if err != nil {
		return fmt.Errorf("set idea progress: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListCategoryLinks(ctx context.Context, m ModuleSchema, ideaID int64) ([]CategoryLink, error) {
	query := fmt.Sprintf(`
		SELECT i.%s, c.%s, c.category_name
		FROM %s i
		JOIN %s cc ON cc.%s = i.%s
		JOIN %s c ON c.%s = cc.%s
		WHERE i.business_idea_id = $1
		ORDER BY c.%s
	`, m.IDColumn, m.CategoryIDColumn,
		m.Table, m.ConnectTable, m.IDColumn, m.IDColumn,
		m.CategoriesTable, m.CategoryIDColumn, m.CategoryIDColumn,
		m.CategoryIDColumn)

	rows, err := s.db.QueryContext(ctx, query, ideaID)
	if err != nil {
		return nil, fmt.Errorf("list %s links: %w", m.ConnectTable, err)
	}
	defer rows.Close()

	items := make([]CategoryLink, 0)
	for rows.Next() {
		var item CategoryLink
		if err := rows.Scan(&item.InstanceID, &item.CategoryID, &item.Name); err != nil {
			return nil, fmt.Errorf("scan %s link: %w", m.ConnectTable, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s links: %w", m.ConnectTable, err)
	}
	return items, nil
}
