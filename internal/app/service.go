package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"tidibe/api/internal/auth"
	"tidibe/api/internal/authpw"
	"tidibe/api/internal/config"
	"tidibe/api/internal/email"
	"tidibe/api/internal/export"
	"tidibe/api/internal/planning"
	"tidibe/api/internal/planvault"
	"tidibe/api/internal/search"
	"tidibe/api/internal/store"
	"tidibe/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       int64
	Email        string
	JTI          string
	ExpiresAt    time.Time
}

type CreateIdeaInput struct {
	IdeaName         string `json:"idea_name"`
	IdeaFoundation   string `json:"idea_foundation"`
	ProblemStatement string `json:"problem_statement"`
	UniqueSolution   string `json:"unique_solution"`
	TargetLocation   string `json:"target_location"`
}

type dataStore interface {
	GetUserByID(ctx context.Context, userID int64) (store.User, error)
	CreateBusinessIdea(ctx context.Context, idea store.BusinessIdea, modules []store.ModuleDef) (int64, error)
	GetBusinessIdea(ctx context.Context, ideaID int64) (store.BusinessIdea, error)
	GetBusinessIdeaForUser(ctx context.Context, userID, ideaID int64) (store.BusinessIdea, error)
	ListBusinessIdeas(ctx context.Context, userID int64) ([]store.BusinessIdea, error)
	ListIdeaStages(ctx context.Context, ideaID int64) ([]store.StageProgress, error)
	ModuleProgress(ctx context.Context, m store.ModuleSchema, ideaID int64) (float64, error)
	SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
	Ping(ctx context.Context) error
}

// sessionStore is the refresh token backend. The Redis store is preferred,
// the Postgres store serves when Redis is not configured.
type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type vaultService interface {
	EnsureIdeaRepo(ideaID int64, initial planvault.Snapshot, author string) error
	CommitSnapshot(ideaID int64, snapshot planvault.Snapshot, author, message string) (planvault.CommitInfo, error)
	History(ideaID int64, limit int) ([]planvault.CommitInfo, error)
	GetSnapshotByHash(ideaID int64, hash string) (planvault.Snapshot, error)
}

type Service struct {
	cfg      config.Config
	store    dataStore
	engine   *planning.Engine
	authpw   *authpw.Service
	sessions sessionStore
	vault    vaultService
	search   *search.Service
	export   *export.Service
	email    *email.Service
}

type Deps struct {
	Store    dataStore
	Engine   *planning.Engine
	Auth     *authpw.Service
	Sessions sessionStore
	Vault    *planvault.Service
	Search   *search.Service
	Email    *email.Service
}

func New(cfg config.Config, deps Deps) *Service {
	s := &Service{
		cfg:      cfg,
		store:    deps.Store,
		engine:   deps.Engine,
		authpw:   deps.Auth,
		sessions: deps.Sessions,
		search:   deps.Search,
		email:    deps.Email,
	}
	if deps.Vault != nil {
		s.vault = deps.Vault
	}
	if s.sessions == nil {
		s.sessions = deps.Store
	}
	s.export = export.NewService(&planSource{service: s})
	return s
}

// ---- sessions ----

func (s *Service) SignUp(ctx context.Context, emailAddr, password string) (Session, error) {
	user, err := s.authpw.SignUp(ctx, authpw.SignUpRequest{Email: strings.TrimSpace(emailAddr), Password: password})
	if err != nil {
		return Session{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
	}
	return s.issueSession(ctx, user)
}

func (s *Service) SignIn(ctx context.Context, emailAddr, password string) (Session, error) {
	user, err := s.authpw.SignIn(ctx, authpw.SignInRequest{Email: strings.TrimSpace(emailAddr), Password: password})
	if err != nil {
		return Session{}, domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Invalid email or password", nil)
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:   user.ID,
		Email: user.Email,
		JTI:   jti,
		Exp:   expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		Email:        user.Email,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		Email:     user.Email,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

// RequestPasswordReset issues a reset token and emails the reset link. The
// response is identical whether the email exists or not.
func (s *Service) RequestPasswordReset(ctx context.Context, emailAddr string) error {
	token, err := s.authpw.RequestPasswordReset(ctx, strings.TrimSpace(emailAddr))
	if err != nil {
		return err
	}
	if token == "" {
		return nil
	}
	if s.email == nil || !s.email.IsConfigured() {
		log.Printf("app: reset requested for %s but email is not configured", emailAddr)
		return nil
	}
	resetURL := fmt.Sprintf("%s?token=%s", s.cfg.ResetBaseURL, token)
	if err := s.email.SendPasswordResetEmail(emailAddr, emailAddr, resetURL); err != nil {
		log.Printf("app: send reset email: %v", err)
	}
	return nil
}

func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := s.authpw.ResetPassword(ctx, authpw.ResetPasswordRequest{Token: token, NewPassword: newPassword}); err != nil {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
	}
	return nil
}

// ---- business ideas ----

func (s *Service) CreateIdea(ctx context.Context, session Session, input CreateIdeaInput) (map[string]any, error) {
	if strings.TrimSpace(input.IdeaName) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "idea_name is required", nil)
	}

	idea := store.BusinessIdea{
		UserID:           session.UserID,
		IdeaName:         strings.TrimSpace(input.IdeaName),
		IdeaFoundation:   strings.TrimSpace(input.IdeaFoundation),
		ProblemStatement: strings.TrimSpace(input.ProblemStatement),
		UniqueSolution:   strings.TrimSpace(input.UniqueSolution),
		TargetLocation:   strings.TrimSpace(input.TargetLocation),
	}

	ideaID, err := s.store.CreateBusinessIdea(ctx, idea, planning.Defs())
	if err != nil {
		return nil, err
	}
	idea.ID = ideaID

	if s.vault != nil {
		if err := s.vault.EnsureIdeaRepo(ideaID, snapshotHeader(idea), session.Email); err != nil {
			log.Printf("app: init plan vault for idea %d: %v", ideaID, err)
		}
	}
	if s.search != nil {
		s.search.IndexIdea(ideaRecord(idea))
	}

	return map[string]any{
		"business_idea_id": ideaID,
		"idea_name":        idea.IdeaName,
		"idea_progress":    0,
	}, nil
}

func (s *Service) ListIdeas(ctx context.Context, session Session) ([]store.BusinessIdea, error) {
	return s.store.ListBusinessIdeas(ctx, session.UserID)
}

func (s *Service) GetIdea(ctx context.Context, session Session, ideaID int64) (map[string]any, error) {
	idea, err := s.ownIdea(ctx, session, ideaID)
	if err != nil {
		return nil, err
	}
	stages, err := s.store.ListIdeaStages(ctx, ideaID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"idea":   idea,
		"stages": stages,
	}, nil
}

func (s *Service) ownIdea(ctx context.Context, session Session, ideaID int64) (store.BusinessIdea, error) {
	idea, err := s.store.GetBusinessIdeaForUser(ctx, session.UserID, ideaID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.BusinessIdea{}, domainError(http.StatusNotFound, "NOT_FOUND", "Business idea not found", nil)
		}
		return store.BusinessIdea{}, err
	}
	return idea, nil
}

// ---- planning modules ----

func (s *Service) ModuleAnswers(ctx context.Context, session Session, kind string, ideaID, categoryID int64) (string, []store.ModuleAnswer, error) {
	m, err := planning.Lookup(kind)
	if err != nil {
		return "", nil, err
	}
	idea, err := s.ownIdea(ctx, session, ideaID)
	if err != nil {
		return "", nil, err
	}
	category, answers, err := s.engine.Answers(ctx, m, idea, categoryID)
	if err != nil {
		return "", nil, err
	}
	s.commitVaultSnapshot(ctx, session, idea, fmt.Sprintf("Generate %s answers", m.Kind))
	return category, answers, nil
}

// ModuleApproveAnswer edits answer content by answer id. Ownership is implied
// by the session; the approved text lands in the vault with the next snapshot.
func (s *Service) ModuleApproveAnswer(ctx context.Context, session Session, kind string, answerID int64, content string) error {
	m, err := planning.Lookup(kind)
	if err != nil {
		return err
	}
	return s.engine.ApproveAnswer(ctx, m, answerID, content)
}

func (s *Service) ModuleGenerateTasks(ctx context.Context, session Session, kind string, ideaID int64) (int64, []store.ModuleTask, error) {
	m, err := planning.Lookup(kind)
	if err != nil {
		return 0, nil, err
	}
	idea, err := s.ownIdea(ctx, session, ideaID)
	if err != nil {
		return 0, nil, err
	}
	instanceID, tasks, err := s.engine.Tasks(ctx, m, idea)
	if err != nil {
		return 0, nil, err
	}
	s.commitVaultSnapshot(ctx, session, idea, fmt.Sprintf("Generate %s tasks", m.Kind))
	return instanceID, tasks, nil
}

func (s *Service) ModuleAddTask(ctx context.Context, session Session, kind string, ideaID int64, description string) (store.ModuleTask, error) {
	m, err := planning.Lookup(kind)
	if err != nil {
		return store.ModuleTask{}, err
	}
	idea, err := s.ownIdea(ctx, session, ideaID)
	if err != nil {
		return store.ModuleTask{}, err
	}
	return s.engine.AddTask(ctx, m, idea, description)
}

func (s *Service) ModuleCompleteTask(ctx context.Context, session Session, kind string, ideaID, taskID int64) (planning.Progress, error) {
	m, err := planning.Lookup(kind)
	if err != nil {
		return planning.Progress{}, err
	}
	idea, err := s.ownIdea(ctx, session, ideaID)
	if err != nil {
		return planning.Progress{}, err
	}
	progress, err := s.engine.CompleteTask(ctx, m, idea, taskID)
	if err != nil {
		return planning.Progress{}, err
	}
	if s.search != nil {
		idea.Progress = progress.Idea
		s.search.IndexIdea(ideaRecord(idea))
	}
	return progress, nil
}

func (s *Service) ModuleCategories(ctx context.Context, session Session, kind string, ideaID int64) (float64, []store.CategoryLink, error) {
	m, err := planning.Lookup(kind)
	if err != nil {
		return 0, nil, err
	}
	idea, err := s.ownIdea(ctx, session, ideaID)
	if err != nil {
		return 0, nil, err
	}
	links, err := s.engine.Categories(ctx, m, idea)
	if err != nil {
		return 0, nil, err
	}
	progress, err := s.store.ModuleProgress(ctx, m.Schema, ideaID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, nil, err
	}
	return progress, links, nil
}

// ---- search ----

func (s *Service) SearchIdeas(ctx context.Context, session Session, q search.Query) search.Response {
	q.UserID = session.UserID
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}
	}
	return s.search.Search(q)
}

// ---- export ----

func (s *Service) ExportPlan(ctx context.Context, session Session, ideaID int64, format export.Format) (*export.Result, error) {
	if _, err := s.ownIdea(ctx, session, ideaID); err != nil {
		return nil, err
	}
	return s.export.Export(ctx, export.Request{IdeaID: ideaID, Format: format})
}

// ---- plan vault ----

func (s *Service) PlanHistory(ctx context.Context, session Session, ideaID int64, limit int) ([]planvault.CommitInfo, error) {
	if _, err := s.ownIdea(ctx, session, ideaID); err != nil {
		return nil, err
	}
	if s.vault == nil {
		return []planvault.CommitInfo{}, nil
	}
	return s.vault.History(ideaID, limit)
}

// PlanSnapshot reads the plan state at one vault commit.
func (s *Service) PlanSnapshot(ctx context.Context, session Session, ideaID int64, hash string) (planvault.Snapshot, error) {
	if _, err := s.ownIdea(ctx, session, ideaID); err != nil {
		return planvault.Snapshot{}, err
	}
	if s.vault == nil {
		return planvault.Snapshot{}, fmt.Errorf("%w: idea %d", planvault.ErrNotFound, ideaID)
	}
	return s.vault.GetSnapshotByHash(ideaID, hash)
}

// commitVaultSnapshot records the current plan state. Vault failures are
// logged, never surfaced: the plan data in Postgres is authoritative.
func (s *Service) commitVaultSnapshot(ctx context.Context, session Session, idea store.BusinessIdea, message string) {
	if s.vault == nil {
		return
	}
	snapshot, err := s.buildSnapshot(ctx, idea)
	if err != nil {
		log.Printf("app: build vault snapshot for idea %d: %v", idea.ID, err)
		return
	}
	if err := s.vault.EnsureIdeaRepo(idea.ID, snapshotHeader(idea), session.Email); err != nil {
		log.Printf("app: ensure vault repo for idea %d: %v", idea.ID, err)
		return
	}
	if _, err := s.vault.CommitSnapshot(idea.ID, snapshot, session.Email, message); err != nil {
		log.Printf("app: commit vault snapshot for idea %d: %v", idea.ID, err)
	}
}

func (s *Service) buildSnapshot(ctx context.Context, idea store.BusinessIdea) (planvault.Snapshot, error) {
	snapshot := snapshotHeader(idea)
	for _, m := range planning.Modules() {
		answers, err := s.engine.AnswerSheet(ctx, m, idea)
		if err != nil {
			return planvault.Snapshot{}, err
		}
		tasks, err := s.engine.ListTasks(ctx, m, idea)
		if err != nil {
			return planvault.Snapshot{}, err
		}
		mod := planvault.SnapshotModule{Stage: m.StageName}
		for _, qa := range answers {
			mod.Answers = append(mod.Answers, planvault.SnapshotQA{Question: qa.Question, Answer: qa.Answer})
		}
		for _, task := range tasks {
			mod.Tasks = append(mod.Tasks, planvault.SnapshotTask{Description: task.Description, Completed: task.Completed})
		}
		snapshot.Modules = append(snapshot.Modules, mod)
	}
	return snapshot, nil
}

func snapshotHeader(idea store.BusinessIdea) planvault.Snapshot {
	return planvault.Snapshot{
		IdeaName:         idea.IdeaName,
		IdeaFoundation:   idea.IdeaFoundation,
		ProblemStatement: idea.ProblemStatement,
		UniqueSolution:   idea.UniqueSolution,
		TargetLocation:   idea.TargetLocation,
		Progress:         idea.Progress,
	}
}

func ideaRecord(idea store.BusinessIdea) search.IdeaRecord {
	return search.IdeaRecord{
		ID:               idea.ID,
		UserID:           idea.UserID,
		IdeaName:         idea.IdeaName,
		IdeaFoundation:   idea.IdeaFoundation,
		ProblemStatement: idea.ProblemStatement,
		UniqueSolution:   idea.UniqueSolution,
		TargetLocation:   idea.TargetLocation,
		Progress:         idea.Progress,
	}
}

// ---- export source ----

// planSource adapts the service to the export package's data interface.
// Ownership is checked by the caller before Export runs.
type planSource struct {
	service *Service
}

func (p *planSource) GetPlan(ctx context.Context, ideaID int64) (export.PlanInfo, error) {
	idea, err := p.service.store.GetBusinessIdea(ctx, ideaID)
	if err != nil {
		return export.PlanInfo{}, err
	}
	owner := ""
	if user, err := p.service.store.GetUserByID(ctx, idea.UserID); err == nil {
		owner = user.Email
	}
	return export.PlanInfo{
		ID:               idea.ID,
		IdeaName:         idea.IdeaName,
		IdeaFoundation:   idea.IdeaFoundation,
		ProblemStatement: idea.ProblemStatement,
		UniqueSolution:   idea.UniqueSolution,
		TargetLocation:   idea.TargetLocation,
		Progress:         idea.Progress,
		Owner:            owner,
	}, nil
}

func (p *planSource) ListSections(ctx context.Context, ideaID int64) ([]export.SectionInfo, error) {
	idea, err := p.service.store.GetBusinessIdea(ctx, ideaID)
	if err != nil {
		return nil, err
	}

	sections := make([]export.SectionInfo, 0, len(planning.Modules()))
	for _, m := range planning.Modules() {
		answers, err := p.service.engine.AnswerSheet(ctx, m, idea)
		if err != nil {
			return nil, err
		}
		tasks, err := p.service.engine.ListTasks(ctx, m, idea)
		if err != nil {
			return nil, err
		}
		progress, err := p.service.store.ModuleProgress(ctx, m.Schema, ideaID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}

		section := export.SectionInfo{StageName: m.StageName, Progress: progress}
		for _, qa := range answers {
			section.Answers = append(section.Answers, export.AnswerInfo{Question: qa.Question, Answer: qa.Answer})
		}
		for _, task := range tasks {
			section.Tasks = append(section.Tasks, export.TaskInfo{Description: task.Description, Completed: task.Completed})
		}
		sections = append(sections, section)
	}
	return sections, nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
