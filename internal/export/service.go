package export

import (
	"context"
	"fmt"
	"time"
)

// PlanSource defines the interface for plan data access
type PlanSource interface {
	GetPlan(ctx context.Context, ideaID int64) (PlanInfo, error)
	ListSections(ctx context.Context, ideaID int64) ([]SectionInfo, error)
}

// PlanInfo holds the business idea header for the plan
type PlanInfo struct {
	ID               int64
	IdeaName         string
	IdeaFoundation   string
	ProblemStatement string
	UniqueSolution   string
	TargetLocation   string
	Progress         float64
	Owner            string
}

// SectionInfo holds one planning module's content
type SectionInfo struct {
	StageName string
	Progress  float64
	Answers   []AnswerInfo
	Tasks     []TaskInfo
}

// AnswerInfo holds one consulting question and its answer
type AnswerInfo struct {
	Question string
	Answer   string
}

// TaskInfo holds one action item
type TaskInfo struct {
	Description string
	Completed   bool
}

// Service provides business plan export functionality
type Service struct {
	source PlanSource
}

// NewService creates a new export service
func NewService(source PlanSource) *Service {
	return &Service{source: source}
}

// Export generates an export in the requested format
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	plan, err := s.source.GetPlan(ctx, req.IdeaID)
	if err != nil {
		return nil, fmt.Errorf("get plan: %w", err)
	}

	sections, err := s.source.ListSections(ctx, req.IdeaID)
	if err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}

	html, err := RenderPlanHTML(TemplateData{
		Plan:        plan,
		Sections:    sections,
		GeneratedAt: time.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	switch req.Format {
	case FormatHTML:
		return &Result{
			Data:     []byte(html),
			Filename: sanitizeFilename(plan.IdeaName) + ".html",
			MimeType: "text/html; charset=utf-8",
		}, nil
	case FormatPDF:
		return exportPDF(html, plan.IdeaName)
	case FormatDOCX:
		return exportDOCX(html, plan.IdeaName)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, req.Format)
	}
}
