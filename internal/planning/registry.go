package planning

import (
	"fmt"

	"tidibe/api/internal/store"
)

// Kind names one of the six planning modules of a business idea. Each kind
// owns an identical five-table layout; the registry maps the kind to its
// table names and its stage row.
type Kind string

const (
	KindConcept   Kind = "concept"
	KindResearch  Kind = "research"
	KindBudget    Kind = "budget"
	KindMarketing Kind = "marketing"
	KindEnvc      Kind = "envc"
	KindBrand     Kind = "brand"
)

type Module struct {
	Kind      Kind
	StageID   int
	StageName string
	Schema    store.ModuleSchema
}

func module(kind Kind, stageID int, stageName string) Module {
	name := string(kind)
	return Module{
		Kind:      kind,
		StageID:   stageID,
		StageName: stageName,
		Schema: store.ModuleSchema{
			Table:            name,
			IDColumn:         name + "_id",
			CategoriesTable:  name + "_categories",
			CategoryIDColumn: name + "_cat_id",
			ConnectTable:     name + "_categories_connect",
			QuestionsTable:   name + "_questions",
			QuestionIDColumn: name + "_question_id",
			AnswersTable:     name + "_answers",
			AnswerIDColumn:   name + "_answer_id",
			TasksTable:       name + "_tasks",
			TaskIDColumn:     name + "_task_id",
		},
	}
}

var registry = map[Kind]Module{
	KindConcept:   module(KindConcept, 1, "Concept"),
	KindResearch:  module(KindResearch, 2, "Research"),
	KindBrand:     module(KindBrand, 3, "Brand"),
	KindMarketing: module(KindMarketing, 4, "Marketing"),
	KindBudget:    module(KindBudget, 5, "Budget"),
	KindEnvc:      module(KindEnvc, 6, "Environment & Culture"),
}

// Lookup resolves a URL path segment to its module definition.
func Lookup(kind string) (Module, error) {
	m, ok := registry[Kind(kind)]
	if !ok {
		return Module{}, fmt.Errorf("%w: unknown module %q", ErrInvalidInput, kind)
	}
	return m, nil
}

// Modules returns every module in stage order, for idea bootstrap and export.
func Modules() []Module {
	out := make([]Module, 0, len(registry))
	for _, kind := range []Kind{KindConcept, KindResearch, KindBrand, KindMarketing, KindBudget, KindEnvc} {
		out = append(out, registry[kind])
	}
	return out
}

// Defs returns the store-level module definitions in stage order.
func Defs() []store.ModuleDef {
	mods := Modules()
	out := make([]store.ModuleDef, 0, len(mods))
	for _, m := range mods {
		out = append(out, store.ModuleDef{StageID: m.StageID, Schema: m.Schema})
	}
	return out
}
