package planning

import (
	"fmt"
	"strings"

	"tidibe/api/internal/store"
)

// answerPrompt builds the consultant prompt for one category question. The
// idea fields are inlined so the model answers for this specific business.
func answerPrompt(idea store.BusinessIdea, category, question string) string {
	var b strings.Builder
	b.WriteString("You are a Senior Business Consultant. A founder is working on the following business idea:\n\n")
	fmt.Fprintf(&b, "Idea name: %s\n", idea.IdeaName)
	fmt.Fprintf(&b, "Idea foundation: %s\n", idea.IdeaFoundation)
	fmt.Fprintf(&b, "Problem statement: %s\n", idea.ProblemStatement)
	fmt.Fprintf(&b, "Unique solution: %s\n", idea.UniqueSolution)
	fmt.Fprintf(&b, "Target location: %s\n\n", idea.TargetLocation)
	fmt.Fprintf(&b, "For the %q category, answer the question below in exactly 4 bullet points. Each bullet point must start with a dash.\n\n", category)
	fmt.Fprintf(&b, "Question: %s\n", question)
	return b.String()
}

// taskPrompt builds the action-synthesis prompt from the idea and the full
// question-and-answer transcript of the module instance.
func taskPrompt(idea store.BusinessIdea, answered []store.QuestionAnswer) string {
	var b strings.Builder
	b.WriteString("You are a Senior Business Consultant. A founder is working on the following business idea:\n\n")
	fmt.Fprintf(&b, "Idea name: %s\n", idea.IdeaName)
	fmt.Fprintf(&b, "Idea foundation: %s\n", idea.IdeaFoundation)
	fmt.Fprintf(&b, "Problem statement: %s\n", idea.ProblemStatement)
	fmt.Fprintf(&b, "Unique solution: %s\n", idea.UniqueSolution)
	fmt.Fprintf(&b, "Target location: %s\n\n", idea.TargetLocation)
	b.WriteString("The founder has already received the following consulting feedback:\n\n")
	for _, qa := range answered {
		fmt.Fprintf(&b, "Question: %s\nAnswer: %s\n\n", qa.Question, qa.Answer)
	}
	b.WriteString("Based on this feedback, list 3 concrete tasks the founder should do next. Each task must start with a dash.\n")
	return b.String()
}
