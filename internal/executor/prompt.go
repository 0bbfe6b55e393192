package executor

import (
	"fmt"
	"strings"

	"github.com/ralphlabs/ralph/internal/domain"
)

const promptTemplate = `You are implementing: %s

%s
Acceptance criteria:
%s
Instructions:
1. Implement the story requirements
2. Run the project's tests and make them pass
3. Commit your work with a descriptive message
4. Print a one-line summary of what changed

Do not ask for clarification. Make reasonable decisions based on the story content.
`

// BuildPrompt constructs the execution prompt for a story
func BuildPrompt(story *domain.Story) string {
	var description string
	if story.Description != "" {
		description = story.Description + "\n"
	}

	criteria := "- (none given)\n"
	if len(story.AcceptanceCriteria) > 0 {
		var b strings.Builder
		for _, c := range story.AcceptanceCriteria {
			fmt.Fprintf(&b, "- %s\n", c)
		}
		criteria = b.String()
	}

	return fmt.Sprintf(promptTemplate, story.Title, description, criteria)
}
