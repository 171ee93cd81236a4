// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"fmt"
	"strings"
)

// specialist is a worker kind fully described by data.
type specialist struct {
	typ      Type
	profile  Profile
	role     string
	field    string
	guidance string
}

func (s specialist) Type() Type          { return s.typ }
func (s specialist) ResultField() string { return s.field }

func (s specialist) Defaults() Profile {
	p := s.profile
	p.Capabilities = append([]string(nil), s.profile.Capabilities...)
	return p
}

func (s specialist) SystemPrompt() string {
	return fmt.Sprintf(`You are the %s agent of a collaborative agent network.
%s

Reply with a single JSON object and nothing else:
{"reasoning": "<how you approached the subtask>",
 "%s": <your result>,
 "confidence": <number between 0 and 1>,
 "memories": [{"type": "fact|context|decision|feedback", "content": "...", "confidence": 0.0}]}
The memories list is optional; only propose facts other agents should reuse.`, s.role, s.guidance, s.field)
}

func (s specialist) BuildPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Overall task: %s\n\n", req.Task)
	fmt.Fprintf(&b, "Your subtask: %s\n", req.Subtask)
	if len(req.Context) > 0 {
		b.WriteString("\nContext:\n")
		b.WriteString(renderJSON(req.Context))
		b.WriteByte('\n')
	}
	return b.String()
}

func (s specialist) ParseResponse(content string) Response {
	return parseResponse(content, s.field)
}

var (
	contentKind = specialist{
		typ:      TypeContent,
		role:     "content",
		field:    "content",
		guidance: "You write and edit copy: emails, articles, announcements and product text.",
		profile: Profile{
			Model:        "gpt-4o",
			Temperature:  0.7,
			MaxTokens:    2000,
			Capabilities: []string{"copywriting", "editing", "summarization", "tone_adaptation"},
		},
	}
	designKind = specialist{
		typ:      TypeDesign,
		role:     "design",
		field:    "design",
		guidance: "You propose layouts, visual hierarchy, color and component choices.",
		profile: Profile{
			Model:        "gpt-4o",
			Temperature:  0.6,
			MaxTokens:    1500,
			Capabilities: []string{"layout", "visual_hierarchy", "branding", "accessibility"},
		},
	}
	analyticsKind = specialist{
		typ:      TypeAnalytics,
		role:     "analytics",
		field:    "analysis",
		guidance: "You interpret metrics, define measurements and recommend data-driven changes.",
		profile: Profile{
			Model:        "gpt-4o-mini",
			Temperature:  0.2,
			MaxTokens:    1500,
			Capabilities: []string{"metrics", "segmentation", "experiment_design", "reporting"},
		},
	}
	personalizationKind = specialist{
		typ:      TypePersonalization,
		role:     "personalization",
		field:    "personalization",
		guidance: "You tailor messages and experiences to audience segments and individual preferences.",
		profile: Profile{
			Model:        "gpt-4o-mini",
			Temperature:  0.5,
			MaxTokens:    1500,
			Capabilities: []string{"segmentation", "recommendations", "audience_targeting"},
		},
	}
	researchKind = specialist{
		typ:      TypeResearch,
		role:     "research",
		field:    "findings",
		guidance: "You gather background, compare alternatives and report verifiable findings.",
		profile: Profile{
			Model:        "claude-3-5-sonnet-latest",
			Temperature:  0.3,
			MaxTokens:    2500,
			Capabilities: []string{"market_research", "competitive_analysis", "fact_finding"},
		},
	}
)
