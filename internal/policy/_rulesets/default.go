package main

import (
	"fmt"
	"strings"

	"impressionism/ruleapi"
)

// Default ruleset: activates skills whose embedding similarity to the
// latest user intent clears similarity_threshold, with a keyword match
// as a secondary signal. Deactivates everything on stop.

func EvaluateActivation(ctx ruleapi.Context, api *ruleapi.API) []ruleapi.Decision {
	if ctx.HookEvent == ruleapi.EventStop {
		return nil
	}

	query := ctx.UserPrompt
	if query == "" {
		count := api.GetParam("recent_message_count", 10).(int)
		for _, msg := range api.GetRecentMessages(ctx.SessionID, count) {
			if msg.Role == "user" && msg.Content != "" {
				query = msg.Content
			}
		}
	}
	if query == "" {
		return nil
	}

	threshold := api.GetParam("similarity_threshold", 0.5).(float64)
	limit := api.GetParam("search_limit", 5).(int)

	var decisions []ruleapi.Decision
	matched := map[string]bool{}

	for _, hit := range api.SearchSkills(query, limit) {
		if hit.Similarity < threshold {
			continue
		}
		matched[hit.Skill.ID] = true
		decisions = append(decisions, ruleapi.Decision{
			SkillID: hit.Skill.ID,
			Reason:  fmt.Sprintf("similarity=%.2f", hit.Similarity),
		})
	}

	lower := strings.ToLower(query)
	for _, skill := range api.GetAllSkills() {
		if matched[skill.ID] {
			continue
		}
		for _, kw := range skill.Keywords {
			if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
				decisions = append(decisions, ruleapi.Decision{
					SkillID: skill.ID,
					Reason:  fmt.Sprintf("keyword=%s", kw),
				})
				break
			}
		}
	}

	return decisions
}

func EvaluateDeactivation(ctx ruleapi.Context, api *ruleapi.API) []ruleapi.Decision {
	if ctx.HookEvent != ruleapi.EventStop {
		return nil
	}
	var decisions []ruleapi.Decision
	for _, skill := range api.GetActiveSkills(ctx.SessionID) {
		decisions = append(decisions, ruleapi.Decision{
			SkillID: skill.ID,
			Reason:  "session stop",
		})
	}
	return decisions
}
