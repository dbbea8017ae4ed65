package main

import "impressionism/ruleapi"

// Minimal ruleset: never activates anything; clears the active set on
// stop. Useful as a starting point for custom rulesets.

func EvaluateActivation(ctx ruleapi.Context, api *ruleapi.API) []ruleapi.Decision {
	return nil
}

func EvaluateDeactivation(ctx ruleapi.Context, api *ruleapi.API) []ruleapi.Decision {
	if ctx.HookEvent != ruleapi.EventStop {
		return nil
	}
	var decisions []ruleapi.Decision
	for _, skill := range api.GetActiveSkills(ctx.SessionID) {
		decisions = append(decisions, ruleapi.Decision{SkillID: skill.ID, Reason: "session stop"})
	}
	return decisions
}
