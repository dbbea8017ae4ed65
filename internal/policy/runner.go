package policy

import (
	"context"
	"fmt"
	"strings"

	"impressionism/internal/config"
	"impressionism/internal/embedding"
	"impressionism/internal/logging"
	"impressionism/internal/policy/ruleapi"
	"impressionism/internal/store"
)

// Runner resolves the active ruleset, drives the VM, and applies the
// returned decisions to the session's active-skill set.
type Runner struct {
	store  *store.Store
	engine embedding.Engine
	cfg    *config.Config
	vm     *VM

	// RulesetOverride replaces cfg.ActiveRuleset for this invocation.
	RulesetOverride string
}

// NewRunner builds a Runner.
func NewRunner(st *store.Store, engine embedding.Engine, cfg *config.Config, rulesDir string) *Runner {
	return &Runner{store: st, engine: engine, cfg: cfg, vm: NewVM(rulesDir)}
}

func (r *Runner) ruleset() string {
	if r.RulesetOverride != "" {
		return r.RulesetOverride
	}
	if r.cfg.ActiveRuleset != "" {
		return r.cfg.ActiveRuleset
	}
	return "builtin/default"
}

// Run evaluates the policy for one hook event and returns the rendered
// context hint for the host. A *PolicyError leaves the active set
// untouched and yields an empty hint; the caller still responds to the
// host.
func (r *Runner) Run(ctx context.Context, ectx ruleapi.Context, deactivateOnly bool) (string, error) {
	log := logging.Get(logging.CategoryPolicy)
	ruleset := r.ruleset()

	session, err := r.store.GetOrCreateSession(ectx.SessionID, ectx.WorkspacePath)
	if err != nil {
		return "", err
	}
	api := bindAPI(ctx, r.store, r.engine, r.cfg, ruleset, session)

	// Both entry points are evaluated before any decision is applied, so a
	// failure in either leaves the active set as it was.
	var activations []ruleapi.Decision
	if !deactivateOnly {
		activations, err = r.vm.Evaluate(ctx, ruleset, EntryActivation, ectx, api)
		if err != nil {
			return "", err
		}
	}
	deactivations, err := r.vm.Evaluate(ctx, ruleset, EntryDeactivation, ectx, api)
	if err != nil {
		return "", err
	}

	activated, err := r.applyActivations(ectx.SessionID, activations)
	if err != nil {
		return "", err
	}
	if err := r.applyDeactivations(ectx, deactivations); err != nil {
		return "", err
	}

	active, err := r.store.ActiveSkills(ectx.SessionID)
	if err != nil {
		return "", err
	}
	if len(active) == 0 && activated == 0 {
		return "", nil
	}
	log.Debugf("session %s: %d active skills after %s", ectx.SessionID, len(active), ectx.HookEvent)
	return renderHint(active), nil
}

// applyActivations adds SessionSkill rows for decisions that resolve to
// known skills. Unknown ids are dropped with a warning; re-activation is
// a no-op.
func (r *Runner) applyActivations(sessionID string, decisions []ruleapi.Decision) (int, error) {
	log := logging.Get(logging.CategoryPolicy)
	applied := 0
	for _, d := range decisions {
		if d.SkillID == "" {
			continue
		}
		if _, err := r.store.GetSkill(d.SkillID); err != nil {
			log.Warnf("activation of unknown skill %q dropped", d.SkillID)
			continue
		}
		reason := d.Reason
		if reason == "" {
			reason = "ruleset decision"
		}
		if err := r.store.SetActive(sessionID, d.SkillID, reason); err != nil {
			return applied, err
		}
		applied++
	}
	return applied, nil
}

// applyDeactivations removes SessionSkill rows. Sticky skills are only
// eligible on stop; elsewhere the decision is suppressed with a notice.
func (r *Runner) applyDeactivations(ectx ruleapi.Context, decisions []ruleapi.Decision) error {
	log := logging.Get(logging.CategoryPolicy)
	if len(decisions) == 0 {
		return nil
	}

	active, err := r.store.ActiveSkills(ectx.SessionID)
	if err != nil {
		return err
	}
	byID := make(map[string]store.Skill, len(active))
	for _, skill := range active {
		byID[skill.ID] = skill
	}

	for _, d := range decisions {
		skill, ok := byID[d.SkillID]
		if !ok {
			continue
		}
		if skill.Sticky && ectx.HookEvent != ruleapi.EventStop {
			log.Infof("sticky skill %s kept active despite deactivation decision", skill.Name)
			continue
		}
		if err := r.store.SetInactive(ectx.SessionID, d.SkillID); err != nil {
			return err
		}
	}
	return nil
}

// renderHint formats the active set as the context block surfaced to the
// host assistant.
func renderHint(active []store.Skill) string {
	var b strings.Builder
	b.WriteString("Relevant skills for this session:\n")
	for _, skill := range active {
		fmt.Fprintf(&b, "- /%s — %s\n", skill.Name, skill.Description)
	}
	return b.String()
}
