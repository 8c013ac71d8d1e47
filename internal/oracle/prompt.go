package oracle

import (
	"fmt"
	"strings"
	"time"

	"github.com/raphaelgruber/pulse/internal/actions"
	"github.com/raphaelgruber/pulse/internal/models"
)

const decisionSystemPrompt = `You are the deliberative core of an autonomous assistant that lives between user sessions. Each heartbeat you receive a snapshot of your situation and decide what to do with a limited energy budget.

Respond with a single JSON object, nothing else:
{"reasoning": "one short paragraph", "actions": [{"kind": "...", "params": {...}}], "goal_changes": [{"goal_id": "...", "change": "...", "reason": "..."}]}

Rules:
- List actions in priority order; if the budget runs short, later actions are cut first.
- The total cost of your actions should fit the available energy.
- Only use action kinds from the catalog below.
- goal_changes may move a goal one step along backburner <-> queued <-> active, or close it out as completed or abandoned (abandoning requires a reason).
- Doing little or nothing is a legitimate choice; rest when nothing needs doing.`

// catalogTable renders the action catalog for the prompt. The oracle sees
// exactly the costs the gate will charge.
func catalogTable() string {
	var b strings.Builder
	b.WriteString("Action catalog (kind, cost, purpose):\n")
	for _, spec := range actions.Specs() {
		fmt.Fprintf(&b, "- %s (%g): %s\n", spec.Kind, spec.Cost, actionPurpose(spec.Kind))
	}
	return b.String()
}

func actionPurpose(kind actions.Kind) string {
	switch kind {
	case actions.KindRest:
		return "do nothing this cycle"
	case actions.KindObserve:
		return "take in the situation without acting"
	case actions.KindRemember:
		return "persist a note (params: content)"
	case actions.KindConnect:
		return "link two known concepts (params: from, to, rel_type)"
	case actions.KindReprioritize:
		return "apply goal changes deterministically (params: changes)"
	case actions.KindReflect:
		return "write a short reflection on recent experience (params: topic)"
	case actions.KindRecalibrate:
		return "rewrite the identity summary against recent experience"
	case actions.KindInquireShallow:
		return "quick memory search (params: query)"
	case actions.KindBrainstorm:
		return "propose new candidate goals (params: theme)"
	case actions.KindSynthesize:
		return "derive an insight from memories and store it (params: query)"
	case actions.KindReachOutUser:
		return "queue a message to the user (params: message, channel)"
	case actions.KindInquireDeep:
		return "thorough search plus graph traversal (params: query, entity)"
	}
	return ""
}

// renderContext lays the bundle out as the oracle's user prompt.
func renderContext(bundle ContextBundle) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Cycle %d. Energy available: %.1f of %.1f.\n\n", bundle.CycleNumber, bundle.AvailableEnergy, bundle.MaxEnergy)

	env := bundle.Environment
	fmt.Fprintf(&b, "Situation at %s:\n", env.Timestamp.Format(time.RFC3339))
	if env.SessionActive {
		b.WriteString("- a user session is active right now\n")
	}
	if env.LastUserContact != nil {
		fmt.Fprintf(&b, "- last user contact %s ago\n", durationPhrase(env.Timestamp.Sub(*env.LastUserContact)))
	} else {
		b.WriteString("- no user contact on record\n")
	}
	if len(env.PendingEvents) > 0 {
		fmt.Fprintf(&b, "- %d pending events:", len(env.PendingEvents))
		for _, ev := range env.PendingEvents {
			fmt.Fprintf(&b, " %s", ev.Kind)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if bundle.IdentitySummary != "" {
		fmt.Fprintf(&b, "Who you are:\n%s\n\n", bundle.IdentitySummary)
	}

	renderGoals(&b, bundle)

	if len(bundle.RecentEpisodes) > 0 {
		b.WriteString("Recent memories:\n")
		for _, ep := range bundle.RecentEpisodes {
			text := ep.Content
			if ep.Summary != nil && *ep.Summary != "" {
				text = *ep.Summary
			}
			fmt.Fprintf(&b, "- %s\n", clip(text, 300))
		}
		b.WriteString("\n")
	}

	if len(bundle.ActiveEntities) > 0 {
		fmt.Fprintf(&b, "Topics currently on your mind: %s\n\n", strings.Join(bundle.ActiveEntities, ", "))
	}

	b.WriteString(catalogTable())
	b.WriteString("\nYour decision (JSON only):")
	return b.String()
}

func renderGoals(b *strings.Builder, bundle ContextBundle) {
	review := bundle.Review
	if review != nil {
		fmt.Fprintf(b, "Goal backlog: %d active, %d queued, %d backburner.\n",
			review.Counts[models.PriorityActive],
			review.Counts[models.PriorityQueued],
			review.Counts[models.PriorityBackburner])
	}

	if len(bundle.ActiveGoals) > 0 {
		b.WriteString("Active goals:\n")
		for _, g := range bundle.ActiveGoals {
			fmt.Fprintf(b, "- [%s] %s", models.MustRecordIDString(g.ID), g.Title)
			if len(g.Progress) > 0 {
				fmt.Fprintf(b, " (last progress: %s)", clip(g.Progress[len(g.Progress)-1].Text, 120))
			}
			b.WriteString("\n")
		}
	}

	if review != nil {
		for _, flag := range review.Flags {
			fmt.Fprintf(b, "Flag: %s on [%s] %s", flag.Kind, flag.GoalID, flag.Title)
			if flag.Detail != "" {
				fmt.Fprintf(b, " (%s)", flag.Detail)
			}
			b.WriteString("\n")
		}
		for _, s := range review.Suggestions {
			fmt.Fprintf(b, "Suggestion: %s\n", s)
		}
	}
	b.WriteString("\n")
}

func durationPhrase(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "moments"
	case d < time.Hour:
		return fmt.Sprintf("%d minutes", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%d hours", int(d.Hours()))
	default:
		return fmt.Sprintf("%d days", int(d.Hours()/24))
	}
}

func clip(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
