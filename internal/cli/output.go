package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mcoot/matchsync/internal/api/response"
	"github.com/mcoot/matchsync/internal/model"
	"github.com/mcoot/matchsync/internal/replica"
	"github.com/mcoot/matchsync/internal/services/roster"
	"github.com/mcoot/matchsync/internal/services/scoring"
	"github.com/mcoot/matchsync/internal/services/timer"
)

// Output handles formatting output based on the configured format
type Output struct {
	format string
	w      io.Writer
}

// NewOutput creates a new Output formatter writing to w
func NewOutput(format string, w io.Writer) *Output {
	return &Output{format: format, w: w}
}

// Print outputs data in the configured format
func (o *Output) Print(data any) {
	if o.format == "json" {
		o.printJSON(data)
	} else {
		o.printText(data)
	}
}

// PrintError outputs an error
func (o *Output) PrintError(err error) {
	if o.format == "json" {
		errData := map[string]any{
			"error": map[string]string{
				"message": err.Error(),
			},
		}
		data, _ := json.Marshal(errData)
		fmt.Fprintln(os.Stderr, string(data))
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	}
}

// PrintMessage outputs a simple message
func (o *Output) PrintMessage(msg string) {
	if o.format == "json" {
		data, _ := json.Marshal(map[string]string{"message": msg})
		fmt.Fprintln(o.w, string(data))
	} else {
		fmt.Fprintln(o.w, msg)
	}
}

func (o *Output) printJSON(data any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func (o *Output) printText(data any) {
	switch v := data.(type) {
	case model.Participant:
		o.printParticipant(v)
	case response.AuthResponse:
		o.printParticipant(v.Participant)
		o.printf("Token: %s\n", v.SessionToken)
	case response.Match:
		o.printMatch(v)
	case response.MatchState:
		o.printMatchState(v)
	case model.MatchPlayer:
		o.printPlayer(&v)
	case model.Unit:
		o.printUnit(&v, "")
	case response.Units:
		o.printUnits(v.Units, "")
	case roster.KOResult:
		o.printKOResult(v)
	case roster.ImportResult:
		o.printf("Imported %s (%d units)\n", v.TeamName, len(v.Units))
		o.printUnits(v.Units, "  ")
	case scoring.RepairReport:
		o.printRepair(v)
	case timer.Status:
		o.printf("Clock: %s (%s)\n", formatClock(v.EffectiveSeconds), v.Timer.State)
	case replica.View:
		o.printView(v)
	case response.Health:
		o.printf("Status: %s\n", v.Status)
	default:
		// Fallback to JSON for unknown types
		o.printJSON(data)
	}
}

func (o *Output) printf(format string, args ...any) {
	fmt.Fprintf(o.w, format, args...)
}

func (o *Output) printParticipant(p model.Participant) {
	o.printf("Participant: %s (%s)\n", p.DisplayName, p.ID)
}

func (o *Output) printMatch(m response.Match) {
	visibility := "public"
	if !m.IsPublic {
		visibility = "private"
	}
	o.printf("Match: %s (%s)\n", m.Name, m.ID)
	o.printf("Status: %s, %s\n", m.Status, visibility)
	o.printf("Host: %s\n", m.HostID)
	o.printf("Clock: %s (%s)\n", formatClock(m.RemainingSeconds), m.Timer.State)
}

func (o *Output) printMatchState(s response.MatchState) {
	o.printMatch(s.Match)
	if s.Role == model.RolePlayer {
		o.printf("You: player in slot %d\n", s.Slot)
	} else {
		o.printf("You: %s\n", s.Role)
	}
	snap := &model.Snapshot{Match: s.Match.Match, Players: s.Players, Units: s.Units, Spectators: s.Spectators}
	for _, slot := range model.Slots {
		o.printf("\n")
		o.printSlot(slot, snap.Player(slot), snap.SlotUnits(slot))
	}
	o.printSpectators(s.Spectators)
}

func (o *Output) printView(v replica.View) {
	if v.Deleted || v.Match == nil {
		o.printf("Match deleted\n")
		return
	}
	o.printf("\n== %s [%s] clock %s (%s) ==\n", v.Match.Name, v.Match.Status, formatClock(v.RemainingSeconds), v.Match.Timer.State)
	for _, sv := range v.Slots {
		o.printSlot(sv.Slot, sv.Player, sv.Units)
	}
	o.printSpectators(v.Spectators)
}

func (o *Output) printSlot(slot model.Slot, p *model.MatchPlayer, units []*model.Unit) {
	switch {
	case p == nil:
		o.printf("Slot %d: open\n", slot)
	case !p.Seated():
		o.printf("Slot %d: vacated (VP %d, roster %d pts)\n", slot, p.VictoryPoints, p.TotalPoints)
	default:
		o.printf("Slot %d: %s (VP %d, roster %d pts)\n", slot, p.PlayerName, p.VictoryPoints, p.TotalPoints)
	}
	o.printUnits(units, "  ")
}

func (o *Output) printPlayer(p *model.MatchPlayer) {
	o.printf("Slot %d: %s\n", p.Slot, p.PlayerName)
	o.printf("Victory points: %d\n", p.VictoryPoints)
	o.printf("Roster points: %d\n", p.TotalPoints)
}

// printUnits lists carriers with their attachments indented beneath them
func (o *Output) printUnits(units []*model.Unit, indent string) {
	graph := model.BuildAttachmentGraph(units)
	for _, u := range units {
		if u.IsAttached() && graph.Unit(*u.AttachedTo) != nil {
			continue
		}
		o.printUnit(u, indent)
		for _, child := range graph.Children(u.ID) {
			o.printUnit(graph.Unit(child), indent+"    ")
		}
	}
}

func (o *Output) printUnit(u *model.Unit, indent string) {
	var flags []string
	if u.IsKO {
		flags = append(flags, "KO")
	}
	if u.IsSideline {
		flags = append(flags, "sideline")
	}
	if u.IsAttached() {
		flags = append(flags, strings.ToLower(u.AttachmentKind)+" on "+string(*u.AttachedTo))
	}
	suffix := ""
	if len(flags) > 0 {
		suffix = " [" + strings.Join(flags, ", ") + "]"
	}
	o.printf("%s- %s (%d pts) %s%s\n", indent, u.Name, u.Points, u.ID, suffix)
}

func (o *Output) printSpectators(spectators []*model.Spectator) {
	if len(spectators) == 0 {
		return
	}
	ids := make([]string, 0, len(spectators))
	for _, sp := range spectators {
		ids = append(ids, string(sp.ParticipantID))
	}
	o.printf("Spectators: %s\n", strings.Join(ids, ", "))
}

func (o *Output) printKOResult(r roster.KOResult) {
	state := "revived"
	if r.Unit.IsKO {
		state = "knocked out"
	}
	if !r.Changed {
		o.printf("%s already %s\n", r.Unit.Name, state)
		return
	}
	o.printf("%s %s\n", r.Unit.Name, state)
	for _, u := range r.Detached {
		o.printf("  %s detached\n", u.Name)
	}
	if r.Ledger != nil {
		o.printf("Slot %d victory points: %d\n", r.Ledger.Slot, r.Ledger.VictoryPoints)
	}
}

func (o *Output) printRepair(r scoring.RepairReport) {
	if len(r.Corrections) == 0 {
		o.printf("Ledgers consistent\n")
		return
	}
	for _, c := range r.Corrections {
		o.printf("Slot %d %s: %d -> %d\n", c.Slot, c.Field, c.Was, c.Now)
	}
}
