package diagnosis

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/emhr/emhr/internal/platform/apperr"
	"github.com/emhr/emhr/pkg/civil"
)

// NormalizeCode upper-cases and trims an ICD-10 code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Change pairs an existing row with the entry that should be written to it.
type Change struct {
	Row   *Diagnosis
	Entry Entry
}

// Plan is the set of writes that brings a client's problem list in line
// with a signed diagnosis note.
type Plan struct {
	Add        []Entry
	Update     []Change
	Reactivate []Change
	Retire     []*Diagnosis
	Unchanged  []string
}

// Empty reports whether applying the plan would write nothing.
func (p *Plan) Empty() bool {
	return len(p.Add) == 0 && len(p.Update) == 0 && len(p.Reactivate) == 0 && len(p.Retire) == 0
}

// Result summarizes the plan by code.
func (p *Plan) Result() *SyncResult {
	r := &SyncResult{
		Added:       []string{},
		Updated:     []string{},
		Reactivated: []string{},
		Retired:     []string{},
		Unchanged:   append([]string{}, p.Unchanged...),
	}
	for _, e := range p.Add {
		r.Added = append(r.Added, e.Code)
	}
	for _, c := range p.Update {
		r.Updated = append(r.Updated, c.Entry.Code)
	}
	for _, c := range p.Reactivate {
		r.Reactivated = append(r.Reactivated, c.Entry.Code)
	}
	for _, d := range p.Retire {
		r.Retired = append(r.Retired, d.Code)
	}
	return r
}

// dedupe normalizes codes, drops empty ones and collapses duplicates. The
// first entry for a code wins, except that a later is_primary marks it
// primary.
func dedupe(incoming []Entry) []Entry {
	var out []Entry
	index := make(map[string]int)
	for _, e := range incoming {
		e.Code = NormalizeCode(e.Code)
		if e.Code == "" {
			continue
		}
		e.Description = strings.TrimSpace(e.Description)
		if i, ok := index[e.Code]; ok {
			out[i].IsPrimary = out[i].IsPrimary || e.IsPrimary
			if out[i].Description == "" {
				out[i].Description = e.Description
			}
			if out[i].OnsetDate == nil {
				out[i].OnsetDate = e.OnsetDate
			}
			continue
		}
		index[e.Code] = len(out)
		out = append(out, e)
	}
	return out
}

func sameDate(a, b *civil.Date) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(b.Time)
}

// differs reports whether writing e (from noteID) to row would change it.
func differs(row *Diagnosis, e Entry, noteID int64) bool {
	desc := ""
	if row.Description != nil {
		desc = *row.Description
	}
	if e.Description != "" && e.Description != desc {
		return true
	}
	if row.IsPrimary != e.IsPrimary {
		return true
	}
	if e.OnsetDate != nil && !sameDate(row.OnsetDate, e.OnsetDate) {
		return true
	}
	return row.SourceNoteID == nil || *row.SourceNoteID != noteID
}

// BuildPlan diffs the note's entries against every row the client has,
// active or resolved. It does not modify its inputs, and a plan built
// against the state produced by applying it is empty.
func BuildPlan(incoming []Entry, existing []*Diagnosis, noteID int64) *Plan {
	active := make(map[string]*Diagnosis)
	resolved := make(map[string]*Diagnosis)
	for _, d := range existing {
		code := NormalizeCode(d.Code)
		switch d.Status {
		case StatusActive:
			active[code] = d
		case StatusResolved:
			// Reactivate the most recent resolved row.
			if prev, ok := resolved[code]; !ok || d.ID > prev.ID {
				resolved[code] = d
			}
		}
	}

	plan := &Plan{}
	seen := make(map[string]bool)
	for _, e := range dedupe(incoming) {
		seen[e.Code] = true
		if row, ok := active[e.Code]; ok {
			if differs(row, e, noteID) {
				plan.Update = append(plan.Update, Change{Row: row, Entry: e})
			} else {
				plan.Unchanged = append(plan.Unchanged, e.Code)
			}
			continue
		}
		if row, ok := resolved[e.Code]; ok {
			plan.Reactivate = append(plan.Reactivate, Change{Row: row, Entry: e})
			continue
		}
		plan.Add = append(plan.Add, e)
	}

	for code, row := range active {
		if !seen[code] {
			plan.Retire = append(plan.Retire, row)
		}
	}
	sort.Slice(plan.Retire, func(i, j int) bool { return plan.Retire[i].Code < plan.Retire[j].Code })
	return plan
}

type noteContent struct {
	Diagnoses []Entry `json:"diagnoses"`
}

// EntriesFromContent reads the diagnoses list out of a note's JSON content.
// Missing content or a missing key yield no entries.
func EntriesFromContent(content json.RawMessage) ([]Entry, error) {
	if len(content) == 0 || string(content) == "null" {
		return nil, nil
	}
	var c noteContent
	if err := json.Unmarshal(content, &c); err != nil {
		return nil, apperr.Invalid("note content diagnoses are malformed: %v", err)
	}
	return c.Diagnoses, nil
}
