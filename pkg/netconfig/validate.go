// SPDX-FileCopyrightText: Copyright 2025 Fulcrum Authors
// SPDX-License-Identifier: Apache-2.0

package netconfig

import (
	"fmt"
	"sort"
	"strings"
)

// ValidationResult accumulates every validation failure; callers get the
// full list, not just the first.
type ValidationResult struct {
	Errors []string `json:"errors"`
}

// OK reports whether the profile passed validation.
func (r ValidationResult) OK() bool {
	return len(r.Errors) == 0
}

// String joins the accumulated errors for log and response messages.
func (r ValidationResult) String() string {
	return strings.Join(r.Errors, "; ")
}

// Validate checks a profile for activation. All errors are accumulated.
func Validate(p *NetworkProfile) ValidationResult {
	var res ValidationResult
	if p == nil {
		res.Errors = append(res.Errors, "profile is nil")
		return res
	}
	if strings.TrimSpace(p.ProfileID) == "" {
		res.Errors = append(res.Errors, "profileId is blank")
	}
	if strings.TrimSpace(p.Tag) == "" {
		res.Errors = append(res.Errors, "tag is blank")
	}
	if strings.TrimSpace(p.Scoreboard.Title) == "" {
		res.Errors = append(res.Errors, "scoreboard.title is blank")
	}
	if strings.TrimSpace(p.Scoreboard.Footer) == "" {
		res.Errors = append(res.Errors, "scoreboard.footer is blank")
	}

	// Deterministic rank order so repeated validations report identically.
	rankIDs := make([]string, 0, len(p.Ranks))
	for id := range p.Ranks {
		rankIDs = append(rankIDs, id)
	}
	sort.Strings(rankIDs)
	for _, id := range rankIDs {
		v := p.Ranks[id]
		if v == nil {
			res.Errors = append(res.Errors, fmt.Sprintf("rank %q has no visual record", id))
			continue
		}
		if strings.TrimSpace(v.DisplayName) == "" {
			res.Errors = append(res.Errors, fmt.Sprintf("rank %q has a blank displayName", id))
		}
	}
	return res
}
