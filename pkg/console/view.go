// SPDX-FileCopyrightText: Copyright 2025 Fulcrum Authors
// SPDX-License-Identifier: Apache-2.0

// Package console renders the operator's paged registry tables. It is a
// pure reader: everything it shows comes from registry snapshots.
package console

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/haroldDOTsh/fulcrum/pkg/registry"
)

// PageSize is the number of rows per console page.
const PageSize = 10

// statusRank orders table rows: active entries first, dead last.
var statusRank = map[registry.Status]int{
	registry.StatusAvailable:   0,
	registry.StatusEvacuating:  1,
	registry.StatusUnavailable: 2,
	registry.StatusDead:        3,
}

// sortKey orders by status group, then numeric ID suffix.
func sortKey(status registry.Status, id string) (int, int) {
	rank := statusRank[status]
	n := 0
	if i := strings.LastIndex(id, "-"); i >= 0 {
		n, _ = strconv.Atoi(id[i+1:])
	}
	return rank, n
}

func newTable(w io.Writer, headers []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.Options(
		tablewriter.WithHeader(headers),
		tablewriter.WithRendition(
			tw.Rendition{
				Borders: tw.Border{
					Left:   tw.State(1),
					Top:    tw.State(1),
					Right:  tw.State(1),
					Bottom: tw.State(1),
				},
			},
		),
		tablewriter.WithAlignment(tw.MakeAlign(len(headers), tw.AlignLeft)),
	)
	return table
}

// page slices one page out of the sorted rows. Pages are 1-based; an
// out-of-range page number is clamped, and the clamped number is returned
// with the page count.
func page[T any](rows []T, pageNum int) ([]T, int, int) {
	totalPages := (len(rows) + PageSize - 1) / PageSize
	if totalPages == 0 {
		totalPages = 1
	}
	if pageNum < 1 {
		pageNum = 1
	}
	if pageNum > totalPages {
		pageNum = totalPages
	}
	start := (pageNum - 1) * PageSize
	end := start + PageSize
	if end > len(rows) {
		end = len(rows)
	}
	return rows[start:end], pageNum, totalPages
}

func heartbeatAge(now, last time.Time) string {
	age := now.Sub(last)
	if age < 0 {
		age = 0
	}
	return age.Truncate(time.Second).String() + " ago"
}

func footer(w io.Writer, counts map[registry.Status]int, pageNum, totalPages int) {
	total := 0
	for _, c := range counts {
		total += c
	}
	fmt.Fprintf(w, "%d entries (%d available, %d evacuating, %d unavailable, %d dead), page %d/%d\n",
		total,
		counts[registry.StatusAvailable],
		counts[registry.StatusEvacuating],
		counts[registry.StatusUnavailable],
		counts[registry.StatusDead],
		pageNum, totalPages)
	fmt.Fprintln(w, "dead/stalled entries shown for 60s after their hard timeout")
}

// RenderProxies writes one page of the proxy registry table.
func RenderProxies(w io.Writer, entries []registry.ProxyEntry, pageNum int, now time.Time) error {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No proxies registered.")
		return nil
	}

	sorted := append([]registry.ProxyEntry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool {
		ri, ni := sortKey(sorted[i].Status, sorted[i].ID)
		rj, nj := sortKey(sorted[j].Status, sorted[j].ID)
		if ri != rj {
			return ri < rj
		}
		return ni < nj
	})
	rows, pageNum, totalPages := page(sorted, pageNum)

	table := newTable(w, []string{"ID", "Address", "Port", "Last Heartbeat", "Status"})
	counts := make(map[registry.Status]int)
	for _, e := range sorted {
		counts[e.Status]++
	}
	for _, e := range rows {
		if err := table.Append([]string{
			e.ID,
			e.Address,
			strconv.Itoa(e.Port),
			heartbeatAge(now, e.LastHeartbeat),
			e.Status.String(),
		}); err != nil {
			return fmt.Errorf("failed to append row: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}
	footer(w, counts, pageNum, totalPages)
	return nil
}

// RenderBackends writes one page of the backend registry table.
func RenderBackends(w io.Writer, entries []registry.BackendEntry, pageNum int, now time.Time) error {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No backends registered.")
		return nil
	}

	sorted := append([]registry.BackendEntry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool {
		ri, ni := sortKey(sorted[i].Status, sorted[i].ID)
		rj, nj := sortKey(sorted[j].Status, sorted[j].ID)
		if ri != rj {
			return ri < rj
		}
		return ni < nj
	})
	rows, pageNum, totalPages := page(sorted, pageNum)

	table := newTable(w, []string{"ID", "Type", "Role", "Address", "Port", "Players", "TPS", "Last Heartbeat", "Status"})
	counts := make(map[registry.Status]int)
	for _, e := range sorted {
		counts[e.Status]++
	}
	for _, e := range rows {
		if err := table.Append([]string{
			e.ID,
			string(e.Type),
			e.Role,
			e.Address,
			strconv.Itoa(e.Port),
			fmt.Sprintf("%d/%d (%d)", e.Players, e.SoftCap, e.HardCap),
			fmt.Sprintf("%.1f", e.TPS),
			heartbeatAge(now, e.LastHeartbeat),
			e.Status.String(),
		}); err != nil {
			return fmt.Errorf("failed to append row: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}
	footer(w, counts, pageNum, totalPages)
	return nil
}

// RenderProfiles writes the network-profile catalog table.
func RenderProfiles(w io.Writer, summaries []SummaryRow) error {
	if len(summaries) == 0 {
		fmt.Fprintln(w, "No network profiles found.")
		return nil
	}
	table := newTable(w, []string{"Profile", "Tag", "Updated", "Active"})
	for _, s := range summaries {
		active := ""
		if s.Active {
			active = "*"
		}
		if err := table.Append([]string{s.ProfileID, s.Tag, s.UpdatedAt, active}); err != nil {
			return fmt.Errorf("failed to append row: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}
	return nil
}

// SummaryRow is the pre-formatted profile listing row.
type SummaryRow struct {
	ProfileID string
	Tag       string
	UpdatedAt string
	Active    bool
}

// ProfileRow builds a profile listing row.
func ProfileRow(profileID, tag string, updatedAt time.Time, active bool) SummaryRow {
	return SummaryRow{
		ProfileID: profileID,
		Tag:       tag,
		UpdatedAt: updatedAt.Format(time.RFC3339),
		Active:    active,
	}
}
