package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"flowops/internal/api"
	"flowops/internal/release"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

type tableSpec struct {
	title   string
	headers []string
	aligns  []columnAlignment
	rows    [][]string
}

func (s tableSpec) render() string {
	columns := len(s.headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	if s.title != "" {
		tw.SetTitle(s.title)
	}

	header := make(table.Row, columns)
	for i, h := range s.headers {
		header[i] = h
	}
	tw.AppendHeader(header)

	for _, row := range s.rows {
		r := make(table.Row, columns)
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		align := text.AlignLeft
		if i < len(s.aligns) && s.aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

func releaseListTable(rels []api.Release) string {
	spec := tableSpec{
		headers: []string{"ID", "Title", "Tasks", "Done", "Completed", "Updated"},
		aligns:  []columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft},
	}
	for _, rel := range rels {
		done := 0
		for _, task := range rel.Tasks {
			if task.Status == string(release.StatusCompleted) {
				done++
			}
		}
		spec.rows = append(spec.rows, []string{
			rel.ID,
			rel.Title,
			itoa(len(rel.Tasks)),
			itoa(done),
			yesNo(rel.Completed),
			displayTime(rel.UpdatedAt),
		})
	}
	return spec.render()
}

func releaseTaskTable(rel api.Release) string {
	spec := tableSpec{
		title:   rel.Title + " (" + rel.ID + ")",
		headers: []string{"#", "Task", "Title", "Status", "Developer", "Started", "Completed"},
		aligns:  []columnAlignment{alignRight},
	}
	for _, task := range rel.Tasks {
		spec.rows = append(spec.rows, []string{
			itoa(task.OrderIndex),
			task.ID,
			task.Title,
			statusLabel(task.Status),
			dash(task.DeveloperID),
			displayTime(task.StartedAt),
			displayTime(task.CompletedAt),
		})
	}
	return spec.render()
}
