package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"gopkg.in/yaml.v3"

	"github.com/noah-isme/vial-compliance-api/internal/dto"
	"github.com/noah-isme/vial-compliance-api/internal/service"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

// render writes value as JSON or YAML, or hands the writer to table for the
// human readable form.
func render(w io.Writer, format string, value interface{}, tableFn func(table.Writer)) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(value)
	case formatYAML:
		// Round trip through JSON so custom marshalers (dates) and json tags apply.
		raw, err := json.Marshal(value)
		if err != nil {
			return err
		}
		var generic interface{}
		if err := json.Unmarshal(raw, &generic); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(generic); err != nil {
			return err
		}
		return enc.Close()
	case formatTable, "":
		tw := table.NewWriter()
		tw.SetOutputMirror(w)
		tw.SetStyle(table.StyleLight)
		tableFn(tw)
		tw.Render()
		return nil
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func reportTable(report *dto.ComplianceReport) func(table.Writer) {
	return func(tw table.Writer) {
		tw.SetTitle(fmt.Sprintf("Compliance as of %s (horizon %d days)", report.AsOf, report.HorizonDays))
		tw.AppendHeader(table.Row{"Enrollment", "Person", "DNI", "Course", "Status", "Expires", "Days", "Expired"})
		for _, item := range report.Items {
			expired := "no"
			if item.IsExpired {
				expired = "yes"
			}
			tw.AppendRow(table.Row{item.EnrollmentID, item.PersonName, item.PersonDNI, item.CourseName,
				item.Status, item.ExpirationDate, item.DaysUntilExpiration, expired})
		}
		tw.AppendFooter(table.Row{"", "", "", "", "", "Total", len(report.Items), ""})
	}
}

func enrollmentTable(view *dto.EnrollmentView) func(table.Writer) {
	return func(tw table.Writer) {
		tw.AppendHeader(table.Row{"Field", "Value"})
		tw.AppendRows([]table.Row{
			{"ID", view.ID},
			{"Person", fmt.Sprintf("%s (%s)", view.PersonName, view.PersonDNI)},
			{"Course", view.CourseName},
			{"Enrolled", view.EnrollmentDate},
			{"Deadline", view.DeadlineDate},
			{"Expires", view.ExpirationDate},
			{"Stored status", view.Status},
			{"Effective status", view.EffectiveStatus},
			{"Version", view.Version},
		})
	}
}

func sweepTable(result service.SweepResult) func(table.Writer) {
	return func(tw table.Writer) {
		tw.AppendHeader(table.Row{"Scanned", "Updated", "Conflicts", "Failed"})
		tw.AppendRow(table.Row{result.Scanned, result.Updated, result.Conflicts, result.Failed})
	}
}
