package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/tphummel/rackline/internal/apiclient"
	"github.com/tphummel/rackline/internal/models"
)

var stdout io.Writer = os.Stdout

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func ptrOrDash(s *string) string {
	if s == nil {
		return "-"
	}
	return orDash(*s)
}

func printServers(w io.Writer, servers []models.Server) {
	if len(servers) == 0 {
		fmt.Fprintln(w, "No servers found")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSERIAL\tAPK SERIAL\tSTATUS\tHOSTNAME\tIP")
	for _, s := range servers {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			s.ID, orDash(s.SerialNumber), orDash(s.APKSerialNumber), s.Status, orDash(s.Hostname), orDash(s.IPAddress))
	}
	tw.Flush()
}

func printServer(w io.Writer, s *models.Server) {
	fmt.Fprintf(w, "ID:           %s\n", s.ID)
	fmt.Fprintf(w, "Serial:       %s\n", orDash(s.SerialNumber))
	fmt.Fprintf(w, "APK serial:   %s\n", orDash(s.APKSerialNumber))
	fmt.Fprintf(w, "Status:       %s (since %s)\n", s.Status, s.StatusChangedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "Hostname:     %s\n", orDash(s.Hostname))
	fmt.Fprintf(w, "IP / MAC:     %s / %s\n", orDash(s.IPAddress), orDash(s.MACAddress))
	fmt.Fprintf(w, "Batch:        %s\n", ptrOrDash(s.BatchID))
	fmt.Fprintf(w, "Notes:        %s\n", orDash(s.Notes))
}

func printChecklist(w io.Writer, c *apiclient.Checklist) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DONE\tTEMPLATE\tGROUP\tTITLE\tFILES")
	for _, it := range c.Items {
		mark := " "
		if it.Completed {
			mark = "x"
		}
		var group, title string
		if it.Template != nil {
			group, title = string(it.Template.GroupCode), it.Template.Title
		}
		fmt.Fprintf(tw, "[%s]\t%s\t%s\t%s\t%d\n", mark, it.TemplateID, orDash(group), orDash(title), len(it.Files))
	}
	tw.Flush()
	fmt.Fprintf(w, "%d/%d done (%d%%), ready: %v\n", c.Stats.Completed, c.Stats.Total, c.Stats.Progress, c.Stats.Ready)
}

func printRacks(w io.Writer, racks []models.Rack) {
	if len(racks) == 0 {
		fmt.Fprintln(w, "No racks found")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tLOCATION\tUNITS\tSTATUS")
	for _, r := range racks {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", r.ID, r.Name, orDash(r.Location), r.TotalUnits, r.Status)
	}
	tw.Flush()
}

func printUnits(w io.Writer, units []models.RackUnit) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "UNIT\tSTATE\tSERVER\tHOSTNAME")
	for _, u := range units {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", u.UnitNumber, u.State, ptrOrDash(u.ServerID), orDash(u.Hostname))
	}
	tw.Flush()
}

func printUnit(w io.Writer, u *models.RackUnit) {
	fmt.Fprintf(w, "%s unit %d: %s (server %s)\n", u.RackID, u.UnitNumber, u.State, ptrOrDash(u.ServerID))
}

func printBatchResult(w io.Writer, res *apiclient.BatchResult) {
	fmt.Fprintf(w, "Added: %d\n", len(res.Added))
	for _, id := range res.Added {
		fmt.Fprintf(w, "  + %s\n", id)
	}
	if len(res.Rejected) > 0 {
		fmt.Fprintf(w, "Rejected: %d\n", len(res.Rejected))
		for _, r := range res.Rejected {
			fmt.Fprintf(w, "  - %s [%s] %s\n", r.ServerID, r.Code, r.Reason)
		}
	}
}

func printDefects(w io.Writer, defects []models.DefectRecord) {
	if len(defects) == 0 {
		fmt.Fprintln(w, "No defects found")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSERVER SERIAL\tPART\tSTATUS\tDETECTED")
	for _, d := range defects {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			d.ID, orDash(d.ServerSerial), d.RepairPartType, d.Status, d.DetectedAt.Format(time.DateOnly))
	}
	tw.Flush()
}

func printDefect(w io.Writer, d *models.DefectRecord) {
	fmt.Fprintf(w, "ID:           %s\n", d.ID)
	fmt.Fprintf(w, "Server:       %s (%s)\n", ptrOrDash(d.ServerID), orDash(d.ServerSerial))
	fmt.Fprintf(w, "Part:         %s\n", d.RepairPartType)
	fmt.Fprintf(w, "Status:       %s\n", d.Status)
	fmt.Fprintf(w, "Problem:      %s\n", orDash(d.ProblemDescription))
	fmt.Fprintf(w, "Ticket:       %s\n", orDash(d.YadroTicketNumber))
	if d.TotalDowntimeMinutes != nil {
		fmt.Fprintf(w, "Downtime:     %d min\n", *d.TotalDowntimeMinutes)
	}
	if d.Resolution != "" {
		fmt.Fprintf(w, "Resolution:   %s\n", d.Resolution)
	}
}

func printHistory(w io.Writer, entries []models.HistoryEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No history entries found")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tENTITY\tACTION\tFROM\tTO\tACTOR\tCOMMENT")
	for _, e := range entries {
		actor := "-"
		if e.ActorID != nil {
			actor = fmt.Sprint(*e.ActorID)
		}
		fmt.Fprintf(tw, "%s\t%s/%s\t%s\t%s\t%s\t%s\t%s\n",
			e.CreatedAt.Format(time.RFC3339), e.EntityType, e.EntityID, e.Action,
			orDash(e.FromStatus), orDash(e.ToStatus), actor, orDash(e.Comment))
	}
	tw.Flush()
}
