package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/loykin/keepbusy"
	"github.com/loykin/keepbusy/pkg/client"
)

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func renderResult(w io.Writer, res keepbusy.Result) {
	_, _ = fmt.Fprintf(w, "state: %s\n", res.State)
	_, _ = fmt.Fprintf(w, "plan:  %s\n", res.Plan)
	for _, co := range res.Coercions {
		_, _ = fmt.Fprintf(w, "note:  %s %q adjusted to %d (%s)\n", co.Field, co.Given, co.Used, co.Reason)
	}
	if res.Degraded {
		_, _ = fmt.Fprintf(w, "warning: not all processes confirmed running: %v\n", res.Missing)
	}
	if res.Forced {
		_, _ = fmt.Fprintln(w, "note:  graceful stop timed out, processes were killed")
	}
	if res.PersistErr != nil {
		_, _ = fmt.Fprintf(w, "warning: state not persisted: %v\n", res.PersistErr)
	}
}

func renderStatus(w io.Writer, rep keepbusy.StatusReport) {
	_, _ = fmt.Fprintf(w, "state:      %s\n", rep.State)
	_, _ = fmt.Fprintf(w, "plan:       %s\n", rep.Plan)
	_, _ = fmt.Fprintf(w, "converged:  %s\n", yesNo(rep.Converged))
	_, _ = fmt.Fprintf(w, "descriptor: %s\n", presentAbsent(rep.DescriptorPresent))
	if !rep.Modified.IsZero() {
		_, _ = fmt.Fprintf(w, "modified:   %s\n", rep.Modified.Format("2006-01-02 15:04:05 MST"))
	}
	if len(rep.Processes) == 0 {
		return
	}
	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "NAME\tSTATE\tPID\tUPTIME\tCPU%\tMEM(MB)")
	for _, p := range rep.Processes {
		cpu, mem := "-", "-"
		if u, ok := rep.Usage[p.Name]; ok {
			cpu = fmt.Sprintf("%.1f", u.CPUPercent)
			mem = fmt.Sprintf("%.1f", u.MemoryMB)
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n", p.Name, p.State, p.PID, p.Uptime, cpu, mem)
	}
	_ = tw.Flush()
}

func renderAPIStatus(w io.Writer, st client.StateResponse, live client.StatusResponse) {
	state := "disabled"
	if st.Enabled {
		state = "enabled"
	}
	_, _ = fmt.Fprintf(w, "state:      %s (via watchdog API)\n", state)
	_, _ = fmt.Fprintf(w, "plan:       %d cores, %d%% cpu load, %d%% memory\n",
		st.CPUCores, st.CPULoadPercent, st.MemoryPercent)
	if !st.Modified.IsZero() {
		_, _ = fmt.Fprintf(w, "modified:   %s\n", st.Modified.Format("2006-01-02 15:04:05 MST"))
	}
	if len(live.Processes) == 0 {
		return
	}
	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "NAME\tSTATE\tPID\tUPTIME\tCPU%\tMEM(MB)")
	for _, p := range live.Processes {
		cpu, mem := "-", "-"
		if u, ok := live.Usage[p.Name]; ok {
			cpu = fmt.Sprintf("%.1f", u.CPUPercent)
			mem = fmt.Sprintf("%.1f", u.MemoryMB)
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n", p.Name, p.State, p.PID, p.Uptime, cpu, mem)
	}
	_ = tw.Flush()
}

func renderChecks(w io.Writer, checks []keepbusy.Check) {
	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "CHECK\tOK\tDETAIL")
	for _, ch := range checks {
		detail := ch.Detail
		if detail == "" {
			detail = ch.Description
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", ch.Name, yesNo(ch.OK), detail)
	}
	_ = tw.Flush()
}

func presentAbsent(b bool) string {
	if b {
		return "present"
	}
	return "absent"
}
