package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	units "github.com/docker/go-units"
	"golang.org/x/term"

	"github.com/wippyai/ipcgen/planner"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	opStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#98FB98"))

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFD700"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type report struct {
	w     io.Writer
	opts  planner.Options
	width int
}

func newReport(w io.Writer, opts planner.Options) *report {
	width := 80
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if tw, _, err := term.GetSize(int(f.Fd())); err == nil && tw > 0 {
			width = tw
		}
	}
	return &report{w: w, opts: opts, width: width}
}

func (r *report) interfacePlan(ip *planner.InterfacePlan) {
	fmt.Fprintf(r.w, "%s %s\n", titleStyle.Render("Interface "+ip.Interface.Name),
		fmt.Sprintf("strategy %s, abi %s (%s), O%d", r.opts.Strategy, r.opts.ABI, r.opts.Mode, r.opts.OptLevel))
	for _, f := range planner.Flows {
		acc := ip.Account(f)
		fmt.Fprintf(r.w, "  %-7s opcode %s, %d flexpages max, uniform %v\n",
			f, acc.OpcodeLocation(), acc.Total(), acc.IsUniform())
	}
	fmt.Fprintln(r.w, strings.Repeat("─", min(r.width, 80)))

	ip.Ascend(func(op *planner.OperationPlan) bool {
		r.operation(op)
		return true
	})
}

func (r *report) operation(op *planner.OperationPlan) {
	fmt.Fprintf(r.w, "\n%s opcode %d\n", opStyle.Render(op.Operation.Name), op.Operation.Opcode)
	if op.Err != nil {
		fmt.Fprintln(r.w, errorStyle.Render("  "+op.Err.Error()))
		return
	}
	if op.ShortIPC.Eligible {
		fmt.Fprintf(r.w, "  short IPC: request %s, reply %s\n",
			registerLine(op.ShortIPC.Request), registerLine(op.ShortIPC.Reply))
	} else {
		fmt.Fprintln(r.w, helpStyle.Render("  short IPC: no, "+op.ShortIPC.Reason))
	}
	for _, f := range planner.Flows {
		r.flow(op.Plan(f))
	}
}

func (r *report) flow(p *planner.MarshalPlan) {
	size := units.BytesSize(float64(p.FixedSize))
	if p.Dynamic {
		size += " + runtime"
	}
	fmt.Fprintf(r.w, "  %s → %s: %s, %d flexpages, %d indirect strings\n",
		p.Flow, p.Receiver, size, p.Flexpages, p.StringCount())
	if len(p.Slots) > 0 {
		fmt.Fprintln(r.w, slotTable(p.Slots, r.width))
	}
	for _, d := range p.Diagnostics {
		fmt.Fprintln(r.w, warnStyle.Render(fmt.Sprintf("    %s %s: %s", d.Level, d.Path, d.Message)))
	}
}

// slotTable renders slots with union arms indented below their union.
func slotTable(slots []planner.Slot, width int) string {
	t := table.New().
		Border(lipgloss.HiddenBorder()).
		Headers("OFFSET", "SIZE", "KIND", "PATH", "RECEIVE").
		Rows(slotRows(slots, "")...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
	if width > 0 {
		t = t.Width(min(width, 120))
	}
	return t.String()
}

func slotRows(slots []planner.Slot, indent string) [][]string {
	var rows [][]string
	for i := range slots {
		s := &slots[i]
		recv := ""
		switch s.Kind {
		case planner.SlotString, planner.SlotArray:
			recv = s.Receive.String()
		}
		rows = append(rows, []string{s.Offset.String(), s.Size.String(), indent + s.Kind.String(), s.Name(), recv})
		for _, c := range s.Cases {
			label := "default"
			if !c.Default {
				label = fmt.Sprintf("case %v", c.Labels)
			}
			rows = append(rows, []string{"", c.Size.String(), indent + "  " + label, "", ""})
			rows = append(rows, slotRows(c.Slots, indent+"    ")...)
		}
	}
	return rows
}

func registerLine(rm planner.RegisterMap) string {
	names := make([]string, 0, len(rm.Values))
	for name := range rm.Values {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return rm.Values[names[i]] < rm.Values[names[j]] })

	parts := []string{"tag " + rm.Tag}
	for _, name := range names {
		reg := fmt.Sprintf("#%d", rm.Values[name])
		if i := rm.Values[name] - 1; i < len(rm.Registers) {
			reg = rm.Registers[i].String()
		}
		parts = append(parts, name+"→"+reg)
	}
	return strings.Join(parts, ", ")
}
