package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/ipcgen/idl"
	"github.com/wippyai/ipcgen/planner"
	"github.com/wippyai/ipcgen/wire"
)

var (
	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))
)

type modelState int

const (
	stateSelectOp modelState = iota
	stateShowPlan
	stateInputValues
	stateShowMessage
)

type interactiveModel struct {
	err      error
	session  *session
	plan     *planner.InterfacePlan
	cfg      config
	result   string
	ops      []*planner.OperationPlan
	params   []*idl.Parameter
	inputs   []textinput.Model
	selected int
	focusIdx int
	flow     planner.Flow
	state    modelState
}

func newInteractiveModel(cfg config) *interactiveModel {
	return &interactiveModel{cfg: cfg, state: stateSelectOp}
}

type plannedMsg struct {
	err     error
	session *session
	plan    *planner.InterfacePlan
}

type encodedMsg struct {
	err    error
	result string
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.load
}

func (m *interactiveModel) load() tea.Msg {
	s, err := load(m.cfg)
	if err != nil {
		return plannedMsg{err: err}
	}
	ip, err := s.plan(context.Background())
	if ip == nil {
		return plannedMsg{err: err}
	}
	// operation errors are shown per operation
	return plannedMsg{session: s, plan: ip}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit

		case "q":
			if m.state != stateInputValues {
				return m, tea.Quit
			}

		case "up", "k":
			if m.state == stateSelectOp && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectOp && m.selected < len(m.ops)-1 {
				m.selected++
			}

		case "r":
			if m.state == stateSelectOp {
				m.err = nil
				return m, m.load
			}

		case "enter":
			switch m.state {
			case stateSelectOp:
				if len(m.ops) > 0 {
					m.flow = planner.FlowRequest
					m.state = stateShowPlan
				}
			case stateInputValues:
				return m, m.encode
			case stateShowMessage:
				m.state = stateShowPlan
				m.result = ""
				m.err = nil
			}

		case "e":
			if m.state == stateShowPlan && m.ops[m.selected].Err == nil {
				if err := m.prepareInputs(); err != nil {
					m.err = err
					m.state = stateShowMessage
					break
				}
				if len(m.inputs) == 0 {
					return m, m.encode
				}
				m.state = stateInputValues
			}

		case "tab":
			switch m.state {
			case stateShowPlan:
				m.flow = planner.Flows[(int(m.flow)+1)%len(planner.Flows)]
			case stateInputValues:
				if len(m.inputs) > 1 {
					m.inputs[m.focusIdx].Blur()
					m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
					m.inputs[m.focusIdx].Focus()
				}
			}

		case "esc":
			switch m.state {
			case stateShowPlan:
				m.state = stateSelectOp
			case stateInputValues:
				m.state = stateShowPlan
				m.inputs = nil
			case stateShowMessage:
				m.state = stateShowPlan
				m.result = ""
				m.err = nil
			}
		}

	case plannedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.session = msg.session
		m.plan = msg.plan
		m.ops = m.ops[:0]
		msg.plan.Ascend(func(op *planner.OperationPlan) bool {
			m.ops = append(m.ops, op)
			return true
		})
		m.selected = min(m.selected, max(len(m.ops)-1, 0))

	case encodedMsg:
		m.result = msg.result
		m.err = msg.err
		m.state = stateShowMessage
	}

	if m.state == stateInputValues {
		var cmds []tea.Cmd
		for i := range m.inputs {
			var cmd tea.Cmd
			m.inputs[i], cmd = m.inputs[i].Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	}

	return m, nil
}

// prepareInputs asks for every parameter the selected flow transmits.
func (m *interactiveModel) prepareInputs() error {
	op := m.ops[m.selected]
	m.params = op.Operation.Transmitted(m.flow.Direction())
	m.inputs = make([]textinput.Model, len(m.params))
	for i, p := range m.params {
		hint, err := m.inputHint(p)
		if err != nil {
			return err
		}
		ti := textinput.New()
		ti.Placeholder = hint
		ti.Prompt = p.Name + ": "
		ti.Width = 40
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
	return nil
}

func (m *interactiveModel) inputHint(p *idl.Parameter) (string, error) {
	facts := m.session.facts
	switch {
	case facts.IsFlexpage(p.Type) && len(p.Dims) == 0:
		return "base,fpage", nil
	case facts.IsString(&p.Member):
		return "string", nil
	case len(p.Dims) > 0 || p.Pointer > 0:
		return "", fmt.Errorf("%s: only scalars, strings and flexpages can be entered", p.Name)
	}
	t := facts.Resolve(p.Type)
	if t == nil || !t.Kind.IsScalar() {
		return "", fmt.Errorf("%s: only scalars, strings and flexpages can be entered", p.Name)
	}
	return t.Kind.String(), nil
}

func (m *interactiveModel) encode() tea.Msg {
	op := m.ops[m.selected]
	plan := op.Plan(m.flow)
	values := make(wire.Values, len(m.params))
	for i, p := range m.params {
		v, err := convertValue(m.inputs[i].Value(), p, m.session.facts)
		if err != nil {
			return encodedMsg{err: err}
		}
		values[p.Name] = v
	}

	var header uint64
	if m.flow == planner.FlowRequest {
		header = uint64(op.Operation.Opcode)
	}
	enc := wire.NewEncoder(m.session.facts)
	msg, err := enc.Encode(plan, header, values)
	if err != nil {
		return encodedMsg{err: err}
	}
	defer msg.Release()

	var b strings.Builder
	b.WriteString(hex.Dump(msg.Bytes()))
	for i, part := range msg.Strings {
		fmt.Fprintf(&b, "string part %d: %q\n", i, part)
	}
	if plan.ShortIPC {
		rm := op.ShortIPC.Request
		if m.flow == planner.FlowReply {
			rm = op.ShortIPC.Reply
		}
		rf, err := enc.Registers(plan, rm, msg)
		if err != nil {
			return encodedMsg{err: err}
		}
		fmt.Fprintf(&b, "%s=%#x", rm.Tag, rf.Tag)
		for name, w := range rf.Named(rm) {
			fmt.Fprintf(&b, " %s=%#x", name, w)
		}
		b.WriteString("\n")
	}
	return encodedMsg{result: b.String()}
}

func convertValue(value string, p *idl.Parameter, facts idl.TypeFacts) (any, error) {
	if facts.IsFlexpage(p.Type) {
		base, fpage, ok := strings.Cut(value, ",")
		if !ok {
			return nil, fmt.Errorf("%s: want base,fpage", p.Name)
		}
		b, err := strconv.ParseUint(strings.TrimSpace(base), 0, 32)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p.Name, err)
		}
		f, err := strconv.ParseUint(strings.TrimSpace(fpage), 0, 32)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p.Name, err)
		}
		return wire.Flexpage{Base: uint32(b), Fpage: uint32(f)}, nil
	}
	if facts.IsString(&p.Member) {
		return value, nil
	}

	t := facts.Resolve(p.Type)
	var (
		v   any
		err error
	)
	switch {
	case t.Kind == idl.KindBool:
		v = value == "true" || value == "1"
	case t.Kind.IsFloat():
		v, err = strconv.ParseFloat(value, 64)
	case t.Kind.IsSigned():
		v, err = strconv.ParseInt(value, 0, 64)
	default:
		v, err = strconv.ParseUint(value, 0, 64)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.Name, err)
	}
	return v, nil
}

func (m *interactiveModel) View() string {
	if m.err != nil && m.state == stateSelectOp {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress r to reload, q to quit.", m.err))
	}
	if m.plan == nil {
		return "Planning interface..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("IPC Planner"))
	b.WriteString(" ")
	b.WriteString(m.cfg.idlFile)
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectOp:
		b.WriteString("Select an operation:\n\n")
		for i, op := range m.ops {
			line := m.formatOp(op)
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + line))
			} else {
				b.WriteString("  " + line)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter show plan • r reload • q quit"))

	case stateShowPlan:
		op := m.ops[m.selected]
		if op.Err != nil {
			b.WriteString(errorStyle.Render(op.Err.Error()))
		} else {
			p := op.Plan(m.flow)
			fmt.Fprintf(&b, "%s %s → %s, fixed %d bytes\n", opStyle.Render(op.Operation.Name), p.Flow, p.Receiver, p.FixedSize)
			b.WriteString(slotTable(p.Slots, 0))
			for _, d := range p.Diagnostics {
				b.WriteString("\n" + warnStyle.Render(d.Path+": "+d.Message))
			}
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("tab switch flow • e encode values • esc back"))

	case stateInputValues:
		fmt.Fprintf(&b, "Encoding %s %s\n\n", opStyle.Render(m.ops[m.selected].Operation.Name), m.flow)
		for _, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter encode • esc back"))

	case stateShowMessage:
		fmt.Fprintf(&b, "%s %s:\n\n", opStyle.Render(m.ops[m.selected].Operation.Name), m.flow)
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	return b.String()
}

func (m *interactiveModel) formatOp(op *planner.OperationPlan) string {
	status := "short IPC"
	switch {
	case op.Err != nil:
		status = errorStyle.Render("error")
	case !op.ShortIPC.Eligible:
		status = helpStyle.Render(op.ShortIPC.Reason)
	}
	return fmt.Sprintf("%s %s  %s", opStyle.Render(op.Operation.Name), headerStyle.Render(fmt.Sprintf("#%d", op.Operation.Opcode)), status)
}

func runInteractive(cfg config) error {
	p := tea.NewProgram(newInteractiveModel(cfg), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
