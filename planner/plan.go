package planner

import (
	"github.com/google/btree"
	"go.uber.org/multierr"

	"github.com/wippyai/ipcgen/abi"
	"github.com/wippyai/ipcgen/idl"
	"github.com/wippyai/ipcgen/internal/offset"
	"github.com/wippyai/ipcgen/internal/path"
)

type (
	Offset = offset.Offset
	Size   = offset.Size
)

// DescriptorSize is the size of one indirect string descriptor: send size,
// send pointer, receive capacity, receive buffer.
const DescriptorSize = 16

// Flow is the direction of one message.
type Flow uint8

const (
	// FlowRequest carries in and inout parameters from client to server.
	FlowRequest Flow = iota
	// FlowReply carries out and inout parameters and the return value back.
	FlowReply
)

// Flows lists both flows in planning order.
var Flows = [...]Flow{FlowRequest, FlowReply}

func (f Flow) String() string {
	if f == FlowReply {
		return "reply"
	}
	return "request"
}

// Direction is the parameter direction transmitted in this flow.
func (f Flow) Direction() idl.Direction {
	if f == FlowReply {
		return idl.DirOut
	}
	return idl.DirIn
}

// Receiver is the endpoint that unmarshals this flow.
func (f Flow) Receiver() Side {
	if f == FlowReply {
		return SideClient
	}
	return SideServer
}

// Side is a stub endpoint.
type Side uint8

const (
	SideClient Side = iota
	SideServer
)

func (s Side) String() string {
	if s == SideServer {
		return "server"
	}
	return "client"
}

// Region is an area of the message with its own offset tracker.
type Region uint8

const (
	RegionMain Region = iota
	RegionStrings
)

func (r Region) String() string {
	if r == RegionStrings {
		return "strings"
	}
	return "main"
}

// SlotKind says what a slot holds and how a stub moves it.
type SlotKind uint8

const (
	SlotOpcode SlotKind = iota
	SlotException
	SlotScalar
	// SlotRow is one innermost row of a fixed array.
	SlotRow
	// SlotBlock is a constant-size region copied in one move.
	SlotBlock
	// SlotCount is a leading length or element-count word.
	SlotCount
	SlotString
	SlotArray
	SlotSwitch
	SlotUnion
	SlotFlexpageBase
	SlotFlexpageDescriptor
	SlotDelimiter
	SlotStringSize
	SlotStringPointer
	SlotStringCapacity
	SlotStringBuffer
	SlotSaveOffset
	SlotRealign
	SlotRestoreOffset
)

var slotKindNames = [...]string{
	SlotOpcode:             "opcode",
	SlotException:          "exception",
	SlotScalar:             "scalar",
	SlotRow:                "row",
	SlotBlock:              "block",
	SlotCount:              "count",
	SlotString:             "string",
	SlotArray:              "array",
	SlotSwitch:             "switch",
	SlotUnion:              "union",
	SlotFlexpageBase:       "fpage.base",
	SlotFlexpageDescriptor: "fpage.desc",
	SlotDelimiter:          "delimiter",
	SlotStringSize:         "str.size",
	SlotStringPointer:      "str.ptr",
	SlotStringCapacity:     "str.cap",
	SlotStringBuffer:       "str.buf",
	SlotSaveOffset:         "save",
	SlotRealign:            "realign",
	SlotRestoreOffset:      "restore",
}

func (k SlotKind) String() string {
	if int(k) < len(slotKindNames) {
		return slotKindNames[k]
	}
	return "unknown"
}

// IsControl reports whether the slot only moves the offset variable and
// occupies no bytes.
func (k SlotKind) IsControl() bool {
	return k == SlotSaveOffset || k == SlotRealign || k == SlotRestoreOffset
}

// ReceiveMode is how the receiver obtains storage for a variable-size value.
type ReceiveMode uint8

const (
	// ReceiveCopy copies into storage that is part of the parameter itself.
	ReceiveCopy ReceiveMode = iota
	// ReceiveAlias points the parameter into the message buffer.
	ReceiveAlias
	// ReceiveAllocate obtains storage from the allocator hook.
	ReceiveAllocate
	// ReceiveInto copies into caller-provided storage.
	ReceiveInto
)

var receiveNames = [...]string{"copy", "alias", "allocate", "into"}

func (m ReceiveMode) String() string {
	if int(m) < len(receiveNames) {
		return receiveNames[m]
	}
	return "unknown"
}

// Slot is one planned piece of a message.
type Slot struct {
	Offset Offset
	Size   Size
	// Type is the element type for value slots; nil for header and control slots.
	Type *idl.Type
	// Path addresses the value, e.g. [req items [2] len].
	Path []string
	// CountPath is the sibling that supplies the element count or string
	// length. Nil means a leading count word.
	CountPath []string
	// CapPath is the max_is sibling that caps the length at runtime.
	CapPath []string
	// Dims are the fixed dimensions of the array a row or block belongs to.
	// Nil for single values.
	Dims  []uint32
	Cases []UnionCase
	// Cap is a static length cap, in elements (bytes for strings).
	Cap uint32
	// Elements is the number of elements covered by rows and blocks, and the
	// elements per counted unit of a variable array.
	Elements uint32
	// First is the first element index covered by a row.
	First uint32
	// Index is the flexpage number or string table index.
	Index   int
	Kind    SlotKind
	Region  Region
	Receive ReceiveMode
}

// Name renders the value path.
func (s *Slot) Name() string {
	return path.Join(s.Path)
}

// UnionCase is one arm of a union slot, planned from the union's start.
type UnionCase struct {
	Labels  []uint64
	Slots   []Slot
	Size    Size
	Default bool
}

// StringEntry is one indirect string.
type StringEntry struct {
	Path []string
	// SizePath is the sibling that gives the length. Nil means strlen.
	SizePath []string
	CapPath  []string
	Cap      uint32
	Index    int
	// SizeSlot and PointerSlot index Slots of the owning plan.
	SizeSlot    int
	PointerSlot int
	Receive     ReceiveMode
}

// StringTable lists the indirect strings of one message in descriptor order.
type StringTable struct {
	Base    Offset
	Entries []StringEntry
}

// Size is the descriptor area size.
func (t *StringTable) Size() uint32 {
	return uint32(len(t.Entries)) * DescriptorSize
}

// Diagnostic is a non-fatal planning note.
type Diagnostic struct {
	Level   string
	Path    string
	Message string
}

// MarshalPlan is the layout of one (operation, flow) message.
type MarshalPlan struct {
	Operation   string
	Strategy    string
	Slots       []Slot
	Strings     StringTable
	Diagnostics []Diagnostic
	// FixedSize is the fixed part of the main region rounded up to the word.
	FixedSize uint32
	// HeaderOffset is where the sender writes the opcode or exception word.
	HeaderOffset uint32
	Flexpages    int
	Flow         Flow
	Receiver     Side
	HasHeader    bool
	// ShortIPC is set when the operation travels in registers.
	ShortIPC bool
	// Dynamic is set when the main region has runtime-sized parts.
	Dynamic bool
}

// StringCount is the number of indirect strings.
func (p *MarshalPlan) StringCount() int {
	return len(p.Strings.Entries)
}

// Find returns the first top-level slot of kind k whose path renders as name.
func (p *MarshalPlan) Find(name string, k SlotKind) *Slot {
	for i := range p.Slots {
		if p.Slots[i].Kind == k && p.Slots[i].Name() == name {
			return &p.Slots[i]
		}
	}
	return nil
}

// Header returns the opcode or exception slot.
func (p *MarshalPlan) Header() *Slot {
	for i := range p.Slots {
		if k := p.Slots[i].Kind; k == SlotOpcode || k == SlotException {
			return &p.Slots[i]
		}
	}
	return nil
}

// RegisterMap assigns the logical values of a short-IPC message to registers.
// Values maps a value path to its 1-based payload register.
type RegisterMap struct {
	Values    map[string]int
	Tag       string
	Registers []abi.Register
	Words     int
}

// ShortIPC is the register-transfer decision for an operation.
type ShortIPC struct {
	Request  RegisterMap
	Reply    RegisterMap
	Reason   string
	Eligible bool
}

// OperationPlan holds both flows of one operation.
type OperationPlan struct {
	Operation *idl.Operation
	Request   *MarshalPlan
	Reply     *MarshalPlan
	Err       error
	ShortIPC  ShortIPC
}

// Plan returns the plan for flow f.
func (p *OperationPlan) Plan(f Flow) *MarshalPlan {
	if f == FlowReply {
		return p.Reply
	}
	return p.Request
}

// InterfacePlan holds the plans of all operations of an interface.
type InterfacePlan struct {
	Interface  *idl.Interface
	Request    *FlexpageAccount
	Reply      *FlexpageAccount
	Operations []*OperationPlan
	byOpcode   *btree.BTreeG[*OperationPlan]
}

func newInterfacePlan(iface *idl.Interface, req, rep *FlexpageAccount) *InterfacePlan {
	return &InterfacePlan{
		Interface:  iface,
		Request:    req,
		Reply:      rep,
		Operations: make([]*OperationPlan, len(iface.Operations)),
		byOpcode: btree.NewG[*OperationPlan](8, func(a, b *OperationPlan) bool {
			return a.Operation.Opcode < b.Operation.Opcode
		}),
	}
}

// Account returns the flexpage account of flow f.
func (p *InterfacePlan) Account(f Flow) *FlexpageAccount {
	if f == FlowReply {
		return p.Reply
	}
	return p.Request
}

// ByOpcode finds the operation dispatched by code.
func (p *InterfacePlan) ByOpcode(code uint32) (*OperationPlan, bool) {
	key := &OperationPlan{Operation: &idl.Operation{Opcode: code}}
	return p.byOpcode.Get(key)
}

// Ascend visits operations in opcode order until fn returns false.
func (p *InterfacePlan) Ascend(fn func(*OperationPlan) bool) {
	p.byOpcode.Ascend(fn)
}

// Err combines the errors of all operations.
func (p *InterfacePlan) Err() error {
	var err error
	for _, op := range p.Operations {
		if op != nil {
			err = multierr.Append(err, op.Err)
		}
	}
	return err
}
