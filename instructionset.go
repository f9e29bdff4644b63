package canopy

import "github.com/google/uuid"

// Instruction is one entry of an InstructionSet. PipeKey names the pipe that
// executes it.
type Instruction interface {
	PipeKey() PipeKey
}

const defaultInstructionCap = 64

// InstructionSet is the ordered output of one build of one layer group.
// It is append-only between resets.
type InstructionSet struct {
	// UID identifies the set in logs.
	UID string

	instructions []Instruction
	renderables  []Renderable // every renderable handed to a render pipe this build
}

// NewInstructionSet creates an empty set with room for capacity instructions.
func NewInstructionSet(capacity int) *InstructionSet {
	if capacity <= 0 {
		capacity = defaultInstructionCap
	}
	return &InstructionSet{
		UID:          uuid.NewString(),
		instructions: make([]Instruction, 0, capacity),
	}
}

// Reset discards all instructions and bookkeeping. Safe on an empty set.
func (s *InstructionSet) Reset() {
	clear(s.instructions)
	s.instructions = s.instructions[:0]
	clear(s.renderables)
	s.renderables = s.renderables[:0]
}

// Add appends an instruction.
func (s *InstructionSet) Add(i Instruction) {
	s.instructions = append(s.instructions, i)
}

// Instructions returns the instructions in order. The returned slice MUST NOT
// be mutated by the caller and is only valid until the next Reset.
func (s *InstructionSet) Instructions() []Instruction {
	return s.instructions
}

// Len returns the number of instructions.
func (s *InstructionSet) Len() int {
	return len(s.instructions)
}

// Last returns the most recently added instruction, or nil.
func (s *InstructionSet) Last() Instruction {
	if len(s.instructions) == 0 {
		return nil
	}
	return s.instructions[len(s.instructions)-1]
}

// TrackRenderable records that r was added during this build. Render pipes
// call it so the renderer can report per-set renderable counts.
func (s *InstructionSet) TrackRenderable(r Renderable) {
	s.renderables = append(s.renderables, r)
}

// Renderables returns the renderables tracked since the last Reset.
func (s *InstructionSet) Renderables() []Renderable {
	return s.renderables
}
