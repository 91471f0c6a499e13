package agent

import (
	"context"

	"github.com/hupe1980/teamwork/internal/util"
)

// InstructionProvider supplies instruction text at runtime.
type InstructionProvider interface {
	Instruction(ctx context.Context, vars map[string]any) (string, error)
}

// InstructionFunc is a functional adapter for InstructionProvider.
type InstructionFunc func(ctx context.Context, vars map[string]any) (string, error)

// Instruction implements InstructionProvider.
func (f InstructionFunc) Instruction(ctx context.Context, vars map[string]any) (string, error) {
	return f(ctx, vars)
}

// Instruction is either a static template or a dynamic provider.
//
// Static text is rendered with text/template against the agent variables:
// .agent (the state's agent name), .description, .team (member names) and
// .tools (tool names).
type Instruction struct {
	text     string
	provider InstructionProvider
}

// NewInstructionFromText creates an Instruction from a static template.
func NewInstructionFromText(text string) Instruction { return Instruction{text: text} }

// NewInstructionFromProvider creates an Instruction from a dynamic provider.
func NewInstructionFromProvider(p InstructionProvider) Instruction { return Instruction{provider: p} }

// NewInstructionFromFunc creates an Instruction from a function.
func NewInstructionFromFunc(f func(ctx context.Context, vars map[string]any) (string, error)) Instruction {
	return Instruction{provider: InstructionFunc(f)}
}

// IsStatic returns true if the instruction is backed by a static template.
func (i Instruction) IsStatic() bool { return i.provider == nil }

// Resolve returns the instruction text.
func (i Instruction) Resolve(ctx context.Context, vars map[string]any) (string, error) {
	if i.provider != nil {
		return i.provider.Instruction(ctx, vars)
	}
	return util.RenderTemplate(i.text, vars)
}
