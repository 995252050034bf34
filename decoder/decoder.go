// Package decoder implements the interpreter loop driving a loaded
// transformer turn by turn: assembling a prompt buffer from declared
// messages, flushing it through the model to read back a generated
// reply, and optionally dispatching tool calls the model requests mid
// generation. The tokenizer and command scanner it depends on are
// external collaborators supplied by the caller.
package decoder

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/ybubnov/metalchat/future"
	"github.com/ybubnov/metalchat/tokenizer"
)

// Transformer is the subset of *model.Model the interpreter drives: a
// single forward step over a (1,L) int32 id tensor, returning (1,1,V)
// logits for the last position. Scoped to an interface (rather than
// importing the model package directly) so the loop is testable without
// a GPU device.
type Transformer interface {
	Forward(ids *future.Tensor) (*future.Tensor, error)
}

// Sampler reduces one step's logits to a token id, mirroring
// model.Sampler's shape without importing it.
type Sampler interface {
	Sample(logits *future.Tensor) (int32, error)
}

// Interpreter owns one conversation's buffer state: the transformer, its
// sampler, a tokenizer, an optional command scanner, declared template
// variables, and declared command handlers.
type Interpreter struct {
	id          uuid.UUID
	transformer Transformer
	sampler     Sampler
	tokens      tokenizer.Tokenizer
	scanner     CommandScanner

	maxPos   int
	startPos int
	buf      []int32

	vars     map[string]string
	arrays   map[string][]string
	commands map[string]CommandHandler
}

// ID returns the interpreter's session identifier, a time-ordered UUIDv7
// minted once at construction and attached to every log line this
// interpreter emits so a single conversation's turns can be correlated
// across a multi-session server log.
func (ip *Interpreter) ID() uuid.UUID {
	return ip.id
}

// New constructs an interpreter whose buffer is seeded with a single
// BeginText id, matching interpreter::interpreter's
// `_M_buf(1, encoder.encode(text::token::begin_text))`. maxPos of 0
// means unbounded.
func New(transformer Transformer, sampler Sampler, tokens tokenizer.Tokenizer, scanner CommandScanner, maxPos int) *Interpreter {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails if the system clock/entropy source is
		// unavailable; fall back to a random v4 rather than leaving the
		// session unidentifiable in logs.
		id = uuid.New()
	}
	slog.Debug("decoder: new interpreter session", "session_id", id)
	return &Interpreter{
		id:          id,
		transformer: transformer,
		sampler:     sampler,
		tokens:      tokens,
		scanner:     scanner,
		maxPos:      maxPos,
		buf:         []int32{tokens.EncodeSpecial(tokenizer.BeginText)},
		vars:        make(map[string]string),
		arrays:      make(map[string][]string),
		commands:    make(map[string]CommandHandler),
	}
}

// DeclareVariable registers a scalar substitution available to every
// subsequent Write's mustache-lite template pass as {{name}}.
func (ip *Interpreter) DeclareVariable(name, value string) {
	ip.vars[name] = value
}

// DeclareCommand registers a command by its declaration (e.g. a JSON
// Schema description of its name and parameters) and the handler that
// executes it. The declaration is appended to the "metalchat_commands"
// array variable, rendered by {{#metalchat_commands}}...{{/...}} in a
// system prompt, and its format hint is exposed as the scalar variable
// "metalchat_command_format".
func (ip *Interpreter) DeclareCommand(declaration string, handler CommandHandler) error {
	name, err := ip.scanner.Declare(declaration)
	if err != nil {
		return err
	}
	ip.commands[name] = handler
	ip.arrays["metalchat_commands"] = append(ip.arrays["metalchat_commands"], declaration)
	ip.vars["metalchat_command_format"] = commandFormatHint
	return nil
}

// commandFormatHint is the fixed instruction told to the model for how
// to invoke a declared command, mirroring variables::command_format in
// interpreter.cc.
const commandFormatHint = `To use a tool, respond with JSON in this format:
{"name":"command_name","parameters":{"param1":"value","param2":"value"}}`
