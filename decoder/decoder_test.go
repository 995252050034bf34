package decoder

import (
	"encoding/binary"
	"strconv"
	"strings"
	"testing"

	"github.com/ybubnov/metalchat/future"
	"github.com/ybubnov/metalchat/tensor"
	"github.com/ybubnov/metalchat/tokenizer"
)

// fakeTokenizer is a minimal in-memory stand-in for the external BPE
// encoder: ordinary text encodes one rune per id, special tokens encode
// to small negative ids out of that range, and a small decode table lets
// the test script specific multi-character pieces for scripted replies.
type fakeTokenizer struct {
	decodeTable map[int32]string
}

func newFakeTokenizer() *fakeTokenizer {
	return &fakeTokenizer{decodeTable: make(map[int32]string)}
}

func (t *fakeTokenizer) Encode(s string, out *[]int32) error {
	for _, r := range s {
		*out = append(*out, int32(r))
	}
	return nil
}

func (t *fakeTokenizer) EncodeSpecial(tok tokenizer.SpecialToken) int32 {
	return -int32(tok) - 1
}

func (t *fakeTokenizer) Decode(id int32) (string, error) {
	if piece, ok := t.decodeTable[id]; ok {
		return piece, nil
	}
	return string(rune(id)), nil
}

// fakeTransformer replays a fixed script of token ids, one per Forward
// call, each wrapped as a (1,1,1) int32 "logits" tensor so fakeSampler
// can read it back without any real sampling math.
type fakeTransformer struct {
	script []int32
	pos    int
	seen   [][]int32
}

func (f *fakeTransformer) Forward(ids *future.Tensor) (*future.Tensor, error) {
	v, err := ids.Get()
	if err != nil {
		return nil, err
	}
	recorded := make([]int32, v.Numel())
	b := v.Bytes()
	for i := range recorded {
		recorded[i] = int32(binary.LittleEndian.Uint32(b[i*4:]))
	}
	f.seen = append(f.seen, recorded)

	token := f.script[f.pos]
	f.pos++

	c := tensor.NewRandomContainer(4)
	binary.LittleEndian.PutUint32(c.Bytes(), uint32(token))
	return future.New(tensor.New(c, tensor.DTypeI32, 1)), nil
}

// fakeSampler reads the single scalar fakeTransformer encoded, with no
// actual sampling involved.
type fakeSampler struct{}

func (fakeSampler) Sample(logits *future.Tensor) (int32, error) {
	v, err := logits.Get()
	if err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(v.Bytes()[:4])), nil
}

// fakeCommandScanner recognizes one hard-coded "multiply" call shaped
// like the <|python_tag|> tool-call convention.
type fakeCommandScanner struct{}

func (fakeCommandScanner) Declare(declaration string) (string, error) {
	if strings.Contains(declaration, `"name":"multiply"`) {
		return "multiply", nil
	}
	return "", errDeclUnrecognized
}

func (fakeCommandScanner) Scan(content string) (CommandStatement, bool) {
	if !strings.HasPrefix(content, "<|python_tag|>") {
		return CommandStatement{}, false
	}
	return CommandStatement{
		Name:       "multiply",
		Parameters: map[string]any{"a": 2.0, "b": 2.0},
	}, true
}

var errDeclUnrecognized = &scanError{"unrecognized command declaration"}

type scanError struct{ msg string }

func (e *scanError) Error() string { return e.msg }

func TestInterpreterWriteRead(t *testing.T) {
	tok := newFakeTokenizer()
	endTurn := tok.EncodeSpecial(tokenizer.EndTurn)
	answerID := int32(900)
	tok.decodeTable[answerID] = "hi there"

	xf := &fakeTransformer{script: []int32{answerID, endTurn}}
	ip := New(xf, fakeSampler{}, tok, fakeCommandScanner{}, 0)

	if err := ip.Write(RoleUser, "Hello"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	msg, err := ip.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if msg.Role != RoleAssistant {
		t.Errorf("Role = %q, want assistant", msg.Role)
	}
	if msg.Content != "hi there" {
		t.Errorf("Content = %q, want %q", msg.Content, "hi there")
	}
	if len(ip.buf) != 0 {
		t.Errorf("buf should be empty after Read, has %d ids", len(ip.buf))
	}
}

func TestInterpreterIDIsStableAndUnique(t *testing.T) {
	tok := newFakeTokenizer()
	a := New(&fakeTransformer{}, fakeSampler{}, tok, fakeCommandScanner{}, 0)
	b := New(&fakeTransformer{}, fakeSampler{}, tok, fakeCommandScanner{}, 0)

	if a.ID() != a.ID() {
		t.Errorf("ID() not stable across calls")
	}
	if a.ID() == b.ID() {
		t.Errorf("two interpreters minted the same session id")
	}
	if a.ID().Version() != 7 {
		t.Errorf("ID() version = %d, want 7 (UUIDv7)", a.ID().Version())
	}
}

func TestInterpreterExecDispatchesCommand(t *testing.T) {
	tok := newFakeTokenizer()
	endTurn := tok.EncodeSpecial(tokenizer.EndTurn)
	commandID := int32(500)
	answerID := int32(501)
	tok.decodeTable[commandID] = `<|python_tag|>{"name":"multiply","parameters":{"a":2,"b":2}}`
	tok.decodeTable[answerID] = "The answer is 4"

	xf := &fakeTransformer{script: []int32{commandID, endTurn, answerID, endTurn}}
	scanner := fakeCommandScanner{}
	ip := New(xf, fakeSampler{}, tok, scanner, 0)

	var multiplyCalled bool
	err := ip.DeclareCommand(`{"name":"multiply","type":"function"}`, func(stmt CommandStatement) (string, error) {
		multiplyCalled = true
		a, _ := stmt.Parameters["a"].(float64)
		b, _ := stmt.Parameters["b"].(float64)
		return strconv.Itoa(int(a * b)), nil
	})
	if err != nil {
		t.Fatalf("DeclareCommand: %v", err)
	}

	if err := ip.Write(RoleUser, "What is 2 times 2?"); err != nil {
		t.Fatalf("Write: %v", err)
	}

	msg, err := ip.Exec()
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if !multiplyCalled {
		t.Fatal("multiply handler was never invoked")
	}
	if msg.Content != "The answer is 4" {
		t.Errorf("final message = %q, want %q", msg.Content, "The answer is 4")
	}
}
