package decoder

import "testing"

func TestRenderScalars(t *testing.T) {
	ip := &Interpreter{vars: map[string]string{"name": "world"}, arrays: map[string][]string{}}
	got := ip.render("hello {{name}}, <b>unescaped</b>")
	want := "hello world, <b>unescaped</b>"
	if got != want {
		t.Fatalf("render() = %q, want %q", got, want)
	}
}

func TestRenderMissingScalarIsEmpty(t *testing.T) {
	ip := &Interpreter{vars: map[string]string{}, arrays: map[string][]string{}}
	got := ip.render("[{{missing}}]")
	if got != "[]" {
		t.Fatalf("render() = %q, want %q", got, "[]")
	}
}

func TestRenderSectionRepeatsPerElement(t *testing.T) {
	ip := &Interpreter{
		vars:   map[string]string{},
		arrays: map[string][]string{"metalchat_commands": {"multiply", "divide"}},
	}
	got := ip.render("tools:{{#metalchat_commands}} [{{.}}]{{/metalchat_commands}}")
	want := "tools: [multiply] [divide]"
	if got != want {
		t.Fatalf("render() = %q, want %q", got, want)
	}
}

func TestRenderSectionEmptyArrayOmitsBody(t *testing.T) {
	ip := &Interpreter{vars: map[string]string{}, arrays: map[string][]string{}}
	got := ip.render("before{{#metalchat_commands}} [{{.}}]{{/metalchat_commands}}after")
	if got != "beforeafter" {
		t.Fatalf("render() = %q, want %q", got, "beforeafter")
	}
}
