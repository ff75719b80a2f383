package config

import (
	"reflect"
	"testing"
)

func TestSplitCommand(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"/bin/sleep 3600", []string{"/bin/sleep", "3600"}},
		{"echo 'hello world'", []string{"echo", "hello world"}},
		{`echo "a b" c`, []string{"echo", "a b", "c"}},
		{`printf "%s\n" x`, []string{"printf", `%s\n`, "x"}},
		{`cmd --flag="quoted value"`, []string{"cmd", "--flag=quoted value"}},
		{`a\ b c`, []string{"a b", "c"}},
		{"  spaced   out  ", []string{"spaced", "out"}},
		{`sh -c 'trap "" TERM; sleep 3600'`, []string{"sh", "-c", `trap "" TERM; sleep 3600`}},
	}
	for _, c := range cases {
		got, err := SplitCommand(c.in)
		if err != nil {
			t.Fatalf("SplitCommand(%q): %v", c.in, err)
		}
		if !reflect.DeepEqual(got, c.want) {
			t.Fatalf("SplitCommand(%q) = %#v, want %#v", c.in, got, c.want)
		}
	}
}

func TestSplitCommandErrors(t *testing.T) {
	for _, in := range []string{"", "   ", "echo 'oops", `echo "oops`, `echo oops\`} {
		if _, err := SplitCommand(in); err == nil {
			t.Fatalf("SplitCommand(%q): expected error", in)
		}
	}
}

func FuzzSplitCommand(f *testing.F) {
	f.Add("/bin/sleep 3600")
	f.Add(`echo "a b" 'c d' e\ f`)
	f.Add("broken 'quote")
	f.Fuzz(func(t *testing.T, in string) {
		argv, err := SplitCommand(in)
		if err != nil {
			return
		}
		if len(argv) == 0 {
			t.Fatal("nil error but empty argv")
		}
	})
}

func FuzzParseEnvironment(f *testing.F) {
	f.Add(`KEY=value, PATH="/usr/bin:/bin"`)
	f.Add(`A='x, y', B=`)
	f.Fuzz(func(t *testing.T, in string) {
		env, err := ParseEnvironment(in)
		if err != nil {
			return
		}
		for k := range env {
			if k == "" {
				t.Fatal("empty key accepted")
			}
		}
	})
}
