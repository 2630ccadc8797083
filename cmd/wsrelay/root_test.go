package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"
)

func TestRootCommand_Flags(t *testing.T) {
	cmd := newRootCommand()
	if err := cmd.ParseFlags([]string{"--port", "8080", "--downstream", "10.0.0.2:2222", "--handshake-timeout", "3s"}); err != nil {
		t.Fatal(err)
	}
	port, _ := cmd.Flags().GetInt("port")
	down, _ := cmd.Flags().GetString("downstream")
	hto, _ := cmd.Flags().GetDuration("handshake-timeout")
	if port != 8080 || down != "10.0.0.2:2222" || hto != 3*time.Second {
		t.Errorf("flags = %d %s %v", port, down, hto)
	}
}

func TestRootCommand_Defaults(t *testing.T) {
	cmd := newRootCommand()
	if v := cmd.Flags().Lookup("port").DefValue; v != "80" {
		t.Errorf("default port = %s", v)
	}
	if v := cmd.Flags().Lookup("downstream").DefValue; v != "127.0.0.1:22" {
		t.Errorf("default downstream = %s", v)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	l, err := newLogger(&buf, "warn", "json")
	if err != nil {
		t.Fatal(err)
	}
	l.Info().Msg("hidden")
	l.Warn().Msg("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), `"message":"shown"`) {
		t.Errorf("log output = %q", buf.String())
	}
	if _, err := newLogger(&buf, "loud", "json"); err == nil {
		t.Error("bad level accepted")
	}
	if _, err := newLogger(&buf, "info", "xml"); err == nil {
		t.Error("bad format accepted")
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	cmd := newRootCommand()
	var errOut bytes.Buffer
	cmd.SetErr(&errOut)
	cmd.SetArgs([]string{"--port", "0", "--log-format", "json"})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()
	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Execute = %v (%s)", err, errOut.String())
		}
	case <-time.After(5 * time.Second):
		t.Fatal("command did not stop")
	}
}
