package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestRun_VersionText(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), &out, &out, []string{"version"}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out.String(), "Pawprint") {
		t.Errorf("output = %q", out.String())
	}
}

func TestRun_VersionJSON(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), &out, &out, []string{"-o", "json", "version"}); err != nil {
		t.Fatalf("run: %v", err)
	}
	var info map[string]string
	if err := json.Unmarshal(out.Bytes(), &info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info["version"] == "" {
		t.Errorf("info = %v", info)
	}
}

func TestRun_NoArgsPrintsUsage(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), &out, &out, nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out.String(), "Usage:") {
		t.Errorf("output = %q", out.String())
	}
}

func TestRun_ArgumentErrors(t *testing.T) {
	cases := []struct {
		name string
		args []string
	}{
		{"unknown command", []string{"dance"}},
		{"unknown flag", []string{"-frobnicate"}},
		{"bad output format", []string{"-o", "xml", "version"}},
		{"event without name", []string{"event"}},
		{"event bad context pair", []string{"event", "sensor_shake", "-context", "weather"}},
		{"event unknown flag", []string{"event", "sensor_shake", "-loud"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var out bytes.Buffer
			if err := run(context.Background(), &out, &out, tc.args); err == nil {
				t.Error("run accepted bad arguments")
			}
		})
	}
}
