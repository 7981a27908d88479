// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.


package ux

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/adamchainz/conjecture/services/conjecture/eval"
)

// =============================================================================
// Icon Tests
// =============================================================================

func TestIcon_Render(t *testing.T) {
	for _, icon := range []Icon{IconSuccess, IconWarning, IconError, IconPending, IconBullet} {
		if got := icon.Render(); !strings.Contains(got, string(icon)) {
			t.Errorf("Render(%q) = %q, missing glyph", icon, got)
		}
	}
}

// =============================================================================
// Personality Tests
// =============================================================================

func TestParsePersonalityLevel(t *testing.T) {
	tests := []struct {
		in   string
		want PersonalityLevel
	}{
		{"full", PersonalityFull},
		{"M", PersonalityMinimal},
		{"machine", PersonalityMachine},
		{"plain", PersonalityMachine},
		{"whatever", PersonalityFull},
	}
	for _, tt := range tests {
		if got := ParsePersonalityLevel(tt.in); got != tt.want {
			t.Errorf("ParsePersonalityLevel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDetectPersonality_EnvOverride(t *testing.T) {
	t.Setenv(EnvPersonality, "minimal")
	if got := DetectPersonality(os.Stdout); got != PersonalityMinimal {
		t.Errorf("expected minimal, got %q", got)
	}
}

func TestDetectPersonality_NotTerminal(t *testing.T) {
	t.Setenv(EnvPersonality, "")
	f, err := os.CreateTemp(t.TempDir(), "out")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if IsTerminal(f) {
		t.Error("regular file reported as terminal")
	}
	if got := DetectPersonality(f); got != PersonalityMachine {
		t.Errorf("expected machine for a file, got %q", got)
	}
	if IsTerminal(nil) {
		t.Error("nil file reported as terminal")
	}
}

// =============================================================================
// Printer Tests
// =============================================================================

func TestPrinter_MachineMode(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, PersonalityMachine)
	p.Title("hidden")
	p.Muted("hidden")
	p.Status(IconSuccess, "PASS", "ok")
	p.Box("title", "a\nb")

	want := "PASS\tok\ntitle: a b\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestPrinter_FullMode(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, PersonalityFull)
	p.Title("Header")
	p.Status(IconError, "FAIL", "broken")
	p.ErrorBox("broken", "counterexample: 3")

	out := buf.String()
	for _, want := range []string{"Header", string(IconError), "broken", "counterexample: 3"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func sampleResult() *eval.VerifyResult {
	return &eval.VerifyResult{
		Duration: 1500 * time.Millisecond,
		Properties: []eval.PropertyResult{
			{Name: "holds", Passed: true, Calls: 10},
			{Name: "breaks", Counterexample: []uint32{1000000}, Calls: 40, Shrinks: 7, Seed: 42},
			{Name: "timed_out", Skipped: true},
			{Name: "crashed", Error: errors.New("boom"), Seed: 9},
		},
	}
}

func TestPrintVerifyResult_Machine(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf, PersonalityMachine).PrintVerifyResult(sampleResult())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 7 {
		t.Fatalf("expected 7 lines, got %d:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "PASS\tholds\tcalls=10 shrinks=0") {
		t.Errorf("unexpected first line %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "FAIL\tbreaks") {
		t.Errorf("unexpected second line %q", lines[1])
	}
	if !strings.HasPrefix(lines[2], "SKIP\ttimed_out") {
		t.Errorf("unexpected third line %q", lines[2])
	}
	if !strings.HasPrefix(lines[3], "ERROR\tcrashed\terror=boom") {
		t.Errorf("unexpected fourth line %q", lines[3])
	}
	if lines[4] != "breaks: counterexample: [1000000] seed: 42" {
		t.Errorf("unexpected failure detail %q", lines[4])
	}
	if lines[5] != "crashed: error: boom seed: 9" {
		t.Errorf("unexpected error detail %q", lines[5])
	}
	if lines[6] != "SUMMARY\tpassed=1 failed=2 skipped=1 duration=1.5s" {
		t.Errorf("unexpected summary %q", lines[6])
	}
}

func TestPrintVerifyResult_Full(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf, PersonalityFull).PrintVerifyResult(sampleResult())

	out := buf.String()
	for _, want := range []string{"Conjecture verification", "holds", "breaks", "[1000000]", "passed", "failed", "skipped"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintPropertyList(t *testing.T) {
	props := []*eval.Property{
		{Name: "a", Description: "first", Tags: []string{"bytes", "shrinker"}},
		{Name: "b"},
	}
	var buf bytes.Buffer
	NewPrinter(&buf, PersonalityMachine).PrintPropertyList(props)
	want := "a\tbytes,shrinker\tfirst\nb\t\t\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, "<none>"},
		{[]byte{}, "<empty>"},
		{[]byte{0, 1, 255}, "0001ff"},
		{"ab", `"ab"`},
		{[]int{1, 2}, "[1 2]"},
	}
	for _, tt := range tests {
		if got := FormatValue(tt.in); got != tt.want {
			t.Errorf("FormatValue(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}

	long := FormatValue(make([]byte, 1000))
	if !strings.HasSuffix(long, "...") || len(long) != 515 {
		t.Errorf("expected truncated value, got length %d", len(long))
	}
}
