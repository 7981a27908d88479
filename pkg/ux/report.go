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
	"fmt"
	"strings"
	"time"

	"github.com/adamchainz/conjecture/services/conjecture/eval"
)

// Verification report rendering.
//
// Full mode:
//
//	Conjecture verification
//	✓ lexicographic_bytes  calls=812 shrinks=0 12ms
//	✗ summing_list  calls=1540 shrinks=37 48ms
//	╭────────────────────────────╮
//	│ summing_list               │
//	│ counterexample: [1000000]  │
//	│ seed: 42                   │
//	╰────────────────────────────╯
//	8 passed  1 failed  0 skipped  (1.2s)
//
// Machine mode prints one tab-separated line per property and a SUMMARY
// line.

// PrintPropertyList prints registered properties with their tags.
func (p *Printer) PrintPropertyList(props []*eval.Property) {
	p.Title("Registered properties")
	for _, prop := range props {
		tags := strings.Join(prop.Tags, ",")
		switch p.level {
		case PersonalityMachine:
			fmt.Fprintf(p.w, "%s\t%s\t%s\n", prop.Name, tags, prop.Description)
		default:
			fmt.Fprintf(p.w, "%s %s %s\n", IconBullet.Render(), Styles.Bold.Render(prop.Name), Styles.Muted.Render("["+tags+"]"))
			if prop.Description != "" {
				fmt.Fprintf(p.w, "  %s\n", prop.Description)
			}
		}
	}
}

// PrintVerifyResult prints every property result, a box per failure and a
// summary line.
func (p *Printer) PrintVerifyResult(res *eval.VerifyResult) {
	p.Title("Conjecture verification")
	for _, pr := range res.Properties {
		p.propertyLine(pr)
	}
	for _, pr := range res.FailedProperties() {
		p.failureDetail(pr)
	}
	p.summary(res)
}

func (p *Printer) propertyLine(pr eval.PropertyResult) {
	stats := fmt.Sprintf("calls=%d shrinks=%d", pr.Calls, pr.Shrinks)
	switch {
	case pr.Skipped:
		p.line(IconPending, "SKIP", pr.Name, stats, pr.Duration)
	case pr.Error != nil:
		p.line(IconWarning, "ERROR", pr.Name, "error="+pr.Error.Error(), pr.Duration)
	case pr.Passed:
		p.line(IconSuccess, "PASS", pr.Name, stats, pr.Duration)
	default:
		p.line(IconError, "FAIL", pr.Name, stats, pr.Duration)
	}
}

func (p *Printer) line(icon Icon, tag, name, detail string, d time.Duration) {
	if p.level == PersonalityMachine {
		fmt.Fprintf(p.w, "%s\t%s\t%s\t%s\n", tag, name, detail, d.Round(time.Millisecond))
		return
	}
	text := fmt.Sprintf("%s  %s", name, detail)
	if p.level == PersonalityFull {
		text = fmt.Sprintf("%s  %s", Styles.Bold.Render(name), Styles.Muted.Render(fmt.Sprintf("%s %s", detail, d.Round(time.Millisecond))))
	}
	p.Status(icon, tag, text)
}

func (p *Printer) failureDetail(pr eval.PropertyResult) {
	if pr.Error != nil {
		p.ErrorBox(pr.Name, fmt.Sprintf("error: %v\nseed: %d", pr.Error, pr.Seed))
		return
	}
	p.ErrorBox(pr.Name, fmt.Sprintf("counterexample: %s\nseed: %d", FormatValue(pr.Counterexample), pr.Seed))
}

func (p *Printer) summary(res *eval.VerifyResult) {
	passed, failed, skipped := res.Counts()
	d := res.Duration.Round(time.Millisecond)
	if p.level == PersonalityMachine {
		fmt.Fprintf(p.w, "SUMMARY\tpassed=%d failed=%d skipped=%d duration=%s\n", passed, failed, skipped, d)
		return
	}
	failStyle := Styles.Muted
	if failed > 0 {
		failStyle = Styles.Error
	}
	fmt.Fprintf(p.w, "%s %s  %s %s  %s %s  %s\n",
		Styles.Success.Render(fmt.Sprintf("%d", passed)), Styles.Muted.Render("passed"),
		failStyle.Render(fmt.Sprintf("%d", failed)), Styles.Muted.Render("failed"),
		Styles.Warning.Render(fmt.Sprintf("%d", skipped)), Styles.Muted.Render("skipped"),
		Styles.Muted.Render("("+d.String()+")"),
	)
}

// FormatValue renders a counterexample. Byte slices print in hex, longer
// values are truncated.
func FormatValue(v any) string {
	var s string
	switch x := v.(type) {
	case nil:
		return "<none>"
	case []byte:
		s = fmt.Sprintf("%x", x)
		if len(x) == 0 {
			s = "<empty>"
		}
	case string:
		s = fmt.Sprintf("%q", x)
	default:
		s = fmt.Sprintf("%v", x)
	}
	const limit = 512
	if len(s) > limit {
		s = s[:limit] + "..."
	}
	return s
}
