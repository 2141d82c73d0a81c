package ghapi

import (
	"strings"
	"testing"
)

func TestDetectLabels(t *testing.T) {
	tests := []struct {
		text string
		want []string
	}{
		{"这个插件不工作了", []string{"插件"}},
		{"请更新文档说明", []string{"Doc"}},
		{"小组件显示异常", []string{"小组件"}},
		{"普通的问题", nil},
		{"", nil},
	}
	for _, tt := range tests {
		got := DetectLabels(tt.text)
		if len(got) != len(tt.want) {
			t.Errorf("DetectLabels(%q) = %v, want %v", tt.text, got, tt.want)
			continue
		}
		for _, w := range tt.want {
			found := false
			for _, g := range got {
				if g == w {
					found = true
				}
			}
			if !found {
				t.Errorf("DetectLabels(%q) = %v, missing %q", tt.text, got, w)
			}
		}
	}
}

func TestValidateIssueFormat(t *testing.T) {
	advice := ValidateIssueFormat("Bug: crash on start", "it crashes")
	if len(advice) != 1 || !strings.Contains(advice[0], "重现步骤") {
		t.Errorf("advice = %v", advice)
	}

	if advice := ValidateIssueFormat("Bug: crash", "重现步骤: 1. 打开程序"); len(advice) != 0 {
		t.Errorf("well-formed bug flagged: %v", advice)
	}
	if advice := ValidateIssueFormat("feature request", "please add"); len(advice) != 0 {
		t.Errorf("non-bug flagged: %v", advice)
	}
}

func TestValidatePRFormat(t *testing.T) {
	for _, branch := range []string{"main", "master", "develop"} {
		if advice := ValidatePRFormat(branch); len(advice) != 1 {
			t.Errorf("ValidatePRFormat(%q) = %v", branch, advice)
		}
	}
	if advice := ValidatePRFormat("feature/add-thing"); len(advice) != 0 {
		t.Errorf("feature branch flagged: %v", advice)
	}
}

func TestPredefinedLabelLookup(t *testing.T) {
	spec, ok := predefinedLabels["bug"]
	if !ok || spec.Color != "d73a4a" {
		t.Errorf("bug label = %+v, ok=%v", spec, ok)
	}
}
