// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"testing"
	"time"
)

func TestNewThemeInitializesStyles(t *testing.T) {
	theme := NewTheme()
	if theme == nil {
		t.Fatal("NewTheme returned nil")
	}

	// A few spot checks that initStyles ran.
	if !theme.HeaderTitle.GetBold() {
		t.Error("HeaderTitle should be bold")
	}
	if !theme.SessionItemSelected.GetBold() {
		t.Error("SessionItemSelected should be bold")
	}
	if theme.UserBubble.GetMarginLeft() == 0 {
		t.Error("UserBubble should be pushed right")
	}
	if theme.AssistantBubble.GetMarginRight() == 0 {
		t.Error("AssistantBubble should be pushed left")
	}
}

func TestSpinnerDuration(t *testing.T) {
	if LineSpinner.Duration() != time.Second/10 {
		t.Errorf("Unexpected LineSpinner frame duration: %v", LineSpinner.Duration())
	}
	if len(DotsSpinner.Frames) == 0 {
		t.Error("DotsSpinner has no frames")
	}
}
