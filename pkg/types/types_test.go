package types

import (
	"errors"
	"strings"
	"testing"
)

func TestChatMessage_Validate(t *testing.T) {
	tests := []struct {
		name    string
		message ChatMessage
		wantErr error
	}{
		{
			name:    "valid text",
			message: ChatMessage{Kind: MessageKindText, Content: "hello"},
		},
		{
			name:    "empty kind defaults to text",
			message: ChatMessage{Content: "hello"},
		},
		{
			name:    "whitespace only",
			message: ChatMessage{Kind: MessageKindText, Content: "   \n\t"},
			wantErr: ErrEmptyContent,
		},
		{
			name:    "exactly 2000 characters",
			message: ChatMessage{Kind: MessageKindText, Content: strings.Repeat("a", 2000)},
		},
		{
			name:    "2001 characters",
			message: ChatMessage{Kind: MessageKindText, Content: strings.Repeat("a", 2001)},
			wantErr: ErrContentTooLong,
		},
		{
			name:    "2000 multibyte characters",
			message: ChatMessage{Kind: MessageKindText, Content: strings.Repeat("é", 2000)},
		},
		{
			name:    "image without file",
			message: ChatMessage{Kind: MessageKindImage},
			wantErr: ErrMissingFile,
		},
		{
			name: "image with zero size",
			message: ChatMessage{Kind: MessageKindImage, File: &FileMetadata{
				URL: "https://cdn.example/a.png", Type: "image/png",
			}},
			wantErr: ErrMissingFile,
		},
		{
			name: "voice with file",
			message: ChatMessage{Kind: MessageKindVoice, File: &FileMetadata{
				URL: "https://cdn.example/a.ogg", Type: "audio/ogg", Size: 1024, Duration: 3,
			}},
		},
		{
			name:    "unknown kind",
			message: ChatMessage{Kind: "sticker", Content: "x"},
			wantErr: ErrInvalidMessageKind,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.message.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate() unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
			if !errors.Is(err, ErrValidation) {
				t.Errorf("Validate() error %v should wrap ErrValidation", err)
			}
		})
	}
}

func TestChatMessage_ValidateTrimsText(t *testing.T) {
	m := ChatMessage{Kind: MessageKindText, Content: "  hi  ", File: &FileMetadata{URL: "x"}}
	if err := m.Validate(); err != nil {
		t.Fatalf("Validate() unexpected error: %v", err)
	}
	if m.Content != "hi" {
		t.Errorf("content = %q, want %q", m.Content, "hi")
	}
	if m.File != nil {
		t.Error("text messages should not carry file metadata")
	}
}

func TestParseRole(t *testing.T) {
	tests := []struct {
		in   string
		want Role
	}{
		{"student", RoleStudent},
		{"teacher", RoleTeacher},
		{"freelancer", RoleFreelancer},
		{"admin", RoleAdmin},
		{"support", RoleSupport},
		{"superuser", RoleStudent},
		{"", RoleStudent},
	}
	for _, tt := range tests {
		if got := ParseRole(tt.in); got != tt.want {
			t.Errorf("ParseRole(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRole_Classes(t *testing.T) {
	if !RoleAdmin.IsStaff() || !RoleSupport.IsStaff() {
		t.Error("admin and support should be staff")
	}
	if RoleTeacher.IsStaff() {
		t.Error("teacher should not be staff")
	}
	if !RoleTeacher.IsPublic() || !RoleSupport.IsPublic() {
		t.Error("teacher and staff should be public")
	}
	if RoleFreelancer.IsPublic() || RoleStudent.IsPublic() {
		t.Error("freelancer and student should not be public")
	}
	if !RoleStudent.IsOrdinary() || RoleFreelancer.IsOrdinary() {
		t.Error("only students are ordinary end-users")
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to PresenceStatus
		want     bool
	}{
		{PresenceOffline, PresenceOnline, true},
		{PresenceOffline, PresenceAway, false},
		{PresenceOnline, PresenceAway, true},
		{PresenceOnline, PresenceOffline, true},
		{PresenceAway, PresenceOnline, true},
		{PresenceAway, PresenceOffline, true},
		{PresenceOnline, PresenceOnline, true},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestIsValidGuestID(t *testing.T) {
	valid := []string{"G1", "guest_01HZX", "a-b-c"}
	invalid := []string{"", strings.Repeat("g", 65), "guest id", "g<script>"}

	for _, id := range valid {
		if !IsValidGuestID(id) {
			t.Errorf("IsValidGuestID(%q) = false, want true", id)
		}
	}
	for _, id := range invalid {
		if IsValidGuestID(id) {
			t.Errorf("IsValidGuestID(%q) = true, want false", id)
		}
	}
}
