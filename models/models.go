package models

import (
	"errors"
	"time"
)

// ErrProfileNotFound is returned when a user profile is not found
var ErrProfileNotFound = errors.New("user profile not found")

// Chat roles used across the provider and conversation store.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is a single turn in a model-facing conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ExperienceLevel describes how much prior exposure a reader has.
type ExperienceLevel string

const (
	ExperienceBeginner     ExperienceLevel = "beginner"
	ExperienceIntermediate ExperienceLevel = "intermediate"
	ExperienceAdvanced     ExperienceLevel = "advanced"
)

// UserProfile holds reader preferences consulted (never mutated) by the
// personalization step.
type UserProfile struct {
	UserID            string          `json:"user_id"`
	ExperienceLevel   ExperienceLevel `json:"experience_level"`
	PreferredLanguage string          `json:"preferred_language"`
	SectionsRead      []string        `json:"sections_read"`
	UpdatedAt         time.Time       `json:"updated_at"`
}
