package rag

import (
	"fmt"
	"strings"

	"github.com/kitab-ai/kitab/models"
)

const maxListedSections = 5

// Decorate appends personalization directives derived from the reader's
// profile. It is strictly additive: the grounding constraint in the system
// instruction is never altered, removed, or weakened. A nil profile is the
// identity transform.
func Decorate(profile InstructionProfile, user *models.UserProfile) InstructionProfile {
	if user == nil {
		return profile
	}

	directives := append([]string(nil), profile.Directives...)
	directives = append(directives, depthDirective(user.ExperienceLevel))
	if d := continuityDirective(user.SectionsRead); d != "" {
		directives = append(directives, d)
	}

	return InstructionProfile{System: profile.System, Directives: directives}
}

func depthDirective(level models.ExperienceLevel) string {
	switch level {
	case models.ExperienceAdvanced:
		return "The reader is advanced: assume familiarity with the fundamentals, use technical terminology freely, and focus on nuances."
	case models.ExperienceIntermediate:
		return "The reader has intermediate knowledge: technical terms are fine, but explain advanced concepts when they first appear."
	default:
		return "The reader is a beginner: expand definitions, avoid unexplained jargon, and break complex concepts into small steps."
	}
}

func continuityDirective(sections []string) string {
	if len(sections) == 0 {
		return ""
	}
	listed := sections
	suffix := ""
	if len(listed) > maxListedSections {
		listed = listed[:maxListedSections]
		suffix = ", ..."
	}
	return fmt.Sprintf("The reader has already read these sections: %s%s. You may skip re-explaining concepts introduced there.",
		strings.Join(listed, ", "), suffix)
}
