package events

import (
	"time"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTeacherReviewedLesson  EventType = "teacher_reviewed_lesson"
	EventStudentSubmittedLesson EventType = "student_submitted_lesson"
	EventGoalAssigned           EventType = "goal_assigned"
	EventAchievementUnlocked    EventType = "achievement_unlocked"
)

// KnownTypes lists the types collaborators may publish.
var KnownTypes = []EventType{
	EventTeacherReviewedLesson,
	EventStudentSubmittedLesson,
	EventGoalAssigned,
	EventAchievementUnlocked,
}

// Valid reports whether t is one of KnownTypes.
func (t EventType) Valid() bool {
	for _, known := range KnownTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Event is a collaborator notification addressed to one principal.
type Event struct {
	ID          string    `json:"id"`
	Type        EventType `json:"type"`
	RecipientID string    `json:"recipient_id"`
	ActorID     string    `json:"actor_id,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	Payload     any       `json:"payload"`
}

// LessonReviewedPayload payload.
type LessonReviewedPayload struct {
	LessonID string `json:"lessonId"`
	Title    string `json:"title,omitempty"`
	Feedback string `json:"feedback,omitempty"`
}

// LessonSubmittedPayload payload.
type LessonSubmittedPayload struct {
	LessonID string `json:"lessonId"`
	Title    string `json:"title,omitempty"`
}

// GoalAssignedPayload payload.
type GoalAssignedPayload struct {
	GoalID  string     `json:"goalId"`
	Title   string     `json:"title,omitempty"`
	DueDate *time.Time `json:"dueDate,omitempty"`
}

// AchievementUnlockedPayload payload.
type AchievementUnlockedPayload struct {
	AchievementID string `json:"achievementId"`
	Name          string `json:"name,omitempty"`
}
