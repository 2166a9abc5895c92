package assistant

import (
	"fmt"
	"strings"
	"time"
)

// RequestType selects the system prompt for a question
type RequestType string

const (
	TypeExplanation  RequestType = "explanation"
	TypeStudyTip     RequestType = "study_tip"
	TypeMotivation   RequestType = "motivation"
	TypeScheduleHelp RequestType = "schedule_help"
	TypeGeneral      RequestType = "general"
)

// ParseRequestType maps a wire value to a RequestType; unknown values are
// treated as general questions
func ParseRequestType(s string) RequestType {
	switch t := RequestType(strings.ToLower(strings.TrimSpace(s))); t {
	case TypeExplanation, TypeStudyTip, TypeMotivation, TypeScheduleHelp:
		return t
	default:
		return TypeGeneral
	}
}

// StudyContext describes what the student is doing right now
type StudyContext struct {
	Subject      string `json:"subject,omitempty"`
	CurrentTask  string `json:"currentTask,omitempty"`
	StudyMinutes int    `json:"studyTime,omitempty"`
	FocusScore   int    `json:"focusScore,omitempty"`
}

// Request is one question for the assistant
type Request struct {
	Message string       `json:"message"`
	Context StudyContext `json:"context"`
	Type    RequestType  `json:"type"`
}

// Response is the assistant's answer
type Response struct {
	Response  string      `json:"response"`
	Type      RequestType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Filtered  bool        `json:"filtered,omitempty"`
}

// FilteredReply is returned for questions that are not about studying
const FilteredReply = "Sorry, I can only help with study-related questions, homework, assignments, or Google Classroom tasks. Please ask me something about your studies, courses, or academic work!"

// fallbackReply is used when the model returns no choices
const fallbackReply = "Sorry, I couldn't generate a response."

const filterPrompt = `You are a content filter for a study assistant app. Your job is to determine if a user's message is related to studying, education, academics, homework, assignments, courses, learning, Google Classroom, or school-related topics.

Respond with ONLY "YES" if the message is study-related, or "NO" if it's not.

Study-related topics include:
- Academic subjects (math, science, history, literature, etc.)
- Homework and assignments
- Study techniques and strategies
- Educational concepts and explanations
- Course planning and scheduling
- Google Classroom tasks
- Learning difficulties or questions
- School projects and research
- Test preparation and exams
- Academic motivation and productivity

Non-study topics include:
- General conversation
- Entertainment (movies, games, sports)
- Personal relationships
- Weather or news
- Shopping or lifestyle
- Technology unrelated to learning
- Random questions not about education`

// prompts returns the system and user messages for a request
func prompts(req Request) (system, user string) {
	subject := req.Context.Subject
	switch req.Type {
	case TypeExplanation:
		if subject == "" {
			subject = "a subject"
		}
		system = fmt.Sprintf(`You are StudyPal, a dedicated academic assistant focused ONLY on educational topics. Explain concepts clearly and simply, using examples when helpful.
Keep explanations concise but thorough. If the user is studying %s, tailor your explanation to that context.

IMPORTANT: You must ONLY respond to questions about academic subjects, homework, assignments, studying techniques, or educational content. If asked about non-academic topics, politely redirect to study-related questions.`, subject)
		user = "Please explain: " + req.Message

	case TypeStudyTip:
		if subject == "" {
			subject = "various subjects"
		}
		system = fmt.Sprintf(`You are StudyPal, an expert study coach focused exclusively on academic success. Provide practical, actionable study tips and strategies.
Consider the user is studying %s and has been studying for %d minutes today.
Give specific, implementable advice.

IMPORTANT: Only provide study-related advice. If the question isn't about studying, learning, or academics, redirect to educational topics.`, subject, req.Context.StudyMinutes)
		user = "I need study tips for: " + req.Message

	case TypeMotivation:
		system = `You are StudyPal, a motivational study coach dedicated to academic success. Provide encouraging, uplifting messages to help students stay motivated with their studies.
Be supportive and remind them of their academic goals and progress. Keep it positive and actionable.

IMPORTANT: Focus only on academic motivation. If asked about non-study topics, redirect to educational motivation and goals.`
		user = "I need motivation for: " + req.Message

	case TypeScheduleHelp:
		system = fmt.Sprintf(`You are StudyPal, an AI study planner specialized in academic scheduling and productivity. Help optimize study schedules and provide smart recommendations.
Consider the user's current focus score of %d%% and their study patterns.
Give practical scheduling advice for academic work.

IMPORTANT: Only help with study schedules, homework planning, and academic time management. Redirect non-academic scheduling questions to study-related planning.`, req.Context.FocusScore)
		user = "I need help with my study schedule: " + req.Message

	default:
		system = `You are StudyPal, a helpful study assistant focused exclusively on educational and academic topics.

IMPORTANT RULES:
- ONLY respond to questions about studying, homework, assignments, courses, academic subjects, or Google Classroom
- If asked about non-academic topics, respond: "` + FilteredReply + `"
- Always keep responses educational and study-focused
- Help with academic concepts, study techniques, homework help, and educational planning`
		user = req.Message
	}

	if req.Context.CurrentTask != "" {
		system += "\n\nThe student's current task: " + req.Context.CurrentTask
	}
	return system, user
}
