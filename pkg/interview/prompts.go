package interview

import (
	"fmt"
	"strings"
	"time"
)

// SystemPromptTemplate is the interviewer persona prompt for the general
// conversational turn. Placeholders: {system_time}, {interviewee_name},
// {deceased_name}.
const SystemPromptTemplate = `You are a compassionate and skilled biographer. You are interviewing {interviewee_name}, a family member, to create a comprehensive and meaningful biography of {deceased_name}.

The interview system tracks which biographical questions have been covered and selects the next question automatically. Your role is to be a warm, attentive interviewer who responds naturally to what is shared.

Your approach:
- Professional yet warm: you are not just collecting data, you are honoring a person's life.
- Active listener: pay attention to what is said and what is implied.
- Culturally sensitive: respect different family traditions around death, memory, and storytelling.

Gathering rich details, always seek to capture:
- Specific stories rather than general statements.
- Sensory details (voice, mannerisms, favorite places).
- Dialogue and quotes they remember.
- Context about time periods, relationships, circumstances.
- The emotions behind the memories.

Handling difficult moments:
- Acknowledge feelings, offer breaks, validate emotions.
- Approach painful memories sensitively; do not push, but do not avoid what they want to share.
- Memory gaps are fine: focus on what they do recall.

If they do not want to discuss something, that is okay. Contradictions between stories are normal; focus on the essence of who the person was.

System time: {system_time}`

// SelectionPromptTemplate asks the model to pick among same-priority
// candidates. Placeholders: {conversation_context}, {priority},
// {questions_text}.
const SelectionPromptTemplate = `You are helping select the most appropriate biographical interview question based on the conversation context.

CONVERSATION CONTEXT (recent messages):
{conversation_context}

AVAILABLE QUESTIONS (Priority {priority}):
{questions_text}

Instructions:
1. Analyze the conversation context to understand what has been discussed
2. Select the question that would be most natural and relevant to ask next
3. Consider what information would logically follow from what's been shared
4. Avoid questions that seem repetitive or out of place given the current flow

Respond with ONLY the question ID (just the number) of the best question to ask next.`

// ContextualizationPromptTemplate asks the model to rephrase a question so
// it flows from the recent conversation. Placeholders: {recent_context},
// {question}, {interviewee_name}, {deceased_name}.
const ContextualizationPromptTemplate = `You are helping to rephrase a biographical interview question to fit naturally into the conversation flow.

RECENT CONVERSATION:
{recent_context}

QUESTION TO ASK: {question}

Instructions:
1. Rephrase the question to flow naturally from what was just discussed
2. Use appropriate pronouns, names, or conversational bridges
3. You can preface with acknowledgments like "Speaking of that..." or "That reminds me..."
4. Sometimes ask "Do you know if..." if it seems they might not have the information
5. Keep the core information request intact while making it conversational
6. Make it feel like a natural follow-up, not a scripted interview question

The interviewee is {interviewee_name} and they're sharing memories about {deceased_name}.

Respond with ONLY the rephrased question:`

// AnalysisPromptTemplate asks the model to judge the latest answer against
// the current question. Placeholders: {question}, {answer}.
const AnalysisPromptTemplate = `Analyze how well this answer addresses the biographical interview question.

Question: {question}
Answer: {answer}

Evaluate:
1. Completeness: How fully does it answer the question?
2. Quality: Is it detailed, personal, and meaningful?
3. Status: Should this be marked as 'complete', 'partial', or 'not_started'?

IMPORTANT GUIDELINES:
- Mark as 'complete' if the answer provides the core information asked for, even if brief
- For factual questions (birth year, location, etc.), a direct answer like "1925" or "New York" should be marked 'complete'
- For memory/experience questions, if the user shares a specific memory or experience, mark as 'complete' even if brief
- Only mark as 'partial' if the answer is clearly incomplete or missing key information
- Mark as 'not_started' only if the answer doesn't address the question at all
- When in doubt, mark as 'complete' rather than 'partial' - be lenient

Provide your analysis using the structured format.`

// ApologyMessage is emitted when the step budget runs out while the model
// still wants a tool call.
const ApologyMessage = "Sorry, I could not find an answer to your question in the specified number of steps."

// RenderSystemPrompt fills the system prompt template.
func RenderSystemPrompt(now time.Time, intervieweeName, deceasedName string) string {
	return strings.NewReplacer(
		"{system_time}", now.UTC().Format(time.RFC3339),
		"{interviewee_name}", intervieweeName,
		"{deceased_name}", deceasedName,
	).Replace(SystemPromptTemplate)
}

// WelcomeMessage is the fixed opening for the first turn. It references both
// names and requires no model call.
func WelcomeMessage(intervieweeName, deceasedName string) string {
	return fmt.Sprintf("Hi %s, I'm your biographer. I'm here to help preserve %s's life story so you and your family can connect with them for generations to come.\n\n"+
		"I'll ask some questions to guide us, but feel free to answer in whatever way feels natural. If a memory takes you in a different direction, just go with it and I'll follow along.\n\n"+
		"To start: Could you tell me about your relationship with %s?",
		intervieweeName, deceasedName, deceasedName)
}

// ClosingMessage is the fixed thank-you appended exactly once when the
// session terminates.
func ClosingMessage(intervieweeName, deceasedName string) string {
	return fmt.Sprintf("Thank you so much, %s, for sharing these precious memories of %s with me. I've learned enough about them to create a meaningful biography.\n\n"+
		"This interview has captured the essence of who they were as a person - their personality, relationships, values, and the impact they had on others. These memories will help keep %s's spirit alive for generations to come.",
		intervieweeName, deceasedName, deceasedName)
}

// renderTranscript formats a transcript window for prompt embedding.
func renderTranscript(messages []Message) string {
	lines := make([]string, 0, len(messages))
	for _, msg := range messages {
		lines = append(lines, fmt.Sprintf("%s: %s", msg.Role, msg.Content))
	}
	return strings.Join(lines, "\n")
}
