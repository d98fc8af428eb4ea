package pipeline

import (
	"fmt"
	"strings"
)

// Style describes one rewrite variant: its identity in API responses and
// the instruction template and temperature used to generate it.
type Style struct {
	ID          string
	Title       string
	Description string
	Temperature float64
	guidelines  string
}

// styles lists the rewrite variants in their fixed output order.
var styles = []Style{
	{
		ID:          "professional",
		Title:       "Professional & Structured",
		Description: "Formal tone, clear objectives, business-ready format",
		Temperature: 0.3,
		guidelines: `Transform this input into a professional, structured prompt suitable for business or formal contexts.

Guidelines:
- Use formal, professional language
- Include clear objectives and expected outcomes
- Add proper context and constraints
- Structure with clear sections
- Make it actionable and specific`,
	},
	{
		ID:          "creative",
		Title:       "Creative & Engaging",
		Description: "Innovative approach, engaging language, out-of-the-box thinking",
		Temperature: 0.8,
		guidelines: `Transform this input into a creative, engaging prompt that encourages innovative thinking.

Guidelines:
- Use engaging, inspiring language
- Encourage creative and innovative approaches
- Include examples or analogies
- Make it thought-provoking
- Add elements that spark imagination`,
	},
	{
		ID:          "technical",
		Title:       "Technical & Precise",
		Description: "Detailed specifications, technical accuracy, implementation-focused",
		Temperature: 0.4,
		guidelines: `Transform this input into a technical, precise prompt with detailed specifications.

Guidelines:
- Use technical terminology and precision
- Include specific requirements and constraints
- Add implementation details where relevant
- Focus on accuracy and completeness
- Include error handling and edge cases`,
	},
}

// stylePrompt builds the generation instruction for one style. Hints are
// appended as an extra guideline line only when present.
func stylePrompt(s Style, input string, hints []string) string {
	var b strings.Builder
	b.WriteString(s.guidelines)
	if len(hints) > 0 {
		b.WriteString("\n- User preferences: ")
		b.WriteString(strings.Join(hints, ", "))
	}
	fmt.Fprintf(&b, "\n\nInput: %q\n\nReturn ONLY the enhanced prompt:", input)
	return b.String()
}

// scorePrompt builds the comparison instruction used to grade one variant.
func scorePrompt(original, enhanced string) string {
	return fmt.Sprintf(`Compare the original and enhanced prompts and provide a score (0-100) based on:
- Clarity improvement
- Specificity added
- Context provided
- Actionability
- Professional quality

Original: %q
Enhanced: %q

Return only a JSON object: {"score": number}`, original, enhanced)
}

// analysisPrompt builds the single-path prompt critique instruction.
func analysisPrompt(input string) string {
	return fmt.Sprintf(`Analyze this user prompt and provide a JSON response with the following structure:
{
  "issues": ["list of specific problems with the prompt"],
  "strengths": ["list of good aspects of the prompt"],
  "suggestions": ["list of specific improvement suggestions"],
  "score": number between 0-100
}

User prompt to analyze: %q

Focus on:
- Clarity and specificity
- Missing context or constraints
- Vague language
- Lack of examples or format specifications
- Missing role or expertise level
- Unclear desired output`, input)
}

// enhancementPrompt builds the single-path rewrite instruction.
func enhancementPrompt(input string) string {
	return fmt.Sprintf(`You are an expert prompt engineer. Transform this vague or basic user input into a powerful, specific, and effective AI prompt.

Original input: %q

Guidelines for enhancement:
1. Add specific role/persona if missing (e.g., "Act as a...")
2. Include clear context and constraints
3. Specify desired output format
4. Add relevant examples if helpful
5. Include expertise level considerations
6. Make instructions clear and actionable
7. Add any missing technical specifications

Return ONLY the enhanced prompt, nothing else. Make it professional and effective.`, input)
}
