package pipeline

// greetings are matched as substrings against the normalized query.
var greetings = []string{
	"hello", "hi", "hey", "greetings",
	"good morning", "good afternoon", "good evening",
	"namaste", "salam", "hola", "hi there", "howdy",
}

// greetingResponses are picked uniformly at random when the query is a
// greeting. No retrieval happens on this branch.
var greetingResponses = []string{
	"Welcome to support! I can help with:\n- Orders\n- Returns\n- Payments\n- Account issues",
	"Hello! I'm your shopping assistant. What can I help you with today?",
	"Welcome back! Need help with a recent order or your account?",
}

// fallbackResponses are picked uniformly at random when retrieval finds
// nothing above the similarity threshold.
var fallbackResponses = []string{
	"I couldn't find exact information on that. You could try:\n1. Our help center\n2. Emailing support@example.com",
	"I'm still learning about this topic. For immediate help:\n- Visit our FAQ\n- Contact live chat",
	"That topic isn't in my knowledge base yet. Our team can help at support@example.com",
}

// answerTemplate renders the retrieved context and the question into the
// instruction block sent to the model. Placeholders: context, question.
const answerTemplate = `As an e-commerce support expert, create a helpful response using these guidelines:

1. CONTEXT:
%s

2. QUESTION:
%s

3. RESPONSE REQUIREMENTS:
- Answer directly and precisely
- Use bullet points for steps
- Include examples where helpful
- Add warning notes if applicable
- Keep tone professional but friendly
- Never invent information

FINAL ANSWER:`
